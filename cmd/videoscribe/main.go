package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"videoscribe/internal/config"
	"videoscribe/internal/logging"
	"videoscribe/internal/models"
)

var (
	cfg *config.Config

	errPartialFailure = errors.New("some items failed")
	errAllFailed      = errors.New("every item failed")
)

// usageError marks bad invocations so they exit with the usage code.
type usageError struct{ error }

var rootCmd = &cobra.Command{
	Use:   "videoscribe",
	Short: "Turn bilibili and YouTube videos into Markdown transcripts",
	Long: `videoscribe fetches official captions when a video has them and falls back
to downloading the audio and transcribing it. Each video becomes a Markdown
document with YAML front matter under the output directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Configure()
		cfg = config.Load()
		return applyGlobalFlags(cmd, cfg)
	},
}

func init() {
	addGlobalFlags(rootCmd)
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringP("output", "o", "", "Output directory (default: $TRANSCRIBE_OUTPUT_DIR or ~/ViedoTextDownload)")
	flags.String("lang", "", "Preferred transcript language: auto, zh or en")
	flags.String("caption-fallback", "", "Accept captions outside the preferred languages: auto, always or never")
	flags.String("model", "", "Transcription model for the configured engine")
	flags.Bool("no-txt", false, "Do not write the plain-text copy next to each document")
}

func applyGlobalFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if output, _ := flags.GetString("output"); output != "" {
		cfg.OverrideOutputRoot(output)
	}
	if lang, _ := flags.GetString("lang"); lang != "" {
		switch lang {
		case "auto", "zh", "en":
			cfg.LanguageMode = lang
		default:
			return usageError{fmt.Errorf("invalid --lang %q: want auto, zh or en", lang)}
		}
	}
	if policy, _ := flags.GetString("caption-fallback"); policy != "" {
		switch policy {
		case "auto", "always", "never":
			cfg.CaptionFallback = policy
		default:
			return usageError{fmt.Errorf("invalid --caption-fallback %q: want auto, always or never", policy)}
		}
	}
	if model, _ := flags.GetString("model"); model != "" {
		if cfg.Engine == "gemini" {
			cfg.GeminiModel = model
		} else {
			cfg.WhisperModel = model
		}
	}
	if noTxt, _ := flags.GetBool("no-txt"); noTxt {
		cfg.WriteText = false
	}
	return nil
}

// exactlyOneReference is cobra.ExactArgs(1) reporting as a usage error.
func exactlyOneReference(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return usageError{err}
	}
	return nil
}

func exitCode(err error) int {
	var usage usageError
	switch {
	case err == nil:
		return models.ExitOK
	case errors.As(err, &usage):
		return models.ExitUsage
	case errors.Is(err, errPartialFailure):
		return models.ExitPartialFailure
	case errors.Is(err, errAllFailed):
		return models.ExitUnexpected
	default:
		return models.ExitCode(err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}
