package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"videoscribe/internal/batch"
	"videoscribe/internal/logging"
	"videoscribe/internal/models"
)

var getCmd = &cobra.Command{
	Use:   "get [URL or ID]",
	Short: "Transcribe one video (every part of it)",
	Example: `  videoscribe get https://www.bilibili.com/video/BV1xx411c7mD
  videoscribe get dQw4w9WgXcQ --lang en
  videoscribe get BV1xx411c7mD --include-collection`,
	Args: exactlyOneReference,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, cleanup, err := newProcessor(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		opts := pipelineOptions(cfg, logging.Writer(cmd.ErrOrStderr()))
		opts.IncludeCollection, _ = cmd.Flags().GetBool("include-collection")

		results, err := proc.ProcessSingle(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), batch.Result{Successes: results})
	},
}

func init() {
	getCmd.Flags().Bool("include-collection", false, "Also process the other videos of the collection this video belongs to")
	rootCmd.AddCommand(getCmd)
}

// printSummary lists what was written and returns the error the run should
// exit with.
func printSummary(w io.Writer, res batch.Result) error {
	for _, r := range res.Successes {
		marker := "✓"
		if r.Metadata.Source == models.SourceSkippedExisting {
			marker = "="
		}
		fmt.Fprintf(w, "%s %s\n", marker, r.MarkdownPath)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "✗ %s\n", f)
	}
	fmt.Fprintf(w, "Done: %d succeeded, %d failed\n", len(res.Successes), len(res.Failures))

	switch {
	case len(res.Failures) == 0:
		return nil
	case len(res.Successes) == 0:
		return errAllFailed
	default:
		return errPartialFailure
	}
}
