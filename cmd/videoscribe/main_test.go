package main

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoscribe/internal/batch"
	"videoscribe/internal/config"
	"videoscribe/internal/middleware"
	"videoscribe/internal/models"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, models.ExitOK},
		{"usage", usageError{errors.New("accepts 1 arg(s)")}, models.ExitUsage},
		{"partial", errPartialFailure, models.ExitPartialFailure},
		{"all failed", errAllFailed, models.ExitUnexpected},
		{"invalid reference", fmt.Errorf("%w: hello", models.ErrInvalidReference), models.ExitInvalidReference},
		{"nothing to process", models.ErrNoReferences, models.ExitInvalidReference},
		{"network", fmt.Errorf("listing: %w", models.ErrNetwork), models.ExitNetwork},
		{"engine", models.ErrEngineUnavailable, models.ExitEngineUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestPrintSummary(t *testing.T) {
	ok := models.ProcessResult{MarkdownPath: "/out/a.md", Metadata: models.VideoMetadata{Source: models.SourceOfficialSubtitle}}
	skipped := models.ProcessResult{MarkdownPath: "/out/b.md", Metadata: models.VideoMetadata{Source: models.SourceSkippedExisting}}

	var buf bytes.Buffer
	err := printSummary(&buf, batch.Result{Successes: []models.ProcessResult{ok, skipped}, Failures: []string{"BV3 -> not found"}})
	assert.ErrorIs(t, err, errPartialFailure)
	assert.Equal(t, "✓ /out/a.md\n= /out/b.md\n✗ BV3 -> not found\nDone: 2 succeeded, 1 failed\n", buf.String())

	buf.Reset()
	assert.ErrorIs(t, printSummary(&buf, batch.Result{Failures: []string{"x -> boom"}}), errAllFailed)
	assert.NoError(t, printSummary(&buf, batch.Result{Successes: []models.ProcessResult{ok}}))
}

func TestApplyGlobalFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "x"}
		addGlobalFlags(cmd)
		require.NoError(t, cmd.ParseFlags(args))
		return cmd
	}

	cfg := &config.Config{Engine: "whisper", WhisperModel: "small", WriteText: true, LanguageMode: "auto", CaptionFallback: "auto"}
	require.NoError(t, applyGlobalFlags(newCmd("--lang", "en", "--model", "medium", "--no-txt", "--caption-fallback", "never", "--output", "/srv/out"), cfg))
	assert.Equal(t, "en", cfg.LanguageMode)
	assert.Equal(t, "medium", cfg.WhisperModel)
	assert.False(t, cfg.WriteText)
	assert.Equal(t, "never", cfg.CaptionFallback)
	assert.Equal(t, "/srv/out", cfg.OutputRoot)

	gemini := &config.Config{Engine: "gemini", GeminiModel: "gemini-2.0-flash"}
	require.NoError(t, applyGlobalFlags(newCmd("--model", "gemini-2.5-pro"), gemini))
	assert.Equal(t, "gemini-2.5-pro", gemini.GeminiModel)

	err := applyGlobalFlags(newCmd("--lang", "fr"), &config.Config{})
	var usage usageError
	assert.ErrorAs(t, err, &usage)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"token", "alice", "--ttl", "1h"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	subject, err := middleware.NewJWTAuth("cli-secret").ParseToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
}
