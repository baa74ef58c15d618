package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"videoscribe/internal/models"
)

// WhisperCLI runs the openai-whisper command line tool.
type WhisperCLI struct {
	Binary string
	Model  string
}

func NewWhisperCLI(binary, model string) *WhisperCLI {
	if model == "" {
		model = "small"
	}
	return &WhisperCLI{Binary: binary, Model: model}
}

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath, language string) (*models.Transcription, error) {
	bin, ok := findBinary(w.Binary, "whisper")
	if !ok {
		return nil, fmt.Errorf("%w: whisper not found, install openai-whisper or set WHISPER_BIN", models.ErrEngineUnavailable)
	}

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, fmt.Errorf("create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", w.Model,
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	slog.Info("transcribing audio", slog.String("engine", "whisper"), slog.String("model", w.Model), slog.String("language", language))
	cmd := exec.CommandContext(ctx, bin, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("whisper failed: %w: %s", err, lastLine(out))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	return parseWhisperJSON(data), nil
}

// parseWhisperJSON reads the segments array of whisper's JSON output and
// keeps the flat text for engines that return no segments.
func parseWhisperJSON(data []byte) *models.Transcription {
	result := &models.Transcription{Text: strings.TrimSpace(gjson.GetBytes(data, "text").String())}
	for _, seg := range gjson.GetBytes(data, "segments").Array() {
		text := strings.TrimSpace(seg.Get("text").String())
		if text == "" {
			continue
		}
		start := seg.Get("start").Float()
		end := seg.Get("end").Float()
		if end < start {
			end = start
		}
		result.Spans = append(result.Spans, models.Segment{Start: start, End: end, Text: text})
	}
	return result
}
