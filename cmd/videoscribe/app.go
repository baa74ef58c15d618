package main

import (
	"context"
	"log/slog"

	"videoscribe/internal/config"
	"videoscribe/internal/identifier"
	"videoscribe/internal/logging"
	"videoscribe/internal/models"
	"videoscribe/internal/pipeline"
	"videoscribe/internal/render"
	"videoscribe/internal/services"
	"videoscribe/internal/transcript"
)

// newProcessor wires the platform services into a pipeline. The returned
// func releases engine clients.
func newProcessor(ctx context.Context, cfg *config.Config) (*pipeline.Processor, func(), error) {
	bilibili, err := services.NewBilibiliService(services.BilibiliOptions{
		Timeout:           cfg.HTTPTimeout,
		RequestsPerSecond: cfg.BilibiliRPS,
		CookieFile:        cfg.BilibiliCookieFile,
	})
	if err != nil {
		return nil, nil, err
	}
	youtube := services.NewYouTubeService(cfg.HTTPTimeout)
	ytdlp := services.NewYtDlp(cfg.YtDlpBinary, cfg.FFmpegBinary, cfg.BilibiliCookieFile, cfg.YouTubeCookieFile)

	cleanup := func() {}
	var transcriber pipeline.Transcriber
	switch cfg.Engine {
	case "gemini":
		gemini, err := services.NewGeminiTranscriber(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs)
		if err != nil {
			// Captions still work without an engine; audio jobs fail with EngineUnavailable.
			slog.Warn("gemini transcription disabled", slog.Any("error", err))
		} else {
			transcriber = gemini
			cleanup = gemini.Close
		}
	default:
		transcriber = services.NewWhisperCLI(cfg.WhisperBinary, cfg.WhisperModel)
	}

	var conv transcript.Converter
	if c, err := transcript.NewOpenCCConverter(); err != nil {
		slog.Warn("traditional to simplified conversion disabled", slog.Any("error", err))
	} else {
		conv = c
	}

	references := identifier.NewResolver(
		map[models.Platform]identifier.Source{
			models.PlatformBilibili: {Listings: bilibili, Creators: bilibili},
			models.PlatformYouTube:  {Listings: youtube, Creators: youtube},
		},
		bilibili,
		ytdlp,
	).WithMaxPages(cfg.MaxPages)

	proc := pipeline.NewProcessor(pipeline.Deps{
		Platforms: map[models.Platform]pipeline.Platform{
			models.PlatformBilibili: {Metadata: bilibili, Captions: bilibili, Fetcher: bilibili},
			models.PlatformYouTube:  {Metadata: youtube, Captions: youtube, Fetcher: youtube},
		},
		Downloader:  services.NewMultiDownloader(youtube, ytdlp),
		Transcriber: transcriber,
		Renderer:    render.NewRenderer(cfg.OutputRoot, cfg.WriteText),
		Normalizer:  transcript.NewNormalizer(conv),
		References:  references,
		WorkDir:     cfg.WorkDir,
	})
	return proc, cleanup, nil
}

func pipelineOptions(cfg *config.Config, progress logging.Progress) pipeline.Options {
	return pipeline.Options{
		LanguageMode:    cfg.LanguageMode,
		CaptionFallback: cfg.CaptionFallback,
		Workers:         cfg.MaxWorkers,
		Concurrent:      cfg.Concurrent,
		Progress:        progress,
	}
}
