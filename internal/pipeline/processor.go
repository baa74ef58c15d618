package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"videoscribe/internal/batch"
	"videoscribe/internal/identifier"
	"videoscribe/internal/logging"
	"videoscribe/internal/models"
	"videoscribe/internal/render"
	"videoscribe/internal/transcript"
)

type MetadataProvider interface {
	VideoMetadata(ctx context.Context, ref models.VideoReference) (*models.SourceVideo, error)
}

type CaptionLister interface {
	ListCaptions(ctx context.Context, video *models.SourceVideo, part models.VideoPart) ([]models.CaptionTrack, error)
}

type CaptionFetcher interface {
	FetchCaption(ctx context.Context, track models.CaptionTrack) (models.CaptionPayload, error)
}

type AudioDownloader interface {
	DownloadAudio(ctx context.Context, videoURL, destDir, baseName string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*models.Transcription, error)
}

// Platform bundles the capabilities of one source platform. Captions and
// Fetcher may be nil, in which case every video goes to audio transcription.
type Platform struct {
	Metadata MetadataProvider
	Captions CaptionLister
	Fetcher  CaptionFetcher
}

type Deps struct {
	Platforms   map[models.Platform]Platform
	Downloader  AudioDownloader
	Transcriber Transcriber
	Renderer    *render.Renderer
	Normalizer  *transcript.Normalizer
	References  *identifier.Resolver
	// WorkDir holds per-video temporary audio. Empty means os.TempDir.
	WorkDir string
}

type Options struct {
	LanguageMode      string
	CaptionFallback   string
	IncludeCollection bool
	Workers           int
	Concurrent        bool
	Limit             int
	Progress          logging.Progress
}

// Processor turns video references into rendered transcript documents.
type Processor struct {
	platforms   map[models.Platform]Platform
	downloader  AudioDownloader
	transcriber Transcriber
	renderer    *render.Renderer
	normalizer  *transcript.Normalizer
	references  *identifier.Resolver
	workDir     string
	now         func() time.Time
}

func NewProcessor(d Deps) *Processor {
	references := d.References
	if references == nil {
		references = identifier.NewResolver(nil, nil, nil)
	}
	return &Processor{
		platforms:   d.Platforms,
		downloader:  d.Downloader,
		transcriber: d.Transcriber,
		renderer:    d.Renderer,
		normalizer:  d.Normalizer,
		references:  references,
		workDir:     d.WorkDir,
		now:         time.Now,
	}
}

// ProcessSingle handles one video reference, every part of it, and with
// IncludeCollection the other members of the container it belongs to.
func (p *Processor) ProcessSingle(ctx context.Context, raw string, opts Options) ([]models.ProcessResult, error) {
	ref, err := identifier.SingleReference(raw)
	if err != nil {
		return nil, err
	}

	results, err := p.ProcessReference(ctx, ref, opts)
	if err != nil {
		return nil, err
	}
	if opts.IncludeCollection {
		results = append(results, p.expandSiblings(ctx, raw, ref, opts)...)
	}
	return results, nil
}

// ResolveAndBatch expands raw into its member videos and processes them
// through the batch engine.
func (p *Processor) ResolveAndBatch(ctx context.Context, raw string, opts Options) (batch.Result, error) {
	resolution, err := p.references.Resolve(ctx, raw)
	if err != nil {
		return batch.Result{}, err
	}

	refs := resolution.References
	if resolution.Title != "" {
		opts.Progress.Printf("📚 %s: %d videos", resolution.Title, len(refs))
	}
	if opts.Limit > 0 && len(refs) > opts.Limit {
		refs = refs[:opts.Limit]
		opts.Progress.Printf("limited to the first %d videos", opts.Limit)
	}
	return p.ProcessMembers(ctx, refs, opts)
}

func (p *Processor) itemFunc(opts Options) batch.ItemFunc {
	return func(ctx context.Context, ref models.VideoReference) ([]models.ProcessResult, error) {
		return p.ProcessReference(ctx, ref, opts)
	}
}

// ProcessReference runs the caption-or-audio pipeline for every part of one
// video. Existing documents are returned as skipped without any remote call.
func (p *Processor) ProcessReference(ctx context.Context, ref models.VideoReference, opts Options) ([]models.ProcessResult, error) {
	if ref.ID == "" && ref.URL != "" {
		if resolved, err := identifier.SingleReference(ref.URL); err == nil {
			ref = resolved
		}
	}
	if path, ok := p.renderer.FindExisting(ref.Platform, ref.ID); ok {
		opts.Progress.Printf("⏭️ skipping existing %s", path)
		return []models.ProcessResult{skippedResult(path, ref)}, nil
	}

	platform, ok := p.platforms[ref.Platform]
	if !ok || platform.Metadata == nil {
		return nil, fmt.Errorf("%w: no metadata provider for %q", models.ErrEngineUnavailable, ref.Platform)
	}

	video, err := platform.Metadata.VideoMetadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(video.Parts) == 0 {
		return nil, fmt.Errorf("%w: %s has no parts", models.ErrNotFound, ref)
	}

	fallback := video.Platform == models.PlatformYouTube && transcript.IsEnglishLanguage(video.AudioLanguage)
	preferEnglish := transcript.ShouldPreferEnglish(opts.LanguageMode, video.LanguageTexts, fallback, video.AudioLanguage)
	slog.Debug("language decided",
		slog.String("video", video.ID),
		slog.Bool("prefer_english", preferEnglish),
		slog.String("audio_hint", video.AudioLanguage))

	multi := len(video.Parts) > 1
	results := make([]models.ProcessResult, 0, len(video.Parts))
	for _, part := range video.Parts {
		meta := partMetadata(video, part, multi)
		path := p.renderer.ExpectedPath(meta)
		if p.renderer.Exists(path) {
			opts.Progress.Printf("⏭️ skipping existing %s", path)
			results = append(results, skippedResult(path, models.VideoReference{Platform: meta.Platform, ID: meta.VideoID, URL: meta.URL}))
			continue
		}

		result, err := p.processPart(ctx, platform, video, part, meta, preferEnglish, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", meta.VideoID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (p *Processor) processPart(ctx context.Context, platform Platform, video *models.SourceVideo, part models.VideoPart, meta models.VideoMetadata, preferEnglish bool, opts Options) (models.ProcessResult, error) {
	segments, track, err := p.fromCaptions(ctx, platform, video, part, preferEnglish, opts.CaptionFallback)
	if err != nil {
		return models.ProcessResult{}, err
	}

	if len(segments) > 0 {
		opts.Progress.Printf("📄 %s: using %s captions", meta.VideoID, track.Language)
		meta.Source = models.SourceOfficialSubtitle
		meta.Language = transcript.LanguageName(!transcript.IsChineseLanguage(track.Language))
	} else {
		opts.Progress.Printf("🎙️ %s: no usable captions, transcribing audio", meta.VideoID)
		segments, err = p.fromAudio(ctx, part, meta.VideoID, preferEnglish)
		if err != nil {
			return models.ProcessResult{}, err
		}
		meta.Source = models.SourceWhisper
		meta.Language = transcript.LanguageName(preferEnglish)
	}

	if video.Platform == models.PlatformYouTube && !preferEnglish {
		meta.OriginalLanguage = transcript.OriginalLanguage(video.AudioLanguage, video.LanguageTexts...)
	} else {
		meta.OriginalLanguage = transcript.LanguageName(preferEnglish)
	}
	meta.ProcessedAt = p.now().UTC()

	result, err := p.renderer.Render(meta, segments)
	if err != nil {
		return models.ProcessResult{}, err
	}
	slog.Info("transcript written",
		slog.String("video", meta.VideoID),
		slog.String("source", meta.Source),
		slog.Int("segments", len(segments)),
		slog.String("path", result.MarkdownPath))
	return result, nil
}

// fromCaptions tries the ranked caption tracks in order and returns the
// first one that yields segments. No segments and no error means the audio
// path should run.
func (p *Processor) fromCaptions(ctx context.Context, platform Platform, video *models.SourceVideo, part models.VideoPart, preferEnglish bool, policy string) ([]models.Segment, models.CaptionTrack, error) {
	if platform.Captions == nil || platform.Fetcher == nil {
		return nil, models.CaptionTrack{}, nil
	}

	catalog, err := platform.Captions.ListCaptions(ctx, video, part)
	if err != nil {
		return nil, models.CaptionTrack{}, fmt.Errorf("list captions: %w", err)
	}
	ranked := transcript.RankCaptions(catalog, preferEnglish, transcript.AllowFallback(policy, preferEnglish))

	for _, track := range ranked {
		payload, err := platform.Fetcher.FetchCaption(ctx, track)
		if err != nil {
			return nil, models.CaptionTrack{}, fmt.Errorf("fetch %s captions: %w", track.Language, err)
		}
		simplify := transcript.IsChineseLanguage(track.Language)
		segments := p.normalizer.Finalize(transcript.ParsePayload(payload.Format, payload.Data), simplify)
		if len(segments) > 0 {
			return segments, track, nil
		}
		slog.Debug("caption track empty", slog.String("video", video.ID), slog.String("language", track.Language))
	}
	return nil, models.CaptionTrack{}, nil
}

// fromAudio downloads the part's audio into a scratch directory that is
// removed on every exit path, then transcribes it.
func (p *Processor) fromAudio(ctx context.Context, part models.VideoPart, videoID string, preferEnglish bool) ([]models.Segment, error) {
	if p.downloader == nil || p.transcriber == nil {
		return nil, fmt.Errorf("%w: no audio transcription configured", models.ErrEngineUnavailable)
	}

	dir, err := os.MkdirTemp(p.workDir, "videoscribe-audio-*")
	if err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audioPath, err := p.downloader.DownloadAudio(ctx, part.URL, dir, videoID)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}

	result, err := p.transcriber.Transcribe(ctx, audioPath, transcript.EngineLanguage(preferEnglish))
	if err != nil {
		if errors.Is(err, models.ErrEngineUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", models.ErrNoTranscript, err)
	}
	if result == nil {
		return nil, models.ErrNoTranscript
	}

	simplify := !preferEnglish
	segments := p.normalizer.Finalize(result.Spans, simplify)
	if len(segments) == 0 {
		if text := p.normalizer.Normalize(result.Text, simplify); text != "" {
			segments = []models.Segment{{Start: 0, End: 0, Text: text}}
		}
	}
	if len(segments) == 0 {
		return nil, models.ErrNoTranscript
	}
	return segments, nil
}

// expandSiblings processes the other members of the container ref belongs
// to. Failures are only logged.
func (p *Processor) expandSiblings(ctx context.Context, raw string, ref models.VideoReference, opts Options) []models.ProcessResult {
	info, err := p.references.ContainerOf(ctx, raw, ref)
	if err != nil {
		slog.Warn("collection lookup failed", slog.String("video", ref.ID), slog.Any("error", err))
		return nil
	}
	if info == nil {
		opts.Progress.Printf("ℹ️ no collection found, processed the current video only")
		return nil
	}

	members, title, err := p.references.ExpandCollection(ctx, *info)
	if err != nil {
		slog.Warn("collection listing failed", slog.String("kind", string(info.Kind)), slog.String("id", info.ID), slog.Any("error", err))
		return nil
	}

	others := make([]models.VideoReference, 0, len(members))
	for _, m := range members {
		if m.Key() != ref.Key() {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		opts.Progress.Printf("⚠️ collection %q has no other videos", title)
		return nil
	}
	opts.Progress.Printf("📚 collection %q: %d more videos", title, len(others))

	sideOpts := opts
	sideOpts.IncludeCollection = false
	res, err := p.ProcessMembers(ctx, others, sideOpts)
	if err != nil {
		slog.Warn("collection batch failed", slog.String("id", info.ID), slog.Any("error", err))
		return nil
	}
	for _, failure := range res.Failures {
		slog.Warn("collection member failed", slog.String("collection", info.ID), slog.String("failure", failure))
	}
	return res.Successes
}

// ProcessMembers runs an already resolved reference list through the batch
// engine.
func (p *Processor) ProcessMembers(ctx context.Context, refs []models.VideoReference, opts Options) (batch.Result, error) {
	mu := new(sync.Mutex)
	itemOpts := opts
	itemOpts.IncludeCollection = false
	itemOpts.Progress = logging.Synchronized(opts.Progress, mu)
	return batch.Run(ctx, refs, p.itemFunc(itemOpts), batch.Options{
		Workers:    opts.Workers,
		Concurrent: opts.Concurrent,
		Progress:   opts.Progress,
		Mu:         mu,
	})
}

func partMetadata(video *models.SourceVideo, part models.VideoPart, multi bool) models.VideoMetadata {
	duration := part.Duration
	if duration <= 0 {
		duration = video.Duration
	}
	meta := models.VideoMetadata{
		Platform:   video.Platform,
		VideoID:    video.ID,
		Title:      video.Title,
		Uploader:   video.Uploader,
		UploadDate: video.UploadDate,
		URL:        firstNonEmpty(part.URL, video.URL),
		Duration:   render.FormatDuration(duration),
		Tags:       video.Tags,
	}
	if multi {
		meta.VideoID = fmt.Sprintf("%s-P%02d", video.ID, part.Number)
		meta.Title = fmt.Sprintf("%s｜P%02d %s", video.Title, part.Number, part.Title)
	}
	if meta.UploadDate == "" {
		meta.UploadDate = models.Unknown
	}
	return meta
}

func skippedResult(path string, ref models.VideoReference) models.ProcessResult {
	meta, err := render.ReadMetadata(path)
	if err != nil {
		slog.Debug("existing document has no readable front matter", slog.String("path", path), slog.Any("error", err))
		meta = models.VideoMetadata{Platform: ref.Platform, VideoID: ref.ID, URL: ref.URL}
	}
	meta.Source = models.SourceSkippedExisting

	result := models.ProcessResult{Metadata: meta, MarkdownPath: path}
	if text := strings.TrimSuffix(path, ".md") + ".txt"; fileExists(text) {
		result.TextPath = text
	}
	return result
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
