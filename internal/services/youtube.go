package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"

	"videoscribe/internal/models"
)

var channelIDRe = regexp.MustCompile(`(UC[0-9A-Za-z_-]{22})`)

// YouTubeService reads metadata, caption catalogs, playlists and audio
// streams from YouTube.
type YouTubeService struct {
	http          *fetcher
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	timeout       time.Duration
}

func NewYouTubeService(timeout time.Duration) *YouTubeService {
	return newYouTubeService(timeout, nil)
}

// newYouTubeService bounds every metadata and playlist call by timeout. The
// audio stream has no overall deadline, only one on response headers.
func newYouTubeService(timeout time.Duration, transport http.RoundTripper) *YouTubeService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if transport == nil {
		transport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
		}
	}
	return &YouTubeService{
		http:          newFetcher(timeout, 0, map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{HTTPClient: &http.Client{Transport: transport}},
		timeout:       timeout,
	}
}

// getVideo fetches video metadata within the service timeout.
func (s *YouTubeService) getVideo(ctx context.Context, target string) (*yt.Video, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	video, err := s.ytClient.GetVideoContext(callCtx, target)
	if err != nil {
		return nil, classifyYouTubeError(ctx, err, target)
	}
	return video, nil
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func (s *YouTubeService) VideoMetadata(ctx context.Context, ref models.VideoReference) (*models.SourceVideo, error) {
	target := ref.ID
	if target == "" {
		target = ref.URL
	}
	video, err := s.getVideo(ctx, target)
	if err != nil {
		return nil, err
	}

	src := &models.SourceVideo{
		Platform:    models.PlatformYouTube,
		ID:          video.ID,
		URL:         WatchURL(video.ID),
		Title:       firstNonEmpty(video.Title, video.ID),
		Uploader:    firstNonEmpty(video.Author, "unknown"),
		Description: video.Description,
		UploadDate:  models.Unknown,
		Duration:    video.Duration.Seconds(),
	}
	if !video.PublishDate.IsZero() {
		src.UploadDate = video.PublishDate.UTC().Format("2006-01-02")
	}
	src.LanguageTexts = []string{src.Title, src.Description}

	var captions []models.CaptionTrack
	for _, track := range video.CaptionTracks {
		if track.BaseURL == "" {
			continue
		}
		// The auto generated track follows the spoken language.
		if track.Kind == "asr" && src.AudioLanguage == "" {
			src.AudioLanguage = track.LanguageCode
		}
		captions = append(captions, models.CaptionTrack{
			VideoID:  video.ID,
			Language: track.LanguageCode,
			URL:      track.BaseURL,
			Kind:     track.Kind,
			Format:   models.CaptionVTT,
		})
	}

	src.Parts = []models.VideoPart{{
		Number:   1,
		Title:    src.Title,
		Duration: src.Duration,
		URL:      src.URL,
		Captions: captions,
	}}
	return src, nil
}

// ListCaptions returns the catalog captured with the metadata.
func (s *YouTubeService) ListCaptions(_ context.Context, _ *models.SourceVideo, part models.VideoPart) ([]models.CaptionTrack, error) {
	return part.Captions, nil
}

// FetchCaption downloads a track as WebVTT. When the timedtext endpoint
// fails or answers empty, the transcript API is tried as flat text.
func (s *YouTubeService) FetchCaption(ctx context.Context, track models.CaptionTrack) (models.CaptionPayload, error) {
	link := track.URL
	if strings.Contains(link, "?") {
		link += "&fmt=vtt"
	} else {
		link += "?fmt=vtt"
	}

	body, err := s.http.get(ctx, link)
	if err == nil && len(bytes.TrimSpace(body)) > 0 {
		return models.CaptionPayload{Format: models.CaptionVTT, Data: body}, nil
	}
	if ctx.Err() != nil {
		return models.CaptionPayload{}, ctx.Err()
	}

	text, apiErr := s.transcriptText(track.VideoID, track.Language)
	if apiErr == nil {
		return models.CaptionPayload{Format: models.CaptionText, Data: []byte(text)}, nil
	}
	slog.Debug("transcript API fallback failed", slog.String("video", track.VideoID), slog.Any("error", apiErr))
	if err != nil {
		return models.CaptionPayload{}, err
	}
	return models.CaptionPayload{Format: models.CaptionVTT}, nil
}

func (s *YouTubeService) transcriptText(videoID, language string) (string, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{language})
	if err != nil {
		return "", err
	}

	var fullText strings.Builder
	for _, entry := range transcript.Entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		fullText.WriteString(text)
		fullText.WriteString(" ")
	}

	cleaned := strings.TrimSpace(fullText.String())
	if cleaned == "" {
		return "", fmt.Errorf("subtitle text resolved to empty content")
	}
	return cleaned, nil
}

// DownloadAudio streams the highest bitrate audio format to destDir.
func (s *YouTubeService) DownloadAudio(ctx context.Context, videoURL, destDir, baseName string) (string, error) {
	video, err := s.getVideo(ctx, videoURL)
	if err != nil {
		return "", err
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", fmt.Errorf("no audio formats available")
	}

	best := formats[0]
	for _, f := range formats {
		audioOnly := strings.HasPrefix(f.MimeType, "audio/")
		if audioOnly && !strings.HasPrefix(best.MimeType, "audio/") {
			best = f
			continue
		}
		if audioOnly == strings.HasPrefix(best.MimeType, "audio/") && f.Bitrate > best.Bitrate {
			best = f
		}
	}

	stream, _, err := s.ytClient.GetStreamContext(ctx, video, &best)
	if err != nil {
		return "", fmt.Errorf("%w: open audio stream: %v", models.ErrNetwork, err)
	}
	defer stream.Close()

	path := filepath.Join(destDir, baseName+streamExtension(best.MimeType))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(out, stream); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: read audio stream: %v", models.ErrNetwork, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func streamExtension(mimeType string) string {
	mimeType = strings.TrimSpace(strings.Split(mimeType, ";")[0])
	switch mimeType {
	case "audio/webm", "video/webm":
		return ".webm"
	default:
		return ".m4a"
	}
}

// ListMembers lists playlists, and channels through their uploads playlist.
func (s *YouTubeService) ListMembers(ctx context.Context, info models.CollectionInfo, _ string) (models.ListingPage, error) {
	playlistID := info.ID
	switch info.Kind {
	case models.CollectionPlaylist:
	case models.CollectionCreator:
		if !strings.HasPrefix(playlistID, "UC") {
			return models.ListingPage{}, fmt.Errorf("%w: %q is not a channel id", models.ErrInvalidReference, playlistID)
		}
		playlistID = "UU" + strings.TrimPrefix(playlistID, "UC")
	default:
		return models.ListingPage{}, fmt.Errorf("%w: youtube has no %s containers", models.ErrInvalidReference, info.Kind)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	playlist, err := s.ytClient.GetPlaylistContext(callCtx, "https://www.youtube.com/playlist?list="+playlistID)
	if err != nil {
		return models.ListingPage{}, classifyYouTubeError(ctx, err, playlistID)
	}

	page := models.ListingPage{Title: playlist.Title}
	for _, entry := range playlist.Videos {
		if entry != nil && entry.ID != "" {
			page.Members = append(page.Members, entry.ID)
		}
	}
	return page, nil
}

// ResolveCreatorID finds the UC channel id behind a channel, handle or
// custom URL by reading the page's canonical link.
func (s *YouTubeService) ResolveCreatorID(ctx context.Context, raw string) (string, error) {
	if m := channelIDRe.FindString(raw); m != "" && strings.Contains(raw, "/channel/") {
		return m, nil
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://www.youtube.com/" + strings.TrimPrefix(raw, "/")
	}

	body, err := s.http.get(ctx, raw)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse channel page: %w", err)
	}

	candidates := []string{
		doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		doc.Find(`meta[itemprop="identifier"]`).AttrOr("content", ""),
		doc.Find(`meta[itemprop="channelId"]`).AttrOr("content", ""),
		doc.Find(`meta[property="og:url"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if m := channelIDRe.FindString(c); m != "" {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: no channel id on %s", models.ErrNotFound, raw)
}

// classifyYouTubeError reports the caller's own cancellation as is. A
// deadline that expired inside the client is a network failure.
func classifyYouTubeError(ctx context.Context, err error, target string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: youtube %s: timed out: %v", models.ErrNetwork, target, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "private") ||
		strings.Contains(msg, "invalid characters in video id") {
		return fmt.Errorf("%w: youtube %s: %v", models.ErrNotFound, target, err)
	}
	return fmt.Errorf("%w: youtube %s: %v", models.ErrNetwork, target, err)
}
