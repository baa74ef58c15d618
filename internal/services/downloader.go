package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"videoscribe/internal/models"
)

// MultiDownloader streams YouTube audio natively and falls back to yt-dlp,
// which also serves every other platform.
type MultiDownloader struct {
	YouTube *YouTubeService
	YtDlp   *YtDlp
}

func NewMultiDownloader(youtube *YouTubeService, ytdlp *YtDlp) *MultiDownloader {
	return &MultiDownloader{YouTube: youtube, YtDlp: ytdlp}
}

func (d *MultiDownloader) DownloadAudio(ctx context.Context, videoURL, destDir, baseName string) (string, error) {
	if isYouTubeURL(videoURL) && d.YouTube != nil {
		path, err := d.YouTube.DownloadAudio(ctx, videoURL, destDir, baseName)
		if err == nil {
			return path, nil
		}
		if ctx.Err() != nil || d.YtDlp == nil {
			return "", err
		}
		slog.Warn("native youtube download failed, trying yt-dlp", slog.String("url", videoURL), slog.Any("error", err))
	}
	if d.YtDlp == nil {
		return "", errors.Join(models.ErrEngineUnavailable, errors.New("no audio downloader configured"))
	}
	return d.YtDlp.DownloadAudio(ctx, videoURL, destDir, baseName)
}

func isYouTubeURL(videoURL string) bool {
	return strings.Contains(videoURL, "youtube.com") || strings.Contains(videoURL, "youtu.be")
}
