package services

import (
	"bytes"
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

// YtDlp drives the yt-dlp command line tool for audio downloads and flat
// channel listings.
type YtDlp struct {
	Binary             string
	FFmpeg             string
	BilibiliCookieFile string
	YouTubeCookieFile  string
}

func NewYtDlp(binary, ffmpeg, bilibiliCookies, youtubeCookies string) *YtDlp {
	return &YtDlp{
		Binary:             binary,
		FFmpeg:             ffmpeg,
		BilibiliCookieFile: bilibiliCookies,
		YouTubeCookieFile:  youtubeCookies,
	}
}

func (y *YtDlp) binary() (string, error) {
	bin, ok := findBinary(y.Binary, "yt-dlp")
	if !ok {
		return "", fmt.Errorf("%w: yt-dlp not found, install it or set YTDLP_BIN", models.ErrEngineUnavailable)
	}
	return bin, nil
}

func (y *YtDlp) cookieArgs(rawURL string) []string {
	file := y.YouTubeCookieFile
	if strings.Contains(rawURL, "bilibili.com") || strings.Contains(rawURL, "b23.tv") {
		file = y.BilibiliCookieFile
	}
	if file == "" {
		return nil
	}
	if _, err := os.Stat(file); err != nil {
		slog.Warn("cookie file not readable", slog.String("path", file), slog.Any("error", err))
		return nil
	}
	return []string{"--cookies", file}
}

// DownloadAudio fetches the best audio stream into destDir/baseName.<ext>.
func (y *YtDlp) DownloadAudio(ctx context.Context, videoURL, destDir, baseName string) (string, error) {
	bin, err := y.binary()
	if err != nil {
		return "", err
	}

	args := []string{
		"--no-playlist", "--quiet", "--no-warnings",
		"-f", "bestaudio/best",
		"-o", filepath.Join(destDir, baseName+".%(ext)s"),
		"--print", "after_move:filepath",
	}
	if ffmpeg, ok := findBinary(y.FFmpeg, "ffmpeg"); ok {
		args = append(args, "--ffmpeg-location", ffmpeg)
	}
	args = append(args, y.cookieArgs(videoURL)...)
	args = append(args, videoURL)

	out, err := runYtDlp(ctx, bin, args)
	if err != nil {
		return "", err
	}

	path := lastLine(out)
	if path == "" {
		matches, _ := filepath.Glob(filepath.Join(destDir, baseName+".*"))
		if len(matches) > 0 {
			path = matches[0]
		}
	}
	if path == "" || !isRegularFile(path) {
		return "", fmt.Errorf("yt-dlp produced no audio file for %s", videoURL)
	}
	return path, nil
}

// FlatList returns the video URLs of a channel or playlist page without
// resolving each entry.
func (y *YtDlp) FlatList(ctx context.Context, platform models.Platform, listURL string) ([]string, error) {
	bin, err := y.binary()
	if err != nil {
		return nil, err
	}

	args := []string{"--flat-playlist", "-J", "--no-warnings"}
	args = append(args, y.cookieArgs(listURL)...)
	args = append(args, listURL)

	out, err := runYtDlp(ctx, bin, args)
	if err != nil {
		return nil, err
	}
	return ParseFlatListing(out, platform), nil
}

// ParseFlatListing walks yt-dlp -J output, descending into nested playlists,
// and returns deduplicated video URLs in listing order.
func ParseFlatListing(data []byte, platform models.Platform) []string {
	var urls []string
	seen := make(map[string]bool)

	var walk func(node gjson.Result)
	walk = func(node gjson.Result) {
		for _, entry := range node.Get("entries").Array() {
			if !entry.IsObject() {
				continue
			}
			if entry.Get("_type").String() == "playlist" {
				walk(entry)
				continue
			}
			link := firstNonEmpty(entry.Get("webpage_url").String(), entry.Get("url").String(), entry.Get("id").String())
			if link == "" {
				continue
			}
			if !strings.HasPrefix(link, "http") {
				if platform == models.PlatformYouTube {
					link = "https://www.youtube.com/watch?v=" + link
				} else {
					link = bilibiliWebBase + "/video/" + link
				}
			}
			if !seen[link] {
				seen[link] = true
				urls = append(urls, link)
			}
		}
	}
	walk(gjson.ParseBytes(data))
	return urls
}

func runYtDlp(ctx context.Context, bin string, args []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("running yt-dlp", slog.String("binary", bin), slog.Any("args", args))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := lastLine(stderr.Bytes())
		if strings.Contains(msg, "352") {
			return nil, fmt.Errorf("%w: yt-dlp rejected by bilibili (352): log in with a browser, export cookies and set BILIBILI_COOKIE_FILE",
				models.ErrNetwork)
		}
		return nil, fmt.Errorf("%w: yt-dlp: %v: %s", models.ErrNetwork, err, msg)
	}
	return stdout.Bytes(), nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
