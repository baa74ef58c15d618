package render

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"videoscribe/internal/models"
)

const maxSlugRunes = 80

var (
	unsafeNameRe = regexp.MustCompile(`[\\/:*?"<>|]+`)
	spaceRe      = regexp.MustCompile(`\s+`)
	underscoreRe = regexp.MustCompile(`_{2,}`)
)

// Renderer writes transcript documents under Root using the layout
// <root>/<platform>/<uploader-slug>/<video-id>_<title-slug>.md.
type Renderer struct {
	Root      string
	WriteText bool
}

func NewRenderer(root string, writeText bool) *Renderer {
	return &Renderer{Root: root, WriteText: writeText}
}

// frontMatter fixes the key order of the YAML header.
type frontMatter struct {
	Platform         string   `yaml:"platform"`
	VideoID          string   `yaml:"video_id"`
	Title            string   `yaml:"title"`
	Uploader         string   `yaml:"uploader"`
	UploadDate       string   `yaml:"upload_date"`
	Source           string   `yaml:"source"`
	Language         string   `yaml:"language"`
	OriginalLanguage string   `yaml:"original_language"`
	Duration         string   `yaml:"duration"`
	URL              string   `yaml:"url"`
	Tags             []string `yaml:"tags"`
	ProcessedAt      string   `yaml:"processed_at"`
}

func Slugify(text string) string {
	slug := unsafeNameRe.ReplaceAllString(strings.TrimSpace(text), "_")
	slug = spaceRe.ReplaceAllString(slug, "_")
	slug = underscoreRe.ReplaceAllString(slug, "_")
	slug = strings.Trim(slug, "._")
	if utf8.RuneCountInString(slug) > maxSlugRunes {
		slug = strings.Trim(string([]rune(slug)[:maxSlugRunes]), "._")
	}
	if slug == "" {
		return "video"
	}
	return slug
}

func (r *Renderer) OutputDir(platform models.Platform, uploader string) string {
	return filepath.Join(r.Root, string(platform), Slugify(uploader))
}

// ExpectedPath is the document path for meta. It is the idempotency key.
func (r *Renderer) ExpectedPath(meta models.VideoMetadata) string {
	name := meta.VideoID + "_" + Slugify(meta.Title) + ".md"
	return filepath.Join(r.OutputDir(meta.Platform, meta.Uploader), name)
}

func (r *Renderer) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FindExisting looks for a document of videoID under any uploader directory.
// It lets callers skip a video before fetching its metadata.
func (r *Renderer) FindExisting(platform models.Platform, videoID string) (string, bool) {
	if videoID == "" {
		return "", false
	}
	pattern := filepath.Join(r.Root, string(platform), "*", globEscape(videoID)+"_*.md")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

func globEscape(s string) string {
	return strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`).Replace(s)
}

// Render writes the Markdown document, and the plain text companion when
// enabled. Files are written through a temporary name so a failed write
// never leaves a partial document behind.
func (r *Renderer) Render(meta models.VideoMetadata, segments []models.Segment) (models.ProcessResult, error) {
	path := r.ExpectedPath(meta)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.ProcessResult{}, fmt.Errorf("create output dir: %w", err)
	}

	doc, err := Markdown(meta, segments)
	if err != nil {
		return models.ProcessResult{}, err
	}
	if err := writeAtomic(path, doc); err != nil {
		return models.ProcessResult{}, fmt.Errorf("write markdown: %w", err)
	}

	result := models.ProcessResult{Metadata: meta, MarkdownPath: path}
	if r.WriteText {
		textPath := strings.TrimSuffix(path, ".md") + ".txt"
		if err := writeAtomic(textPath, PlainText(segments)); err != nil {
			return models.ProcessResult{}, fmt.Errorf("write text: %w", err)
		}
		result.TextPath = textPath
	}
	return result, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Markdown builds the document: YAML front matter, metadata list, an empty
// summary section and the timed transcript.
func Markdown(meta models.VideoMetadata, segments []models.Segment) ([]byte, error) {
	fm := frontMatter{
		Platform:         string(meta.Platform),
		VideoID:          meta.VideoID,
		Title:            meta.Title,
		Uploader:         meta.Uploader,
		UploadDate:       meta.UploadDate,
		Source:           meta.Source,
		Language:         meta.Language,
		OriginalLanguage: meta.OriginalLanguage,
		Duration:         meta.Duration,
		URL:              meta.URL,
		Tags:             meta.Tags,
		ProcessedAt:      meta.ProcessedAt.UTC().Format(time.RFC3339),
	}
	if fm.Tags == nil {
		fm.Tags = []string{}
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", meta.Title)

	b.WriteString("## 元信息（Metadata）\n\n")
	fmt.Fprintf(&b, "- 平台（Platform）：%s\n", meta.Platform)
	fmt.Fprintf(&b, "- 视频 ID（Video ID）：%s\n", meta.VideoID)
	fmt.Fprintf(&b, "- 作者（Uploader）：%s\n", meta.Uploader)
	fmt.Fprintf(&b, "- 发布日期（Upload Date）：%s\n", meta.UploadDate)
	fmt.Fprintf(&b, "- 时长（Duration）：%s\n", meta.Duration)
	fmt.Fprintf(&b, "- 文本来源（Source）：%s\n", meta.Source)
	fmt.Fprintf(&b, "- 语言（Language）：%s\n", meta.Language)
	fmt.Fprintf(&b, "- 原始语言（Original Language）：%s\n", meta.OriginalLanguage)
	fmt.Fprintf(&b, "- 链接（URL）：%s\n", meta.URL)
	if len(meta.Tags) > 0 {
		fmt.Fprintf(&b, "- 标签（Tags）：%s\n", strings.Join(meta.Tags, ", "))
	}
	b.WriteString("\n## 视频摘要（可留空）\n\n\n")

	b.WriteString("## 文本正文（按时间顺序）\n\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "### [%s → %s]\n%s\n\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text)
	}
	return b.Bytes(), nil
}

func PlainText(segments []models.Segment) []byte {
	var b bytes.Buffer
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%s → %s] %s\n", FormatTimestamp(seg.Start), FormatTimestamp(seg.End), seg.Text)
	}
	return b.Bytes()
}

// ReadMetadata parses the front matter of an existing document.
func ReadMetadata(path string) (models.VideoMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.VideoMetadata{}, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return models.VideoMetadata{}, errors.New("document has no front matter")
	}
	end := strings.Index(text[4:], "\n---")
	if end < 0 {
		return models.VideoMetadata{}, errors.New("unterminated front matter")
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(text[4:4+end+1]), &fm); err != nil {
		return models.VideoMetadata{}, fmt.Errorf("parse front matter: %w", err)
	}
	meta := models.VideoMetadata{
		Platform:         models.Platform(fm.Platform),
		VideoID:          fm.VideoID,
		Title:            fm.Title,
		Uploader:         fm.Uploader,
		UploadDate:       fm.UploadDate,
		Source:           fm.Source,
		URL:              fm.URL,
		Duration:         fm.Duration,
		Language:         fm.Language,
		OriginalLanguage: fm.OriginalLanguage,
		Tags:             fm.Tags,
	}
	if ts, err := time.Parse(time.RFC3339, fm.ProcessedAt); err == nil {
		meta.ProcessedAt = ts
	}
	return meta, nil
}

// FormatTimestamp renders seconds as HH:MM:SS.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// FormatDuration is FormatTimestamp with "unknown" for missing durations.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return models.Unknown
	}
	return FormatTimestamp(seconds)
}
