package models

import (
	"time"
)

type Platform string

const (
	PlatformBilibili Platform = "bilibili"
	PlatformYouTube  Platform = "youtube"
)

// Transcript provenance values written to the document front matter.
const (
	SourceOfficialSubtitle = "official_subtitle"
	SourceWhisper          = "whisper_transcription"
	SourceSkippedExisting  = "skipped_existing"
)

const Unknown = "unknown"

// Segment is one timed span of transcript text. End >= Start.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// VideoReference addresses one video on a platform by id or URL.
type VideoReference struct {
	Platform Platform `json:"platform"`
	ID       string   `json:"id,omitempty"`
	URL      string   `json:"url,omitempty"`
}

func (r VideoReference) String() string {
	if r.URL != "" {
		return r.URL
	}
	return r.ID
}

// Key identifies the reference for deduplication.
func (r VideoReference) Key() string {
	if r.ID != "" {
		return string(r.Platform) + ":" + r.ID
	}
	return string(r.Platform) + ":" + r.URL
}

type VideoMetadata struct {
	Platform         Platform  `yaml:"platform" json:"platform"`
	VideoID          string    `yaml:"video_id" json:"video_id"`
	Title            string    `yaml:"title" json:"title"`
	Uploader         string    `yaml:"uploader" json:"uploader"`
	UploadDate       string    `yaml:"upload_date" json:"upload_date"`
	Source           string    `yaml:"source" json:"source"`
	URL              string    `yaml:"url" json:"url"`
	Duration         string    `yaml:"duration" json:"duration"`
	ProcessedAt      time.Time `yaml:"processed_at" json:"processed_at"`
	Language         string    `yaml:"language" json:"language"`
	OriginalLanguage string    `yaml:"original_language" json:"original_language"`
	Tags             []string  `yaml:"tags" json:"tags"`
}

type ProcessResult struct {
	Metadata     VideoMetadata `json:"metadata"`
	MarkdownPath string        `json:"markdown_path"`
	TextPath     string        `json:"text_path,omitempty"`
}

type CollectionKind string

const (
	CollectionFavorites CollectionKind = "favorites"
	CollectionSeries    CollectionKind = "series"
	CollectionSeason    CollectionKind = "season"
	CollectionPlaylist  CollectionKind = "playlist"
	CollectionCreator   CollectionKind = "creator"
)

// CollectionInfo describes a container of videos. Only used while resolving.
type CollectionInfo struct {
	Platform Platform
	Kind     CollectionKind
	ID       string
}

// ListingPage is one page of container members returned by a listing provider.
// An empty Next means the listing is exhausted.
type ListingPage struct {
	Title   string
	Members []string
	Next    string
}

// SourceVideo is the platform metadata for one video, before any part is processed.
type SourceVideo struct {
	Platform      Platform
	ID            string
	URL           string
	Title         string
	Uploader      string
	Description   string
	UploadDate    string
	Duration      float64
	Tags          []string
	AudioLanguage string
	// LanguageTexts are the candidate texts for language detection, in order.
	LanguageTexts []string
	Parts         []VideoPart
}

type VideoPart struct {
	Number   int
	CID      string
	Title    string
	Duration float64
	URL      string
	// Captions may be filled by providers that return the catalog with the metadata.
	Captions []CaptionTrack
}

type CaptionFormat string

const (
	CaptionJSON CaptionFormat = "json"
	CaptionVTT  CaptionFormat = "vtt"
	CaptionText CaptionFormat = "text"
)

type CaptionTrack struct {
	VideoID  string
	Language string
	URL      string
	Kind     string
	Format   CaptionFormat
}

// CaptionPayload is a downloaded caption body in its wire format.
type CaptionPayload struct {
	Format CaptionFormat
	Data   []byte
}

// Transcription is engine output: structured spans when available, otherwise flat text.
type Transcription struct {
	Spans []Segment
	Text  string
}
