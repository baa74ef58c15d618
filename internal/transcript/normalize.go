package transcript

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/longbridgeapp/opencc"

	"videoscribe/internal/models"
)

// Converter turns traditional Chinese script into simplified script.
type Converter interface {
	Convert(text string) (string, error)
}

// Normalizer cleans transcript text. A nil converter passes text through.
type Normalizer struct {
	conv Converter
}

func NewNormalizer(conv Converter) *Normalizer {
	return &Normalizer{conv: conv}
}

// Normalize collapses whitespace and, when simplify is set, converts to
// simplified script. Conversion failures leave the text unchanged.
func (n *Normalizer) Normalize(text string, simplify bool) string {
	text = CollapseSpaces(text)
	if text == "" || !simplify || n == nil || n.conv == nil {
		return text
	}
	converted, err := n.conv.Convert(text)
	if err != nil {
		slog.Debug("script conversion failed", slog.Any("error", err))
		return text
	}
	return CollapseSpaces(converted)
}

// Finalize normalizes every segment, drops empty ones, clamps End >= Start
// and returns them sorted by start.
func (n *Normalizer) Finalize(segments []models.Segment, simplify bool) []models.Segment {
	out := make([]models.Segment, 0, len(segments))
	for _, seg := range segments {
		text := n.Normalize(seg.Text, simplify)
		if text == "" {
			continue
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		out = append(out, models.Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	SortSegments(out)
	return out
}

func CollapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

type openCCConverter struct {
	mu sync.Mutex
	cc *opencc.OpenCC
}

// NewOpenCCConverter loads the t2s dictionary.
func NewOpenCCConverter() (Converter, error) {
	cc, err := opencc.New("t2s")
	if err != nil {
		return nil, fmt.Errorf("load opencc t2s: %w", err)
	}
	return &openCCConverter{cc: cc}, nil
}

func (c *openCCConverter) Convert(text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cc.Convert(text)
}
