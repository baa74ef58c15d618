package transcript

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"videoscribe/internal/models"
)

var (
	cueTimingRe = regexp.MustCompile(`^\s*((?:\d+:){0,2}\d+(?:[.,]\d+)?)\s*-->\s*((?:\d+:){0,2}\d+(?:[.,]\d+)?)`)
	markupRe    = regexp.MustCompile(`<[^>]+>`)
	cueIndexRe  = regexp.MustCompile(`^\d+$`)
)

var headerPrefixes = []string{"WEBVTT", "NOTE", "STYLE", "REGION", "Kind:", "Language:"}

// Parse reads WebVTT or SRT style timed text. Malformed input yields fewer
// segments, never an error.
func Parse(raw string) []models.Segment {
	var (
		segments []models.Segment
		open     bool
		start    float64
		end      float64
		buf      []string
	)

	flush := func() {
		if !open {
			return
		}
		text := CollapseSpaces(markupRe.ReplaceAllString(strings.Join(buf, " "), ""))
		if text != "" {
			if end < start {
				end = start
			}
			segments = append(segments, models.Segment{Start: start, End: end, Text: text})
		}
		open = false
		buf = buf[:0]
	}

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
		if m := cueTimingRe.FindStringSubmatch(line); m != nil {
			flush()
			start = parseTimecode(m[1])
			end = parseTimecode(m[2])
			open = true
			continue
		}
		if line == "" || cueIndexRe.MatchString(line) || isHeader(line) {
			continue
		}
		if open {
			buf = append(buf, line)
		}
	}
	flush()

	SortSegments(segments)
	return segments
}

func isHeader(line string) bool {
	for _, p := range headerPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// parseTimecode converts [HH:][MM:]SS[.mmm] to seconds.
func parseTimecode(tc string) float64 {
	fields := strings.Split(strings.ReplaceAll(tc, ",", "."), ":")
	for len(fields) < 3 {
		fields = append([]string{"0"}, fields...)
	}
	h, _ := strconv.ParseFloat(fields[0], 64)
	m, _ := strconv.ParseFloat(fields[1], 64)
	s, _ := strconv.ParseFloat(fields[2], 64)
	return h*3600 + m*60 + s
}

// SortSegments orders segments by start time, keeping emission order for ties.
func SortSegments(segments []models.Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}
