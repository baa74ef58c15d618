package transcript

import (
	"github.com/tidwall/gjson"

	"videoscribe/internal/models"
)

// ParsePayload decodes a downloaded caption body into raw segments.
// Bilibili subtitle JSON carries {"body":[{"from","to","content"}]}; a bare
// array of items is accepted too.
func ParsePayload(format models.CaptionFormat, raw []byte) []models.Segment {
	switch format {
	case models.CaptionJSON:
		var segments []models.Segment
		items := gjson.GetBytes(raw, "body")
		if !items.Exists() {
			items = gjson.ParseBytes(raw)
		}
		items.ForEach(func(_, item gjson.Result) bool {
			text := CollapseSpaces(item.Get("content").String())
			if text == "" {
				return true
			}
			start := item.Get("from").Float()
			end := item.Get("to").Float()
			if end < start {
				end = start
			}
			segments = append(segments, models.Segment{Start: start, End: end, Text: text})
			return true
		})
		SortSegments(segments)
		return segments
	case models.CaptionText:
		text := CollapseSpaces(string(raw))
		if text == "" {
			return nil
		}
		return []models.Segment{{Start: 0, End: 0, Text: text}}
	default:
		return Parse(string(raw))
	}
}
