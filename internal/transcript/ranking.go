package transcript

import (
	"strings"

	"videoscribe/internal/models"
)

var (
	DefaultLanguages = []string{"zh-hans", "zh", "zh-hant", "yue"}
	EnglishLanguages = []string{"en", "en-us", "en-gb"}
)

// Fallback policies for picking a caption outside the ranked languages.
const (
	FallbackAuto   = "auto"
	FallbackAlways = "always"
	FallbackNever  = "never"
)

// AllowFallback resolves the caption fallback policy. In auto mode the first
// catalog entry is accepted only when the default language is preferred.
func AllowFallback(policy string, preferEnglish bool) bool {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case FallbackAlways:
		return true
	case FallbackNever:
		return false
	default:
		return !preferEnglish
	}
}

// RankCaptions orders the catalog into the tracks worth trying, best first.
// Matching is an exact case-insensitive comparison of language codes.
func RankCaptions(catalog []models.CaptionTrack, preferEnglish, allowFallback bool) []models.CaptionTrack {
	var ranked []models.CaptionTrack
	taken := make([]bool, len(catalog))

	pick := func(codes []string) {
		for _, code := range codes {
			for i, track := range catalog {
				if taken[i] || strings.ToLower(strings.TrimSpace(track.Language)) != code {
					continue
				}
				taken[i] = true
				ranked = append(ranked, track)
			}
		}
	}

	if preferEnglish {
		pick(EnglishLanguages)
	} else {
		pick(DefaultLanguages)
		pick(EnglishLanguages)
	}

	if allowFallback {
		for i, track := range catalog {
			if !taken[i] {
				taken[i] = true
				ranked = append(ranked, track)
			}
		}
	}
	return ranked
}
