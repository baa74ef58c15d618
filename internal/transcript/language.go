package transcript

import (
	"strings"

	"github.com/RadhiFadlillah/whatlanggo"
)

const (
	ModeAuto    = "auto"
	ModeChinese = "zh"
	ModeEnglish = "en"
)

// NormalizeMode maps user input to auto, zh or en.
func NormalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "en", "eng", "english":
		return ModeEnglish
	case "zh", "cn", "zh-cn", "zh-hans", "chinese", "中文":
		return ModeChinese
	default:
		return ModeAuto
	}
}

func IsChineseLanguage(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	return strings.HasPrefix(code, "zh") || strings.HasPrefix(code, "chinese") ||
		strings.HasPrefix(code, "yue") || strings.Contains(code, "中文")
}

func IsEnglishLanguage(code string) bool {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return false
	}
	return strings.HasPrefix(code, "en") || strings.Contains(code, "english")
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// LooksLikeEnglish reports whether text is dominated by ASCII letters.
func LooksLikeEnglish(text string) bool {
	var ascii, cjk int
	for _, r := range text {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			ascii++
		case isCJK(r):
			cjk++
		}
	}
	if ascii == 0 {
		return false
	}
	ratio := float64(ascii) / float64(ascii+cjk)
	return ratio >= 0.6 && float64(cjk) < float64(ascii)/2
}

// ShouldPreferEnglish decides the target language. An explicit mode wins,
// then a recognizable audio hint, then the first candidate text that looks
// like English. Otherwise fallback is returned.
func ShouldPreferEnglish(mode string, texts []string, fallback bool, audioHint string) bool {
	switch NormalizeMode(mode) {
	case ModeEnglish:
		return true
	case ModeChinese:
		return false
	}

	if IsEnglishLanguage(audioHint) {
		return true
	}
	if IsChineseLanguage(audioHint) {
		return false
	}

	for _, text := range texts {
		if LooksLikeEnglish(text) {
			return true
		}
	}
	return fallback
}

// HintFromTags derives an audio-language hint from platform tags.
func HintFromTags(tags []string) string {
	for _, tag := range tags {
		t := strings.ToLower(tag)
		switch {
		case strings.Contains(t, "english") || strings.Contains(t, "英语"):
			return ModeEnglish
		case strings.Contains(t, "chinese") || strings.Contains(t, "中文"):
			return ModeChinese
		}
	}
	return ""
}

// LanguageName is the document language label.
func LanguageName(preferEnglish bool) string {
	if preferEnglish {
		return "English"
	}
	return "Chinese"
}

// EngineLanguage is the language hint passed to transcription engines.
func EngineLanguage(preferEnglish bool) string {
	if preferEnglish {
		return ModeEnglish
	}
	return ModeChinese
}

const minDetectConfidence = 0.5

// DetectLanguage guesses an ISO 639-1 code from free text. Returns "" when
// the guess is not reliable.
func DetectLanguage(texts ...string) string {
	joined := CollapseSpaces(strings.Join(texts, " "))
	if joined == "" {
		return ""
	}
	info := whatlanggo.Detect(joined)
	if info.Confidence < minDetectConfidence {
		return ""
	}
	return info.Lang.Iso6391()
}

// OriginalLanguage prefers the platform hint and falls back to detection.
func OriginalLanguage(hint string, texts ...string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}
	if code := DetectLanguage(texts...); code != "" {
		return code
	}
	return "unknown"
}
