package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"videoscribe/internal/models"
)

func TestShouldPreferEnglish(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		texts    []string
		fallback bool
		hint     string
		expected bool
	}{
		{"explicit en wins", "en", []string{"全部中文文本"}, false, "", true},
		{"explicit zh wins", "zh", []string{"This is clearly English text"}, true, "", false},
		{"explicit zh beats english hint", "zh", nil, true, "en", false},
		{"chinese text", "auto", []string{"全部中文文本"}, false, "", false},
		{"english text", "auto", []string{"This is clearly English text"}, false, "", true},
		{"english hint", "auto", []string{"全部中文文本"}, false, "en-US", true},
		{"cantonese hint", "auto", []string{"This is clearly English text"}, true, "yue", false},
		{"chinese literal hint", "", []string{"English words"}, true, "Chinese", false},
		{"unrecognized hint falls through", "auto", []string{"English words here"}, false, "ja", true},
		{"first english text short-circuits", "auto", []string{"中文标题", "An English description", "再来中文"}, false, "", true},
		{"no texts uses fallback", "auto", nil, true, "", true},
		{"digits only uses fallback", "auto", []string{"2024 12 31"}, false, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ShouldPreferEnglish(tc.mode, tc.texts, tc.fallback, tc.hint)
			if got != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestLooksLikeEnglish(t *testing.T) {
	assert.True(t, LooksLikeEnglish("Hello world"))
	assert.True(t, LooksLikeEnglish("Go 语言 tutorial for beginners"))
	assert.False(t, LooksLikeEnglish("Go 语言教程第一集"))
	assert.False(t, LooksLikeEnglish(""))
	assert.False(t, LooksLikeEnglish("！？。"))
}

func TestLanguageFamilies(t *testing.T) {
	assert.True(t, IsChineseLanguage("zh-Hant"))
	assert.True(t, IsChineseLanguage("yue"))
	assert.True(t, IsChineseLanguage("Chinese (Simplified)"))
	assert.False(t, IsChineseLanguage("en"))
	assert.True(t, IsEnglishLanguage("en-GB"))
	assert.True(t, IsEnglishLanguage("British English"))
	assert.False(t, IsEnglishLanguage(""))
}

func TestHintFromTags(t *testing.T) {
	assert.Equal(t, "en", HintFromTags([]string{"学习", "英语"}))
	assert.Equal(t, "zh", HintFromTags([]string{"中文"}))
	assert.Equal(t, "", HintFromTags([]string{"游戏"}))
}

func TestRankCaptions(t *testing.T) {
	catalog := []models.CaptionTrack{
		{Language: "en", URL: "en.vtt"},
		{Language: "zh-Hans", URL: "zh.json"},
	}

	t.Run("default language beats catalog order", func(t *testing.T) {
		ranked := RankCaptions(catalog, false, false)
		if assert.NotEmpty(t, ranked) {
			assert.Equal(t, "zh-Hans", ranked[0].Language)
		}
		assert.Len(t, ranked, 2)
	})

	t.Run("prefer english without fallback", func(t *testing.T) {
		ranked := RankCaptions(catalog, true, false)
		assert.Equal(t, []models.CaptionTrack{catalog[0]}, ranked)
	})

	t.Run("exact match only", func(t *testing.T) {
		ranked := RankCaptions([]models.CaptionTrack{{Language: "en-AU"}, {Language: "ai-zh"}}, true, false)
		assert.Empty(t, ranked)
	})

	t.Run("fallback appends first entry", func(t *testing.T) {
		odd := []models.CaptionTrack{{Language: "ja"}, {Language: "ko"}}
		ranked := RankCaptions(odd, false, true)
		if assert.Len(t, ranked, 2) {
			assert.Equal(t, "ja", ranked[0].Language)
		}
		assert.Empty(t, RankCaptions(odd, false, false))
	})

	t.Run("preference list order", func(t *testing.T) {
		ranked := RankCaptions([]models.CaptionTrack{{Language: "yue"}, {Language: "ZH"}, {Language: "zh-Hant"}}, false, false)
		assert.Equal(t, []string{"ZH", "zh-Hant", "yue"}, []string{ranked[0].Language, ranked[1].Language, ranked[2].Language})
	})
}

func TestAllowFallback(t *testing.T) {
	assert.True(t, AllowFallback("auto", false))
	assert.False(t, AllowFallback("", true))
	assert.True(t, AllowFallback("always", true))
	assert.False(t, AllowFallback("never", false))
}
