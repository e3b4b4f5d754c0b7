package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapSTTLanguage(t *testing.T) {
	tests := map[string]string{
		"zh-TW": "zh",
		"zh-CN": "zh",
		"zh":    "zh",
		"en-US": "en",
		"en":    "en",
		"ja":    "ja",
		"":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, MapSTTLanguage(in), "input %q", in)
	}
}

func TestMapTTSLanguage(t *testing.T) {
	tests := map[string]string{
		"zh-TW": "zh-tw",
		"zh-CN": "zh-cn",
		"zh":    "zh-tw",
		"en-US": "en",
		"en":    "en",
		"fr-FR": "fr-FR",
	}
	for in, want := range tests {
		assert.Equal(t, want, MapTTSLanguage(in), "input %q", in)
	}
}

func TestLanguageMapping_Idempotent(t *testing.T) {
	inputs := []string{"zh-TW", "zh-CN", "zh", "en-US", "en", "zh-tw", "zh-cn", "ko", "x-unknown"}

	for _, in := range inputs {
		stt := MapSTTLanguage(in)
		assert.Equal(t, stt, MapSTTLanguage(stt), "stt %q", in)

		tts := MapTTSLanguage(in)
		assert.Equal(t, tts, MapTTSLanguage(tts), "tts %q", in)
	}
}
