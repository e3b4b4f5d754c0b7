package clients

// sttLanguages maps API language tags to the STT provider's simplified set
var sttLanguages = map[string]string{
	"zh-TW": "zh",
	"zh-CN": "zh",
	"zh":    "zh",
	"en-US": "en",
	"en":    "en",
}

// ttsLanguages maps API language tags to TTS voice families. Bare "zh"
// selects traditional Chinese.
var ttsLanguages = map[string]string{
	"zh-TW": "zh-tw",
	"zh-CN": "zh-cn",
	"zh":    "zh-tw",
	"zh-tw": "zh-tw",
	"zh-cn": "zh-cn",
	"en-US": "en",
	"en":    "en",
}

// MapSTTLanguage returns the STT provider code for lang. Unknown codes pass through.
func MapSTTLanguage(lang string) string {
	return mapLanguage(sttLanguages, lang)
}

// MapTTSLanguage returns the TTS provider code for lang. Unknown codes pass through.
func MapTTSLanguage(lang string) string {
	return mapLanguage(ttsLanguages, lang)
}

func mapLanguage(table map[string]string, lang string) string {
	if mapped, ok := table[lang]; ok {
		return mapped
	}
	return lang
}
