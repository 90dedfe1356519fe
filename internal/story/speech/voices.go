package speech

import (
	"maps"
	"slices"
	"strings"

	"picturebook/internal/domain/story"
)

// DefaultLocale is used for any language missing from the table.
const DefaultLocale = "en-US"

// VoiceTable resolves a language name to the locale tag handed to the engine.
type VoiceTable struct {
	Default string
	Voices  map[string]string
}

// DefaultVoiceTable covers the languages the reader offers voices for.
func DefaultVoiceTable() VoiceTable {
	return VoiceTable{
		Default: DefaultLocale,
		Voices: map[string]string{
			"English":  "en-US",
			"Spanish":  "es-ES",
			"French":   "fr-FR",
			"German":   "de-DE",
			"Chinese":  "zh-CN",
			"Japanese": "ja-JP",
			"Korean":   "ko-KR",
			"Russian":  "ru-RU",
		},
	}
}

// NewVoiceTable builds a table from configuration. Entries override the
// defaults; an empty fallback keeps DefaultLocale.
func NewVoiceTable(overrides map[string]string, fallback string) VoiceTable {
	t := DefaultVoiceTable()
	for lang, locale := range overrides {
		if locale == "" {
			continue
		}
		// viper lower-cases map keys, so compare case-insensitively
		delete(t.Voices, t.key(lang))
		t.Voices[lang] = locale
	}
	if fallback != "" {
		t.Default = fallback
	}
	return t
}

// Locale returns the locale for hint, or the default when it is unknown.
func (t VoiceTable) Locale(hint story.LanguageCode) string {
	if locale, ok := t.Voices[t.key(string(hint))]; ok {
		return locale
	}
	if t.Default == "" {
		return DefaultLocale
	}
	return t.Default
}

// Languages lists the mapped languages in name order.
func (t VoiceTable) Languages() []string {
	return slices.Sorted(maps.Keys(t.Voices))
}

func (t VoiceTable) key(lang string) string {
	for k := range t.Voices {
		if strings.EqualFold(k, lang) {
			return k
		}
	}
	return lang
}
