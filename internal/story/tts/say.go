package tts

import (
	"fmt"
	"strings"
)

// sayVoices are stock macOS voices per language; say has no locale flag.
var sayVoices = map[string]string{
	"en": "Samantha",
	"es": "Monica",
	"fr": "Thomas",
	"de": "Anna",
	"zh": "Tingting",
	"ja": "Kyoko",
	"ko": "Yuna",
	"ru": "Milena",
}

// newSayEngine speaks through the macOS say command.
func newSayEngine(config Config) *commandEngine {
	return &commandEngine{
		name:       EngineTypeSay.String(),
		candidates: []string{"say"},
		args: func(text, locale string) []string {
			args := []string{}

			voice := config.Voice
			if voice == "" || voice == "default" {
				lang, _, _ := strings.Cut(strings.ToLower(locale), "-")
				voice = sayVoices[lang]
			}
			if voice != "" {
				args = append(args, "-v", voice)
			}

			// Set rate (words per minute, default is ~175)
			args = append(args, "-r", fmt.Sprintf("%.0f", 175*orOne(config.Speed)))

			return append(args, "--", text)
		},
	}
}
