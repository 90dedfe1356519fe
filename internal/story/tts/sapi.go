package tts

import (
	"fmt"
	"strings"
)

// newSAPIEngine speaks through Windows System.Speech via PowerShell. The text
// is read from stdin so it never has to be quoted into the script.
func newSAPIEngine(config Config) *commandEngine {
	return &commandEngine{
		name:       EngineTypeSAPI.String(),
		candidates: []string{"powershell.exe", "powershell", "pwsh"},
		stdin:      true,
		args: func(text, locale string) []string {
			return []string{"-NoProfile", "-NonInteractive", "-Command", sapiScript(config, locale)}
		},
	}
}

func sapiScript(config Config, locale string) string {
	rate := int(orOne(config.Speed)*10) - 10
	rate = max(-10, min(10, rate))
	volume := max(0, min(100, int(orOne(config.Volume)*100)))

	var b strings.Builder
	b.WriteString("Add-Type -AssemblyName System.Speech; ")
	b.WriteString("$synth = New-Object System.Speech.Synthesis.SpeechSynthesizer; ")
	fmt.Fprintf(&b, "$synth.Rate = %d; ", rate)
	fmt.Fprintf(&b, "$synth.Volume = %d; ", volume)
	if config.Voice != "" && config.Voice != "default" {
		fmt.Fprintf(&b, "$synth.SelectVoice('%s'); ", strings.ReplaceAll(config.Voice, "'", "''"))
	} else if locale != "" {
		fmt.Fprintf(&b, "try { $synth.SelectVoiceByHints('NotSet', 'NotSet', 0, [System.Globalization.CultureInfo]::new('%s')) } catch {}; ",
			strings.ReplaceAll(locale, "'", "''"))
	}
	b.WriteString("$synth.Speak([Console]::In.ReadToEnd())")
	return b.String()
}
