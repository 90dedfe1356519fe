// Cross-platform eSpeak implementation
package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// commandEngine speaks by running a host speech executable once per playback.
type commandEngine struct {
	name       string
	candidates []string
	// args builds the argument list; text is passed on stdin when stdin is set.
	args  func(text, locale string) []string
	stdin bool
}

func (c *commandEngine) Name() string {
	return c.name
}

func (c *commandEngine) Available() error {
	_, err := c.executable()
	return err
}

func (c *commandEngine) executable() (string, error) {
	for _, candidate := range c.candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s executable not found in PATH", c.name)
}

func (c *commandEngine) Start(ctx context.Context, text, locale string) (Playback, error) {
	path, err := c.executable()
	if err != nil {
		return nil, err
	}

	p := newPlayback(ctx, nil)
	cmd := exec.CommandContext(p.ctx, path, c.args(text, locale)...)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	if c.stdin {
		cmd.Stdin = strings.NewReader(text)
	}

	if err := cmd.Start(); err != nil {
		p.cancel()
		return nil, fmt.Errorf("failed to start %s: %w", c.name, err)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			p.finish(fmt.Errorf("%s error: %w", c.name, err))
			return
		}
		p.finish(nil)
	}()

	return p, nil
}

// newESpeakEngine creates a new eSpeak TTS engine
func newESpeakEngine(config Config) *commandEngine {
	return &commandEngine{
		name:       EngineTypeESpeak.String(),
		candidates: []string{"espeak-ng", "espeak"},
		args: func(text, locale string) []string {
			args := []string{}

			// Set voice
			if voice := espeakVoice(config.Voice, locale); voice != "" {
				args = append(args, "-v", voice)
			}

			// Set speed (words per minute, default is 175)
			args = append(args, "-s", strconv.Itoa(int(175*orOne(config.Speed))))

			// Set volume (0-200, default is 100)
			args = append(args, "-a", strconv.Itoa(int(100*orOne(config.Volume))))

			return append(args, "--", text)
		},
	}
}

// espeakVoice maps a locale such as "es-ES" onto an eSpeak voice name. English
// keeps its region ("en-us"); other languages use the bare language code.
func espeakVoice(configured, locale string) string {
	if configured != "" && configured != "default" {
		return configured
	}
	locale = strings.ToLower(locale)
	if locale == "" || strings.HasPrefix(locale, "en") {
		return locale
	}
	lang, _, _ := strings.Cut(locale, "-")
	return lang
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1.0
	}
	return v
}
