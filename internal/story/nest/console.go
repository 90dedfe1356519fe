package nest

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"picturebook/internal/cli/scheme/colours"
	"picturebook/internal/domain/story"
	"picturebook/internal/story/progress"
	"picturebook/internal/story/session"
	"picturebook/internal/story/speech"
	"picturebook/internal/story/typewriter"
)

const barWidth = 20

// console renders the reading session. Its hooks run on the animation and
// playback goroutines, under those components' locks.
type console struct {
	mu       sync.Mutex
	out      io.Writer
	interval time.Duration
	printed  int
	revealed chan struct{}
}

func newConsole(out io.Writer, interval time.Duration) *console {
	return &console{
		out:      out,
		interval: interval,
		revealed: make(chan struct{}, 1),
	}
}

func (c *console) progress(s progress.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s.Phase {
	case progress.Running:
		colours.Progress.Fprintf(c.out, "\r⏳ %s %3d%% %-32s", bar(s.Percent), s.Percent, s.Label)
	case progress.Settled:
		colours.Progress.Fprintf(c.out, "\r✨ %s %3d%% %-32s\n", bar(s.Percent), s.Percent, "Done!")
	}
}

func bar(percent int) string {
	n := max(0, min(barWidth, percent*barWidth/100))
	return "[" + strings.Repeat("█", n) + strings.Repeat("░", barWidth-n) + "]"
}

func (c *console) reveal(prefix string, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	runes := []rune(prefix)
	if len(runes) == 0 {
		c.printed = 0
		fmt.Fprintln(c.out)
		colours.Title.Fprintln(c.out, "📜 Your story:")
	} else if len(runes) > c.printed {
		colours.Story.Fprint(c.out, string(runes[c.printed:]))
		c.printed = len(runes)
	}

	if done {
		fmt.Fprintln(c.out)
		select {
		case c.revealed <- struct{}{}:
		default:
		}
	}
}

// expectReveal forgets a completed reveal nobody waited for.
func (c *console) expectReveal() {
	select {
	case <-c.revealed:
	default:
	}
}

func (c *console) lane(lane story.Lane, ls session.LaneState) {
	if lane == story.LaneStory || !ls.Loading {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch lane {
	case story.LaneCaption:
		colours.Info.Fprintln(c.out, "⏳ Generating caption...")
	case story.LaneTranslation:
		colours.Info.Fprintln(c.out, "⏳ Translating...")
	}
}

func (c *console) speech(s speech.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case s.Status == speech.Speaking:
		colours.Success.Fprintf(c.out, "🔊 Reading aloud (%s)... type 'x' to stop\n", s.Locale)
	case errors.Is(s.Err, story.ErrCapabilityUnavailable):
		colours.Warning.Fprintf(c.out, "🔇 Spoken playback is not available: %v\n", s.Err)
	case s.Err != nil:
		colours.Error.Fprintln(c.out, "❌ Error playing speech. Please try again.")
	default:
		colours.Info.Fprintln(c.out, "🔇 Reading stopped")
	}
}

// typed prints text with the typewriter cadence, blocking until it is out.
func (c *console) typed(label, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out)
	colours.Title.Fprintln(c.out, label)
	shown := 0
	for prefix := range typewriter.Prefixes(text) {
		colours.Caption.Fprint(c.out, prefix[shown:])
		shown = len(prefix)
		if c.interval > 0 {
			time.Sleep(c.interval)
		}
	}
	fmt.Fprintln(c.out)
}

func (c *console) problem(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	colours.Error.Fprintf(c.out, "❌ "+format+"\n", args...)
}

func (c *console) note(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	colours.Info.Fprintf(c.out, format+"\n", args...)
}
