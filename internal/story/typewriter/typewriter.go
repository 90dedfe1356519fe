// Package typewriter reveals a finished text one character at a time.
package typewriter

import (
	"iter"
	"sync"
	"time"
)

// DefaultInterval is the delay between revealed characters.
const DefaultInterval = 20 * time.Millisecond

// RevealState is the progress of one reveal.
type RevealState struct {
	Source   string
	Revealed int // in runes
	Total    int // in runes
}

// Complete reports whether the whole source is shown.
func (s RevealState) Complete() bool {
	return s.Revealed == s.Total
}

// Renderer reveals a text incrementally. Each Begin owns a fresh ticker that is
// released on completion, Cancel, Reset or the next Begin.
type Renderer struct {
	mu       sync.Mutex
	interval time.Duration
	// onReveal is called under the lock with every new prefix; done is true for
	// the prefix equal to the full source.
	onReveal func(prefix string, done bool)

	source   []rune
	revealed int

	gen  uint64
	stop chan struct{}
}

// New creates a renderer. A nil onReveal is allowed.
func New(interval time.Duration, onReveal func(prefix string, done bool)) *Renderer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Renderer{interval: interval, onReveal: onReveal}
}

// Begin starts revealing text from the first character, cancelling any reveal
// in progress.
func (r *Renderer) Begin(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.haltLocked()
	r.source = []rune(text)
	r.revealed = 0
	r.emitLocked()

	if len(r.source) == 0 {
		return
	}
	r.stop = make(chan struct{})
	go r.run(r.gen, r.stop)
}

// Finish reveals the remaining text at once.
func (r *Renderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.haltLocked()
	if r.revealed == len(r.source) {
		return
	}
	r.revealed = len(r.source)
	r.emitLocked()
}

// Cancel stops revealing and keeps what is shown.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haltLocked()
}

// Reset stops revealing and forgets the text.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.haltLocked()
	r.source = nil
	r.revealed = 0
}

// Displayed returns the revealed prefix.
func (r *Renderer) Displayed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.source[:r.revealed])
}

// Complete reports whether a text has been fully revealed.
func (r *Renderer) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.source) > 0 && r.revealed == len(r.source)
}

// State returns a snapshot of the reveal.
func (r *Renderer) State() RevealState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RevealState{
		Source:   string(r.source),
		Revealed: r.revealed,
		Total:    len(r.source),
	}
}

func (r *Renderer) run(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.gen != gen {
				r.mu.Unlock()
				return
			}
			r.revealed++
			r.emitLocked()
			if r.revealed == len(r.source) {
				r.haltLocked()
				r.mu.Unlock()
				return
			}
			r.mu.Unlock()
		}
	}
}

func (r *Renderer) haltLocked() {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
	r.gen++
}

func (r *Renderer) emitLocked() {
	if r.onReveal != nil {
		r.onReveal(string(r.source[:r.revealed]), r.revealed == len(r.source))
	}
}

// Prefixes yields every non-empty prefix of text, one rune longer each time.
// The last prefix is text itself. Ranging again starts over.
func Prefixes(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		for i := 1; i <= len(runes); i++ {
			if !yield(string(runes[:i])) {
				return
			}
		}
	}
}
