// Package speech owns the single spoken-playback session of the reader.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"picturebook/internal/domain/story"
	"picturebook/internal/story/tts"
)

var (
	ErrClosed = errors.New("speech: controller closed")
	ErrNoText = errors.New("speech: nothing to speak")
)

type Status int

const (
	Idle Status = iota
	Speaking
)

func (s Status) String() string {
	if s == Speaking {
		return "speaking"
	}
	return "idle"
}

// State of the controller. Err holds the last playback fault, or the
// capability failure, until the next session starts.
type State struct {
	Status     Status
	ActiveText string
	Locale     string
	Err        error
}

// Controller serialises sessions: at most one is speaking at any time, and
// starting one stops the previous one first.
type Controller struct {
	mu       sync.Mutex
	engine   tts.Engine
	voices   VoiceTable
	observer func(State)
	log      *logrus.Entry

	state       State
	playback    tts.Playback
	gen         uint64
	closed      bool
	unavailable bool
}

// New creates an idle controller. The observer is called with every state
// change, in order, under the controller's lock; it must not call back into
// the controller. engine and observer may be nil.
func New(engine tts.Engine, voices VoiceTable, observer func(State)) *Controller {
	name := "none"
	if engine != nil {
		name = engine.Name()
	}
	return &Controller{
		engine:   engine,
		voices:   voices,
		observer: observer,
		log:      logrus.WithFields(logrus.Fields{"component": "speech", "engine": name}),
	}
}

// Speak stops any current session and speaks text in the locale resolved
// from hint. An empty hint uses the table's default. Playback stops early if
// ctx is cancelled.
func (c *Controller) Speak(ctx context.Context, text string, hint story.LanguageCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if err := c.capableLocked(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrNoText
	}

	c.stopLocked()

	locale := c.voices.Locale(hint)
	pb, err := c.engine.Start(ctx, text, locale)
	if err != nil {
		c.log.WithError(err).WithField("locale", locale).Warn("playback failed to start")
		c.state = State{Status: Idle, Err: err}
		c.notifyLocked()
		return fmt.Errorf("failed to start playback: %w", err)
	}

	c.gen++
	c.playback = pb
	c.state = State{Status: Speaking, ActiveText: text, Locale: locale}
	c.notifyLocked()
	go c.watch(c.gen, pb)

	c.log.WithField("locale", locale).Debug("speaking")
	return nil
}

// Stop ends the current session. Signals from it arriving later are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Close stops playback and refuses further sessions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.closed = true
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Speaking() bool {
	return c.State().Status == Speaking
}

// Available reports whether the engine can speak, without recording anything.
func (c *Controller) Available() error {
	if c.engine == nil {
		return story.ErrCapabilityUnavailable
	}
	if err := c.engine.Available(); err != nil {
		return fmt.Errorf("%w: %v", story.ErrCapabilityUnavailable, err)
	}
	return nil
}

// capableLocked fails with ErrCapabilityUnavailable when the engine cannot
// speak. The failure is recorded in the state only the first time.
func (c *Controller) capableLocked() error {
	err := c.Available()
	if err == nil {
		return nil
	}
	if !c.unavailable {
		c.unavailable = true
		c.log.WithError(err).Warn("spoken playback unavailable")
		c.state = State{Status: Idle, Err: err}
		c.notifyLocked()
	}
	return err
}

func (c *Controller) watch(gen uint64, pb tts.Playback) {
	err := <-pb.Done()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		return
	}
	c.playback = nil
	c.state = State{Status: Idle}
	if err != nil && !errors.Is(err, tts.ErrCanceled) {
		c.log.WithError(err).Warn("playback fault")
		c.state.Err = err
	}
	c.notifyLocked()
}

func (c *Controller) stopLocked() {
	c.gen++
	if c.playback != nil {
		c.playback.Cancel()
		c.playback = nil
	}
	if c.state.Status == Speaking {
		c.state = State{Status: Idle}
		c.notifyLocked()
	}
}

func (c *Controller) notifyLocked() {
	if c.observer != nil {
		c.observer(c.state)
	}
}
