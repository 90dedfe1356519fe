// Package progress approximates remote-work progress purely from elapsed time.
//
// A Simulator moves Idle → Running → Settled. While running, a fixed-interval
// tick advances the step (saturating at the last one) and adds a shrinking
// increment to the percentage, which never reaches 100 on its own. Settle
// forces 100 exactly once for the run.
package progress

import (
	"errors"
	"sync"
	"time"
)

// Phase of a Simulator.
type Phase int

const (
	Idle Phase = iota
	Running
	Settled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Start when a run is in progress.
var ErrAlreadyRunning = errors.New("progress: simulator already running")

// DefaultSteps are the step labels shown while a story is generated.
var DefaultSteps = []string{
	"Analyzing image...",
	"Processing details...",
	"Generating creative elements...",
	"Crafting your story...",
}

// StatusMessages rotate on their own cadence while a run is in progress.
var StatusMessages = []string{
	"Analyzing image...",
	"Crafting your story...",
	"Adding creative details...",
	"Polishing the narrative...",
	"Almost there...",
}

const (
	DefaultInterval       = 1500 * time.Millisecond
	DefaultStatusInterval = 2 * time.Second
)

// State is a snapshot of the simulator.
type State struct {
	Step    int
	Label   string
	Percent int
	Phase   Phase
}

// Options configures a Simulator.
type Options struct {
	Steps          []string
	Interval       time.Duration
	StatusInterval time.Duration
	// OnChange is called with every state change, in order, while the
	// simulator's lock is held. It must not call back into the Simulator.
	OnChange func(State)
}

// Simulator drives a bounded, monotonically increasing progress indicator.
type Simulator struct {
	mu       sync.Mutex
	steps    []string
	interval time.Duration
	statusIv time.Duration
	onChange func(State)

	step    int
	percent int
	phase   Phase
	started time.Time

	gen  uint64
	stop chan struct{}
}

// New creates an idle simulator
func New(opts Options) *Simulator {
	if len(opts.Steps) == 0 {
		opts.Steps = DefaultSteps
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	return &Simulator{
		steps:    opts.Steps,
		interval: opts.Interval,
		statusIv: opts.StatusInterval,
		onChange: opts.OnChange,
	}
}

// Increment returns the percentage after one tick from percent.
func Increment(percent int) int {
	switch {
	case percent < 30:
		return percent + 15
	case percent < 60:
		return percent + 10
	case percent < 90:
		return percent + 5
	default:
		return percent
	}
}

// Start begins a new run. Starting while running is a protocol error.
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Running {
		return ErrAlreadyRunning
	}

	s.step = 0
	s.percent = 0
	s.phase = Running
	s.started = time.Now()
	s.gen++
	s.stop = make(chan struct{})
	go s.run(s.gen, s.stop)

	s.notifyLocked()
	return nil
}

// Settle ends the current run at 100%. It is a no-op unless running, so a
// run reaches 100 exactly once.
func (s *Simulator) Settle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Running {
		return
	}
	s.haltLocked()
	s.percent = 100
	s.phase = Settled
	s.notifyLocked()
}

// Discard stops the current run without settling it and returns to Idle.
func (s *Simulator) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Idle {
		return
	}
	s.haltLocked()
	s.step = 0
	s.percent = 0
	s.phase = Idle
	s.notifyLocked()
}

// State returns a snapshot.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// StatusLine returns the rotating status message for the current run.
func (s *Simulator) StatusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Running {
		return StatusMessages[0]
	}
	n := int(time.Since(s.started) / s.statusIv)
	return StatusMessages[n%len(StatusMessages)]
}

func (s *Simulator) run(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.gen != gen || s.phase != Running {
				s.mu.Unlock()
				return
			}
			s.advanceLocked()
			s.mu.Unlock()
		}
	}
}

func (s *Simulator) advanceLocked() {
	if s.step < len(s.steps)-1 {
		s.step++
	}
	s.percent = Increment(s.percent)
	s.notifyLocked()
}

func (s *Simulator) haltLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.gen++
}

func (s *Simulator) stateLocked() State {
	return State{
		Step:    s.step,
		Label:   s.steps[s.step],
		Percent: s.percent,
		Phase:   s.phase,
	}
}

func (s *Simulator) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.stateLocked())
	}
}
