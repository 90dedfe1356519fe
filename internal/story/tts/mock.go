package tts

import (
	"context"
	"sync"
	"time"
)

// MockCall records one Start on the MockEngine.
type MockCall struct {
	Text   string
	Locale string
}

// MockEngine is an in-memory engine. Playbacks end when Finish is called on
// them, or after AutoFinish when it is set.
type MockEngine struct {
	// Unavailable, when set, is returned from Available and Start.
	Unavailable error
	// StartErr, when set, is returned from Start.
	StartErr   error
	AutoFinish time.Duration

	mu        sync.Mutex
	calls     []MockCall
	playbacks []*MockPlayback
	active    int
	maxActive int
}

func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

func (m *MockEngine) Name() string {
	return EngineTypeMock.String()
}

func (m *MockEngine) Available() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Unavailable
}

func (m *MockEngine) Start(ctx context.Context, text, locale string) (Playback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Unavailable != nil {
		return nil, m.Unavailable
	}
	if m.StartErr != nil {
		return nil, m.StartErr
	}

	p := newPlayback(ctx, func(error) {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	})
	mp := &MockPlayback{playback: p}

	m.calls = append(m.calls, MockCall{Text: text, Locale: locale})
	m.playbacks = append(m.playbacks, mp)
	m.active++
	m.maxActive = max(m.maxActive, m.active)

	if m.AutoFinish > 0 {
		go func() {
			select {
			case <-time.After(m.AutoFinish):
				p.finish(nil)
			case <-p.ctx.Done():
			}
		}()
	}

	return mp, nil
}

// Calls returns every Start so far.
func (m *MockEngine) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// Last returns the most recent playback, or nil.
func (m *MockEngine) Last() *MockPlayback {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.playbacks) == 0 {
		return nil
	}
	return m.playbacks[len(m.playbacks)-1]
}

// Active reports how many playbacks have not finished.
func (m *MockEngine) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// MaxActive reports the most playbacks that were ever running at once.
func (m *MockEngine) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

type MockPlayback struct {
	*playback
}

// Finish ends the playback as the host would, with err as the outcome.
func (p *MockPlayback) Finish(err error) {
	p.finish(err)
}

// Canceled reports whether the playback was stopped through Cancel or its context.
func (p *MockPlayback) Canceled() bool {
	ended, err := p.outcome()
	return ended && err == ErrCanceled
}
