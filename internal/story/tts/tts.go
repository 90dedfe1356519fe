// internal/story/tts/tts.go
package tts

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceled is reported by a Playback that was stopped before it ended.
var ErrCanceled = errors.New("playback canceled")

type Config struct {
	Type      string
	Speed     float64
	Volume    float64
	Voice     string
	CachePath string

	OpenAIKey   string
	OpenAIModel string
	OpenAIVoice string
}

// Engine is a host spoken-playback facility.
type Engine interface {
	Name() string
	// Available reports why the engine cannot speak, or nil.
	Available() error
	// Start begins speaking text in the given locale (e.g. "en-US") and returns
	// without waiting for playback to end.
	Start(ctx context.Context, text, locale string) (Playback, error)
}

// Playback is one spoken session.
type Playback interface {
	// Done yields exactly one value when playback ends: nil on a natural end,
	// ErrCanceled after Cancel, or the playback fault.
	Done() <-chan error
	Cancel()
}

// playback is the Playback shared by all engines. Its context is cancelled
// when the playback finishes for any reason, which is what engines watch to
// release the process or audio stream they hold.
type playback struct {
	ctx      context.Context
	cancel   context.CancelFunc
	once     sync.Once
	done     chan error
	onFinish func(error)

	mu    sync.Mutex
	ended bool
	err   error
}

func newPlayback(parent context.Context, onFinish func(error)) *playback {
	ctx, cancel := context.WithCancel(parent)
	p := &playback{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan error, 1),
		onFinish: onFinish,
	}
	go func() {
		<-ctx.Done()
		p.finish(ErrCanceled)
	}()
	return p
}

func (p *playback) Done() <-chan error {
	return p.done
}

func (p *playback) Cancel() {
	p.finish(ErrCanceled)
}

func (p *playback) finish(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.ended, p.err = true, err
		p.mu.Unlock()
		if p.onFinish != nil {
			p.onFinish(err)
		}
		p.done <- err
		close(p.done)
	})
	p.cancel()
}

// outcome reports whether the playback has ended and with what.
func (p *playback) outcome() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended, p.err
}
