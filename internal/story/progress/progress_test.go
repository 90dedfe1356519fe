package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func TestIncrementTiers(t *testing.T) {
	assert.Equal(t, 15, Increment(0))
	assert.Equal(t, 30, Increment(15))
	assert.Equal(t, 40, Increment(30))
	assert.Equal(t, 60, Increment(50))
	assert.Equal(t, 65, Increment(60))
	assert.Equal(t, 90, Increment(85))
	assert.Equal(t, 90, Increment(90))
}

func TestIncrementNeverReaches100(t *testing.T) {
	p := 0
	for i := 0; i < 1000; i++ {
		next := Increment(p)
		require.GreaterOrEqual(t, next, p)
		p = next
	}
	assert.Less(t, p, 100)
}

func TestAdvanceSaturatesStep(t *testing.T) {
	s := New(Options{Interval: time.Hour})
	require.NoError(t, s.Start())
	defer s.Discard()

	s.mu.Lock()
	for i := 0; i < 20; i++ {
		s.advanceLocked()
	}
	s.mu.Unlock()

	st := s.State()
	assert.Equal(t, len(DefaultSteps)-1, st.Step)
	assert.Equal(t, DefaultSteps[len(DefaultSteps)-1], st.Label)
	assert.Equal(t, 90, st.Percent)
	assert.Equal(t, Running, st.Phase)
}

func TestStartWhileRunningIsRejected(t *testing.T) {
	s := New(Options{Interval: time.Hour})
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)

	s.Settle()
	assert.NoError(t, s.Start(), "a settled simulator can start a new run")
	s.Discard()
	assert.NoError(t, s.Start(), "a discarded simulator can start a new run")
	s.Discard()
}

func TestTicksAreMonotonicAndSettleOnce(t *testing.T) {
	rec := &recorder{}
	s := New(Options{Interval: 2 * time.Millisecond, OnChange: rec.record})

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool {
		return s.State().Percent >= 60
	}, time.Second, time.Millisecond)

	s.Settle()
	s.Settle()
	time.Sleep(10 * time.Millisecond)

	states := rec.snapshot()
	require.NotEmpty(t, states)
	assert.Equal(t, 0, states[0].Percent)

	hundreds := 0
	for i, st := range states {
		if i > 0 {
			assert.GreaterOrEqual(t, st.Percent, states[i-1].Percent, "percent went backwards at %d", i)
		}
		if st.Percent == 100 {
			hundreds++
		}
	}
	assert.Equal(t, 1, hundreds)

	last := states[len(states)-1]
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, Settled, last.Phase)
}

func TestStartResetsAfterSettle(t *testing.T) {
	s := New(Options{Interval: time.Hour})
	require.NoError(t, s.Start())
	s.mu.Lock()
	s.advanceLocked()
	s.mu.Unlock()
	s.Settle()
	require.Equal(t, 100, s.State().Percent)

	require.NoError(t, s.Start())
	defer s.Discard()
	st := s.State()
	assert.Equal(t, 0, st.Percent)
	assert.Equal(t, 0, st.Step)
}

func TestDiscardStopsTicking(t *testing.T) {
	s := New(Options{Interval: time.Millisecond})
	require.NoError(t, s.Start())
	s.Discard()

	time.Sleep(10 * time.Millisecond)
	st := s.State()
	assert.Equal(t, Idle, st.Phase)
	assert.Equal(t, 0, st.Percent)

	s.Settle()
	assert.Equal(t, 0, s.State().Percent, "settle after discard must not produce 100")
}

func TestStatusLine(t *testing.T) {
	s := New(Options{Interval: time.Hour, StatusInterval: time.Hour})
	assert.Equal(t, StatusMessages[0], s.StatusLine())
	require.NoError(t, s.Start())
	defer s.Discard()
	assert.Equal(t, StatusMessages[0], s.StatusLine())
}
