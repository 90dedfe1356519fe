package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturebook/internal/domain/generator"
	"picturebook/internal/domain/story"
	"picturebook/internal/story/progress"
	"picturebook/internal/story/session"
	"picturebook/internal/story/typewriter"
)

type reply struct {
	text string
	err  error
}

// pending is one service call waiting for the test to answer it.
type pending struct {
	lane      story.Lane
	story     generator.StoryRequest
	caption   generator.CaptionRequest
	translate generator.TranslateRequest
	answer    chan reply
}

func (p *pending) respond(text string, err error) {
	p.answer <- reply{text: text, err: err}
}

type fakeService struct {
	calls chan *pending
}

func newFakeService() *fakeService {
	return &fakeService{calls: make(chan *pending, 16)}
}

func (f *fakeService) wait(ctx context.Context, p *pending) (string, error) {
	f.calls <- p
	select {
	case r := <-p.answer:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (f *fakeService) SupportedLanguages(ctx context.Context) ([]story.LanguageCode, error) {
	return []story.LanguageCode{"English", "Spanish"}, nil
}

func (f *fakeService) GenerateStory(ctx context.Context, req generator.StoryRequest) (string, error) {
	return f.wait(ctx, &pending{lane: story.LaneStory, story: req, answer: make(chan reply, 1)})
}

func (f *fakeService) GenerateCaption(ctx context.Context, req generator.CaptionRequest) (string, error) {
	return f.wait(ctx, &pending{lane: story.LaneCaption, caption: req, answer: make(chan reply, 1)})
}

func (f *fakeService) Translate(ctx context.Context, req generator.TranslateRequest) (string, error) {
	return f.wait(ctx, &pending{lane: story.LaneTranslation, translate: req, answer: make(chan reply, 1)})
}

func (f *fakeService) next(t *testing.T) *pending {
	t.Helper()
	select {
	case p := <-f.calls:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("expected a service call")
		return nil
	}
}

func (f *fakeService) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case p := <-f.calls:
		t.Fatalf("unexpected %s call", p.lane)
	case <-time.After(20 * time.Millisecond):
	}
}

type percents struct {
	mu     sync.Mutex
	states []progress.State
}

func (p *percents) record(s progress.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *percents) snapshot() []progress.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]progress.State(nil), p.states...)
}

type harness struct {
	svc      *fakeService
	state    *session.State
	sim      *progress.Simulator
	writer   *typewriter.Renderer
	progress *percents
	orch     *Orchestrator
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		svc:      newFakeService(),
		state:    session.New(session.ThemeLight, nil),
		progress: &percents{},
	}
	h.sim = progress.New(progress.Options{Interval: time.Millisecond, OnChange: h.progress.record})
	h.writer = typewriter.New(time.Millisecond, nil)
	h.orch = New(h.svc, h.state, h.sim, h.writer,
		WithCompressor(func(_ context.Context, img story.EncodedImage) story.EncodedImage {
			img.MIMEType = "image/jpeg"
			return img
		}))
	t.Cleanup(h.orch.Close)
	return h
}

var testImage = story.EncodedImage{Data: []byte("png"), MIMEType: "image/png", Width: 1600, Height: 1200}

func TestStoryScenario(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{Category: "Adventure", WordLimit: 200})
	require.NoError(t, err)
	assert.True(t, h.state.Lane(story.LaneStory).Loading)

	call := h.svc.next(t)
	assert.Equal(t, "Adventure", call.story.Category)
	assert.Equal(t, 200, call.story.WordLimit)
	assert.Equal(t, "image/jpeg", call.story.Image.MIMEType, "story upload is compressed")

	// let the simulator tick a few times before the result lands
	require.Eventually(t, func() bool { return h.sim.State().Percent >= 30 }, time.Second, time.Millisecond)

	text := "Once upon a time..."
	call.respond(text, nil)
	h.orch.Wait()

	lane := h.state.Lane(story.LaneStory)
	assert.False(t, lane.Loading)
	assert.True(t, lane.Visible)
	assert.Empty(t, lane.Err)
	assert.Equal(t, text, h.state.Text(story.LaneStory))
	assert.Equal(t, 100, h.sim.State().Percent)
	assert.Equal(t, progress.Settled, h.sim.State().Phase)

	require.Eventually(t, h.orch.RevealComplete, time.Second, time.Millisecond)
	assert.Equal(t, len([]rune(text)), h.writer.State().Revealed)
	assert.Equal(t, text, h.writer.Displayed())

	states := h.progress.snapshot()
	hundreds := 0
	for i, s := range states {
		if s.Percent == 100 {
			hundreds++
		}
		if i > 0 && s.Phase != progress.Idle && states[i-1].Phase == progress.Running {
			assert.GreaterOrEqual(t, s.Percent, states[i-1].Percent, "percent went backwards at %d", i)
		}
	}
	assert.Equal(t, 1, hundreds)
}

func TestStoryFailureSettlesProgress(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	call := h.svc.next(t)
	assert.Equal(t, story.DefaultCategory, call.story.Category)
	assert.Equal(t, story.DefaultWordLimit, call.story.WordLimit)

	call.respond("", fmt.Errorf("dial: %w", story.ErrTransportFailure))
	h.orch.Wait()

	assert.Equal(t, progress.Settled, h.sim.State().Phase)
	assert.Equal(t, 100, h.sim.State().Percent)
	assert.Equal(t, "Failed to generate story. Please try again.", h.state.Lane(story.LaneStory).Err)
	assert.False(t, h.orch.RevealComplete())
}

func TestEmptyStoryIsAFailure(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	h.svc.next(t).respond("  ", nil)
	h.orch.Wait()

	lane := h.state.Lane(story.LaneStory)
	assert.False(t, lane.Loading)
	assert.False(t, lane.Visible)
	assert.Equal(t, "Failed to generate story. Please try again.", lane.Err)
	assert.Equal(t, 100, h.sim.State().Percent)
	assert.False(t, h.orch.RevealComplete())
}

func TestRefusedSubmissionErrorClearedByLiveResult(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	call := h.svc.next(t)

	_, err = h.orch.SubmitStory(StoryOptions{Category: "Poetry"})
	require.ErrorIs(t, err, story.ErrGuardViolation)
	require.NotEmpty(t, h.state.Lane(story.LaneStory).Err)

	call.respond("Once upon a time...", nil)
	h.orch.Wait()

	lane := h.state.Lane(story.LaneStory)
	assert.True(t, lane.Visible)
	assert.Empty(t, lane.Err)
	assert.Equal(t, "Once upon a time...", h.state.Text(story.LaneStory))
}

func TestTranslateGuard(t *testing.T) {
	h := newHarness(t)
	h.state.SetLanguages([]story.LanguageCode{"Spanish"})

	_, err := h.orch.SubmitTranslation()
	require.ErrorIs(t, err, story.ErrGuardViolation)
	h.svc.assertNoCall(t)

	lane := h.state.Lane(story.LaneTranslation)
	assert.NotEmpty(t, lane.Err)
	assert.False(t, lane.Loading)
}

func TestImageGuard(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.ErrorIs(t, err, story.ErrGuardViolation)
	_, err = h.orch.SubmitCaption()
	require.ErrorIs(t, err, story.ErrGuardViolation)
	h.svc.assertNoCall(t)

	assert.Equal(t, "Please select an image first", h.state.Lane(story.LaneStory).Err)
	assert.Equal(t, "Please select an image first", h.state.Lane(story.LaneCaption).Err)
	assert.Equal(t, progress.Idle, h.sim.State().Phase)
}

func TestInvalidStoryOptions(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{WordLimit: 120})
	require.ErrorIs(t, err, story.ErrGuardViolation)
	_, err = h.orch.SubmitStory(StoryOptions{Category: "Poetry"})
	require.ErrorIs(t, err, story.ErrGuardViolation)
	h.svc.assertNoCall(t)
}

func TestStaleResultDiscarded(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	first, err := h.orch.SubmitCaption()
	require.NoError(t, err)
	c1 := h.svc.next(t)
	second, err := h.orch.SubmitCaption()
	require.NoError(t, err)
	c2 := h.svc.next(t)
	assert.Greater(t, second.Seq, first.Seq)

	c2.respond("second", nil)
	require.Eventually(t, func() bool { return h.state.Text(story.LaneCaption) == "second" }, time.Second, time.Millisecond)
	c1.respond("first", nil)
	h.orch.Wait()

	assert.Equal(t, "second", h.state.Text(story.LaneCaption))
	assert.False(t, h.state.Lane(story.LaneCaption).Loading)
}

func TestStaleStoryDoesNotSettleNewRun(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	c1 := h.svc.next(t)
	_, err = h.orch.SubmitStory(StoryOptions{Category: "Mystery"})
	require.NoError(t, err)
	c2 := h.svc.next(t)

	c1.respond("old story", nil)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, progress.Running, h.sim.State().Phase)
	assert.True(t, h.state.Lane(story.LaneStory).Loading)
	assert.Empty(t, h.state.Text(story.LaneStory))

	c2.respond("new story", nil)
	h.orch.Wait()
	assert.Equal(t, "new story", h.state.Text(story.LaneStory))
	assert.Equal(t, progress.Settled, h.sim.State().Phase)
}

func TestSelectImageClearsInFlight(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitCaption()
	require.NoError(t, err)
	cap1 := h.svc.next(t)
	cap1.respond("a lighthouse", nil)
	h.orch.Wait()
	require.Equal(t, "a lighthouse", h.state.Text(story.LaneCaption))

	_, err = h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	storyCall := h.svc.next(t)
	_, err = h.orch.SubmitCaption()
	require.NoError(t, err)
	cap2 := h.svc.next(t)

	h.orch.SelectImage(story.EncodedImage{Data: []byte("other"), MIMEType: "image/png"})

	snap := h.state.Snapshot()
	assert.Empty(t, snap.Story)
	assert.Empty(t, snap.Caption)
	assert.Empty(t, snap.Translation)
	for _, lane := range story.Lanes {
		assert.Equal(t, session.LaneState{}, snap.Lanes[lane], lane.String())
	}
	assert.Equal(t, progress.Idle, h.sim.State().Phase)

	storyCall.respond("too late", nil)
	cap2.respond("also too late", nil)
	h.orch.Wait()

	snap = h.state.Snapshot()
	assert.Empty(t, snap.Story)
	assert.Empty(t, snap.Caption)
	assert.Equal(t, progress.Idle, h.sim.State().Phase)
	assert.Empty(t, h.writer.Displayed())
}

func TestFailureKeepsPriorContent(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitCaption()
	require.NoError(t, err)
	call := h.svc.next(t)
	assert.Equal(t, "image/png", call.caption.Image.MIMEType, "captions upload the original")
	call.respond("a cat on a mat", nil)
	h.orch.Wait()

	_, err = h.orch.SubmitCaption()
	require.NoError(t, err)
	h.svc.next(t).respond("", &story.ServiceError{Message: "Model overloaded"})
	h.orch.Wait()

	lane := h.state.Lane(story.LaneCaption)
	assert.Equal(t, "Model overloaded", lane.Err)
	assert.True(t, lane.Visible)
	assert.Equal(t, "a cat on a mat", h.state.Text(story.LaneCaption))

	// resubmitting clears the error
	_, err = h.orch.SubmitCaption()
	require.NoError(t, err)
	assert.Empty(t, h.state.Lane(story.LaneCaption).Err)
	h.svc.next(t).respond("", fmt.Errorf("%w: connection reset", story.ErrTransportFailure))
	h.orch.Wait()
	assert.Equal(t, "Failed to generate caption. Please try again.", h.state.Lane(story.LaneCaption).Err)
}

func TestLanesIndependent(t *testing.T) {
	h := newHarness(t)
	h.orch.SelectImage(testImage)
	h.state.SetLanguages([]story.LanguageCode{"Spanish", "French"})

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	h.svc.next(t).respond("Había una vez", nil)
	h.orch.Wait()

	_, err = h.orch.SubmitTranslation()
	require.NoError(t, err)
	tr := h.svc.next(t)
	assert.Equal(t, "Había una vez", tr.translate.Text)
	assert.Equal(t, story.LanguageCode("Spanish"), tr.translate.Language)

	_, err = h.orch.SubmitCaption()
	require.NoError(t, err)
	h.svc.next(t).respond("", &story.ServiceError{Message: "caption failed"})

	tr.respond("Once upon a time", nil)
	h.orch.Wait()

	assert.Equal(t, "caption failed", h.state.Lane(story.LaneCaption).Err)
	assert.Empty(t, h.state.Lane(story.LaneTranslation).Err)
	assert.Empty(t, h.state.Lane(story.LaneStory).Err)
	assert.Equal(t, "Once upon a time", h.state.Text(story.LaneTranslation))
	assert.True(t, h.state.Lane(story.LaneTranslation).Visible)
}

type stopCounter struct {
	mu sync.Mutex
	n  int
}

func (s *stopCounter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
}

func TestCloseTearsDown(t *testing.T) {
	h := newHarness(t)
	speech := &stopCounter{}
	h.orch = New(h.svc, h.state, h.sim, h.writer, WithSpeech(speech))
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitStory(StoryOptions{})
	require.NoError(t, err)
	h.svc.next(t)

	h.orch.Close()
	assert.Equal(t, progress.Idle, h.sim.State().Phase)
	assert.True(t, h.state.Lane(story.LaneStory).Loading, "cancelled result is not applied")
	assert.Equal(t, 1, speech.n)

	_, err = h.orch.SubmitCaption()
	assert.ErrorIs(t, err, ErrClosed)
	h.orch.Close()
}

func TestObserverSeesLaneChanges(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var seen []session.LaneState
	h.orch = New(h.svc, h.state, h.sim, h.writer, WithObserver(func(lane story.Lane, ls session.LaneState) {
		if lane != story.LaneCaption {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ls)
	}))
	t.Cleanup(h.orch.Close)
	h.orch.SelectImage(testImage)

	_, err := h.orch.SubmitCaption()
	require.NoError(t, err)
	h.svc.next(t).respond("a dog", nil)
	h.orch.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, session.LaneState{}, seen[0])
	assert.True(t, seen[1].Loading)
	assert.Equal(t, session.LaneState{Visible: true}, seen[2])
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Failed to translate story. Please try again.", FailureMessage(story.LaneTranslation, story.ErrTransportFailure))
	assert.Equal(t, "nope", FailureMessage(story.LaneStory, fmt.Errorf("wrapped: %w", &story.ServiceError{Message: "nope"})))
}
