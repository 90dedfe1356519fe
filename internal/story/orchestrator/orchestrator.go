// Package orchestrator runs the story, caption and translation requests of a
// session and reconciles their results with the progress and reveal
// animations.
//
// Each lane has a ticket counter. A submission takes the next ticket, and a
// result is applied only if its ticket is still the lane's latest, so a slow
// earlier request can never overwrite a later one. Selecting an image moves
// every lane's counter on, discarding all in-flight results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"picturebook/internal/domain/generator"
	"picturebook/internal/domain/story"
	"picturebook/internal/story/imageprep"
	"picturebook/internal/story/progress"
	"picturebook/internal/story/session"
	"picturebook/internal/story/typewriter"
)

const (
	msgNoImage       = "Please select an image first"
	msgNoTranslation = "Please generate a story first and select a language"
)

var laneFailure = map[story.Lane]string{
	story.LaneStory:       "Failed to generate story. Please try again.",
	story.LaneCaption:     "Failed to generate caption. Please try again.",
	story.LaneTranslation: "Failed to translate story. Please try again.",
}

var ErrClosed = errors.New("orchestrator: closed")

var errEmptyStory = errors.New("service returned an empty story")

// Ticket identifies one submission on a lane.
type Ticket struct {
	Lane story.Lane
	Seq  uint64
}

// StoryOptions are the story lane's inputs. Zero values take the defaults.
type StoryOptions struct {
	Category  string
	WordLimit int
}

// Stopper is anything with playback to halt on teardown.
type Stopper interface {
	Stop()
}

type Option func(*Orchestrator)

// WithCompressor replaces the image preparation applied before a story upload.
func WithCompressor(fn func(context.Context, story.EncodedImage) story.EncodedImage) Option {
	return func(o *Orchestrator) { o.compress = fn }
}

// WithObserver registers fn to be called, under the orchestrator's lock, after
// every change to a lane. It must not call back into the orchestrator.
func WithObserver(fn func(story.Lane, session.LaneState)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithSpeech stops s when the orchestrator is closed.
func WithSpeech(s Stopper) Option {
	return func(o *Orchestrator) { o.speech = s }
}

type Orchestrator struct {
	mu       sync.Mutex
	service  generator.Service
	state    *session.State
	progress *progress.Simulator
	writer   *typewriter.Renderer
	compress func(context.Context, story.EncodedImage) story.EncodedImage
	observer func(story.Lane, session.LaneState)
	speech   Stopper
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	seq    map[story.Lane]uint64
	wg     sync.WaitGroup
	closed bool
}

func New(service generator.Service, state *session.State, sim *progress.Simulator, writer *typewriter.Renderer, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		service:  service,
		state:    state,
		progress: sim,
		writer:   writer,
		compress: imageprep.Compress,
		log: logrus.WithFields(logrus.Fields{
			"component": "orchestrator",
			"session":   uuid.NewString(),
		}),
		ctx:    ctx,
		cancel: cancel,
		seq:    make(map[story.Lane]uint64, len(story.Lanes)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SelectImage makes img the session's image. Every lane is cleared and all
// in-flight results become stale.
func (o *Orchestrator) SelectImage(img story.EncodedImage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, lane := range story.Lanes {
		o.seq[lane]++
	}
	o.state.SelectImage(img)
	o.writer.Reset()
	o.progress.Discard()
	for _, lane := range story.Lanes {
		o.notifyLocked(lane)
	}

	o.log.WithFields(logrus.Fields{
		"mime":   img.MIMEType,
		"width":  img.Width,
		"height": img.Height,
	}).Info("image selected")
}

func (o *Orchestrator) SubmitStory(opts StoryOptions) (Ticket, error) {
	return o.Submit(story.LaneStory, opts)
}

func (o *Orchestrator) SubmitCaption() (Ticket, error) {
	return o.Submit(story.LaneCaption, StoryOptions{})
}

func (o *Orchestrator) SubmitTranslation() (Ticket, error) {
	return o.Submit(story.LaneTranslation, StoryOptions{})
}

// Submit starts a request on lane. opts are only read for the story lane.
// A missing prerequisite sets the lane's error and returns an error wrapping
// story.ErrGuardViolation without calling the service.
func (o *Orchestrator) Submit(lane story.Lane, opts StoryOptions) (Ticket, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return Ticket{}, ErrClosed
	}

	call, err := o.prepareLocked(lane, opts)
	if err != nil {
		o.state.Update(lane, func(ls *session.LaneState) { ls.Err = err.Error() })
		o.notifyLocked(lane)
		o.log.WithField("lane", lane).WithError(err).Debug("submission refused")
		return Ticket{}, fmt.Errorf("%w: %w", story.ErrGuardViolation, err)
	}

	o.state.Update(lane, func(ls *session.LaneState) {
		ls.Err = ""
		ls.Loading = true
		if lane != story.LaneCaption {
			ls.Visible = false
		}
	})
	if lane == story.LaneStory {
		o.writer.Reset()
		o.progress.Discard()
		if err := o.progress.Start(); err != nil {
			o.log.WithError(err).Warn("progress did not start")
		}
	}

	o.seq[lane]++
	ticket := Ticket{Lane: lane, Seq: o.seq[lane]}
	o.notifyLocked(lane)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		text, err := call(o.ctx)
		o.resolve(ticket, text, err)
	}()

	o.log.WithFields(logrus.Fields{"lane": lane, "ticket": ticket.Seq}).Info("request submitted")
	return ticket, nil
}

// prepareLocked checks the lane's prerequisites and captures its inputs.
func (o *Orchestrator) prepareLocked(lane story.Lane, opts StoryOptions) (func(context.Context) (string, error), error) {
	switch lane {
	case story.LaneStory:
		img, ok := o.state.Image()
		if !ok {
			return nil, errors.New(msgNoImage)
		}
		category, wordLimit, err := normalise(opts)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (string, error) {
			return o.service.GenerateStory(ctx, generator.StoryRequest{
				Image:     o.compress(ctx, img),
				Category:  category,
				WordLimit: wordLimit,
			})
		}, nil

	case story.LaneCaption:
		img, ok := o.state.Image()
		if !ok {
			return nil, errors.New(msgNoImage)
		}
		return func(ctx context.Context) (string, error) {
			return o.service.GenerateCaption(ctx, generator.CaptionRequest{Image: img})
		}, nil

	case story.LaneTranslation:
		text, lang := o.state.Text(story.LaneStory), o.state.Language()
		if text == "" || lang == "" {
			return nil, errors.New(msgNoTranslation)
		}
		return func(ctx context.Context) (string, error) {
			return o.service.Translate(ctx, generator.TranslateRequest{Text: text, Language: lang})
		}, nil

	default:
		return nil, fmt.Errorf("unknown lane %d", lane)
	}
}

func normalise(opts StoryOptions) (string, int, error) {
	category := story.DefaultCategory
	if opts.Category != "" {
		c, ok := story.FindCategory(opts.Category)
		if !ok {
			return "", 0, fmt.Errorf("unknown story category %q", opts.Category)
		}
		category = c
	}
	wordLimit := opts.WordLimit
	if wordLimit == 0 {
		wordLimit = story.DefaultWordLimit
	}
	if err := story.ValidateWordLimit(wordLimit); err != nil {
		return "", 0, err
	}
	return category, wordLimit, nil
}

func (o *Orchestrator) resolve(ticket Ticket, text string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry := o.log.WithFields(logrus.Fields{"lane": ticket.Lane, "ticket": ticket.Seq})
	if o.closed || o.seq[ticket.Lane] != ticket.Seq {
		entry.Debug("discarding stale result")
		return
	}

	lane := ticket.Lane
	o.state.Update(lane, func(ls *session.LaneState) { ls.Loading = false })
	if lane == story.LaneStory {
		o.progress.Settle()
	}

	if err == nil && lane == story.LaneStory && strings.TrimSpace(text) == "" {
		err = errEmptyStory
	}
	if err != nil {
		msg := FailureMessage(lane, err)
		o.state.Update(lane, func(ls *session.LaneState) { ls.Err = msg })
		entry.WithError(err).Warn("request failed")
		o.notifyLocked(lane)
		return
	}

	o.state.Update(lane, func(ls *session.LaneState) { ls.Err = "" })
	o.state.Store(lane, text)
	if lane == story.LaneStory {
		o.writer.Begin(text)
	}
	entry.WithField("chars", len([]rune(text))).Info("request resolved")
	o.notifyLocked(lane)
}

// FailureMessage is the user-facing text for a failed request on lane: the
// service's own message when it sent one, otherwise the lane's default.
func FailureMessage(lane story.Lane, err error) string {
	var serr *story.ServiceError
	if errors.As(err, &serr) && serr.Message != "" {
		return serr.Message
	}
	return laneFailure[lane]
}

// RevealComplete reports whether the whole story is on screen, which is what
// speaking and translating the story wait for.
func (o *Orchestrator) RevealComplete() bool {
	return o.state.Lane(story.LaneStory).Visible && o.writer.Complete()
}

// Loading reports whether any lane has a request in flight.
func (o *Orchestrator) Loading() bool {
	for _, lane := range story.Lanes {
		if o.state.Lane(lane).Loading {
			return true
		}
	}
	return false
}

// Wait blocks until every submitted call has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close invalidates every ticket, stops the animations and playback, and
// cancels in-flight calls. It waits for their goroutines to exit.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for _, lane := range story.Lanes {
		o.seq[lane]++
	}
	o.cancel()
	o.progress.Discard()
	o.writer.Cancel()
	if o.speech != nil {
		o.speech.Stop()
	}
	o.mu.Unlock()

	o.wg.Wait()
	o.log.Debug("orchestrator closed")
}

func (o *Orchestrator) notifyLocked(lane story.Lane) {
	if o.observer != nil {
		o.observer(lane, o.state.Lane(lane))
	}
}
