package nest

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"picturebook/internal/cli/scheme/colours"
	"picturebook/internal/domain/story"
	"picturebook/internal/story/imageprep"
	"picturebook/internal/story/orchestrator"
	"picturebook/internal/story/progress"
	"picturebook/internal/story/session"
	"picturebook/internal/story/speech"
	"picturebook/internal/story/typewriter"
)

// reading is one image-to-story session.
type reading struct {
	pb      *PictureBook
	console *console
	state   *session.State
	sim     *progress.Simulator
	writer  *typewriter.Renderer
	speech  *speech.Controller
	orch    *orchestrator.Orchestrator

	opts    orchestrator.StoryOptions
	instant bool
}

func (pb *PictureBook) newReading() (*reading, error) {
	theme, err := session.ParseTheme(pb.cfg.UI.Theme, colours.DetectDark)
	if err != nil {
		return nil, err
	}
	applyTheme := func(t session.Theme) { colours.Apply(t == session.ThemeDark) }
	applyTheme(theme)

	con := newConsole(pb.out, pb.cfg.Story.TypewriterInterval)
	r := &reading{
		pb:      pb,
		console: con,
		state:   session.New(theme, applyTheme),
		sim: progress.New(progress.Options{
			Interval: pb.cfg.Story.ProgressInterval,
			OnChange: con.progress,
		}),
		writer: typewriter.New(pb.cfg.Story.TypewriterInterval, con.reveal),
		speech: speech.New(pb.engine, pb.voices, con.speech),
		opts: orchestrator.StoryOptions{
			Category:  pb.cfg.Story.Category,
			WordLimit: pb.cfg.Story.WordLimit,
		},
	}
	r.orch = orchestrator.New(pb.service, r.state, r.sim, r.writer,
		orchestrator.WithSpeech(r.speech),
		orchestrator.WithObserver(con.lane))
	return r, nil
}

func (r *reading) close() {
	r.orch.Close()
	r.speech.Close()
}

// Tell turns the image at args[0] into a story and, unless disabled, keeps a
// prompt open for follow-up actions.
func (pb *PictureBook) Tell(cmd *cobra.Command, args []string) error {
	img, err := imageprep.Load(args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	language, _ := flags.GetString("language")
	withCaption, _ := flags.GetBool("caption")
	translate, _ := flags.GetBool("translate")
	speak, _ := flags.GetBool("speak")
	instant, _ := flags.GetBool("instant")
	interactive, _ := flags.GetBool("interactive")

	r, err := pb.newReading()
	if err != nil {
		return err
	}
	r.instant = instant

	pb.mu.Lock()
	pb.current = r
	pb.mu.Unlock()
	defer func() {
		pb.mu.Lock()
		if pb.current == r {
			pb.current = nil
		}
		pb.mu.Unlock()
		r.close()
	}()

	r.loadLanguages()
	if language != "" {
		if err := r.state.SelectLanguage(story.LanguageCode(language)); err != nil {
			return err
		}
	}

	colours.Title.Fprintf(pb.out, "🖼️  %s (%dx%d)\n", args[0], img.Width, img.Height)
	colours.Info.Fprintf(pb.out, "🎭 %s story, about %d words\n", r.opts.Category, r.opts.WordLimit)
	r.orch.SelectImage(img)

	if withCaption {
		r.caption()
	}
	r.generate()
	if translate {
		r.translate()
	}
	if speak {
		r.speak(story.LaneStory)
	}

	if interactive {
		pb.waitForUserInput(r)
		return nil
	}
	r.waitForSpeech()
	return nil
}

func (r *reading) loadLanguages() {
	langs, err := r.pb.languages.Languages(r.pb.ctx)
	if err != nil {
		logrus.WithError(err).Warn("could not load languages")
		return
	}
	r.state.SetLanguages(langs)
}

func (r *reading) generate() {
	r.console.expectReveal()
	if _, err := r.orch.SubmitStory(r.opts); err != nil {
		r.console.problem("%s", r.state.Lane(story.LaneStory).Err)
		return
	}
	r.orch.Wait()

	if msg := r.state.Lane(story.LaneStory).Err; msg != "" {
		r.console.problem("%s", msg)
		return
	}
	if r.instant {
		r.writer.Finish()
	}
	select {
	case <-r.console.revealed:
	case <-r.pb.ctx.Done():
	}
}

func (r *reading) caption() {
	if _, err := r.orch.SubmitCaption(); err != nil {
		r.console.problem("%s", r.state.Lane(story.LaneCaption).Err)
		return
	}
	r.orch.Wait()
	r.report(story.LaneCaption, "🏷️  Caption:")
}

func (r *reading) translate() {
	if !r.orch.RevealComplete() {
		r.console.note("⏳ Wait for the story to finish before translating")
		return
	}
	if _, err := r.orch.SubmitTranslation(); err != nil {
		r.console.problem("%s", r.state.Lane(story.LaneTranslation).Err)
		return
	}
	r.orch.Wait()
	r.report(story.LaneTranslation, fmt.Sprintf("🌍 Translation (%s):", r.state.Language()))
}

func (r *reading) report(lane story.Lane, label string) {
	ls := r.state.Lane(lane)
	if ls.Err != "" {
		r.console.problem("%s", ls.Err)
		return
	}
	if ls.Visible {
		r.console.typed(label, r.state.Text(lane))
	}
}

// speak reads the story, or the visible translation in its own voice.
func (r *reading) speak(lane story.Lane) {
	var text string
	var hint story.LanguageCode

	switch lane {
	case story.LaneStory:
		if !r.orch.RevealComplete() {
			r.console.note("⏳ Wait for the story to finish before reading it aloud")
			return
		}
		text = r.state.Text(story.LaneStory)
	case story.LaneTranslation:
		if !r.state.Lane(story.LaneTranslation).Visible {
			r.console.note("💡 Translate the story first with 't'")
			return
		}
		text, hint = r.state.Text(story.LaneTranslation), r.state.Language()
	default:
		return
	}

	err := r.speech.Speak(r.pb.ctx, text, hint)
	switch {
	case err == nil, errors.Is(err, story.ErrCapabilityUnavailable):
	case errors.Is(err, speech.ErrNoText):
		r.console.note("💡 Nothing to read yet")
	default:
		logrus.WithError(err).Debug("speak failed")
	}
}

func (r *reading) newImage(path string) {
	img, err := imageprep.Load(path)
	if err != nil {
		r.console.problem("%v", err)
		return
	}
	r.speech.Stop()
	r.orch.SelectImage(img)
	r.console.note("🖼️  New image selected (%dx%d). Type 'g' to write its story", img.Width, img.Height)
}

func (r *reading) chooseLanguage(name string) {
	if name == "" {
		current := r.state.Language()
		for _, lang := range r.state.Languages() {
			marker := "  "
			if lang == current {
				marker = "👉"
			}
			r.console.note("%s %s", marker, lang)
		}
		return
	}
	if err := r.state.SelectLanguage(story.LanguageCode(name)); err != nil {
		r.console.problem("%v", err)
		return
	}
	r.console.note("🌍 Translations will be in %s", r.state.Language())
}

func (r *reading) status() {
	snap := r.state.Snapshot()
	r.console.note("🎨 Theme: %s | 🌍 Language: %s | 🔊 Speech: %s", snap.Theme, snap.Language, r.speech.State().Status)
	for _, lane := range story.Lanes {
		ls := snap.Lanes[lane]
		line := fmt.Sprintf("  • %-11s loading=%t visible=%t", lane, ls.Loading, ls.Visible)
		if ls.Err != "" {
			line += " error=" + ls.Err
		}
		r.console.note("%s", line)
	}
	if r.sim.State().Phase == progress.Running {
		r.console.note("⏳ %s", r.sim.StatusLine())
	}
}

// waitForSpeech blocks until playback ends or the app is cancelled.
func (r *reading) waitForSpeech() {
	ticker := time.NewTicker(pause)
	defer ticker.Stop()
	for r.speech.Speaking() {
		select {
		case <-r.pb.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (pb *PictureBook) inputLines() <-chan string {
	pb.linesOnce.Do(func() {
		pb.lines = make(chan string)
		go func() {
			defer close(pb.lines)
			scanner := bufio.NewScanner(pb.in)
			for scanner.Scan() {
				select {
				case pb.lines <- scanner.Text():
				case <-pb.ctx.Done():
					return
				}
			}
		}()
	})
	return pb.lines
}

func (pb *PictureBook) waitForUserInput(r *reading) {
	lines := pb.inputLines()
	for {
		colours.Prompt.Fprint(pb.out, "\n📖 What next? ('h' for help): ")

		var input string
		select {
		case <-pb.ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input = strings.TrimSpace(line)
		}

		command, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)

		switch strings.ToLower(command) {
		case "r", "read":
			r.speak(story.LaneStory)
		case "rt":
			r.speak(story.LaneTranslation)
		case "x", "stop":
			r.speech.Stop()
		case "t", "translate":
			r.translate()
		case "c", "caption":
			r.caption()
		case "g", "generate":
			r.generate()
		case "n", "new":
			if arg == "" {
				colours.Info.Fprintln(pb.out, "ℹ️  Usage: n <image path>")
				continue
			}
			r.newImage(arg)
		case "l", "language":
			r.chooseLanguage(arg)
		case "theme":
			colours.Info.Fprintf(pb.out, "🎨 Theme: %s\n", r.state.ToggleTheme())
		case "?", "status":
			r.status()
		case "q", "quit":
			colours.Warning.Fprintln(pb.out, "👋 Goodbye! Sweet dreams! 🌙")
			return
		case "":
			continue
		default:
			pb.showHelp()
		}
	}
}

func (pb *PictureBook) showHelp() {
	colours.Info.Fprintln(pb.out, "ℹ️  Commands:")
	fmt.Fprintln(pb.out, "  r            read the story aloud")
	fmt.Fprintln(pb.out, "  rt           read the translation aloud")
	fmt.Fprintln(pb.out, "  x            stop reading")
	fmt.Fprintln(pb.out, "  t            translate the story")
	fmt.Fprintln(pb.out, "  c            caption the image")
	fmt.Fprintln(pb.out, "  g            write a new story for this image")
	fmt.Fprintln(pb.out, "  n <path>     pick a new image")
	fmt.Fprintln(pb.out, "  l [language] list or choose the translation language")
	fmt.Fprintln(pb.out, "  theme        toggle light/dark")
	fmt.Fprintln(pb.out, "  ?            show the session status")
	fmt.Fprintln(pb.out, "  q            quit")
}
