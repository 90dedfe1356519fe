// Package session holds the presentation state of one reading session.
package session

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"picturebook/internal/domain/story"
)

type Theme int

const (
	ThemeLight Theme = iota
	ThemeDark
)

func (t Theme) String() string {
	if t == ThemeDark {
		return "dark"
	}
	return "light"
}

// ParseTheme reads a configured theme. "auto" (or empty) asks ambient
// whether the host prefers a dark scheme.
func ParseTheme(s string, ambient func() bool) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return ThemeLight, nil
	case "dark":
		return ThemeDark, nil
	case "", "auto":
		if ambient != nil && ambient() {
			return ThemeDark, nil
		}
		return ThemeLight, nil
	default:
		return ThemeLight, fmt.Errorf("unknown theme %q (want auto, light or dark)", s)
	}
}

// LaneState is the per-lane presentation flags.
type LaneState struct {
	Loading bool
	Visible bool
	Err     string
}

// Snapshot is a copy of State at one instant.
type Snapshot struct {
	Image       *story.EncodedImage
	Story       string
	Caption     string
	Translation string
	Language    story.LanguageCode
	Languages   []story.LanguageCode
	Theme       Theme
	Lanes       map[story.Lane]LaneState
}

// State is the aggregate presentation state. It is safe for concurrent
// readers; writes come from the orchestrator and the theme/language glue.
type State struct {
	mu        sync.RWMutex
	image     *story.EncodedImage
	texts     map[story.Lane]string
	lanes     map[story.Lane]*LaneState
	language  story.LanguageCode
	languages []story.LanguageCode
	theme     Theme
	apply     func(Theme)
}

// New creates an empty state with the initial theme. apply, when set, is
// called with the theme on every toggle.
func New(theme Theme, apply func(Theme)) *State {
	s := &State{
		texts: make(map[story.Lane]string),
		lanes: make(map[story.Lane]*LaneState),
		theme: theme,
		apply: apply,
	}
	for _, lane := range story.Lanes {
		s.lanes[lane] = &LaneState{}
	}
	return s
}

// SelectImage replaces the image and clears every lane's text and flags.
func (s *State) SelectImage(img story.EncodedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.image = &img
	for _, lane := range story.Lanes {
		s.texts[lane] = ""
		*s.lanes[lane] = LaneState{}
	}
}

func (s *State) Image() (story.EncodedImage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.image == nil {
		return story.EncodedImage{}, false
	}
	return *s.image, true
}

// Text returns the stored text of a lane, visible or not.
func (s *State) Text(lane story.Lane) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.texts[lane]
}

func (s *State) Lane(lane story.Lane) LaneState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.lanes[lane]
}

// Store saves a lane's result and makes it visible.
func (s *State) Store(lane story.Lane, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[lane] = text
	s.lanes[lane].Visible = true
}

// Update applies fn to a lane's flags.
func (s *State) Update(lane story.Lane, fn func(*LaneState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.lanes[lane])
}

// SetLanguages stores the supported languages. The first becomes the
// selection when none is made yet.
func (s *State) SetLanguages(langs []story.LanguageCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.languages = slices.Clone(langs)
	if s.language == "" && len(langs) > 0 {
		s.language = langs[0]
	}
}

func (s *State) Languages() []story.LanguageCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.languages)
}

// SelectLanguage sets the translation target. When the supported list is
// known the code must be on it; matching ignores case.
func (s *State) SelectLanguage(code story.LanguageCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.languages) == 0 {
		s.language = code
		return nil
	}
	for _, l := range s.languages {
		if strings.EqualFold(string(l), string(code)) {
			s.language = l
			return nil
		}
	}
	return fmt.Errorf("unsupported language %q", code)
}

func (s *State) Language() story.LanguageCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *State) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// ToggleTheme flips light and dark and applies the result.
func (s *State) ToggleTheme() Theme {
	s.mu.Lock()
	if s.theme == ThemeDark {
		s.theme = ThemeLight
	} else {
		s.theme = ThemeDark
	}
	theme, apply := s.theme, s.apply
	s.mu.Unlock()

	if apply != nil {
		apply(theme)
	}
	return theme
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Story:       s.texts[story.LaneStory],
		Caption:     s.texts[story.LaneCaption],
		Translation: s.texts[story.LaneTranslation],
		Language:    s.language,
		Languages:   slices.Clone(s.languages),
		Theme:       s.theme,
		Lanes:       make(map[story.Lane]LaneState, len(s.lanes)),
	}
	if s.image != nil {
		img := *s.image
		snap.Image = &img
	}
	for lane, ls := range s.lanes {
		snap.Lanes[lane] = *ls
	}
	return snap
}
