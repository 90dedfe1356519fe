package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturebook/internal/domain/story"
)

func TestSelectImageClearsAllLanes(t *testing.T) {
	s := New(ThemeLight, nil)
	s.SelectImage(story.EncodedImage{Data: []byte{1}, MIMEType: "image/png"})
	for _, lane := range story.Lanes {
		s.Store(lane, "text for "+lane.String())
		s.Update(lane, func(ls *LaneState) {
			ls.Err = "boom"
			ls.Loading = true
		})
	}

	s.SelectImage(story.EncodedImage{Data: []byte{2}, MIMEType: "image/jpeg"})

	snap := s.Snapshot()
	assert.Empty(t, snap.Story)
	assert.Empty(t, snap.Caption)
	assert.Empty(t, snap.Translation)
	for _, lane := range story.Lanes {
		assert.Equal(t, LaneState{}, snap.Lanes[lane], lane.String())
	}
	require.NotNil(t, snap.Image)
	assert.Equal(t, "image/jpeg", snap.Image.MIMEType)
}

func TestImageUnset(t *testing.T) {
	_, ok := New(ThemeLight, nil).Image()
	assert.False(t, ok)
}

func TestLanguages(t *testing.T) {
	s := New(ThemeLight, nil)
	require.NoError(t, s.SelectLanguage("Klingon"), "anything goes before the list is known")

	s = New(ThemeLight, nil)
	s.SetLanguages([]story.LanguageCode{"English", "Spanish", "French"})
	assert.Equal(t, story.LanguageCode("English"), s.Language())

	require.NoError(t, s.SelectLanguage("spanish"))
	assert.Equal(t, story.LanguageCode("Spanish"), s.Language())
	assert.Error(t, s.SelectLanguage("Klingon"))
	assert.Equal(t, story.LanguageCode("Spanish"), s.Language())

	s.SetLanguages([]story.LanguageCode{"German"})
	assert.Equal(t, story.LanguageCode("Spanish"), s.Language(), "existing selection kept")
}

func TestToggleThemeApplies(t *testing.T) {
	var applied []Theme
	s := New(ThemeLight, func(th Theme) { applied = append(applied, th) })

	assert.Equal(t, ThemeDark, s.ToggleTheme())
	assert.Equal(t, ThemeLight, s.ToggleTheme())
	assert.Equal(t, []Theme{ThemeDark, ThemeLight}, applied)
	assert.Equal(t, ThemeLight, s.Theme())
}

func TestParseTheme(t *testing.T) {
	dark := func() bool { return true }
	light := func() bool { return false }

	tests := []struct {
		in      string
		ambient func() bool
		want    Theme
		wantErr bool
	}{
		{"light", dark, ThemeLight, false},
		{"DARK", light, ThemeDark, false},
		{"auto", dark, ThemeDark, false},
		{"", light, ThemeLight, false},
		{"auto", nil, ThemeLight, false},
		{"sepia", nil, ThemeLight, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTheme(tt.in, tt.ambient)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
