package nest

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picturebook/internal/config"
)

type backend struct {
	mu         sync.Mutex
	categories []string
	languages  []string
	storyErr   string
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /supported-languages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]string{"English", "Spanish", "French"})
	})
	mux.HandleFunc("POST /generate-story", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Image     string `json:"image"`
			Category  string `json:"category"`
			WordLimit int    `json:"wordLimit"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.categories = append(b.categories, body.Category)
		storyErr := b.storyErr
		b.mu.Unlock()
		if storyErr != "" {
			json.NewEncoder(w).Encode(map[string]string{"error": storyErr})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"story": "Once upon a time..."})
	})
	mux.HandleFunc("POST /generate-caption", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"caption": "A lighthouse at dusk"})
	})
	mux.HandleFunc("POST /translate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text     string `json:"text"`
			Language string `json:"language"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.languages = append(b.languages, body.Language)
		b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"translatedText": "Érase una vez..."})
	})
	return mux
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func writeImage(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := range 40 {
		img.Set(x, x%30, color.RGBA{R: 200, A: 255})
	}
	path := filepath.Join(t.TempDir(), "picture.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func testConfig(t *testing.T, url string) config.Config {
	return config.Config{
		Backend: config.BackendConfig{Type: "http", URL: url, Timeout: 5 * time.Second},
		TTS:     config.TTSConfig{Type: "mock", Speed: 1, Volume: 1},
		Speech:  config.SpeechConfig{DefaultLocale: "en-US"},
		Story: config.StoryConfig{
			Category:           "Adventure",
			WordLimit:          200,
			ProgressInterval:   time.Millisecond,
			TypewriterInterval: time.Millisecond,
		},
		UI:    config.UIConfig{Theme: "light"},
		Log:   config.LogConfig{Level: "warn"},
		Cache: config.CacheConfig{Dir: t.TempDir(), LanguageTTL: time.Hour},
	}
}

func newApp(t *testing.T, input string) (*PictureBook, *syncBuffer, *backend, *cobra.Command) {
	t.Helper()
	be := &backend{}
	srv := httptest.NewServer(be.handler())
	t.Cleanup(srv.Close)

	out := &syncBuffer{}
	pb := NewPictureBook(strings.NewReader(input), out)
	require.NoError(t, pb.Configure(testConfig(t, srv.URL)))
	t.Cleanup(pb.Shutdown)

	root := &cobra.Command{Use: "picturebook", SilenceUsage: true}
	root.SetOut(out)
	root.SetErr(out)
	pb.AddCommands(root)
	return pb, out, be, root
}

func TestTellOneShot(t *testing.T) {
	_, out, be, root := newApp(t, "")
	root.SetArgs([]string{"tell", writeImage(t), "--caption", "--translate", "-l", "spanish", "--interactive=false"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "Once upon a time...")
	assert.Contains(t, text, "A lighthouse at dusk")
	assert.Contains(t, text, "Translation (Spanish)")
	assert.Contains(t, text, "Érase una vez...")
	assert.Contains(t, text, "100%")

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, []string{"adventure"}, be.categories)
	assert.Equal(t, []string{"Spanish"}, be.languages)
}

func TestTellInteractive(t *testing.T) {
	script := strings.Join([]string{
		"rt",       // nothing translated yet
		"l French", // choose a language
		"t",        // translate
		"rt",       // read it in French
		"x",        // stop
		"?",        // status
		"bogus",    // help
		"q",
	}, "\n") + "\n"
	_, out, be, root := newApp(t, script)
	root.SetArgs([]string{"tell", writeImage(t), "--instant"})
	require.NoError(t, root.Execute())

	text := out.String()
	assert.Contains(t, text, "Translate the story first")
	assert.Contains(t, text, "Translations will be in French")
	assert.Contains(t, text, "Reading aloud (fr-FR)")
	assert.Contains(t, text, "Reading stopped")
	assert.Contains(t, text, "loading=false")
	assert.Contains(t, text, "Commands:")
	assert.Contains(t, text, "Goodbye")

	be.mu.Lock()
	defer be.mu.Unlock()
	assert.Equal(t, []string{"French"}, be.languages)
}

func TestTellServiceError(t *testing.T) {
	_, out, be, root := newApp(t, "")
	be.storyErr = "Image too blurry"
	root.SetArgs([]string{"tell", writeImage(t), "--interactive=false"})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "Image too blurry")
	assert.NotContains(t, out.String(), "Your story")
}

func TestTellRejectsMissingImage(t *testing.T) {
	_, _, _, root := newApp(t, "")
	root.SetArgs([]string{"tell", filepath.Join(t.TempDir(), "missing.png"), "--interactive=false"})
	assert.Error(t, root.Execute())
}

func TestLanguagesAndCache(t *testing.T) {
	_, out, _, root := newApp(t, "")

	root.SetArgs([]string{"languages"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "English (default)")
	assert.Contains(t, out.String(), "es-ES")

	root.SetArgs([]string{"cache", "status"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Language cache exists")

	root.SetArgs([]string{"cache", "clear"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Caches cleared")
}

func TestVoicesAndSettings(t *testing.T) {
	_, out, _, root := newApp(t, "")

	root.SetArgs([]string{"voices"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Engine: mock")
	assert.Contains(t, out.String(), "ko-KR")

	root.SetArgs([]string{"settings"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Word limit: 200")
}

func TestBar(t *testing.T) {
	assert.Equal(t, "["+strings.Repeat("░", 20)+"]", bar(0))
	assert.Equal(t, "["+strings.Repeat("█", 9)+strings.Repeat("░", 11)+"]", bar(45))
	assert.Equal(t, "["+strings.Repeat("█", 20)+"]", bar(100))
}
