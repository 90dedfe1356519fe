package nest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"picturebook/internal/cli/scheme/colours"
	"picturebook/internal/config"
	"picturebook/internal/domain/generator"
	"picturebook/internal/domain/story"
	"picturebook/internal/story/speech"
	"picturebook/internal/story/tts"
)

// PictureBook main application structure
type PictureBook struct {
	cfg       config.Config
	service   generator.Service
	languages *generator.LanguageCache
	engine    tts.Engine
	voices    speech.VoiceTable

	in  io.Reader
	out io.Writer

	ctx    context.Context
	Cancel context.CancelFunc

	linesOnce sync.Once
	lines     chan string

	mu      sync.Mutex
	current *reading
}

// NewPictureBook creates an unconfigured application reading commands from in
// and writing to out.
func NewPictureBook(in io.Reader, out io.Writer) *PictureBook {
	ctx, cancel := context.WithCancel(context.Background())
	return &PictureBook{
		in:     in,
		out:    &lockedWriter{w: out},
		ctx:    ctx,
		Cancel: cancel,
	}
}

// Configure builds the backend, language cache and speech engine from cfg.
func (pb *PictureBook) Configure(cfg config.Config) error {
	service, err := newService(pb.ctx, cfg)
	if err != nil {
		return err
	}

	engine, err := tts.NewEngine(tts.Config{
		Type:        cfg.TTS.Type,
		Voice:       cfg.TTS.Voice,
		Speed:       cfg.TTS.Speed,
		Volume:      cfg.TTS.Volume,
		CachePath:   pb.audioCacheDir(cfg),
		OpenAIKey:   cfg.TTS.OpenAIKey,
		OpenAIModel: cfg.TTS.OpenAIModel,
		OpenAIVoice: cfg.TTS.OpenAIVoice,
	})
	if err != nil {
		logrus.WithError(err).Warn("failed to create tts engine")
		engine = tts.Unavailable(err.Error())
	}

	pb.cfg = cfg
	pb.service = service
	pb.languages = generator.NewLanguageCache(service, cfg.Cache.Dir, cfg.Cache.LanguageTTL)
	pb.engine = engine
	pb.voices = speech.NewVoiceTable(cfg.Speech.Voices, cfg.Speech.DefaultLocale)
	return nil
}

func newService(ctx context.Context, cfg config.Config) (generator.Service, error) {
	switch cfg.Backend.Type {
	case "", "http":
		return generator.NewHTTPClient(generator.HTTPOptions{
			BaseURL:         cfg.Backend.URL,
			Timeout:         cfg.Backend.Timeout,
			BreakerFailures: cfg.Backend.BreakerFailures,
			BreakerCooldown: cfg.Backend.BreakerCooldown,
		}), nil
	case "gemini":
		return generator.NewGeminiService(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend.Type)
	}
}

func (pb *PictureBook) audioCacheDir(cfg config.Config) string {
	return filepath.Join(cfg.Cache.Dir, "audio")
}

// Shutdown tears down the active reading session: timers, requests and speech.
func (pb *PictureBook) Shutdown() {
	pb.Cancel()
	pb.mu.Lock()
	r := pb.current
	pb.current = nil
	pb.mu.Unlock()
	if r != nil {
		r.close()
	}
}

func (pb *PictureBook) ShowWelcome() {
	fmt.Fprintln(pb.out)
	colours.Title.Fprintln(pb.out, "🌟 Welcome to PictureBook! 🌟")
	fmt.Fprintln(pb.out)
	colours.Info.Fprintln(pb.out, "📚 Available commands:")
	fmt.Fprintln(pb.out, "  • picturebook tell <image> - Turn a picture into a story")
	fmt.Fprintln(pb.out, "  • picturebook languages    - List translation languages")
	fmt.Fprintln(pb.out, "  • picturebook voices       - Show speech engines and voices")
	fmt.Fprintln(pb.out, "  • picturebook settings     - Show the effective settings")
	fmt.Fprintln(pb.out, "  • picturebook cache        - Inspect or clear local caches")
	fmt.Fprintln(pb.out)
	colours.Prompt.Fprintln(pb.out, "✨ Ready for a magical story adventure? ✨")
}

func (pb *PictureBook) ListLanguages(cmd *cobra.Command, args []string) error {
	langs, err := pb.languages.Languages(pb.ctx)
	if err != nil {
		return fmt.Errorf("failed to load languages: %w", err)
	}

	fmt.Fprintln(pb.out)
	colours.Title.Fprintln(pb.out, "🌍 Translation Languages 🌍")
	fmt.Fprintln(pb.out)
	for i, lang := range langs {
		fmt.Fprintf(pb.out, "  %d. %s", i+1, lang)
		if i == 0 {
			colours.Info.Fprint(pb.out, " (default)")
		}
		fmt.Fprintf(pb.out, "  🔊 %s\n", pb.voices.Locale(lang))
	}
	colours.Success.Fprintf(pb.out, "✨ %d languages available\n", len(langs))
	return nil
}

func (pb *PictureBook) ListVoices(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(pb.out)
	colours.Title.Fprintln(pb.out, "🎤 Voices 🎤")
	fmt.Fprintln(pb.out)

	colours.Prompt.Fprintf(pb.out, "Engine: %s", pb.engine.Name())
	if err := pb.engine.Available(); err != nil {
		colours.Warning.Fprintf(pb.out, " (unavailable: %v)\n", err)
	} else {
		colours.Success.Fprintln(pb.out, " (ready)")
	}

	fmt.Fprint(pb.out, "Engines on this platform:")
	for _, e := range tts.GetAvailableEngines() {
		fmt.Fprintf(pb.out, " %s", e)
	}
	fmt.Fprintln(pb.out)
	fmt.Fprintln(pb.out)

	for _, lang := range pb.voices.Languages() {
		fmt.Fprintf(pb.out, "  • %-10s %s\n", lang, pb.voices.Voices[lang])
	}
	fmt.Fprintf(pb.out, "  • %-10s %s\n", "(other)", pb.voices.Locale(""))
	return nil
}

func (pb *PictureBook) ConfigureSettings(cmd *cobra.Command, args []string) error {
	cfg := pb.cfg

	fmt.Fprintln(pb.out)
	colours.Title.Fprintln(pb.out, "⚙️ Settings ⚙️")
	fmt.Fprintln(pb.out)

	colours.Prompt.Fprintln(pb.out, "🌐 Backend:")
	fmt.Fprintf(pb.out, "  • Type: %s\n", cfg.Backend.Type)
	fmt.Fprintf(pb.out, "  • URL: %s\n", cfg.Backend.URL)
	fmt.Fprintf(pb.out, "  • Timeout: %s\n", cfg.Backend.Timeout)
	if cfg.Backend.Type == "gemini" {
		fmt.Fprintf(pb.out, "  • Gemini model: %s (key %s)\n", cfg.Gemini.Model, masked(cfg.Gemini.APIKey))
	}
	fmt.Fprintln(pb.out)

	colours.Prompt.Fprintln(pb.out, "📖 Story:")
	fmt.Fprintf(pb.out, "  • Category: %s\n", cfg.Story.Category)
	fmt.Fprintf(pb.out, "  • Word limit: %d\n", cfg.Story.WordLimit)
	fmt.Fprintf(pb.out, "  • Theme: %s\n", cfg.UI.Theme)
	fmt.Fprintln(pb.out)

	colours.Prompt.Fprintln(pb.out, "🎤 Voice Settings:")
	fmt.Fprintf(pb.out, "  • Engine: %s\n", cfg.TTS.Type)
	fmt.Fprintf(pb.out, "  • Current voice: %s\n", cfg.TTS.Voice)
	fmt.Fprintf(pb.out, "  • Speed: %.1fx\n", cfg.TTS.Speed)
	fmt.Fprintf(pb.out, "  • Volume: %.0f%%\n", cfg.TTS.Volume*100)
	fmt.Fprintf(pb.out, "  • Default locale: %s\n", pb.voices.Locale(""))
	if cfg.TTS.Type == tts.EngineTypeOpenAI.String() {
		fmt.Fprintf(pb.out, "  • OpenAI: %s/%s (key %s)\n", cfg.TTS.OpenAIModel, cfg.TTS.OpenAIVoice, masked(cfg.TTS.OpenAIKey))
	}
	fmt.Fprintln(pb.out)

	colours.Info.Fprintln(pb.out, "💡 Change these in picturebook.yaml or with PICTUREBOOK_* environment variables")
	return nil
}

func masked(secret string) string {
	if secret == "" {
		return "not set"
	}
	return "set"
}

// ShowCacheStatus displays information about the local caches
func (pb *PictureBook) ShowCacheStatus(cmd *cobra.Command, args []string) error {
	colours.Title.Fprintln(pb.out, "📊 Cache Status")

	info := pb.languages.Info()
	if info.Exists {
		colours.Success.Fprintln(pb.out, "✅ Language cache exists")
		colours.Info.Fprintf(pb.out, "📁 Location: %s\n", info.Path)
		colours.Info.Fprintf(pb.out, "📏 Size: %d bytes\n", info.Size)
		colours.Info.Fprintf(pb.out, "🕐 Last modified: %s\n", info.LastModified.Format("2006-01-02 15:04:05"))
		if info.Fresh {
			colours.Success.Fprintln(pb.out, "🔄 Cache is fresh")
		} else {
			colours.Warning.Fprintln(pb.out, "⏰ Cache is stale")
		}
		colours.Info.Fprintf(pb.out, "⏳ Max age: %.1f hours\n", info.MaxAge.Hours())
	} else {
		colours.Warning.Fprintln(pb.out, "❌ Language cache does not exist")
		colours.Info.Fprintln(pb.out, "💡 Run 'picturebook languages' to create it")
	}

	stats, err := tts.GetCacheStats(pb.audioCacheDir(pb.cfg))
	if err != nil {
		return fmt.Errorf("failed to read audio cache: %w", err)
	}
	colours.Info.Fprintf(pb.out, "🔊 Audio cache: %d files, %.2f MB in %s\n", stats.Files, stats.SizeMB, stats.Directory)
	return nil
}

// ClearCache removes the cached language list and synthesized audio
func (pb *PictureBook) ClearCache(cmd *cobra.Command, args []string) error {
	err := errors.Join(pb.languages.Clear(), tts.ClearCache(pb.audioCacheDir(pb.cfg)))
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	colours.Success.Fprintln(pb.out, "✅ Caches cleared")
	return nil
}

// AddCommands registers the application's commands on rootCmd
func (pb *PictureBook) AddCommands(rootCmd *cobra.Command) {
	tellCmd := &cobra.Command{
		Use:   "tell <image>",
		Short: "📖 Turn a picture into a story",
		Long:  "Upload an image, watch the story being written, then translate it or have it read aloud",
		Args:  cobra.ExactArgs(1),
		RunE:  pb.Tell,
	}
	tellCmd.Flags().StringP("category", "c", story.DefaultCategory, "Story category")
	tellCmd.Flags().IntP("words", "w", story.DefaultWordLimit, fmt.Sprintf("Word limit (%d-%d, steps of %d)", story.MinWordLimit, story.MaxWordLimit, story.WordLimitStep))
	tellCmd.Flags().StringP("language", "l", "", "Translation language (default: the service's first language)")
	tellCmd.Flags().Bool("caption", false, "Also caption the image")
	tellCmd.Flags().BoolP("translate", "t", false, "Translate the story once it is revealed")
	tellCmd.Flags().BoolP("speak", "s", false, "Read the story aloud once it is revealed")
	tellCmd.Flags().Bool("instant", false, "Show the story at once instead of typing it out")
	tellCmd.Flags().BoolP("interactive", "i", true, "Stay in the reader after the story is shown")

	languagesCmd := &cobra.Command{
		Use:   "languages",
		Short: "🌍 List translation languages",
		RunE:  pb.ListLanguages,
	}

	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 Show speech engines and the language voice table",
		RunE:  pb.ListVoices,
	}

	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show the effective settings",
		RunE:  pb.ConfigureSettings,
	}

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "🗄️ Manage local caches",
	}
	cacheCmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "📊 Show cache status",
			RunE:  pb.ShowCacheStatus,
		},
		&cobra.Command{
			Use:   "clear",
			Short: "🧹 Remove cached languages and audio",
			RunE:  pb.ClearCache,
		},
	)

	rootCmd.AddCommand(tellCmd, languagesCmd, voicesCmd, settingsCmd, cacheCmd)
}

// lockedWriter serialises writes from the animation goroutines and the prompt.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// pause is how often waitForSpeech polls the speech state.
const pause = 20 * time.Millisecond
