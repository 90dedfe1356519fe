package tts

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/googleapis/gax-go/v2"
	"github.com/sirupsen/logrus"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

const googleCacheDir = "google_classic"

// synthesizer is the part of the Cloud TTS client the engine needs.
type synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

type GoogleClassicTTSEngine struct {
	client   synthesizer
	voice    string
	speed    float64
	volume   float64
	cacheDir string
	// play is swapped in tests
	play func(p *playback, chunks [][]byte) error
}

func newGoogleClassicTTSEngine(ctx context.Context, config Config) (*GoogleClassicTTSEngine, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}
	return newGoogleEngine(client, config), nil
}

func newGoogleEngine(client synthesizer, config Config) *GoogleClassicTTSEngine {
	cacheDir := ""
	if config.CachePath != "" {
		cacheDir = filepath.Join(config.CachePath, googleCacheDir)
	}
	return &GoogleClassicTTSEngine{
		client:   client,
		voice:    config.Voice,
		speed:    config.Speed,
		volume:   config.Volume,
		cacheDir: cacheDir,
		play:     playMP3,
	}
}

func (g *GoogleClassicTTSEngine) Name() string {
	return EngineTypeGoogleClassic.String()
}

func (g *GoogleClassicTTSEngine) Available() error {
	if g.client == nil {
		return fmt.Errorf("google text-to-speech client not configured")
	}
	return nil
}

// Start synthesises in the background; synthesis failures surface on Done.
func (g *GoogleClassicTTSEngine) Start(ctx context.Context, text, locale string) (Playback, error) {
	if err := g.Available(); err != nil {
		return nil, err
	}

	p := newPlayback(ctx, nil)
	go func() {
		chunks, err := g.synthesize(p.ctx, text, locale)
		if err != nil {
			p.finish(err)
			return
		}
		if p.ctx.Err() != nil {
			return
		}
		if err := g.play(p, chunks); err != nil {
			p.finish(err)
		}
	}()
	return p, nil
}

func (g *GoogleClassicTTSEngine) synthesize(ctx context.Context, text, locale string) ([][]byte, error) {
	voice := g.voiceFor(locale)
	contentHash := md5Sum(text + "|" + locale + "|" + voice)[:16]
	parts := splitIntoChunks(text, 4800) // a little under 5000 to be safe

	chunks := make([][]byte, 0, len(parts))
	for i, part := range parts {
		cachePath := ""
		if g.cacheDir != "" {
			cachePath = filepath.Join(g.cacheDir, fmt.Sprintf("%s_%d.mp3", contentHash, i))
			if data, err := os.ReadFile(cachePath); err == nil {
				chunks = append(chunks, data)
				continue
			}
		}

		resp, err := g.client.SynthesizeSpeech(ctx, g.request(part, locale, voice))
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}
		chunks = append(chunks, resp.AudioContent)

		if cachePath != "" {
			if err := writeCacheFile(cachePath, resp.AudioContent); err != nil {
				logrus.WithError(err).WithField("path", cachePath).Warn("could not cache synthesized audio")
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"locale": locale,
		"chunks": len(chunks),
	}).Debug("synthesized speech")
	return chunks, nil
}

func (g *GoogleClassicTTSEngine) request(text, locale, voice string) *texttospeechpb.SynthesizeSpeechRequest {
	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}

	// Chirp voices often don't support speakingRate
	if !strings.Contains(strings.ToLower(voice), "chirp") {
		audioCfg.SpeakingRate = orOne(g.speed)
		audioCfg.VolumeGainDb = volumeGainDb(g.volume)
	}

	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: locale,
			Name:         voice,
		},
		AudioConfig: audioCfg,
	}
}

// voiceFor keeps the configured voice only when it belongs to locale, so a
// translation is never read with a voice for another language.
func (g *GoogleClassicTTSEngine) voiceFor(locale string) string {
	if g.voice == "" || g.voice == "default" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(g.voice), strings.ToLower(locale)) {
		return g.voice
	}
	return ""
}

// volumeGainDb maps a linear volume onto the +/-16dB range Cloud TTS accepts.
func volumeGainDb(volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	return max(-16, min(16, (volume-1)*16))
}

func writeCacheFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// CacheStats describes synthesized audio kept under root.
type CacheStats struct {
	Directory string
	Files     int64
	SizeMB    float64
}

// GetCacheStats walks root and totals the cached MP3 files
func GetCacheStats(root string) (CacheStats, error) {
	stats := CacheStats{Directory: root}
	var totalSize int64

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipDir
			}
			return nil // Continue walking despite errors
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".mp3") {
			stats.Files++
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	stats.SizeMB = float64(totalSize) / (1024 * 1024)
	return stats, nil
}

// ClearCache removes all cached audio under root
func ClearCache(root string) error {
	return os.RemoveAll(filepath.Join(root, googleCacheDir))
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text) // safe for UTF-8
	for i := 0; i < len(runes); i += limit {
		end := min(i+limit, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
