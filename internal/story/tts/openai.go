package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel = "tts-1"
	defaultOpenAIVoice = "alloy"
	// OpenAI rejects speech input above 4096 characters
	openAIChunkLimit = 4000
)

// speechCreator is the part of the OpenAI client the engine needs.
type speechCreator interface {
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAIEngine speaks through the OpenAI speech endpoint. The model detects
// the language from the text, so the locale is not sent.
type OpenAIEngine struct {
	client speechCreator
	model  string
	voice  string
	speed  float64
	play   func(p *playback, chunks [][]byte) error
}

func newOpenAIEngine(config Config) (*OpenAIEngine, error) {
	if config.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return newOpenAIEngineWithClient(openai.NewClient(config.OpenAIKey), config), nil
}

func newOpenAIEngineWithClient(client speechCreator, config Config) *OpenAIEngine {
	model := config.OpenAIModel
	if model == "" {
		model = defaultOpenAIModel
	}
	voice := config.OpenAIVoice
	if voice == "" {
		voice = defaultOpenAIVoice
	}
	return &OpenAIEngine{
		client: client,
		model:  model,
		voice:  voice,
		speed:  orOne(config.Speed),
		play:   playMP3,
	}
}

func (o *OpenAIEngine) Name() string {
	return EngineTypeOpenAI.String()
}

func (o *OpenAIEngine) Available() error {
	if o.client == nil {
		return fmt.Errorf("OpenAI client not configured")
	}
	return nil
}

func (o *OpenAIEngine) Start(ctx context.Context, text, locale string) (Playback, error) {
	if err := o.Available(); err != nil {
		return nil, err
	}

	p := newPlayback(ctx, nil)
	go func() {
		var chunks [][]byte
		for i, part := range splitIntoChunks(text, openAIChunkLimit) {
			data, err := o.create(p.ctx, part)
			if err != nil {
				p.finish(fmt.Errorf("OpenAI TTS chunk %d: %w", i, err))
				return
			}
			chunks = append(chunks, data)
		}
		if p.ctx.Err() != nil {
			return
		}
		if err := o.play(p, chunks); err != nil {
			p.finish(err)
		}
	}()
	return p, nil
}

func (o *OpenAIEngine) create(ctx context.Context, text string) ([]byte, error) {
	response, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          o.speed,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI TTS API error: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return data, nil
}
