package tts

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeNone          EngineType = "none"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeSay           EngineType = "say"  // macOS
	EngineTypeSAPI          EngineType = "sapi" // Windows
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeOpenAI        EngineType = "openai"
	EngineTypeAuto          EngineType = "auto" // Automatically choose best for platform
)

func (e EngineType) String() string {
	return string(e)
}

// NewEngine creates a new TTS engine based on the provided config
func NewEngine(config Config) (Engine, error) {
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = getBestEngineForPlatform().String()
	}

	switch config.Type {
	case EngineTypeMock.String():
		m := NewMockEngine()
		m.AutoFinish = 2 * time.Second // Simulate some reading time
		return m, nil

	case EngineTypeNone.String():
		return Unavailable("spoken playback disabled by configuration"), nil

	case EngineTypeGoogleClassic.String():
		return newGoogleClassicTTSEngine(context.Background(), config)

	case EngineTypeOpenAI.String():
		return newOpenAIEngine(config)

	case EngineTypeESpeak.String():
		return newESpeakEngine(config), nil

	case EngineTypeSay.String():
		return newSayEngine(config), nil

	case EngineTypeSAPI.String():
		return newSAPIEngine(config), nil

	default:
		return nil, fmt.Errorf("unsupported TTS engine type: %s", config.Type)
	}
}

// getBestEngineForPlatform returns the recommended engine for the current platform
func getBestEngineForPlatform() EngineType {
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}

	switch runtime.GOOS {
	case "windows":
		return EngineTypeSAPI
	case "darwin":
		return EngineTypeSay
	default:
		return EngineTypeESpeak
	}
}

// GetAvailableEngines returns engines usable on the current platform
func GetAvailableEngines() []EngineType {
	engines := []EngineType{EngineTypeMock, EngineTypeNone, EngineTypeESpeak, EngineTypeOpenAI}

	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}

	switch runtime.GOOS {
	case "windows":
		engines = append(engines, EngineTypeSAPI)
	case "darwin":
		engines = append(engines, EngineTypeSay)
	}

	return engines
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

// unavailableEngine never speaks.
type unavailableEngine struct {
	reason string
}

// Unavailable returns an engine whose Available always fails with reason.
func Unavailable(reason string) Engine {
	return unavailableEngine{reason: reason}
}

func (u unavailableEngine) Name() string {
	return EngineTypeNone.String()
}

func (u unavailableEngine) Available() error {
	return fmt.Errorf("%s", u.reason)
}

func (u unavailableEngine) Start(ctx context.Context, text, locale string) (Playback, error) {
	return nil, u.Available()
}
