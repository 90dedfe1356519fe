package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	appName   = "picturebook"
	envPrefix = "PICTUREBOOK"
)

type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Story   StoryConfig   `mapstructure:"story"`
	UI      UIConfig      `mapstructure:"ui"`
	Log     LogConfig     `mapstructure:"log"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

type BackendConfig struct {
	// Type is "http" (the story service) or "gemini" (in-process).
	Type            string        `mapstructure:"type"`
	URL             string        `mapstructure:"url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type TTSConfig struct {
	Type        string  `mapstructure:"type"`
	Voice       string  `mapstructure:"voice"`
	Speed       float64 `mapstructure:"speed"`
	Volume      float64 `mapstructure:"volume"`
	OpenAIKey   string  `mapstructure:"openai_key"`
	OpenAIModel string  `mapstructure:"openai_model"`
	OpenAIVoice string  `mapstructure:"openai_voice"`
}

type SpeechConfig struct {
	DefaultLocale string            `mapstructure:"default_locale"`
	Voices        map[string]string `mapstructure:"voices"`
}

type StoryConfig struct {
	Category           string        `mapstructure:"category"`
	WordLimit          int           `mapstructure:"word_limit"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval"`
	TypewriterInterval time.Duration `mapstructure:"typewriter_interval"`
}

type UIConfig struct {
	// Theme is auto, light or dark.
	Theme string `mapstructure:"theme"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type CacheConfig struct {
	Dir         string        `mapstructure:"dir"`
	LanguageTTL time.Duration `mapstructure:"language_ttl"`
}

// SetDefaults registers every default on the global viper instance
func SetDefaults() {
	viper.SetDefault("backend.type", "http")
	viper.SetDefault("backend.url", "http://localhost:5000")
	viper.SetDefault("backend.timeout", 2*time.Minute)
	viper.SetDefault("backend.breaker_failures", 5)
	viper.SetDefault("backend.breaker_cooldown", 30*time.Second)

	viper.SetDefault("gemini.model", "gemini-1.5-pro")

	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.voice", "default")
	viper.SetDefault("tts.speed", 1.0)
	viper.SetDefault("tts.volume", 0.8)
	viper.SetDefault("tts.openai_model", "tts-1")
	viper.SetDefault("tts.openai_voice", "alloy")

	viper.SetDefault("speech.default_locale", "en-US")

	viper.SetDefault("story.category", "Adventure")
	viper.SetDefault("story.word_limit", 200)
	viper.SetDefault("story.progress_interval", 1500*time.Millisecond)
	viper.SetDefault("story.typewriter_interval", 20*time.Millisecond)

	viper.SetDefault("ui.theme", "auto")

	viper.SetDefault("log.level", "warn")
	viper.SetDefault("log.json", false)

	viper.SetDefault("cache.dir", defaultCacheDir())
	viper.SetDefault("cache.language_ttl", 24*time.Hour)
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), appName)
}

// Init points viper at the config file and environment. An explicit file must
// exist; the default locations are optional.
func Init(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(appName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/." + appName)
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	logrus.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	return nil
}

// Load decodes the effective configuration
func Load() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// ConfigureLogging applies the log settings to the standard logrus logger
func ConfigureLogging(cfg LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logrus.SetLevel(level)
	if cfg.JSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
