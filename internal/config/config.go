package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tourguide/internal/validation"
)

// Config stores runtime configuration for both hosts.
type Config struct {
	LogLevel    string `envconfig:"TOURGUIDE_LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"TOURGUIDE_LOG_FORMAT" default:"json" validate:"oneof=json console"`
	STTProvider string `envconfig:"TOURGUIDE_STT_PROVIDER" default:"openai" validate:"oneof=openai deepgram assemblyai"`
	TTSProvider string `envconfig:"TOURGUIDE_TTS_PROVIDER" default:"openai" validate:"oneof=openai elevenlabs"`

	OpenAI     OpenAIConfig     `envconfig:"OPENAI"`
	Deepgram   DeepgramConfig   `envconfig:"DEEPGRAM"`
	AssemblyAI AssemblyAIConfig `envconfig:"ASSEMBLYAI"`
	ElevenLabs ElevenLabsConfig `envconfig:"ELEVENLABS"`

	Audio   AudioConfig   `envconfig:"TOURGUIDE_AUDIO"`
	Rules   RulesConfig   `envconfig:"TOURGUIDE_RULES"`
	Session SessionConfig `envconfig:"TOURGUIDE_SESSION"`
	Tour    TourConfig    `envconfig:"TOURGUIDE_TOUR"`
	History HistoryConfig `envconfig:"TOURGUIDE_HISTORY"`
	Cache   CacheConfig   `envconfig:"TOURGUIDE_SPEECH_CACHE"`
	HTTP    HTTPConfig    `envconfig:"TOURGUIDE_HTTP"`
}

type OpenAIConfig struct {
	APIKey             string        `split_words:"true"`
	BaseURL            string        `split_words:"true"`
	TranscriptionModel string        `split_words:"true" default:"whisper-1"`
	ChatModel          string        `split_words:"true" default:"gpt-4o-mini"`
	SpeechModel        string        `split_words:"true" default:"tts-1"`
	Voice              string        `default:"alloy"`
	Temperature        float64       `default:"0.6" validate:"gte=0,lte=2"`
	Timeout            time.Duration `default:"60s" validate:"gt=0"`
}

type DeepgramConfig struct {
	APIKey          string        `split_words:"true"`
	BaseURL         string        `split_words:"true" default:"https://api.deepgram.com/v1" validate:"url"`
	Model           string        `default:"nova-2"`
	Language        string        `validate:"omitempty,max=16"`
	SmartFormat     bool          `split_words:"true" default:"true"`
	Keywords        []string
	ChunkSize       int           `split_words:"true" default:"4096" validate:"gte=256"`
	FinalizeTimeout time.Duration `split_words:"true" default:"4s" validate:"gt=0"`
}

type AssemblyAIConfig struct {
	APIKey       string `split_words:"true"`
	LanguageCode string `split_words:"true"`
}

type ElevenLabsConfig struct {
	APIKey  string `split_words:"true"`
	VoiceID string `split_words:"true"`
	ModelID string `split_words:"true" default:"eleven_flash_v2_5"`
	BaseURL string `split_words:"true"`
}

type AudioConfig struct {
	RecorderCommand string `split_words:"true" default:"ffmpeg"`
	PlayerCommand   string `split_words:"true" default:"ffplay"`
	InputFormat     string `split_words:"true" default:"pulse"`
	InputDevice     string `split_words:"true"`
	SampleRate      int    `split_words:"true" default:"16000" validate:"gte=8000,lte=48000"`
	Channels        int    `default:"1" validate:"oneof=1 2"`
}

type RulesConfig struct {
	File      string
	PassLimit int `split_words:"true" default:"30" validate:"gte=1"`
}

type SessionConfig struct {
	HistoryDepth   int           `split_words:"true" default:"6" validate:"gte=0,lte=50"`
	HistoryTimeout time.Duration `split_words:"true" default:"2s" validate:"gt=0"`
	MaxSentences   int           `split_words:"true" default:"4" validate:"gte=1,lte=20"`
}

// TourConfig is the tour context installed at startup.
type TourConfig struct {
	Destination string
	Landmarks   []string
	Language    string
}

type HistoryConfig struct {
	// RedisAddr selects the Redis store. Empty keeps history in memory.
	RedisAddr     string        `split_words:"true"`
	RedisPassword string        `split_words:"true"`
	RedisDB       int           `split_words:"true" default:"0" validate:"gte=0"`
	MaxLen        int           `split_words:"true" default:"50" validate:"gte=1"`
	TTL           time.Duration `default:"24h" validate:"gt=0"`
	RetryFor      time.Duration `split_words:"true" default:"3s"`
}

type CacheConfig struct {
	Enabled bool          `default:"true"`
	Dir     string
	TTL     time.Duration `default:"168h" validate:"gt=0"`
}

type HTTPConfig struct {
	Addr string `default:"127.0.0.1:8080"`
}

// Load reads an optional .env file, then resolves configuration from
// environment variables and defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	configDir := filepath.Join(home, ".config", "tourguide")
	if strings.TrimSpace(cfg.Rules.File) == "" {
		cfg.Rules.File = firstExisting(
			filepath.Join(configDir, "corrections.rules"),
			filepath.Join(configDir, "substitutions.rules"),
		)
	}
	cfg.Audio.InputDevice = firstNonEmpty(cfg.Audio.InputDevice, os.Getenv("PULSE_SOURCE"), "default")
	if cfg.Cache.Enabled && strings.TrimSpace(cfg.Cache.Dir) == "" {
		cfg.Cache.Dir = filepath.Join(home, ".cache", "tourguide", "speech")
	}
	cfg.Tour.Landmarks = compact(cfg.Tour.Landmarks)
	cfg.Deepgram.Keywords = compact(cfg.Deepgram.Keywords)

	if err := validation.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func compact(values []string) []string {
	out := values[:0]
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
