package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PULSE_SOURCE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.STTProvider != "openai" || cfg.TTSProvider != "openai" || cfg.LogFormat != "json" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected top-level defaults: %+v", cfg)
	}
	if cfg.OpenAI.TranscriptionModel != "whisper-1" || cfg.OpenAI.ChatModel != "gpt-4o-mini" || cfg.OpenAI.Voice != "alloy" {
		t.Fatalf("unexpected openai defaults: %+v", cfg.OpenAI)
	}
	if cfg.OpenAI.Timeout != time.Minute {
		t.Fatalf("unexpected openai timeout: %s", cfg.OpenAI.Timeout)
	}
	if cfg.Deepgram.BaseURL != "https://api.deepgram.com/v1" || cfg.Deepgram.Model != "nova-2" || !cfg.Deepgram.SmartFormat {
		t.Fatalf("unexpected deepgram defaults: %+v", cfg.Deepgram)
	}
	if cfg.Audio.RecorderCommand != "ffmpeg" || cfg.Audio.PlayerCommand != "ffplay" || cfg.Audio.InputDevice != "default" {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if cfg.Session.HistoryDepth != 6 || cfg.Session.HistoryTimeout != 2*time.Second || cfg.Session.MaxSentences != 4 {
		t.Fatalf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.History.RedisAddr != "" || cfg.History.MaxLen != 50 || cfg.History.TTL != 24*time.Hour {
		t.Fatalf("unexpected history defaults: %+v", cfg.History)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Dir != filepath.Join(home, ".cache", "tourguide", "speech") {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Rules.File != filepath.Join(home, ".config", "tourguide", "corrections.rules") || cfg.Rules.PassLimit != 30 {
		t.Fatalf("unexpected rules defaults: %+v", cfg.Rules)
	}
	if cfg.HTTP.Addr != "127.0.0.1:8080" {
		t.Fatalf("unexpected http addr: %q", cfg.HTTP.Addr)
	}
}

func TestLoadUsesRulesFallbackOrder(t *testing.T) {
	home := t.TempDir()
	primary := filepath.Join(home, ".config", "tourguide", "corrections.rules")
	secondary := filepath.Join(home, ".config", "tourguide", "substitutions.rules")

	if err := os.MkdirAll(filepath.Dir(secondary), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(secondary, []byte("a => b\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("TOURGUIDE_RULES_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Rules.File != secondary {
		t.Fatalf("expected secondary fallback, got %q", cfg.Rules.File)
	}

	if err := os.WriteFile(primary, []byte("a => c\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg2, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg2.Rules.File != primary {
		t.Fatalf("expected corrections.rules priority, got %q", cfg2.Rules.File)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "my.rules")

	t.Setenv("HOME", home)
	t.Setenv("TOURGUIDE_STT_PROVIDER", "deepgram")
	t.Setenv("TOURGUIDE_TTS_PROVIDER", "elevenlabs")
	t.Setenv("TOURGUIDE_LOG_FORMAT", "console")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_CHAT_MODEL", "gpt-4o")
	t.Setenv("OPENAI_TEMPERATURE", "0.2")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("DEEPGRAM_BASE_URL", "https://example.com/v1")
	t.Setenv("DEEPGRAM_MODEL", "nova-3")
	t.Setenv("DEEPGRAM_LANGUAGE", "fr")
	t.Setenv("DEEPGRAM_SMART_FORMAT", "false")
	t.Setenv("DEEPGRAM_KEYWORDS", "Trocadéro, Montmartre ,")
	t.Setenv("DEEPGRAM_FINALIZE_TIMEOUT", "1500ms")
	t.Setenv("ELEVENLABS_API_KEY", "el-key")
	t.Setenv("ELEVENLABS_VOICE_ID", "rachel")
	t.Setenv("TOURGUIDE_AUDIO_RECORDER_COMMAND", "my-ffmpeg")
	t.Setenv("TOURGUIDE_AUDIO_INPUT_FORMAT", "alsa")
	t.Setenv("TOURGUIDE_AUDIO_INPUT_DEVICE", "mic0")
	t.Setenv("TOURGUIDE_AUDIO_SAMPLE_RATE", "22050")
	t.Setenv("TOURGUIDE_AUDIO_CHANNELS", "2")
	t.Setenv("TOURGUIDE_RULES_FILE", rules)
	t.Setenv("TOURGUIDE_RULES_PASS_LIMIT", "42")
	t.Setenv("TOURGUIDE_SESSION_HISTORY_DEPTH", "3")
	t.Setenv("TOURGUIDE_TOUR_DESTINATION", "Paris")
	t.Setenv("TOURGUIDE_TOUR_LANDMARKS", "Eiffel Tower,Louvre")
	t.Setenv("TOURGUIDE_HISTORY_REDIS_ADDR", "localhost:6380")
	t.Setenv("TOURGUIDE_SPEECH_CACHE_ENABLED", "false")
	t.Setenv("TOURGUIDE_HTTP_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.STTProvider != "deepgram" || cfg.TTSProvider != "elevenlabs" || cfg.LogFormat != "console" {
		t.Fatalf("unexpected providers: %+v", cfg)
	}
	if cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.ChatModel != "gpt-4o" || cfg.OpenAI.Temperature != 0.2 {
		t.Fatalf("unexpected openai config: %+v", cfg.OpenAI)
	}
	if cfg.Deepgram.APIKey != "dg-key" || cfg.Deepgram.BaseURL != "https://example.com/v1" || cfg.Deepgram.Model != "nova-3" {
		t.Fatalf("unexpected deepgram config: %+v", cfg.Deepgram)
	}
	if cfg.Deepgram.Language != "fr" || cfg.Deepgram.SmartFormat || cfg.Deepgram.FinalizeTimeout != 1500*time.Millisecond {
		t.Fatalf("unexpected deepgram language/format/timeout: %+v", cfg.Deepgram)
	}
	if strings.Join(cfg.Deepgram.Keywords, "|") != "Trocadéro|Montmartre" {
		t.Fatalf("unexpected keywords: %q", cfg.Deepgram.Keywords)
	}
	if cfg.ElevenLabs.APIKey != "el-key" || cfg.ElevenLabs.VoiceID != "rachel" || cfg.ElevenLabs.ModelID != "eleven_flash_v2_5" {
		t.Fatalf("unexpected elevenlabs config: %+v", cfg.ElevenLabs)
	}
	if cfg.Audio.RecorderCommand != "my-ffmpeg" || cfg.Audio.InputFormat != "alsa" || cfg.Audio.InputDevice != "mic0" {
		t.Fatalf("unexpected audio config: %+v", cfg.Audio)
	}
	if cfg.Audio.SampleRate != 22050 || cfg.Audio.Channels != 2 {
		t.Fatalf("unexpected sample/channels: %+v", cfg.Audio)
	}
	if cfg.Rules.File != rules || cfg.Rules.PassLimit != 42 {
		t.Fatalf("unexpected rules config: %+v", cfg.Rules)
	}
	if cfg.Session.HistoryDepth != 3 {
		t.Fatalf("unexpected history depth: %d", cfg.Session.HistoryDepth)
	}
	if cfg.Tour.Destination != "Paris" || strings.Join(cfg.Tour.Landmarks, "|") != "Eiffel Tower|Louvre" {
		t.Fatalf("unexpected tour: %+v", cfg.Tour)
	}
	if cfg.History.RedisAddr != "localhost:6380" {
		t.Fatalf("unexpected redis addr: %q", cfg.History.RedisAddr)
	}
	if cfg.Cache.Enabled || cfg.Cache.Dir != "" {
		t.Fatalf("disabled cache must not resolve a directory: %+v", cfg.Cache)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected http addr: %q", cfg.HTTP.Addr)
	}
}

func TestLoadInputDeviceFallsBackToPulseSource(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOURGUIDE_AUDIO_INPUT_DEVICE", "")
	t.Setenv("PULSE_SOURCE", "alsa_input.usb")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Audio.InputDevice != "alsa_input.usb" {
		t.Fatalf("expected PULSE_SOURCE fallback, got %q", cfg.Audio.InputDevice)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{name: "unknown stt provider", key: "TOURGUIDE_STT_PROVIDER", value: "whisper-cpp", want: "invalid configuration"},
		{name: "unknown tts provider", key: "TOURGUIDE_TTS_PROVIDER", value: "espeak", want: "invalid configuration"},
		{name: "log format", key: "TOURGUIDE_LOG_FORMAT", value: "xml", want: "invalid configuration"},
		{name: "sample rate range", key: "TOURGUIDE_AUDIO_SAMPLE_RATE", value: "4000", want: "invalid configuration"},
		{name: "channels", key: "TOURGUIDE_AUDIO_CHANNELS", value: "6", want: "invalid configuration"},
		{name: "chunk size", key: "DEEPGRAM_CHUNK_SIZE", value: "5", want: "invalid configuration"},
		{name: "not a number", key: "TOURGUIDE_AUDIO_SAMPLE_RATE", value: "bad", want: "read environment"},
		{name: "not a bool", key: "DEEPGRAM_SMART_FORMAT", value: "not-bool", want: "read environment"},
		{name: "not a duration", key: "TOURGUIDE_SESSION_HISTORY_TIMEOUT", value: "soon", want: "read environment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	if got := firstNonEmpty("", "  ", " b ", "c"); got != "b" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
