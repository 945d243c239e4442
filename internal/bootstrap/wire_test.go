package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"tourguide/internal/domain"
	"tourguide/internal/history"
	"tourguide/internal/providers/assemblyai"
	"tourguide/internal/providers/deepgram"
	"tourguide/internal/providers/openai"
)

func TestBuildSuccess(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("TOURGUIDE_TOUR_DESTINATION", "Paris")
	t.Setenv("TOURGUIDE_TOUR_LANDMARKS", "Eiffel Tower,Louvre")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })

	if services.Coordinator == nil || services.Logger == nil {
		t.Fatalf("expected coordinator and logger")
	}
	if _, ok := services.Transcriber.(*openai.Client); !ok {
		t.Fatalf("expected openai transcriber by default, got %T", services.Transcriber)
	}
	if _, ok := services.History.(*history.Memory); !ok {
		t.Fatalf("expected memory history without redis, got %T", services.History)
	}
	if _, ok := services.Synthesizer.(*openai.Client); ok {
		t.Fatalf("expected synthesizer to be wrapped by the speech cache")
	}
	tour := services.Coordinator.TourContext()
	if tour.Destination != "Paris" || len(tour.Landmarks) != 2 {
		t.Fatalf("unexpected startup tour: %+v", tour)
	}
	if status := services.Coordinator.Status(); status.State != domain.SessionStateIdle || !status.CaptureEnabled {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestBuildSelectsProviders(t *testing.T) {
	tests := []struct {
		provider string
		check    func(t *testing.T, s Services)
	}{
		{provider: "deepgram", check: func(t *testing.T, s Services) {
			if _, ok := s.Transcriber.(*deepgram.Transcriber); !ok {
				t.Fatalf("expected deepgram, got %T", s.Transcriber)
			}
		}},
		{provider: "assemblyai", check: func(t *testing.T, s Services) {
			if _, ok := s.Transcriber.(*assemblyai.Transcriber); !ok {
				t.Fatalf("expected assemblyai, got %T", s.Transcriber)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv("TOURGUIDE_STT_PROVIDER", tt.provider)
			t.Setenv("TOURGUIDE_TTS_PROVIDER", "elevenlabs")
			t.Setenv("TOURGUIDE_SPEECH_CACHE_ENABLED", "false")

			services, err := Build(noopEventSink{})
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			t.Cleanup(func() { _ = services.Close() })
			tt.check(t, services)
		})
	}
}

func TestBuildUsesRedisHistory(t *testing.T) {
	server := miniredis.RunT(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOURGUIDE_HISTORY_REDIS_ADDR", server.Addr())
	t.Setenv("TOURGUIDE_SPEECH_CACHE_ENABLED", "false")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })

	if _, ok := services.History.(*history.RedisLog); !ok {
		t.Fatalf("expected redis history, got %T", services.History)
	}
}

func TestBuildFallsBackToMemoryHistory(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOURGUIDE_HISTORY_REDIS_ADDR", addr)
	t.Setenv("TOURGUIDE_HISTORY_RETRY_FOR", "0s")
	t.Setenv("TOURGUIDE_SPEECH_CACHE_ENABLED", "false")

	services, err := Build(noopEventSink{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { _ = services.Close() })

	if _, ok := services.History.(*history.Memory); !ok {
		t.Fatalf("expected memory fallback, got %T", services.History)
	}
}

func TestBuildFailsOnInvalidRules(t *testing.T) {
	home := t.TempDir()
	rules := filepath.Join(home, "bad.rules")
	if err := os.WriteFile(rules, []byte("not a valid rule\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("TOURGUIDE_RULES_FILE", rules)

	_, err := Build(noopEventSink{})
	if err == nil {
		t.Fatalf("expected build error due to invalid rules")
	}
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TOURGUIDE_STT_PROVIDER", "carrier-pigeon")

	if _, err := Build(noopEventSink{}); err == nil {
		t.Fatalf("expected config error")
	}
}

type noopEventSink struct{}

func (noopEventSink) SessionStateChanged(_ domain.SessionState, _ domain.SessionStateReason) {}
func (noopEventSink) TranscriptReady(_ domain.TranscriptRecord)                              {}
func (noopEventSink) GuideResponded(_ domain.GuideResponse)                                  {}
func (noopEventSink) SessionError(_ domain.ErrorCode, _ string)                              {}
