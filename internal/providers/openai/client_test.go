package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"tourguide/internal/domain"
)

func TestClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	if _, err := c.Transcribe(context.Background(), domain.Utterance{}); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := c.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestClientTranscribe(t *testing.T) {
	t.Parallel()

	var form struct {
		model, language, filename string
		header                    string
	}
	server := newServer(t, map[string]http.HandlerFunc{
		"/v1/audio/transcriptions": func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			form.model = r.FormValue("model")
			form.language = r.FormValue("language")
			file, header, err := r.FormFile("file")
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer file.Close()
			data, _ := io.ReadAll(file)
			form.filename = header.Filename
			form.header = string(data[:4])
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"text":" tell me about the tower "}`)
		},
	})

	c := New(Config{APIKey: "k", BaseURL: server.URL + "/v1", Language: "en"})
	text, err := c.Transcribe(context.Background(), domain.Utterance{
		Data:       make([]byte, 640),
		Encoding:   domain.EncodingLinear16,
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "tell me about the tower" {
		t.Fatalf("unexpected text: %q", text)
	}
	if form.model != "whisper-1" || form.language != "en" || form.filename != "utterance.wav" || form.header != "RIFF" {
		t.Fatalf("unexpected upload: %+v", form)
	}
}

func TestClientTranscribeRejectsUnknownEncoding(t *testing.T) {
	t.Parallel()

	c := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Transcribe(context.Background(), domain.Utterance{Encoding: "opus"}); err == nil {
		t.Fatalf("expected encoding error")
	}
}

func TestClientComplete(t *testing.T) {
	t.Parallel()

	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := newServer(t, map[string]http.HandlerFunc{
		"/v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",`+
				`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"It was built in 1889."}}]}`)
		},
	})

	c := New(Config{APIKey: "k", BaseURL: server.URL + "/v1"})
	answer, err := c.Complete(context.Background(), domain.CompletionRequest{
		SystemInstruction: "You are a guide in Paris.",
		Prompt:            "Visitor: tell me about the tower",
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if answer != "It was built in 1889." {
		t.Fatalf("unexpected answer: %q", answer)
	}
	if body.Model != "gpt-4o-mini" || len(body.Messages) != 2 {
		t.Fatalf("unexpected request: %+v", body)
	}
	if body.Messages[0].Role != "system" || body.Messages[1].Role != "user" || body.Messages[1].Content != "Visitor: tell me about the tower" {
		t.Fatalf("unexpected messages: %+v", body.Messages)
	}
}

func TestClientCompleteDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newServer(t, map[string]http.HandlerFunc{
		"/v1/chat/completions": func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
		},
	})

	c := New(Config{APIKey: "k", BaseURL: server.URL + "/v1"})
	if _, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "hi"}); err == nil {
		t.Fatalf("expected completion error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestClientSynthesize(t *testing.T) {
	t.Parallel()

	var voice string
	server := newServer(t, map[string]http.HandlerFunc{
		"/v1/audio/speech": func(w http.ResponseWriter, r *http.Request) {
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			voice, _ = req["voice"].(string)
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = io.WriteString(w, "ID3fake")
		},
	})

	c := New(Config{APIKey: "k", BaseURL: server.URL + "/v1", Voice: "nova"})
	audio, err := c.Synthesize(context.Background(), "It was built in 1889.")
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if string(audio.Data) != "ID3fake" || audio.Encoding != domain.EncodingMP3 {
		t.Fatalf("unexpected audio: %+v", audio)
	}
	if voice != "nova" {
		t.Fatalf("unexpected voice: %q", voice)
	}
	if c.CacheNamespace() != "openai/tts-1/nova" {
		t.Fatalf("unexpected cache namespace: %q", c.CacheNamespace())
	}
}

func newServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, handler := range routes {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}
