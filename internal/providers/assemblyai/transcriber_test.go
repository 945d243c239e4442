package assemblyai

import (
	"context"
	"strings"
	"testing"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"tourguide/internal/domain"
)

func TestTranscribeRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriber(Config{APIKey: "  "}).Transcribe(context.Background(), domain.Utterance{Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "ASSEMBLYAI_API_KEY") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestTranscribeRejectsUnsupportedEncoding(t *testing.T) {
	t.Parallel()

	_, err := NewTranscriber(Config{APIKey: "k"}).Transcribe(context.Background(), domain.Utterance{Encoding: "opus"})
	if err == nil || !strings.Contains(err.Error(), "unsupported encoding") {
		t.Fatalf("expected encoding error, got %v", err)
	}
}

func TestWAVPayloadWrapsLinear16(t *testing.T) {
	t.Parallel()

	data, err := wavPayload(domain.Utterance{Data: make([]byte, 32), Encoding: domain.EncodingLinear16, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 44+32 || string(data[:4]) != "RIFF" {
		t.Fatalf("unexpected wav payload of %d bytes", len(data))
	}

	raw := []byte("RIFF....")
	data, err = wavPayload(domain.Utterance{Data: raw, Encoding: domain.EncodingWAV})
	if err != nil || string(data) != string(raw) {
		t.Fatalf("expected wav to pass through, got %q err=%v", data, err)
	}
}

func TestParamsLanguage(t *testing.T) {
	t.Parallel()

	if got := NewTranscriber(Config{LanguageCode: "fr"}).params().LanguageCode; got != aai.TranscriptLanguageCode("fr") {
		t.Fatalf("unexpected language code: %q", got)
	}
	if got := NewTranscriber(Config{LanguageCode: "auto"}).params().LanguageCode; got != "" {
		t.Fatalf("auto should leave language unset, got %q", got)
	}
}

func TestTranscriptText(t *testing.T) {
	t.Parallel()

	text := "  where is the louvre  "
	got, err := transcriptText(aai.Transcript{Status: aai.TranscriptStatusCompleted, Text: &text})
	if err != nil || got != "where is the louvre" {
		t.Fatalf("unexpected text %q err=%v", got, err)
	}

	got, err = transcriptText(aai.Transcript{Status: aai.TranscriptStatusCompleted})
	if err != nil || got != "" {
		t.Fatalf("expected empty text, got %q err=%v", got, err)
	}

	message := "audio too short"
	if _, err := transcriptText(aai.Transcript{Status: aai.TranscriptStatusError, Error: &message}); err == nil || !strings.Contains(err.Error(), message) {
		t.Fatalf("expected transcript error, got %v", err)
	}
}
