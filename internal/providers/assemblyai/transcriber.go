// Package assemblyai transcribes finished utterances with the AssemblyAI
// upload and transcript APIs.
package assemblyai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"tourguide/internal/domain"
	"tourguide/internal/pcm"
)

type Config struct {
	APIKey string
	// LanguageCode is passed through as the transcript language. Empty or
	// "auto" leaves detection to the service.
	LanguageCode string
}

// Transcriber implements ports.Transcriber. Each utterance is uploaded and
// then transcribed synchronously; the SDK polls until the transcript is done.
type Transcriber struct {
	cfg    Config
	client *aai.Client
}

func NewTranscriber(cfg Config) *Transcriber {
	t := &Transcriber{cfg: cfg}
	if strings.TrimSpace(cfg.APIKey) != "" {
		t.client = aai.NewClient(cfg.APIKey)
	}
	return t
}

func (t *Transcriber) Transcribe(ctx context.Context, utterance domain.Utterance) (string, error) {
	if t.client == nil {
		return "", errors.New("ASSEMBLYAI_API_KEY is not configured")
	}
	data, err := wavPayload(utterance)
	if err != nil {
		return "", err
	}

	uploadURL, err := t.client.Upload(ctx, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to upload to AssemblyAI: %w", err)
	}

	transcript, err := t.client.Transcripts.TranscribeFromURL(ctx, uploadURL, t.params())
	if err != nil {
		return "", fmt.Errorf("assemblyai transcription: %w", err)
	}
	return transcriptText(transcript)
}

func (t *Transcriber) params() *aai.TranscriptOptionalParams {
	params := &aai.TranscriptOptionalParams{}
	if code := strings.TrimSpace(t.cfg.LanguageCode); code != "" && code != "auto" {
		params.LanguageCode = aai.TranscriptLanguageCode(code)
	}
	return params
}

func transcriptText(transcript aai.Transcript) (string, error) {
	if transcript.Status == aai.TranscriptStatusError {
		message := "transcript failed"
		if transcript.Error != nil && *transcript.Error != "" {
			message = *transcript.Error
		}
		return "", fmt.Errorf("assemblyai transcription: %s", message)
	}
	if transcript.Text == nil {
		return "", nil
	}
	return strings.TrimSpace(*transcript.Text), nil
}

func wavPayload(utterance domain.Utterance) ([]byte, error) {
	switch utterance.Encoding {
	case domain.EncodingWAV, "":
		return utterance.Data, nil
	case domain.EncodingLinear16:
		return pcm.EncodeWAV(utterance.Data, pcm.Linear16(utterance.SampleRate, utterance.Channels)), nil
	default:
		return nil, fmt.Errorf("assemblyai: unsupported encoding %q", utterance.Encoding)
	}
}
