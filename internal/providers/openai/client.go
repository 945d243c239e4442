// Package openai adapts the OpenAI API to the transcription, completion and
// speech synthesis ports.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"tourguide/internal/domain"
	"tourguide/internal/pcm"
)

// Config selects models and the voice used for the guide.
type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	ChatModel          string
	SpeechModel        string
	Voice              string
	// Language is an ISO-639-1 hint for transcription. Empty means auto-detect.
	Language    string
	Temperature float64
	Timeout     time.Duration
}

// Client implements ports.Transcriber, ports.Completer and ports.Synthesizer.
// Retries are disabled so a failed turn is reported once.
type Client struct {
	cfg Config
	api sdk.Client
}

func New(cfg Config) *Client {
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = sdk.AudioModelWhisper1
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = sdk.ChatModelGPT4oMini
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = sdk.SpeechModelTTS1
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{cfg: cfg, api: sdk.NewClient(opts...)}
}

func (c *Client) ready() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return errors.New("OPENAI_API_KEY is not configured")
	}
	return nil
}

// Transcribe sends the utterance to the transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, utterance domain.Utterance) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	data := utterance.Data
	switch utterance.Encoding {
	case domain.EncodingWAV, "":
	case domain.EncodingLinear16:
		data = pcm.EncodeWAV(data, pcm.Linear16(utterance.SampleRate, utterance.Channels))
	default:
		return "", fmt.Errorf("openai transcription: unsupported encoding %q", utterance.Encoding)
	}

	params := sdk.AudioTranscriptionNewParams{
		File:  sdk.File(bytes.NewReader(data), "utterance.wav", "audio/wav"),
		Model: c.cfg.TranscriptionModel,
	}
	if c.cfg.Language != "" && c.cfg.Language != "auto" {
		params.Language = sdk.String(c.cfg.Language)
	}

	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Complete asks the chat model for the guide's answer.
func (c *Client) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.SystemInstruction) != "" {
		messages = append(messages, sdk.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, sdk.UserMessage(req.Prompt))

	params := sdk.ChatCompletionNewParams{
		Messages: messages,
		Model:    c.cfg.ChatModel,
	}
	if c.cfg.Temperature > 0 {
		params.Temperature = sdk.Float(c.cfg.Temperature)
	}

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai completion: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Synthesize renders text to MP3 speech.
func (c *Client) Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error) {
	if err := c.ready(); err != nil {
		return domain.SpeechAudio{}, err
	}

	resp, err := c.api.Audio.Speech.New(ctx, sdk.AudioSpeechNewParams{
		Input:          text,
		Model:          c.cfg.SpeechModel,
		Voice:          sdk.AudioSpeechNewParamsVoice(c.cfg.Voice),
		ResponseFormat: sdk.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return domain.SpeechAudio{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SpeechAudio{}, fmt.Errorf("openai speech: read audio: %w", err)
	}
	if len(data) == 0 {
		return domain.SpeechAudio{}, errors.New("openai speech: empty audio")
	}
	return domain.SpeechAudio{Data: data, Encoding: domain.EncodingMP3}, nil
}

// CacheNamespace identifies the voice for cached speech.
func (c *Client) CacheNamespace() string {
	return "openai/" + c.cfg.SpeechModel + "/" + c.cfg.Voice
}
