// Package elevenlabs synthesizes guide speech with the ElevenLabs HTTP API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tourguide/internal/domain"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_flash_v2_5"
	outputFormat   = "mp3_44100_128"
	maxErrorBody   = 512
)

type Config struct {
	APIKey  string
	VoiceID string
	ModelID string
	BaseURL string
	Timeout time.Duration
}

// Synthesizer implements ports.Synthesizer.
type Synthesizer struct {
	cfg    Config
	client *http.Client
}

func NewSynthesizer(cfg Config) *Synthesizer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error) {
	if strings.TrimSpace(s.cfg.APIKey) == "" || strings.TrimSpace(s.cfg.VoiceID) == "" {
		return domain.SpeechAudio{}, errors.New("elevenlabs: api key or voice id missing")
	}

	endpoint, err := s.endpoint()
	if err != nil {
		return domain.SpeechAudio{}, err
	}
	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: s.cfg.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       0.4,
			SimilarityBoost: 0.7,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return domain.SpeechAudio{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.SpeechAudio{}, err
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.SpeechAudio{}, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.SpeechAudio{}, fmt.Errorf("elevenlabs status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SpeechAudio{}, fmt.Errorf("elevenlabs read error: %w", err)
	}
	if len(data) == 0 {
		return domain.SpeechAudio{}, errors.New("elevenlabs: empty audio")
	}
	return domain.SpeechAudio{Data: data, Encoding: domain.EncodingMP3}, nil
}

// CacheNamespace identifies the voice for cached speech.
func (s *Synthesizer) CacheNamespace() string {
	return "elevenlabs/" + s.cfg.ModelID + "/" + s.cfg.VoiceID
}

func (s *Synthesizer) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID))
	if err != nil {
		return "", fmt.Errorf("invalid ElevenLabs base URL: %w", err)
	}
	q := u.Query()
	q.Set("output_format", outputFormat)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
