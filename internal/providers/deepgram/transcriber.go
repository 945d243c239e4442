package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"tourguide/internal/domain"
	"tourguide/internal/pcm"
)

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	Keywords    []string
	// ChunkSize is the number of PCM bytes per websocket frame.
	ChunkSize int
	// FinalizeTimeout bounds the wait for final results after the audio was sent.
	FinalizeTimeout time.Duration
}

// Transcriber implements ports.Transcriber. Each utterance is streamed over
// its own websocket session.
type Transcriber struct {
	cfg Config
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 4 * time.Second
	}
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Transcribe(ctx context.Context, utterance domain.Utterance) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", errors.New("DEEPGRAM_API_KEY is not configured")
	}
	format, samples, err := linearPCM(utterance)
	if err != nil {
		return "", err
	}

	session, err := dialSession(ctx, t.cfg, format)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	defer session.Close()
	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	aggregator := &transcriptAggregator{}
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for event := range session.Events() {
			aggregator.Add(event)
		}
	}()

	pumpErr := pumpAudio(bytes.NewReader(samples), session, t.cfg.ChunkSize)
	_ = session.CloseSend()
	streamErr := waitForStream(session, t.cfg.FinalizeTimeout)
	<-collected

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pumpErr != nil {
		return "", pumpErr
	}
	raw := aggregator.Raw()
	if raw == "" && streamErr != nil {
		return "", streamErr
	}
	return raw, nil
}

// linearPCM unwraps the utterance into raw 16-bit samples.
func linearPCM(utterance domain.Utterance) (pcm.Format, []byte, error) {
	switch utterance.Encoding {
	case domain.EncodingWAV, "":
		format, samples, err := pcm.DecodeWAV(utterance.Data)
		if err != nil {
			return pcm.Format{}, nil, fmt.Errorf("deepgram: %w", err)
		}
		if format.BitsPerSample != 16 {
			return pcm.Format{}, nil, fmt.Errorf("deepgram: unsupported sample width %d", format.BitsPerSample)
		}
		return format, samples, nil
	case domain.EncodingLinear16:
		return pcm.Linear16(utterance.SampleRate, utterance.Channels), utterance.Data, nil
	default:
		return pcm.Format{}, nil, fmt.Errorf("deepgram: unsupported encoding %q", utterance.Encoding)
	}
}

type audioSink interface {
	SendAudio(chunk []byte) error
}

func pumpAudio(audio io.Reader, sink audioSink, chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := sink.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("failed to stream audio: %w", sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
}

func waitForStream(session *streamingSession, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-session.done:
		return session.waitErr()
	case <-timer.C:
		return session.Close()
	}
}
