// Package audio owns the microphone and the speaker through ffmpeg and ffplay
// child processes.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"tourguide/internal/domain"
	"tourguide/internal/pcm"
	"tourguide/internal/ports"
)

const (
	startupGrace  = 250 * time.Millisecond
	stopGrace     = 1200 * time.Millisecond
	minUtterance  = 100 * time.Millisecond
	waitDelay     = 2 * time.Second
	wavMimeType   = "audio/wav"
	defaultFormat = "pulse"
)

var (
	errCaptureAborted = errors.New("capture aborted")
	errRecorderDied   = errors.New("ffmpeg stopped unexpectedly")
)

// FFMPEGCapture records the microphone as 16-bit PCM using ffmpeg.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Begin starts the recorder. It fails when ffmpeg exits during the first
// moments, which is how a missing device or denied permission shows up.
func (c *FFMPEGCapture) Begin(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = defaultFormat
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = waitDelay

	session := &captureSession{
		format:  pcm.Linear16(cfg.SampleRate, cfg.Channels),
		started: time.Now(),
		waitErr: make(chan error, 1),
	}
	cmd.Stdout = &session.samples
	cmd.Stderr = &session.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	session.process = cmd.Process
	go func() {
		session.waitErr <- cmd.Wait()
		close(session.waitErr)
	}()

	timer := time.NewTimer(startupGrace)
	defer timer.Stop()
	select {
	case err := <-session.waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimOutput(session.stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-timer.C:
	}
	return session, nil
}

type captureSession struct {
	format  pcm.Format
	started time.Time

	process *os.Process
	waitErr chan error
	samples bytes.Buffer
	stderr  bytes.Buffer

	stopOnce sync.Once
	stopErr  error

	mu      sync.Mutex
	aborted bool
}

// End stops recording and wraps the captured samples in a WAV container.
func (s *captureSession) End(_ context.Context) (domain.Utterance, error) {
	if err := s.stop(); err != nil {
		return domain.Utterance{}, err
	}

	s.mu.Lock()
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return domain.Utterance{}, errCaptureAborted
	}

	samples := s.samples.Bytes()
	duration := s.format.Duration(len(samples))
	if duration < minUtterance {
		return domain.Utterance{}, fmt.Errorf("%w: %s of audio", domain.ErrNoAudioCaptured, duration)
	}

	return domain.Utterance{
		Data:       pcm.EncodeWAV(samples, s.format),
		Encoding:   domain.EncodingWAV,
		MimeType:   wavMimeType,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		CapturedAt: s.started,
		Duration:   duration,
	}, nil
}

// Abort stops recording and discards the audio.
func (s *captureSession) Abort() error {
	s.mu.Lock()
	s.aborted = true
	s.mu.Unlock()

	err := s.stop()
	if errors.Is(err, errRecorderDied) {
		return nil
	}
	return err
}

// stop interrupts ffmpeg so it flushes its output, and kills it if it does
// not exit in time. The samples buffer is complete once stop returns.
func (s *captureSession) stop() error {
	s.stopOnce.Do(func() {
		select {
		case err, ok := <-s.waitErr:
			// The recorder exited on its own, so the device went away mid-capture.
			if ok && err != nil {
				s.stopErr = fmt.Errorf("%w: %v: %s", errRecorderDied, err, trimOutput(s.stderr.String()))
			}
			return
		default:
		}

		_ = s.process.Signal(os.Interrupt)
		timer := time.NewTimer(stopGrace)
		defer timer.Stop()

		var err error
		select {
		case err = <-s.waitErr:
		case <-timer.C:
			_ = s.process.Kill()
			err = <-s.waitErr
		}
		s.stopErr = normalizeStopErr(err)
	})
	return s.stopErr
}

// normalizeStopErr treats the exit status caused by our own signal as success.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(output string) string {
	return strings.TrimSpace(output)
}
