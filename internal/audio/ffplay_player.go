package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"tourguide/internal/domain"
	"tourguide/internal/ports"
)

// FFplayPlayer plays synthesized speech through ffplay, fed on stdin.
type FFplayPlayer struct {
	command string
}

func NewFFplayPlayer(command string) *FFplayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFplayPlayer{command: command}
}

func (p *FFplayPlayer) Play(ctx context.Context, audio domain.SpeechAudio) (ports.PlaybackHandle, error) {
	if len(audio.Data) == 0 {
		return nil, errors.New("no audio to play")
	}

	args := []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error"}
	switch audio.Encoding {
	case domain.EncodingMP3, domain.EncodingWAV:
		args = append(args, "-f", audio.Encoding)
	}
	args = append(args, "-i", "pipe:0")

	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.WaitDelay = waitDelay
	cmd.Stdin = bytes.NewReader(audio.Data)
	handle := &playback{done: make(chan struct{})}
	cmd.Stderr = &handle.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffplay: %w", err)
	}
	handle.process = cmd.Process
	go handle.wait(cmd)
	return handle, nil
}

type playback struct {
	process *os.Process
	stderr  bytes.Buffer
	done    chan struct{}

	mu      sync.Mutex
	err     error
	stopped bool

	stopOnce sync.Once
}

func (p *playback) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	if err != nil && !p.stopped {
		p.err = fmt.Errorf("ffplay failed: %w: %s", err, trimOutput(p.stderr.String()))
	}
	p.mu.Unlock()
	close(p.done)
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (p *playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stop terminates ffplay and returns once the process has exited.
func (p *playback) Stop() error {
	p.stopOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		_ = p.process.Signal(os.Interrupt)
		timer := time.NewTimer(stopGrace)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			_ = p.process.Kill()
			<-p.done
		}
	})
	<-p.done
	return nil
}

// SpeechSink pairs a synthesizer with a player.
type SpeechSink struct {
	ports.Synthesizer
	ports.AudioPlayer
}

func NewSpeechSink(synth ports.Synthesizer, player ports.AudioPlayer) *SpeechSink {
	return &SpeechSink{Synthesizer: synth, AudioPlayer: player}
}
