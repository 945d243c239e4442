package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tourguide/internal/domain"
	"tourguide/internal/ports"
	"tourguide/internal/prompt"
	"tourguide/internal/validation"
)

var (
	// ErrInterrupted is returned by a turn that was superseded by Interrupt,
	// a barge-in, or cancellation of the caller's context.
	ErrInterrupted = errors.New("turn interrupted")
	ErrClosed      = errors.New("coordinator closed")
)

const (
	defaultHistoryDepth   = 6
	defaultHistoryTimeout = 2 * time.Second
)

// Config controls coordinator behavior.
type Config struct {
	Audio ports.AudioConfig
	// HistoryDepth is how many earlier exchanges are included in the prompt.
	HistoryDepth   int
	HistoryTimeout time.Duration
}

// Collaborators are the external services a coordinator drives. Corrector
// and History are optional; Prompts defaults to prompt.NewBuilder.
type Collaborators struct {
	Capture     ports.AudioCapture
	Transcriber ports.Transcriber
	Completer   ports.Completer
	Speech      ports.SpeechPlayback
	Corrector   ports.TranscriptCorrector
	Prompts     ports.PromptBuilder
	History     ports.ConversationLog
}

// Coordinator owns the session state machine for push-to-talk questions to
// the guide. It is the only caller of the capture, transcription, completion
// and playback collaborators.
type Coordinator struct {
	capture     ports.AudioCapture
	transcriber ports.Transcriber
	completer   ports.Completer
	speech      ports.SpeechPlayback
	corrector   ports.TranscriptCorrector
	prompts     ports.PromptBuilder
	history     ports.ConversationLog
	events      ports.EventSink
	logger      *zap.Logger
	cfg         Config
	sessionID   string

	mu         sync.Mutex
	state      domain.SessionState
	reason     domain.SessionStateReason
	generation uint64
	turn       *activeTurn
	opening    chan struct{}
	captureErr error
	tour       domain.TourContext
	closed     bool

	wg sync.WaitGroup
}

func NewCoordinator(collab Collaborators, events ports.EventSink, logger *zap.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = defaultHistoryDepth
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = defaultHistoryTimeout
	}
	if collab.Prompts == nil {
		collab.Prompts = prompt.NewBuilder(prompt.Options{})
	}
	sessionID := uuid.NewString()
	return &Coordinator{
		capture:     collab.Capture,
		transcriber: collab.Transcriber,
		completer:   collab.Completer,
		speech:      collab.Speech,
		corrector:   collab.Corrector,
		prompts:     collab.Prompts,
		history:     collab.History,
		events:      events,
		logger:      logger.Named("coordinator").With(zap.String("session_id", sessionID)),
		cfg:         cfg,
		sessionID:   sessionID,
		state:       domain.SessionStateIdle,
		reason:      domain.SessionReasonReady,
	}
}

// StartListening opens the microphone for a new question. While the guide is
// speaking this is a barge-in: playback is stopped before capture begins.
// The microphone is opened outside the lock; a turn interrupted meanwhile
// releases it again and returns ErrInterrupted.
func (c *Coordinator) StartListening(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	// A superseded capture may still be opening. Wait until it is released.
	for c.opening != nil {
		opening := c.opening
		c.mu.Unlock()
		select {
		case <-opening:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}

	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.captureErr != nil {
		err := &domain.StageError{Stage: domain.StageCapture, Kind: domain.ErrCaptureUnavailable, Err: c.captureErr}
		c.events.SessionError(domain.ErrorCodeCapture, err.Error())
		c.mu.Unlock()
		return err
	}

	reason := domain.SessionReasonListening
	switch c.state {
	case domain.SessionStateIdle:
	case domain.SessionStateSpeaking:
		c.haltTurnLocked()
		reason = domain.SessionReasonBargeIn
	default:
		state := c.state
		c.mu.Unlock()
		return domain.InvalidStateError("start listening", state)
	}

	c.generation++
	turnCtx, cancel := context.WithCancel(ctx)
	turn := &activeTurn{
		id:         uuid.NewString(),
		generation: c.generation,
		ctx:        turnCtx,
		cancel:     cancel,
		startedAt:  time.Now(),
	}
	c.turn = turn
	opening := make(chan struct{})
	c.opening = opening
	c.wg.Add(1)
	c.setStateLocked(domain.SessionStateListening, reason)
	c.mu.Unlock()

	session, err := c.capture.Begin(turnCtx, c.cfg.Audio)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.opening = nil
	close(opening)
	c.wg.Done()

	if !c.isCurrentLocked(turn) || ctx.Err() != nil {
		if session != nil {
			if abortErr := session.Abort(); abortErr != nil {
				c.logger.Warn("failed to release superseded capture", zap.String("turn_id", turn.id), zap.Error(abortErr))
			}
		}
		if c.isCurrentLocked(turn) {
			c.haltTurnLocked()
			c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonInterrupted)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
		return ErrInterrupted
	}
	if err != nil {
		c.haltTurnLocked()
		return c.reportLocked(turn.id, domain.StageCapture, domain.ErrCaptureUnavailable, err)
	}
	turn.capture = session
	return nil
}

// Interrupt cancels whatever the session is doing and returns it to Idle.
// Results of cancelled collaborator calls that arrive later are discarded.
func (c *Coordinator) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interruptLocked()
}

func (c *Coordinator) interruptLocked() {
	c.generation++
	c.haltTurnLocked()
	if c.state != domain.SessionStateIdle {
		c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonInterrupted)
	}
}

// ReinitializeCapture re-enables listening after a capture failure by
// probing the microphone once.
func (c *Coordinator) ReinitializeCapture(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != domain.SessionStateIdle {
		return domain.InvalidStateError("reinitialize capture", c.state)
	}

	session, err := c.capture.Begin(ctx, c.cfg.Audio)
	if err != nil {
		c.captureErr = err
		stageErr := &domain.StageError{Stage: domain.StageCapture, Kind: domain.ErrCaptureUnavailable, Err: err}
		c.logger.Warn("microphone probe failed", zap.Error(err))
		c.events.SessionError(domain.ErrorCodeCapture, stageErr.Error())
		return stageErr
	}
	if err := session.Abort(); err != nil {
		c.logger.Warn("failed to release microphone probe", zap.Error(err))
	}

	c.captureErr = nil
	c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonCaptureReady)
	return nil
}

// SetTourContext replaces the destination and landmarks used for the next turn.
func (c *Coordinator) SetTourContext(tour domain.TourContext) error {
	tour = normalizeTour(tour)
	if err := validation.Struct(tour); err != nil {
		return fmt.Errorf("invalid tour context: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tour = tour
	return nil
}

// TourContext returns the current tour.
func (c *Coordinator) TourContext() domain.TourContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	tour := c.tour
	tour.Landmarks = append([]string(nil), c.tour.Landmarks...)
	return tour
}

// Status returns the current session status.
func (c *Coordinator) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		SessionID:      c.sessionID,
		State:          c.state,
		Active:         c.state != domain.SessionStateIdle,
		CaptureEnabled: c.captureErr == nil,
		Message:        domain.ReasonMessage(c.reason),
	}
	if c.turn != nil {
		status.TurnID = c.turn.id
	}
	return status
}

func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// Close interrupts the session and waits for background work to finish.
// The coordinator cannot be used afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.interruptLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) setStateLocked(state domain.SessionState, reason domain.SessionStateReason) {
	c.state = state
	c.reason = reason
	c.events.SessionStateChanged(state, reason)
}

func (c *Coordinator) isCurrentLocked(turn *activeTurn) bool {
	return c.turn == turn && turn.generation == c.generation
}

// haltTurnLocked releases everything the current turn holds. Playback.Stop
// returns only once the output device is free.
func (c *Coordinator) haltTurnLocked() {
	turn := c.turn
	if turn == nil {
		return
	}
	c.turn = nil
	turn.cancel()

	if turn.capture != nil {
		if err := turn.capture.Abort(); err != nil {
			c.logger.Warn("failed to abort capture", zap.String("turn_id", turn.id), zap.Error(err))
		}
		turn.capture = nil
	}
	if turn.playback != nil {
		if err := turn.playback.Stop(); err != nil {
			c.logger.Warn("failed to stop playback", zap.String("turn_id", turn.id), zap.Error(err))
		}
		turn.playback = nil
	}
}

// failLocked ends the current turn after a collaborator failure. A failure
// caused by the caller cancelling its context is reported as an interruption.
func (c *Coordinator) failLocked(ctx context.Context, turn *activeTurn, stage domain.Stage, kind error, err error) error {
	c.haltTurnLocked()

	if ctx.Err() != nil {
		c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonInterrupted)
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}

	if errors.Is(kind, domain.ErrNoAudioCaptured) {
		c.logger.Info("no audio captured", zap.String("turn_id", turn.id))
		c.events.SessionError(domain.ErrorCodeNoAudio, domain.ErrNoAudioCaptured.Error())
		c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonNoAudio)
		return &domain.StageError{Stage: stage, Kind: kind, Err: err}
	}
	return c.reportLocked(turn.id, stage, kind, err)
}

// reportLocked surfaces one failure and walks the machine through Error back
// to Idle. Capture failures also disable listening.
func (c *Coordinator) reportLocked(turnID string, stage domain.Stage, kind error, err error) error {
	stageErr := &domain.StageError{Stage: stage, Kind: kind, Err: err}
	reason, next := failureReasons(stage)
	if stage == domain.StageCapture {
		c.captureErr = err
	}

	c.logger.Warn("voice turn failed",
		zap.String("turn_id", turnID),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	c.setStateLocked(domain.SessionStateError, reason)
	c.events.SessionError(stageErr.Code(), stageErr.Error())
	c.setStateLocked(domain.SessionStateIdle, next)
	return stageErr
}

func failureReasons(stage domain.Stage) (domain.SessionStateReason, domain.SessionStateReason) {
	switch stage {
	case domain.StageCapture:
		return domain.SessionReasonCaptureFailed, domain.SessionReasonCaptureDisabled
	case domain.StageTranscription:
		return domain.SessionReasonTranscriptionFailed, domain.SessionReasonRecovered
	case domain.StageCompletion:
		return domain.SessionReasonCompletionFailed, domain.SessionReasonRecovered
	default:
		return domain.SessionReasonPlaybackFailed, domain.SessionReasonRecovered
	}
}

func normalizeTour(tour domain.TourContext) domain.TourContext {
	out := domain.TourContext{
		Destination: strings.TrimSpace(tour.Destination),
		Language:    strings.TrimSpace(tour.Language),
	}
	for _, landmark := range tour.Landmarks {
		if name := strings.TrimSpace(landmark); name != "" {
			out.Landmarks = append(out.Landmarks, name)
		}
	}
	return out
}
