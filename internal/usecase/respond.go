package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"tourguide/internal/domain"
	"tourguide/internal/ports"
	"tourguide/internal/suggest"
)

var errNoSpeech = errors.New("no speech recognized")

// StopListeningAndRespond closes the microphone and runs the turn through
// transcription, completion and speech. It returns once playback started;
// the session moves back to Idle when playback ends.
func (c *Coordinator) StopListeningAndRespond(ctx context.Context) (domain.TurnResult, error) {
	c.mu.Lock()
	if c.state != domain.SessionStateListening || c.turn == nil || c.turn.capture == nil || c.turn.ending {
		state := c.state
		c.mu.Unlock()
		return domain.TurnResult{}, domain.InvalidStateError("stop listening", state)
	}
	turn := c.turn
	turn.ending = true
	session := turn.capture
	tour := c.tour
	c.mu.Unlock()

	stop := context.AfterFunc(ctx, turn.cancel)
	defer stop()

	utterance, err := session.End(turn.ctx)
	if !c.resume(turn) {
		return domain.TurnResult{}, ErrInterrupted
	}
	turn.capture = nil
	if err != nil {
		defer c.mu.Unlock()
		kind := domain.ErrCaptureUnavailable
		if errors.Is(err, domain.ErrNoAudioCaptured) {
			kind = domain.ErrNoAudioCaptured
		}
		return domain.TurnResult{}, c.failLocked(ctx, turn, domain.StageCapture, kind, err)
	}
	c.setStateLocked(domain.SessionStateTranscribing, domain.SessionReasonTranscribing)
	c.mu.Unlock()

	record, err := c.transcribe(turn, utterance, tour)
	if !c.resume(turn) {
		return domain.TurnResult{}, ErrInterrupted
	}
	if err != nil {
		defer c.mu.Unlock()
		return domain.TurnResult{}, c.failLocked(ctx, turn, domain.StageTranscription, domain.ErrTranscriptionFailed, err)
	}
	c.events.TranscriptReady(record)
	c.setStateLocked(domain.SessionStateGenerating, domain.SessionReasonGenerating)
	c.mu.Unlock()

	answer, err := c.complete(turn, tour, record)
	if !c.resume(turn) {
		return domain.TurnResult{}, ErrInterrupted
	}
	if err != nil {
		defer c.mu.Unlock()
		return domain.TurnResult{}, c.failLocked(ctx, turn, domain.StageCompletion, domain.ErrCompletionFailed, err)
	}

	response := c.splitResponse(turn, answer)
	result := domain.TurnResult{TurnID: turn.id, Transcript: record, Response: response}
	c.events.GuideResponded(response)
	c.recordExchangeLocked(turn, record, response)

	if strings.TrimSpace(response.Text) == "" {
		c.haltTurnLocked()
		c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonNothingToSay)
		c.mu.Unlock()
		return result, nil
	}
	c.setStateLocked(domain.SessionStateSpeaking, domain.SessionReasonSpeaking)
	c.mu.Unlock()

	audio, err := c.speech.Synthesize(turn.ctx, response.Text)
	if !c.resume(turn) {
		return domain.TurnResult{}, ErrInterrupted
	}
	defer c.mu.Unlock()
	if err != nil {
		return domain.TurnResult{}, c.failLocked(ctx, turn, domain.StagePlayback, domain.ErrPlaybackFailed, err)
	}

	// The player starts under the lock so a concurrent barge-in either
	// happens before it (and the result is stale) or stops it.
	handle, err := c.speech.Play(turn.ctx, audio)
	if err != nil {
		return domain.TurnResult{}, c.failLocked(ctx, turn, domain.StagePlayback, domain.ErrPlaybackFailed, err)
	}
	turn.playback = handle
	c.wg.Add(1)
	go c.awaitPlayback(turn, handle)
	return result, nil
}

// resume reacquires the lock after a collaborator call. It returns false,
// with the lock released, when the turn was superseded in the meantime.
func (c *Coordinator) resume(turn *activeTurn) bool {
	c.mu.Lock()
	if c.isCurrentLocked(turn) {
		return true
	}
	c.mu.Unlock()
	c.logger.Debug("discarding stale result", zap.String("turn_id", turn.id))
	return false
}

func (c *Coordinator) transcribe(turn *activeTurn, utterance domain.Utterance, tour domain.TourContext) (domain.TranscriptRecord, error) {
	started := time.Now()
	raw, err := c.transcriber.Transcribe(turn.ctx, utterance)
	if err != nil {
		return domain.TranscriptRecord{}, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.TranscriptRecord{}, errNoSpeech
	}

	text := raw
	if c.corrector != nil {
		corrected, err := c.corrector.Correct(raw, tour)
		if err != nil {
			c.logger.Warn("transcript correction failed", zap.String("turn_id", turn.id), zap.Error(err))
		} else if strings.TrimSpace(corrected) != "" {
			text = strings.TrimSpace(corrected)
		}
	}

	c.logger.Debug("transcribed utterance",
		zap.String("turn_id", turn.id),
		zap.Duration("audio", utterance.Duration),
		zap.Duration("elapsed", time.Since(started)),
	)
	capturedAt := utterance.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = turn.startedAt
	}
	return domain.TranscriptRecord{TurnID: turn.id, Text: text, RawText: raw, CapturedAt: capturedAt}, nil
}

func (c *Coordinator) complete(turn *activeTurn, tour domain.TourContext, record domain.TranscriptRecord) (string, error) {
	req, err := c.prompts.Build(tour, record, c.recentHistory(turn.ctx))
	if err != nil {
		return "", err
	}
	started := time.Now()
	answer, err := c.completer.Complete(turn.ctx, req)
	if err != nil {
		return "", err
	}
	c.logger.Debug("guide answered", zap.String("turn_id", turn.id), zap.Duration("elapsed", time.Since(started)))
	return answer, nil
}

func (c *Coordinator) splitResponse(turn *activeTurn, answer string) domain.GuideResponse {
	extraction, err := suggest.Parse(answer)
	if err != nil {
		c.logger.Warn("ignoring suggestion block", zap.String("turn_id", turn.id), zap.Error(err))
	}
	if extraction.Dropped > 0 {
		c.logger.Info("dropped invalid suggestions", zap.String("turn_id", turn.id), zap.Int("count", extraction.Dropped))
	}
	return domain.GuideResponse{
		RawText:     answer,
		Text:        strings.TrimSpace(extraction.Speakable()),
		Suggestions: extraction.Suggestions,
	}
}

// awaitPlayback moves the session back to Idle once the answer has been
// spoken, unless the turn was superseded first.
func (c *Coordinator) awaitPlayback(turn *activeTurn, handle ports.PlaybackHandle) {
	defer c.wg.Done()
	<-handle.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isCurrentLocked(turn) {
		return
	}
	turn.playback = nil
	c.haltTurnLocked()

	if err := handle.Err(); err != nil {
		_ = c.reportLocked(turn.id, domain.StagePlayback, domain.ErrPlaybackFailed, err)
		return
	}
	c.logger.Debug("turn finished", zap.String("turn_id", turn.id), zap.Duration("elapsed", time.Since(turn.startedAt)))
	c.setStateLocked(domain.SessionStateIdle, domain.SessionReasonPlaybackFinished)
}

func (c *Coordinator) recentHistory(ctx context.Context) []domain.Exchange {
	if c.history == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HistoryTimeout)
	defer cancel()

	exchanges, err := c.history.Recent(ctx, c.sessionID, c.cfg.HistoryDepth)
	if err != nil {
		c.logger.Warn("conversation history unavailable", zap.Error(err))
		return nil
	}
	return exchanges
}

// recordExchangeLocked stores the answered question in the background. It
// must be called with the lock held so Close cannot race the WaitGroup.
func (c *Coordinator) recordExchangeLocked(turn *activeTurn, record domain.TranscriptRecord, response domain.GuideResponse) {
	if c.history == nil {
		return
	}
	exchange := domain.Exchange{
		TurnID:      turn.id,
		Question:    record.Text,
		Answer:      response.Text,
		Suggestions: response.Suggestions,
		AskedAt:     record.CapturedAt,
		AnsweredAt:  time.Now(),
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HistoryTimeout)
		defer cancel()
		if err := c.history.Append(ctx, c.sessionID, exchange); err != nil {
			c.logger.Warn("failed to record exchange", zap.String("turn_id", turn.id), zap.Error(err))
		}
	}()
}
