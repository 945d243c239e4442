package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"tourguide/internal/bootstrap"
	"tourguide/internal/config"
	"tourguide/internal/domain"
	"tourguide/internal/suggest"
	"tourguide/internal/usecase"
)

// emitFunc matches runtime.EventsEmit.
type emitFunc func(ctx context.Context, name string, data ...interface{})

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit emitFunc

	services    bootstrap.Services
	coordinator *usecase.Coordinator
	cfg         config.Config
	bootErr     error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.coordinator = services.Coordinator
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.coordinator == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.services.Logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

// StartListening opens the microphone. While the guide is speaking it stops
// playback first.
func (a *App) StartListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.coordinator.StartListening(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.coordinator.Status(), nil
}

// StopListening ends the question and returns once the guide starts answering.
func (a *App) StopListening() (domain.TurnResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.TurnResult{}, err
	}
	result, err := a.coordinator.StopListeningAndRespond(a.ctx)
	if err != nil {
		if errors.Is(err, usecase.ErrInterrupted) {
			return domain.TurnResult{}, nil
		}
		return domain.TurnResult{}, err
	}
	return result, nil
}

// Interrupt stops listening or speaking and discards the current turn.
func (a *App) Interrupt() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.coordinator.Interrupt()
	return nil
}

// ReinitializeCapture re-enables the microphone after a capture failure.
func (a *App) ReinitializeCapture() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.coordinator.ReinitializeCapture(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.coordinator.Status(), nil
}

// SetTourContext sets the destination and landmarks the guide talks about.
func (a *App) SetTourContext(tour domain.TourContext) (domain.TourContext, error) {
	if err := a.requireReady(); err != nil {
		return domain.TourContext{}, err
	}
	if err := a.coordinator.SetTourContext(tour); err != nil {
		a.SessionError(domain.ErrorCodeTourContext, err.Error())
		return domain.TourContext{}, err
	}
	return a.coordinator.TourContext(), nil
}

// ExtractSuggestions splits a narrated script into prose and map suggestions.
func (a *App) ExtractSuggestions(text string) domain.GuideResponse {
	prose, suggestions := suggest.Extract(text)
	return domain.GuideResponse{RawText: text, Text: prose, Suggestions: suggestions}
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.coordinator == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.coordinator.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"transcription":    a.cfg.STTProvider,
		"speech":           a.cfg.TTSProvider,
		"chatModel":        a.cfg.OpenAI.ChatModel,
		"language":         a.cfg.Tour.Language,
		"rulesFile":        a.cfg.Rules.File,
		"audioInput":       a.cfg.Audio.InputDevice,
		"audioInputFormat": a.cfg.Audio.InputFormat,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.coordinator == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, domain.EventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": domain.ReasonMessage(reason),
	})
}

// TranscriptReady emits the recognized question.
func (a *App) TranscriptReady(record domain.TranscriptRecord) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, domain.EventTranscript, record)
}

// GuideResponded emits the guide's answer and its map suggestions.
func (a *App) GuideResponded(response domain.GuideResponse) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, domain.EventResponse, response)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, domain.EventError, map[string]string{
		"code":    string(code),
		"message": domain.ErrorMessage(code, detail),
		"detail":  detail,
	})
}
