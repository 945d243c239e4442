package domain

import (
	"errors"
	"fmt"
)

// Stage names the part of a voice turn that failed.
type Stage string

const (
	StageCapture       Stage = "capture"
	StageTranscription Stage = "transcription"
	StageCompletion    Stage = "completion"
	StagePlayback      Stage = "playback"
)

var (
	ErrCaptureUnavailable  = errors.New("microphone capture unavailable")
	ErrNoAudioCaptured     = errors.New("no audio captured")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrCompletionFailed    = errors.New("completion failed")
	ErrPlaybackFailed      = errors.New("playback failed")
	ErrInvalidState        = errors.New("operation not allowed in current state")
)

// StageError ties a collaborator failure to its stage and taxonomy kind.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil || errors.Is(e.Err, e.Kind) {
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code maps the error kind onto the code reported to the UI.
func (e *StageError) Code() ErrorCode {
	return ErrorCodeFor(e)
}

// ErrorCodeFor classifies any error returned by the coordinator.
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCaptureUnavailable):
		return ErrorCodeCapture
	case errors.Is(err, ErrNoAudioCaptured):
		return ErrorCodeNoAudio
	case errors.Is(err, ErrTranscriptionFailed):
		return ErrorCodeTranscription
	case errors.Is(err, ErrCompletionFailed):
		return ErrorCodeCompletion
	case errors.Is(err, ErrPlaybackFailed):
		return ErrorCodePlayback
	case errors.Is(err, ErrInvalidState):
		return ErrorCodeInvalidState
	default:
		return ""
	}
}

// InvalidStateError reports an operation attempted in the wrong state.
func InvalidStateError(operation string, state SessionState) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, operation, state)
}
