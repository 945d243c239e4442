package ports

import (
	"context"

	"tourguide/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// CaptureSession is a live microphone recording. Either End or Abort releases
// the device; calling both, or either twice, is safe.
type CaptureSession interface {
	// End stops recording and returns the captured utterance. It fails with
	// domain.ErrNoAudioCaptured when nothing was recorded.
	End(ctx context.Context) (domain.Utterance, error)
	Abort() error
}

// AudioCapture opens microphone capture sessions.
type AudioCapture interface {
	Begin(ctx context.Context, cfg AudioConfig) (CaptureSession, error)
}

// Transcriber turns an utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, utterance domain.Utterance) (string, error)
}

// Completer produces the guide's answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Synthesizer turns text into playable speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (domain.SpeechAudio, error)
}

// AudioPlayer plays synthesized audio on the output device.
type AudioPlayer interface {
	Play(ctx context.Context, audio domain.SpeechAudio) (PlaybackHandle, error)
}

// SpeechPlayback is the speech sink used by the coordinator. Synthesis and
// the start of playback are separate so the output device is only claimed
// after the network round-trip finished.
type SpeechPlayback interface {
	Synthesizer
	AudioPlayer
}

// PlaybackHandle is an in-flight playback.
type PlaybackHandle interface {
	// Done is closed when playback ended, failed, or was stopped.
	Done() <-chan struct{}
	// Err reports a playback failure once Done is closed. Stopped playback is not a failure.
	Err() error
	// Stop halts playback and waits for the device to be released. Safe after Done.
	Stop() error
}

// TranscriptCorrector fixes recurring recognition mistakes before prompting.
type TranscriptCorrector interface {
	Correct(text string, tour domain.TourContext) (string, error)
}

// PromptBuilder renders the completion request for a transcript.
type PromptBuilder interface {
	Build(tour domain.TourContext, transcript domain.TranscriptRecord, history []domain.Exchange) (domain.CompletionRequest, error)
}

// ConversationLog keeps answered exchanges per session.
type ConversationLog interface {
	Append(ctx context.Context, sessionID string, exchange domain.Exchange) error
	Recent(ctx context.Context, sessionID string, limit int) ([]domain.Exchange, error)
}

// EventSink emits coordinator state and results to the UI. Events are
// delivered in order while the coordinator holds its lock, so sinks must not
// call back into the coordinator synchronously.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TranscriptReady(record domain.TranscriptRecord)
	GuideResponded(response domain.GuideResponse)
	SessionError(code domain.ErrorCode, detail string)
}
