package domain

import "time"

// SessionState models the voice turn lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateListening    SessionState = "listening"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateGenerating   SessionState = "generating"
	SessionStateSpeaking     SessionState = "speaking"
	SessionStateError        SessionState = "error"
)

// AudioActive reports whether the microphone or the speaker is owned in this state.
func (s SessionState) AudioActive() bool {
	return s == SessionStateListening || s == SessionStateSpeaking
}

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady               SessionStateReason = "ready"
	SessionReasonListening           SessionStateReason = "listening_started"
	SessionReasonBargeIn             SessionStateReason = "barge_in"
	SessionReasonTranscribing        SessionStateReason = "transcribing"
	SessionReasonGenerating          SessionStateReason = "generating"
	SessionReasonSpeaking            SessionStateReason = "speaking"
	SessionReasonPlaybackFinished    SessionStateReason = "playback_finished"
	SessionReasonNothingToSay        SessionStateReason = "nothing_to_say"
	SessionReasonInterrupted         SessionStateReason = "interrupted"
	SessionReasonNoAudio             SessionStateReason = "no_audio"
	SessionReasonCaptureFailed       SessionStateReason = "capture_failed"
	SessionReasonCaptureDisabled     SessionStateReason = "capture_disabled"
	SessionReasonCaptureReady        SessionStateReason = "capture_ready"
	SessionReasonTranscriptionFailed SessionStateReason = "transcription_failed"
	SessionReasonCompletionFailed    SessionStateReason = "completion_failed"
	SessionReasonPlaybackFailed      SessionStateReason = "playback_failed"
	SessionReasonRecovered           SessionStateReason = "recovered"
)

// ErrorCode identifies user-visible failures.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeCapture       ErrorCode = "capture"
	ErrorCodeNoAudio       ErrorCode = "no_audio"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeCompletion    ErrorCode = "completion"
	ErrorCodePlayback      ErrorCode = "playback"
	ErrorCodeInvalidState  ErrorCode = "invalid_state"
	ErrorCodeTourContext   ErrorCode = "tour_context"
)

// Audio encodings carried by an Utterance or SpeechAudio.
const (
	EncodingWAV      = "wav"
	EncodingLinear16 = "linear16"
	EncodingMP3      = "mp3"
)

// Utterance is one captured spoken turn.
type Utterance struct {
	Data       []byte        `json:"-"`
	Encoding   string        `json:"encoding"`
	MimeType   string        `json:"mimeType"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	CapturedAt time.Time     `json:"capturedAt"`
	Duration   time.Duration `json:"duration"`
}

// TranscriptRecord is the recognized text of an utterance.
type TranscriptRecord struct {
	TurnID     string    `json:"turnId"`
	Text       string    `json:"text"`
	RawText    string    `json:"rawText"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Suggestion is a point of interest recommended by the guide.
type Suggestion struct {
	Name        string     `json:"name"`
	Coordinates [2]float64 `json:"coordinates"`
	Description string     `json:"description"`
}

func (s Suggestion) Longitude() float64 { return s.Coordinates[0] }

func (s Suggestion) Latitude() float64 { return s.Coordinates[1] }

// GuideResponse is a completion split into speakable prose and suggestions.
type GuideResponse struct {
	RawText     string       `json:"rawText"`
	Text        string       `json:"text"`
	Suggestions []Suggestion `json:"suggestions"`
}

// CompletionRequest is the opaque prompt handed to the completion service.
type CompletionRequest struct {
	Prompt            string `json:"prompt"`
	SystemInstruction string `json:"systemInstruction"`
}

// SpeechAudio is synthesized speech ready for playback.
type SpeechAudio struct {
	Data     []byte `json:"-"`
	Encoding string `json:"encoding"`
}

// TourContext describes where the guide is and what it is talking about.
type TourContext struct {
	Destination string   `json:"destination" validate:"required,max=200"`
	Landmarks   []string `json:"landmarks" validate:"max=50,dive,required,max=200"`
	Language    string   `json:"language,omitempty" validate:"omitempty,max=16"`
}

// Exchange is one answered question kept in the conversation history.
type Exchange struct {
	TurnID      string       `json:"turnId"`
	Question    string       `json:"question"`
	Answer      string       `json:"answer"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	AskedAt     time.Time    `json:"askedAt"`
	AnsweredAt  time.Time    `json:"answeredAt"`
}

// TurnResult is returned once the guide has started speaking.
type TurnResult struct {
	TurnID     string           `json:"turnId"`
	Transcript TranscriptRecord `json:"transcript"`
	Response   GuideResponse    `json:"response"`
}

// Status summarizes the current runtime status.
type Status struct {
	SessionID      string       `json:"sessionId"`
	State          SessionState `json:"state"`
	Active         bool         `json:"active"`
	CaptureEnabled bool         `json:"captureEnabled"`
	TurnID         string       `json:"turnId,omitempty"`
	Message        string       `json:"message,omitempty"`
}
