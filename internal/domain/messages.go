package domain

// ReasonMessage returns the status line shown for a state transition.
func ReasonMessage(reason SessionStateReason) string {
	switch reason {
	case SessionReasonReady:
		return "Ready"
	case SessionReasonListening:
		return "Listening..."
	case SessionReasonBargeIn:
		return "Guide stopped. Listening..."
	case SessionReasonTranscribing:
		return "Got it. Transcribing..."
	case SessionReasonGenerating:
		return "Thinking..."
	case SessionReasonSpeaking:
		return "Speaking"
	case SessionReasonPlaybackFinished:
		return "Ready for your next question"
	case SessionReasonNothingToSay:
		return "The guide had nothing to add"
	case SessionReasonInterrupted:
		return "Stopped"
	case SessionReasonNoAudio:
		return "No audio captured"
	case SessionReasonCaptureFailed:
		return "Microphone unavailable"
	case SessionReasonCaptureDisabled:
		return "Voice input disabled until the microphone is re-initialized"
	case SessionReasonCaptureReady:
		return "Microphone ready"
	case SessionReasonTranscriptionFailed:
		return "Transcription failed"
	case SessionReasonCompletionFailed:
		return "The guide could not answer"
	case SessionReasonPlaybackFailed:
		return "Playback failed"
	case SessionReasonRecovered:
		return "Ready to try again"
	default:
		return ""
	}
}

// ErrorMessage returns the notification text for an error code.
func ErrorMessage(code ErrorCode, detail string) string {
	switch code {
	case ErrorCodeStartup:
		return "Startup failed"
	case ErrorCodeCapture:
		return "Microphone unavailable"
	case ErrorCodeNoAudio:
		return "I didn't hear anything. Hold the button while you speak."
	case ErrorCodeTranscription:
		return "Sorry, I couldn't understand that"
	case ErrorCodeCompletion:
		return "The guide could not answer right now"
	case ErrorCodePlayback:
		return "Audio playback failed"
	case ErrorCodeInvalidState:
		return "Please wait for the current answer"
	case ErrorCodeTourContext:
		return "Invalid tour details"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

// Event names pushed to UI clients by both hosts.
const (
	EventSession    = "tourguide:session"
	EventTranscript = "tourguide:transcript"
	EventResponse   = "tourguide:response"
	EventError      = "tourguide:error"
)
