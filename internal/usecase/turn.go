package usecase

import (
	"context"
	"time"

	"tourguide/internal/ports"
)

// activeTurn is one question from the moment the microphone opens until the
// answer has been spoken. All fields are guarded by Coordinator.mu.
type activeTurn struct {
	id         string
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	startedAt  time.Time

	// ending is set once StopListeningAndRespond took ownership of the turn.
	ending   bool
	capture  ports.CaptureSession
	playback ports.PlaybackHandle
}
