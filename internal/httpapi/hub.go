package httpapi

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"tourguide/internal/domain"
)

const defaultClientBuffer = 32

// Event is one coordinator notification as sent to websocket clients.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// Hub fans coordinator events out to subscribed clients. It implements
// ports.EventSink. Slow clients lose events instead of blocking the coordinator.
type Hub struct {
	logger *zap.Logger
	buffer int

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	last    *Event
}

type subscriber struct {
	events  chan Event
	dropped int
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger.Named("events"),
		buffer:  defaultClientBuffer,
		clients: make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a client. The latest session state, if any, is queued
// first. The returned function unsubscribes and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{events: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.last != nil {
		sub.events <- *h.last
	}
	h.clients[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.events, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, sub)
			close(sub.events)
			h.mu.Unlock()
		})
	}
}

// Clients reports the number of subscribed clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) publish(kind string, data any) {
	event := Event{Type: kind, At: time.Now().UTC(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == domain.EventSession {
		h.last = &event
	}
	for sub := range h.clients {
		select {
		case sub.events <- event:
		default:
			sub.dropped++
			h.logger.Warn("dropping event for slow client", zap.String("event", kind), zap.Int("dropped", sub.dropped))
		}
	}
}

func (h *Hub) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	h.publish(domain.EventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": domain.ReasonMessage(reason),
	})
}

func (h *Hub) TranscriptReady(record domain.TranscriptRecord) {
	h.publish(domain.EventTranscript, record)
}

func (h *Hub) GuideResponded(response domain.GuideResponse) {
	h.publish(domain.EventResponse, response)
}

func (h *Hub) SessionError(code domain.ErrorCode, detail string) {
	h.publish(domain.EventError, map[string]string{
		"code":    string(code),
		"message": domain.ErrorMessage(code, detail),
		"detail":  detail,
	})
}
