package history

import (
	"context"
	"sync"

	"tourguide/internal/domain"
)

// Memory is a process-local ConversationLog used when Redis is not configured
// or unreachable.
type Memory struct {
	mu       sync.Mutex
	maxLen   int
	sessions map[string][]domain.Exchange
}

func NewMemory(maxLen int) *Memory {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Memory{maxLen: maxLen, sessions: make(map[string][]domain.Exchange)}
}

func (m *Memory) Append(_ context.Context, sessionID string, exchange domain.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	exchanges := append(m.sessions[sessionID], exchange)
	if len(exchanges) > m.maxLen {
		exchanges = append([]domain.Exchange(nil), exchanges[len(exchanges)-m.maxLen:]...)
	}
	m.sessions[sessionID] = exchanges
	return nil
}

func (m *Memory) Recent(_ context.Context, sessionID string, limit int) ([]domain.Exchange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exchanges := m.sessions[sessionID]
	if limit <= 0 || len(exchanges) == 0 {
		return nil, nil
	}
	if len(exchanges) > limit {
		exchanges = exchanges[len(exchanges)-limit:]
	}
	return append([]domain.Exchange(nil), exchanges...), nil
}
