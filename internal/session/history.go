package session

import (
	"context"
	"sync"

	"docchat/internal/models"
)

// HistoryStore keeps the last N chat exchanges of each session.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, exchange models.ChatExchange) (int, error)
	// History returns the session's exchanges, oldest first.
	History(ctx context.Context, sessionID string) ([]models.ChatExchange, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

const DefaultHistorySize = 10

func trim(history []models.ChatExchange, limit int) []models.ChatExchange {
	if limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

type MemoryStore struct {
	mu       sync.RWMutex
	limit    int
	sessions map[string][]models.ChatExchange
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &MemoryStore{limit: limit, sessions: make(map[string][]models.ChatExchange)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, exchange models.ChatExchange) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := trim(append(s.sessions[sessionID], exchange), s.limit)
	// copy so the backing array does not grow without bound
	s.sessions[sessionID] = append([]models.ChatExchange(nil), h...)
	return len(h), nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string) ([]models.ChatExchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ChatExchange(nil), s.sessions[sessionID]...), nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
