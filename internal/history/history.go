// Package history records question/answer turns per session.
package history

import (
	"context"
	"fmt"
	"sync"

	"ocr-rag/internal/models"
)

// Store is an append-only, session-scoped turn log. Implementations must keep
// sessions isolated and must not lose concurrent appends to one session.
type Store interface {
	Append(ctx context.Context, sessionID string, turn models.HistoryTurn) error
	// Get returns turns in append order, or an empty slice.
	Get(ctx context.Context, sessionID string) ([]models.HistoryTurn, error)
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps turns in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]models.HistoryTurn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: map[string][]models.HistoryTurn{}}
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, turn models.HistoryTurn) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string) ([]models.HistoryTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistoryTurn, len(s.turns[sessionID]))
	copy(out, s.turns[sessionID])
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	return nil
}
