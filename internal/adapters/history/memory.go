// Package history implements the chat history store on badger and in memory.
package history

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/meshroom/internal/domain"
)

// MemoryStore is used when no history path is configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID][]domain.ChatMessage
	limit int
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{rooms: make(map[domain.RoomID][]domain.ChatMessage), limit: limit}
}

func (s *MemoryStore) RecordMessage(ctx context.Context, msg domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.rooms[msg.RoomID], msg)
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.Before(msgs[j].Timestamp) })
	s.rooms[msg.RoomID] = msgs
	return nil
}

func (s *MemoryStore) FetchHistory(ctx context.Context, room domain.RoomID) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[room]
	if len(msgs) > s.limit {
		msgs = msgs[len(msgs)-s.limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) RoomHasAnyHistory(ctx context.Context, room domain.RoomID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room]) > 0, nil
}
