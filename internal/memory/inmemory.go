package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process turn log for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []TurnRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record = normalize(record, time.Now)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	out := s.newestFirst(limit, func(r TurnRecord) bool { return r.SessionID == sessionID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]TurnRecord, error) {
	return s.newestFirst(limit, func(TurnRecord) bool { return true }), nil
}

func (s *InMemoryStore) Search(_ context.Context, query string, limit int) ([]TurnRecord, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return s.newestFirst(limit, func(r TurnRecord) bool {
		return strings.Contains(strings.ToLower(r.Question), q) ||
			strings.Contains(strings.ToLower(r.Answer), q)
	}), nil
}

func (s *InMemoryStore) DeleteBySession(_ context.Context, sessionID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var n int64
	for _, r := range s.records {
		if r.SessionID == sessionID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return n, nil
}

func (s *InMemoryStore) newestFirst(limit int, keep func(TurnRecord) bool) []TurnRecord {
	if limit <= 0 {
		limit = defaultLimit
	}
	s.mu.RLock()
	out := make([]TurnRecord, 0, limit)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
