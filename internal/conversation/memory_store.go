package conversation

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps segments in process; used in tests and for ephemeral runs.
type MemoryStore struct {
	mu       sync.RWMutex
	segments map[string]Segment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{segments: make(map[string]Segment)}
}

func (s *MemoryStore) List(_ context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.segments))
	for _, seg := range s.segments {
		out = append(out, Info{ID: seg.ID, Scope: seg.Scope, CreatedAt: seg.CreatedAt, ModifiedAt: seg.ModifiedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Read(_ context.Context, id string) (Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok {
		return Segment{}, ErrNotFound
	}
	return seg.clone(), nil
}

func (s *MemoryStore) Write(_ context.Context, seg Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments[seg.ID] = seg.clone()
	return nil
}
