package lead

import (
	"context"
	"sort"
	"sync"
	"time"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]Entry)}
}

func (s *InMemoryStore) Put(_ context.Context, segmentID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[segmentID] = Entry{SegmentID: segmentID, Record: rec, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, segmentID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[segmentID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return e.Record, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentID < out[j].SegmentID })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, segmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[segmentID]; !ok {
		return ErrNotFound
	}
	delete(s.entries, segmentID)
	return nil
}
