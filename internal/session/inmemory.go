package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryRepository keeps sessions in process for local/dev use.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{sessions: make(map[string]Session)}
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *InMemoryRepository) Put(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *InMemoryRepository) List(_ context.Context, limit int) ([]Session, error) {
	return r.filter(limit, func(Session) bool { return true }), nil
}

func (r *InMemoryRepository) Find(_ context.Context, query string, limit int) ([]Session, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	return r.filter(limit, func(s Session) bool {
		return strings.Contains(strings.ToLower(s.Profile.Name), q) ||
			strings.Contains(strings.ToLower(s.Profile.Phone), q)
	}), nil
}

func (r *InMemoryRepository) FindByName(_ context.Context, name string) ([]Session, error) {
	return r.filter(0, func(s Session) bool { return s.Profile.Name == name }), nil
}

func (r *InMemoryRepository) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *InMemoryRepository) CountValid(_ context.Context, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.Valid(now) {
			n++
		}
	}
	return n, nil
}

// filter returns matches newest first, like the SQL repositories.
func (r *InMemoryRepository) filter(limit int, keep func(Session) bool) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
