package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/keylock"
	"github.com/ent0n29/tensai/internal/observability"
)

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		m.logger = observability.OrNop(logger)
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// Manager issues sessions with a fixed expiry and merges lead fields into
// their profiles.
type Manager struct {
	repo    Repository
	ttl     time.Duration
	now     func() time.Time
	locks   *keylock.Locker
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewManager(repo Repository, opts ...Option) *Manager {
	if repo == nil {
		repo = NewInMemoryRepository()
	}
	m := &Manager{
		repo:   repo,
		ttl:    DefaultTTL,
		now:    time.Now,
		locks:  keylock.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsValid reports whether id names a stored, unexpired session. Storage
// failures count as invalid.
func (m *Manager) IsValid(ctx context.Context, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("session lookup failed", zap.String("session_id", id), zap.Error(err))
		}
		return false
	}
	return s.Valid(m.now().UTC())
}

// ResolveOrCreate returns id unchanged when it names a valid session, merging
// any non-empty hints into its profile. Otherwise a new session is created
// seeded with hints. The expiry of an existing session is never extended.
func (m *Manager) ResolveOrCreate(ctx context.Context, id string, hints Profile) (string, error) {
	id = strings.TrimSpace(id)
	if id != "" {
		unlock := m.locks.Lock(id)
		s, err := m.repo.Get(ctx, id)
		switch {
		case err == nil && s.Valid(m.now().UTC()):
			defer unlock()
			if merged, changed := s.Profile.Merge(hints); changed {
				s.Profile = merged
				if err := m.repo.Put(ctx, s); err != nil {
					return "", err
				}
			}
			m.metrics.ObserveSessionEvent("resumed")
			return s.ID, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			unlock()
			return "", err
		}
		unlock()
		m.metrics.ObserveSessionEvent("expired_or_unknown")
	}

	now := m.now().UTC()
	profile, _ := Profile{}.Merge(hints)
	s := Session{
		ID:        uuid.NewString(),
		Profile:   profile,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.repo.Put(ctx, s); err != nil {
		return "", err
	}
	m.metrics.ObserveSessionEvent("created")
	m.logger.Debug("session created", zap.String("session_id", s.ID), zap.Time("expires_at", s.ExpiresAt))
	return s.ID, nil
}

// UpdateProfile merges the non-empty fields into the stored profile. Unknown
// ids and all-empty updates are no-ops.
func (m *Manager) UpdateProfile(ctx context.Context, id string, fields Profile) error {
	if fields.IsEmpty() || strings.TrimSpace(id) == "" {
		return nil
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	s, err := m.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	merged, changed := s.Profile.Merge(fields)
	if !changed {
		return nil
	}
	s.Profile = merged
	if err := m.repo.Put(ctx, s); err != nil {
		return err
	}
	m.metrics.ObserveSessionEvent("profile_updated")
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]Session, error) {
	return m.repo.List(ctx, limit)
}

func (m *Manager) Find(ctx context.Context, query string, limit int) ([]Session, error) {
	return m.repo.Find(ctx, query, limit)
}

func (m *Manager) FindByName(ctx context.Context, name string) ([]Session, error) {
	return m.repo.FindByName(ctx, name)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()
	return m.repo.Delete(ctx, id)
}

// PurgeExpired removes sessions that expired more than grace ago.
func (m *Manager) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	if grace < 0 {
		grace = 0
	}
	n, err := m.repo.DeleteExpiredBefore(ctx, m.now().UTC().Add(-grace))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("purged expired sessions", zap.Int64("count", n))
	}
	return n, nil
}

// ActiveCount returns the number of unexpired sessions.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	return m.repo.CountValid(ctx, m.now().UTC())
}
