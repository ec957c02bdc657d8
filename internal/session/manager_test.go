package session

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager() (*Manager, *stepClock) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewManager(NewInMemoryRepository(), WithClock(clock.Now)), clock
}

func TestResolveOrCreateIssuesFixedExpiry(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager()

	id, err := m.ResolveOrCreate(ctx, "", Profile{Name: "Ana"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if id == "" {
		t.Fatalf("session ID should not be empty")
	}
	s, err := m.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got, want := s.ExpiresAt.Sub(s.CreatedAt), DefaultTTL; got != want {
		t.Fatalf("lifetime = %v, want %v", got, want)
	}
	if s.Profile.Name != "Ana" {
		t.Fatalf("Profile.Name = %q, want Ana", s.Profile.Name)
	}

	clock.Advance(23 * time.Hour)
	again, err := m.ResolveOrCreate(ctx, id, Profile{})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if again != id {
		t.Fatalf("ResolveOrCreate() = %q, want %q", again, id)
	}
	s2, _ := m.Get(ctx, id)
	if !s2.ExpiresAt.Equal(s.ExpiresAt) {
		t.Fatalf("ExpiresAt moved from %v to %v", s.ExpiresAt, s2.ExpiresAt)
	}
}

func TestResolveOrCreateReplacesExpiredAndUnknown(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager()

	id, err := m.ResolveOrCreate(ctx, "", Profile{})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	clock.Advance(DefaultTTL)
	if m.IsValid(ctx, id) {
		t.Fatalf("IsValid() = true at exact expiry")
	}
	fresh, err := m.ResolveOrCreate(ctx, id, Profile{Phone: "555"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if fresh == id {
		t.Fatalf("expired session id was reused")
	}

	other, err := m.ResolveOrCreate(ctx, "no-such-session", Profile{})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if other == "no-such-session" {
		t.Fatalf("unknown id was adopted")
	}
	if !m.IsValid(ctx, other) {
		t.Fatalf("IsValid(%q) = false for new session", other)
	}
}

func TestUpdateProfileMergesNonEmptyFields(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	id, _ := m.ResolveOrCreate(ctx, "", Profile{Name: "Ana", Email: "ana@example.com"})
	if err := m.UpdateProfile(ctx, id, Profile{Phone: "555-0100", Email: ""}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	s, _ := m.Get(ctx, id)
	want := Profile{Name: "Ana", Phone: "555-0100", Email: "ana@example.com"}
	if s.Profile != want {
		t.Fatalf("Profile = %+v, want %+v", s.Profile, want)
	}

	if err := m.UpdateProfile(ctx, "missing", Profile{Name: "x"}); err != nil {
		t.Fatalf("UpdateProfile(missing) error = %v", err)
	}
	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestConcurrentProfileUpdatesKeepEveryField(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	id, _ := m.ResolveOrCreate(ctx, "", Profile{})

	updates := []Profile{
		{Name: "Ana"},
		{Phone: "555"},
		{Email: "a@b.c"},
		{PainPoints: "slow onboarding"},
	}
	var wg sync.WaitGroup
	for _, u := range updates {
		wg.Add(1)
		go func(p Profile) {
			defer wg.Done()
			if err := m.UpdateProfile(ctx, id, p); err != nil {
				t.Errorf("UpdateProfile() error = %v", err)
			}
		}(u)
	}
	wg.Wait()

	s, _ := m.Get(ctx, id)
	want := Profile{Name: "Ana", Phone: "555", Email: "a@b.c", PainPoints: "slow onboarding"}
	if s.Profile != want {
		t.Fatalf("Profile = %+v, want %+v", s.Profile, want)
	}
}

func TestPurgeExpiredAndActiveCount(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestManager()

	old, _ := m.ResolveOrCreate(ctx, "", Profile{})
	clock.Advance(DefaultTTL + time.Hour)
	current, _ := m.ResolveOrCreate(ctx, "", Profile{})

	n, err := m.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", n)
	}

	purged, err := m.PurgeExpired(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if purged != 1 {
		t.Fatalf("PurgeExpired() = %d, want 1", purged)
	}
	if _, err := m.Get(ctx, old); err != ErrNotFound {
		t.Fatalf("Get(old) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(ctx, current); err != nil {
		t.Fatalf("Get(current) error = %v", err)
	}
}

func TestFindMatchesNameOrPhone(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	_, _ = m.ResolveOrCreate(ctx, "", Profile{Name: "Ana Lima", Phone: "555-0100"})
	_, _ = m.ResolveOrCreate(ctx, "", Profile{Name: "Bruno", Phone: "777"})

	got, err := m.Find(ctx, "lima", 10)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || got[0].Profile.Name != "Ana Lima" {
		t.Fatalf("Find(lima) = %+v", got)
	}
	got, _ = m.Find(ctx, "777", 10)
	if len(got) != 1 || got[0].Profile.Name != "Bruno" {
		t.Fatalf("Find(777) = %+v", got)
	}
}
