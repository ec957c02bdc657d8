package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/tensai/internal/db"
)

func repositoriesUnderTest(t *testing.T) map[string]Repository {
	t.Helper()
	ctx := context.Background()
	h, err := db.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	if _, err := h.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return map[string]Repository{
		"memory": NewInMemoryRepository(),
		"sqlite": NewSQLiteRepository(h.SQL),
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.UTC)
	for name, repo := range repositoriesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := Session{
				ID:        "s-1",
				Profile:   Profile{Name: "Ana", Phone: "555"},
				CreatedAt: created,
				ExpiresAt: created.Add(DefaultTTL),
			}
			if err := repo.Put(ctx, in); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			in.Profile.Email = "ana@example.com"
			if err := repo.Put(ctx, in); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			got, err := repo.Get(ctx, "s-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Profile != in.Profile || !got.CreatedAt.Equal(in.CreatedAt) || !got.ExpiresAt.Equal(in.ExpiresAt) {
				t.Fatalf("Get() = %+v, want %+v", got, in)
			}
			if _, err := repo.Get(ctx, "missing"); err != ErrNotFound {
				t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRepositoryQueries(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, repo := range repositoriesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			put := func(id, name string, created time.Time) {
				t.Helper()
				s := Session{ID: id, Profile: Profile{Name: name}, CreatedAt: created, ExpiresAt: created.Add(DefaultTTL)}
				if err := repo.Put(ctx, s); err != nil {
					t.Fatalf("Put(%s) error = %v", id, err)
				}
			}
			put("a", "Ana", base)
			put("b", "Ana", base.Add(time.Hour))
			put("c", "Bruno", base.Add(2*DefaultTTL))

			list, err := repo.List(ctx, 2)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(list) != 2 || list[0].ID != "c" {
				t.Fatalf("List() = %+v, want newest first", list)
			}

			byName, err := repo.FindByName(ctx, "Ana")
			if err != nil {
				t.Fatalf("FindByName() error = %v", err)
			}
			if len(byName) != 2 {
				t.Fatalf("FindByName() len = %d, want 2", len(byName))
			}

			valid, err := repo.CountValid(ctx, base.Add(2*DefaultTTL))
			if err != nil {
				t.Fatalf("CountValid() error = %v", err)
			}
			if valid != 1 {
				t.Fatalf("CountValid() = %d, want 1", valid)
			}

			n, err := repo.DeleteExpiredBefore(ctx, base.Add(DefaultTTL+time.Minute))
			if err != nil {
				t.Fatalf("DeleteExpiredBefore() error = %v", err)
			}
			if n != 1 {
				t.Fatalf("DeleteExpiredBefore() = %d, want 1", n)
			}
			if err := repo.Delete(ctx, "b"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := repo.Delete(ctx, "b"); err != ErrNotFound {
				t.Fatalf("Delete(again) error = %v, want ErrNotFound", err)
			}
		})
	}
}
