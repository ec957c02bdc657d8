package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/tensai/internal/db"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	h, err := db.Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	_, err = h.Migrate(ctx)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": NewStore(h),
	}
}

func TestStoreListBySessionIsChronological(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, q := range []string{"first", "second", "third"} {
				require.NoError(t, store.SaveTurn(ctx, TurnRecord{
					SessionID: "s1",
					Question:  q,
					Answer:    "ok " + q,
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}))
			}
			require.NoError(t, store.SaveTurn(ctx, TurnRecord{SessionID: "s2", Question: "other", Answer: "x", CreatedAt: base}))

			got, err := store.ListBySession(ctx, "s1", 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "second", got[0].Question)
			assert.Equal(t, "third", got[1].Question)
			assert.NotEmpty(t, got[0].ID)
			assert.True(t, got[1].CreatedAt.Equal(base.Add(2*time.Minute)))

			all, err := store.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, "third", all[0].Question)
		})
	}
}

func TestStoreSearchAndDelete(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveTurn(ctx, TurnRecord{SessionID: "s1", Question: "Do you offer PRICING plans?", Answer: "Yes"}))
			require.NoError(t, store.SaveTurn(ctx, TurnRecord{SessionID: "s2", Question: "hello", Answer: "Our pricing starts low"}))
			require.NoError(t, store.SaveTurn(ctx, TurnRecord{SessionID: "s2", Question: "bye", Answer: "see you"}))

			hits, err := store.Search(ctx, "pricing", 10)
			require.NoError(t, err)
			assert.Len(t, hits, 2)

			n, err := store.DeleteBySession(ctx, "s2")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			rest, err := store.List(ctx, 10)
			require.NoError(t, err)
			require.Len(t, rest, 1)
			assert.Equal(t, "s1", rest[0].SessionID)
		})
	}
}
