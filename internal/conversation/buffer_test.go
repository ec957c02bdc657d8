package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestAppendNilHandleCreatesSegment(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			b := NewBuffer(store, WithClock(clock.Now))
			ctx := context.Background()

			seg, err := b.Append(ctx, "s1", nil, Turn{Role: RoleUser, Content: "hello"})
			require.NoError(t, err)
			assert.Equal(t, "s1", seg.Scope)
			assert.True(t, seg.CreatedAt.Equal(clock.Now()))
			require.Len(t, seg.Turns, 1)

			h, err := b.ActiveSegment(ctx, clock.Now(), "s1")
			require.NoError(t, err)
			require.NotNil(t, h)
			assert.Equal(t, seg.ID, h.ID)
		})
	}
}

func TestNilHandleAppendsAtSameInstantKeepSeparateSegments(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			b := NewBuffer(store, WithClock(clock.Now))
			ctx := context.Background()

			first, err := b.Append(ctx, "s1", nil, Turn{Role: RoleUser, Content: "first"})
			require.NoError(t, err)
			second, err := b.Append(ctx, "s1", nil, Turn{Role: RoleUser, Content: "second"})
			require.NoError(t, err)
			require.NotEqual(t, first.ID, second.ID)

			infos, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, infos, 2)

			got, err := store.Read(ctx, first.ID)
			require.NoError(t, err)
			require.Len(t, got.Turns, 1)
			assert.Equal(t, "first", got.Turns[0].Content)

			got, err = store.Read(ctx, second.ID)
			require.NoError(t, err)
			require.Len(t, got.Turns, 1)
			assert.Equal(t, "second", got.Turns[0].Content)
		})
	}
}

func TestActiveSegmentExpiresAfterTTL(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			b := NewBuffer(store, WithClock(clock.Now))
			ctx := context.Background()

			first, err := b.AppendActive(ctx, "s1", Turn{Role: RoleUser, Content: "one"})
			require.NoError(t, err)

			clock.Advance(DefaultTTL - time.Second)
			second, err := b.AppendActive(ctx, "s1", Turn{Role: RoleAssistant, Content: "two"})
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
			assert.Len(t, second.Turns, 2)

			clock.Advance(time.Second)
			h, err := b.ActiveSegment(ctx, clock.Now(), "s1")
			require.NoError(t, err)
			assert.Nil(t, h, "segment exactly TTL old must not be active")

			third, err := b.AppendActive(ctx, "s1", Turn{Role: RoleUser, Content: "three"})
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, third.ID)
			assert.Len(t, third.Turns, 1)
		})
	}
}

func TestActiveSegmentPicksNewestInScope(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer(NewMemoryStore(), WithClock(clock.Now))
	ctx := context.Background()

	_, err := b.Append(ctx, "s1", nil, Turn{Role: RoleUser, Content: "old"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	newer, err := b.Append(ctx, "s1", nil, Turn{Role: RoleUser, Content: "new"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = b.Append(ctx, "s2", nil, Turn{Role: RoleUser, Content: "other scope"})
	require.NoError(t, err)

	h, err := b.ActiveSegment(ctx, clock.Now(), "s1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, newer.ID, h.ID)
}

func TestAppendAdvancesModifiedAtWithFrozenClock(t *testing.T) {
	clock := newFakeClock()
	b := NewBuffer(NewMemoryStore(), WithClock(clock.Now))
	ctx := context.Background()

	seg, err := b.Append(ctx, GlobalScope, nil, Turn{Role: RoleUser, Content: "a"})
	require.NoError(t, err)
	next, err := b.Append(ctx, GlobalScope, seg.Handle(), Turn{Role: RoleAssistant, Content: "b"})
	require.NoError(t, err)
	assert.True(t, next.ModifiedAt.After(seg.ModifiedAt))
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	b := NewBuffer(NewMemoryStore())
	_, err := b.Append(context.Background(), "s1", nil, Turn{Role: RoleSystem, Content: "x"})
	require.ErrorIs(t, err, ErrInvalidTurn)
}

func TestAppendToMissingSegment(t *testing.T) {
	b := NewBuffer(NewMemoryStore())
	_, err := b.Append(context.Background(), "s1", &Handle{ID: "chat_s1_1"}, Turn{Role: RoleUser, Content: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			b := NewBuffer(store)
			ctx := context.Background()

			const writers = 16
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := b.AppendActive(ctx, GlobalScope, Turn{Role: RoleUser, Content: fmt.Sprintf("turn-%d", i)})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			infos, err := b.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1, "concurrent first turns must share one segment")
			seg, err := b.Read(ctx, infos[0].ID)
			require.NoError(t, err)
			assert.Len(t, seg.Turns, writers)
		})
	}
}
