package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/tensai/internal/keylock"
)

const (
	// GlobalScope is the scope shared by every caller when segments are not
	// keyed per session.
	GlobalScope = "global"
	DefaultTTL  = 24 * time.Hour
)

var ErrInvalidTurn = errors.New("invalid turn")

// Buffer is the rolling conversation log. Every append rewrites the whole
// segment under a per-segment lock; callers must not hold a Buffer call open
// across slow work such as inference.
type Buffer struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	locks *keylock.Locker
}

type Option func(*Buffer)

// WithTTL sets how long a segment stays active after creation.
func WithTTL(ttl time.Duration) Option {
	return func(b *Buffer) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}

func NewBuffer(store Store, opts ...Option) *Buffer {
	b := &Buffer{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		locks: keylock.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ActiveSegment returns the newest segment of scope created less than the TTL
// before now, or nil when none qualifies.
func (b *Buffer) ActiveSegment(ctx context.Context, now time.Time, scope string) (*Handle, error) {
	infos, err := b.store.List(ctx)
	if err != nil {
		return nil, err
	}
	scope = sanitizeScope(scope)

	var best *Info
	for i := range infos {
		info := infos[i]
		if info.Scope != scope {
			continue
		}
		if now.Sub(info.CreatedAt) >= b.ttl {
			continue
		}
		if best == nil || info.CreatedAt.After(best.CreatedAt) {
			best = &info
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Handle{ID: best.ID, Scope: best.Scope, CreatedAt: best.CreatedAt}, nil
}

// Append adds turn to the segment behind h. A nil handle starts a new segment
// in scope seeded with turn. The returned segment reflects the write.
func (b *Buffer) Append(ctx context.Context, scope string, h *Handle, turn Turn) (Segment, error) {
	if err := validateTurn(turn); err != nil {
		return Segment{}, err
	}
	if h == nil {
		unlock := b.locks.Lock(scopeLockKey(scope))
		defer unlock()
		return b.create(ctx, scope, turn)
	}
	return b.appendTo(ctx, h.ID, turn)
}

// AppendActive resolves the active segment for scope and appends turn to it,
// creating a segment when none is active. Resolution and creation happen under
// one scope lock so concurrent first turns share a segment.
func (b *Buffer) AppendActive(ctx context.Context, scope string, turn Turn) (Segment, error) {
	if err := validateTurn(turn); err != nil {
		return Segment{}, err
	}
	unlock := b.locks.Lock(scopeLockKey(scope))
	defer unlock()

	h, err := b.ActiveSegment(ctx, b.now(), scope)
	if err != nil {
		return Segment{}, fmt.Errorf("resolve active segment: %w", err)
	}
	if h == nil {
		return b.create(ctx, scope, turn)
	}
	return b.appendTo(ctx, h.ID, turn)
}

// Read returns a consistent snapshot of a segment.
func (b *Buffer) Read(ctx context.Context, id string) (Segment, error) {
	unlock := b.locks.Lock(segmentLockKey(id))
	defer unlock()
	return b.store.Read(ctx, id)
}

func (b *Buffer) List(ctx context.Context) ([]Info, error) {
	return b.store.List(ctx)
}

func (b *Buffer) create(ctx context.Context, scope string, turn Turn) (Segment, error) {
	now := b.now().UTC()
	seg := Segment{
		ID:         newSegmentID(scope, now),
		Scope:      sanitizeScope(scope),
		CreatedAt:  now,
		ModifiedAt: now,
		Turns:      []Turn{turn},
	}
	unlock := b.locks.Lock(segmentLockKey(seg.ID))
	defer unlock()
	if err := b.store.Write(ctx, seg); err != nil {
		return Segment{}, err
	}
	return seg.clone(), nil
}

func (b *Buffer) appendTo(ctx context.Context, id string, turn Turn) (Segment, error) {
	unlock := b.locks.Lock(segmentLockKey(id))
	defer unlock()

	seg, err := b.store.Read(ctx, id)
	if err != nil {
		return Segment{}, err
	}
	seg.Turns = append(seg.Turns, turn)

	// Every write must move the modification instant forward so the
	// reconciler notices it, even when the clock has not ticked.
	mod := b.now().UTC()
	if !mod.After(seg.ModifiedAt) {
		mod = seg.ModifiedAt.Add(time.Microsecond)
	}
	seg.ModifiedAt = mod

	if err := b.store.Write(ctx, seg); err != nil {
		return Segment{}, err
	}
	return seg.clone(), nil
}

func validateTurn(turn Turn) error {
	switch turn.Role {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("%w: role %q", ErrInvalidTurn, turn.Role)
	}
}

func scopeLockKey(scope string) string { return "scope:" + sanitizeScope(scope) }

func segmentLockKey(id string) string { return "segment:" + id }
