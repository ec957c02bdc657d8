package conversation

import (
	"context"
	"errors"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged message.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Segment is a time-bounded ordered run of turns, persisted as a unit.
type Segment struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Turns      []Turn    `json:"turns"`
}

// Handle identifies a stored segment without carrying its turns.
type Handle struct {
	ID        string
	Scope     string
	CreatedAt time.Time
}

func (s Segment) Handle() *Handle {
	return &Handle{ID: s.ID, Scope: s.Scope, CreatedAt: s.CreatedAt}
}

func (s Segment) clone() Segment {
	c := s
	c.Turns = append([]Turn(nil), s.Turns...)
	return c
}

// Info is the listing view of a segment.
type Info struct {
	ID         string
	Scope      string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

var ErrNotFound = errors.New("segment not found")

// Store is durable segment storage. Write must replace the whole segment
// atomically: a concurrent Read sees either the previous or the new version.
type Store interface {
	List(ctx context.Context) ([]Info, error)
	Read(ctx context.Context, id string) (Segment, error)
	Write(ctx context.Context, seg Segment) error
}
