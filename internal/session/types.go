package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is the fixed lifetime of a session. Activity does not extend it.
const DefaultTTL = 24 * time.Hour

var ErrNotFound = errors.New("session not found")

// Profile holds lead fields collected for a session. Every field is optional.
type Profile struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	PainPoints string `json:"pain_points"`
}

// IsEmpty reports whether no field carries a value.
func (p Profile) IsEmpty() bool {
	return strings.TrimSpace(p.Name) == "" &&
		strings.TrimSpace(p.Phone) == "" &&
		strings.TrimSpace(p.Email) == "" &&
		strings.TrimSpace(p.PainPoints) == ""
}

// Merge overlays the non-empty fields of in onto p. Empty incoming values
// never clear existing ones.
func (p Profile) Merge(in Profile) (Profile, bool) {
	out := p
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if v == "" || v == *dst {
			return
		}
		*dst = v
		changed = true
	}
	set(&out.Name, in.Name)
	set(&out.Phone, in.Phone)
	set(&out.Email, in.Email)
	set(&out.PainPoints, in.PainPoints)
	return out, changed
}

type Session struct {
	ID        string    `json:"session_id"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session has not yet expired at now.
func (s Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Repository is the durable backing for sessions.
type Repository interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]Session, error)
	// Find matches name or phone case-insensitively as a substring.
	Find(ctx context.Context, query string, limit int) ([]Session, error)
	FindByName(ctx context.Context, name string) ([]Session, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountValid(ctx context.Context, now time.Time) (int, error)
}
