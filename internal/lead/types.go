// Package lead extracts contact details from conversations and stores the
// resulting records keyed by the segment they came from.
package lead

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("lead not found")

// Record is the structured contact data extracted from one segment.
type Record struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	PainPoints string `json:"pain_points"`
}

// Complete reports whether the record carries both a name and a phone
// number. Only complete records are persisted.
func (r Record) Complete() bool {
	return strings.TrimSpace(r.Name) != "" && strings.TrimSpace(r.Phone) != ""
}

func (r Record) IsEmpty() bool {
	return r == Record{}
}

// Entry is a stored record together with its key.
type Entry struct {
	SegmentID string    `json:"segment_id"`
	Record    Record    `json:"lead"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists at most one record per segment; Put overwrites.
type Store interface {
	Put(ctx context.Context, segmentID string, rec Record) error
	Get(ctx context.Context, segmentID string) (Record, error)
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, segmentID string) error
}
