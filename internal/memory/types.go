package memory

import (
	"context"
	"time"
)

// TurnRecord stores one handled question and the reply given to it.
type TurnRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves the turn log.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	// ListBySession returns the most recent turns of a session in
	// chronological order.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	// List returns the most recent turns across sessions, newest first.
	List(ctx context.Context, limit int) ([]TurnRecord, error)
	// Search matches question or answer text case-insensitively, newest first.
	Search(ctx context.Context, query string, limit int) ([]TurnRecord, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
}

const defaultLimit = 50

func normalize(record TurnRecord, now func() time.Time) TurnRecord {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now().UTC()
	}
	return record
}
