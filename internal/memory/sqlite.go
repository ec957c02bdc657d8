package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore persists the turn log in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record = normalize(record, time.Now)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, session_id, question, answer, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		record.ID,
		record.SessionID,
		record.Question,
		record.Answer,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	items, err := s.query(ctx,
		`SELECT id, session_id, question, answer, created_at
		 FROM conversations WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.query(ctx,
		`SELECT id, session_id, question, answer, created_at
		 FROM conversations ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
}

func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	like := "%" + query + "%"
	return s.query(ctx,
		`SELECT id, session_id, question, answer, created_at
		 FROM conversations WHERE question LIKE ? OR answer LIKE ?
		 ORDER BY created_at DESC LIMIT ?`,
		like, like, limit,
	)
}

func (s *SQLiteStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session turns: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var items []TurnRecord
	for rows.Next() {
		var (
			r       TurnRecord
			created int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &r.Answer, &created); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}
