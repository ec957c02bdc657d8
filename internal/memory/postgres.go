package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the turn log in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record = normalize(record, time.Now)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, session_id, question, answer, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID,
		record.SessionID,
		record.Question,
		record.Answer,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, question, answer, created_at
		 FROM conversations WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query session turns: %w", err)
	}
	items, err := collect(rows, limit)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, question, answer, created_at
		 FROM conversations ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	return collect(rows, limit)
}

func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, question, answer, created_at
		 FROM conversations
		 WHERE question ILIKE '%' || $1 || '%' OR answer ILIKE '%' || $1 || '%'
		 ORDER BY created_at DESC LIMIT $2`,
		query,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search turns: %w", err)
	}
	return collect(rows, limit)
}

func (s *PostgresStore) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE session_id=$1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session turns: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collect(rows pgx.Rows, limit int) ([]TurnRecord, error) {
	defer rows.Close()
	items := make([]TurnRecord, 0, limit)
	for rows.Next() {
		var r TurnRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Question, &r.Answer, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return items, nil
}
