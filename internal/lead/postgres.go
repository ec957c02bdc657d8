package lead

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps leads in the leads table, one row per segment.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, segmentID string, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO leads (segment_id, name, phone, email, pain_points, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (segment_id) DO UPDATE SET
			name=EXCLUDED.name,
			phone=EXCLUDED.phone,
			email=EXCLUDED.email,
			pain_points=EXCLUDED.pain_points,
			updated_at=EXCLUDED.updated_at`,
		segmentID,
		rec.Name,
		rec.Phone,
		rec.Email,
		rec.PainPoints,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, segmentID string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT name, phone, email, pain_points FROM leads WHERE segment_id=$1`,
		segmentID,
	).Scan(&rec.Name, &rec.Phone, &rec.Email, &rec.PainPoints)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get lead: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT segment_id, name, phone, email, pain_points, updated_at FROM leads ORDER BY segment_id`)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SegmentID, &e.Record.Name, &e.Record.Phone, &e.Record.Email, &e.Record.PainPoints, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, segmentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM leads WHERE segment_id=$1`, segmentID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
