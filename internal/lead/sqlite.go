package lead

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Put(ctx context.Context, segmentID string, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (segment_id, name, phone, email, pain_points, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (segment_id) DO UPDATE SET
			name=excluded.name,
			phone=excluded.phone,
			email=excluded.email,
			pain_points=excluded.pain_points,
			updated_at=excluded.updated_at`,
		segmentID,
		rec.Name,
		rec.Phone,
		rec.Email,
		rec.PainPoints,
		time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, segmentID string) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT name, phone, email, pain_points FROM leads WHERE segment_id = ?`,
		segmentID,
	).Scan(&rec.Name, &rec.Phone, &rec.Email, &rec.PainPoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get lead: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT segment_id, name, phone, email, pain_points, updated_at FROM leads ORDER BY segment_id`)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			updated int64
		)
		if err := rows.Scan(&e.SegmentID, &e.Record.Name, &e.Record.Phone, &e.Record.Email, &e.Record.PainPoints, &updated); err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lead rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, segmentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE segment_id = ?`, segmentID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
