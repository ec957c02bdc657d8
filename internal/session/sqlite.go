package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepository persists sessions in SQLite. Instants are stored as unix
// nanoseconds so round trips are exact.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name=excluded.name,
			phone=excluded.phone,
			email=excluded.email,
			pain_points=excluded.pain_points,
			created_at=excluded.created_at,
			expires_at=excluded.expires_at`,
		s.ID,
		s.Profile.Name,
		s.Profile.Phone,
		s.Profile.Email,
		s.Profile.PainPoints,
		s.CreatedAt.UnixNano(),
		s.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
}

func (r *SQLiteRepository) Find(ctx context.Context, query string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	like := "%" + query + "%"
	return r.query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		  WHERE name LIKE ? OR phone LIKE ?
		  ORDER BY created_at DESC LIMIT ?`,
		like, like, limit,
	)
}

func (r *SQLiteRepository) FindByName(ctx context.Context, name string) ([]Session, error) {
	return r.query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE name = ? ORDER BY created_at DESC`, name)
}

func (r *SQLiteRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) CountValid(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM sessions WHERE expires_at > ?`, now.UnixNano()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (Session, error) {
	var (
		s                  Session
		created, expiresAt int64
	)
	if err := row.Scan(
		&s.ID,
		&s.Profile.Name,
		&s.Profile.Phone,
		&s.Profile.Email,
		&s.Profile.PainPoints,
		&created,
		&expiresAt,
	); err != nil {
		return Session{}, err
	}
	s.CreatedAt = time.Unix(0, created).UTC()
	s.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return s, nil
}
