package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, name, phone, email, pain_points, created_at, expires_at`

// PostgresRepository persists sessions in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Put(ctx context.Context, s Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name,
			phone=EXCLUDED.phone,
			email=EXCLUDED.email,
			pain_points=EXCLUDED.pain_points,
			created_at=EXCLUDED.created_at,
			expires_at=EXCLUDED.expires_at`,
		s.ID,
		s.Profile.Name,
		s.Profile.Phone,
		s.Profile.Email,
		s.Profile.PainPoints,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *PostgresRepository) Find(ctx context.Context, query string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		  WHERE name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%'
		  ORDER BY created_at DESC LIMIT $2`,
		query, limit,
	)
}

func (r *PostgresRepository) FindByName(ctx context.Context, name string) ([]Session, error) {
	return r.query(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE name=$1 ORDER BY created_at DESC`, name)
}

func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) CountValid(ctx context.Context, now time.Time) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE expires_at > $1`, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) query(ctx context.Context, sql string, args ...any) ([]Session, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
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

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	if err := row.Scan(
		&s.ID,
		&s.Profile.Name,
		&s.Profile.Phone,
		&s.Profile.Email,
		&s.Profile.PainPoints,
		&s.CreatedAt,
		&s.ExpiresAt,
	); err != nil {
		return Session{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return s, nil
}
