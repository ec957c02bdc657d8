// Package db opens the configured relational backend and applies the embedded
// schema migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Handle carries whichever connection the URL selected. Pool is set for
// postgres, SQL for sqlite (and as a database/sql view of the pool for
// postgres). Both are nil for the memory driver.
type Handle struct {
	Driver Driver
	Pool   *pgxpool.Pool
	SQL    *sql.DB
}

// ParseDriver maps a DATABASE_URL to a driver and the DSN to hand it.
// Blank selects memory. postgres:// and postgresql:// select pgx. sqlite:
// prefixes and bare file paths select sqlite.
func ParseDriver(url string) (Driver, string) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return DriverMemory, ""
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres, url
	case strings.HasPrefix(url, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "sqlite:"):
		return DriverSQLite, strings.TrimPrefix(url, "sqlite:")
	default:
		return DriverSQLite, url
	}
}

// Open connects to the backend named by url. Migrations are not applied;
// call Migrate.
func Open(ctx context.Context, url string) (*Handle, error) {
	driver, dsn := ParseDriver(url)
	switch driver {
	case DriverMemory:
		return &Handle{Driver: DriverMemory}, nil
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Handle{Driver: DriverPostgres, Pool: pool, SQL: stdlib.OpenDBFromPool(pool)}, nil
	default:
		sqlDB, err := openSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return &Handle{Driver: DriverSQLite, SQL: sqlDB}, nil
	}
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return sqlDB, nil
}

// Migrate applies every pending embedded migration and returns the versions
// applied.
func (h *Handle) Migrate(ctx context.Context) ([]int64, error) {
	if h == nil || h.Driver == DriverMemory {
		return nil, nil
	}
	dialect := goose.DialectSQLite3
	dir := "migrations/sqlite"
	if h.Driver == DriverPostgres {
		dialect = goose.DialectPostgres
		dir = "migrations/postgres"
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, h.SQL, sub)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

func (h *Handle) Ping(ctx context.Context) error {
	if h == nil {
		return nil
	}
	switch h.Driver {
	case DriverPostgres:
		return h.Pool.Ping(ctx)
	case DriverSQLite:
		return h.SQL.PingContext(ctx)
	}
	return nil
}

func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	var err error
	if h.SQL != nil {
		err = h.SQL.Close()
	}
	if h.Pool != nil {
		h.Pool.Close()
	}
	return err
}
