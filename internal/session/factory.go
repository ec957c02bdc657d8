package session

import "github.com/ent0n29/tensai/internal/db"

// NewRepository returns the session repository for the opened backend.
func NewRepository(h *db.Handle) Repository {
	if h == nil {
		return NewInMemoryRepository()
	}
	switch h.Driver {
	case db.DriverPostgres:
		return NewPostgresRepository(h.Pool)
	case db.DriverSQLite:
		return NewSQLiteRepository(h.SQL)
	default:
		return NewInMemoryRepository()
	}
}
