package memory

import (
	"github.com/ent0n29/tensai/internal/db"
)

// NewStore returns the turn log for the opened backend.
func NewStore(h *db.Handle) Store {
	if h == nil {
		return NewInMemoryStore()
	}
	switch h.Driver {
	case db.DriverPostgres:
		return NewPostgresStore(h.Pool)
	case db.DriverSQLite:
		return NewSQLiteStore(h.SQL)
	default:
		return NewInMemoryStore()
	}
}
