package lead

import (
	"fmt"
	"strings"

	"github.com/ent0n29/tensai/internal/db"
)

// NewStore selects the lead backend. "file" (the default) writes JSON files
// under dir; "db" uses the opened database, or memory when none is configured.
func NewStore(kind string, h *db.Handle, dir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "file":
		return NewFileStore(dir)
	case "db":
		if h == nil {
			return NewInMemoryStore(), nil
		}
		switch h.Driver {
		case db.DriverPostgres:
			return NewPostgresStore(h.Pool), nil
		case db.DriverSQLite:
			return NewSQLiteStore(h.SQL), nil
		default:
			return NewInMemoryStore(), nil
		}
	case "memory":
		return NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported lead store %q", kind)
	}
}
