package memory

import (
	"context"
	"fmt"

	"github.com/loomchat/loom/internal/config"
	loomerr "github.com/loomchat/loom/internal/errors"
)

// Store is an append-only durable table of conversation records keyed by
// session id. Once an Append is acknowledged the record is retrievable by
// any later LoadRecent for that session until ClearSession removes it.
type Store interface {
	// Append durably writes one record. Medium-level faults surface as
	// STORAGE_UNAVAILABLE errors. May block on I/O; callers on the
	// interactive path go through the Writer instead.
	Append(ctx context.Context, rec Record) error

	// LoadRecent returns up to limit most-recent records for the session
	// in ascending order. A session with no history yields an empty slice,
	// not an error.
	LoadRecent(ctx context.Context, sessionID string, limit int) ([]Record, error)

	// ClearSession deletes all records for the session. Idempotent.
	ClearSession(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Open creates a store from configuration.
func Open(cfg config.MemoryConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(cfg.Path, cfg.Table)
	case "file":
		return NewFileStore(cfg.Path)
	default:
		return nil, loomerr.New(loomerr.CodeConfigInvalid,
			fmt.Sprintf("unknown memory driver %q", cfg.Driver)).
			WithSuggestion("Set memory.driver to sqlite or file in loom.yaml")
	}
}

// unavailable wraps a driver fault as a STORAGE_UNAVAILABLE error.
func unavailable(op string, err error) error {
	return loomerr.Wrap(loomerr.CodeStorageUnavailable, op, err)
}
