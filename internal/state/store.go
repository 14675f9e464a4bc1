// Package state persists per-identity run history.
//
// A history is the ordered list of RunRecords of one identity. Every
// mutation loads the full list, changes it and writes it back while holding
// the identity's lock, so a concurrent Append and Clear for the same
// identity never interleave. Different identities proceed independently.
package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/digital-iq/llm-report/internal/config"
	"github.com/digital-iq/llm-report/pkg/models"
)

// ErrInvalidIdentity is returned for empty identity keys.
var ErrInvalidIdentity = errors.New("invalid identity")

// HistoryStore defines the interface for run history persistence.
type HistoryStore interface {
	io.Closer
	// Append adds rec to the end of identity's history.
	Append(ctx context.Context, identity string, rec models.RunRecord) error
	// List returns identity's history in append order; never nil.
	List(ctx context.Context, identity string) ([]models.RunRecord, error)
	// Clear replaces identity's history with an empty list.
	Clear(ctx context.Context, identity string) error
	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.HistoryConfig) (HistoryStore, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite", "sqlite3", "postgres", "pgx":
		db, err := OpenSQL(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

func checkIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrInvalidIdentity
	}
	return nil
}
