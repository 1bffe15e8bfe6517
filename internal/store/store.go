package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/me/jobd/pkg/model"
)

// Store persists the whole scheduler state as one snapshot.
//
// Save must be atomic: a reader (including the next daemon after a crash)
// sees either the previous snapshot or the new one, never a mix. Save returns
// only once the snapshot is durable.
type Store interface {
	// Load returns the most recent snapshot, model.ErrNoState on first run, or
	// a *model.StateCorruptionError when a snapshot exists but is unreadable.
	Load(ctx context.Context) (*model.State, error)

	// Save durably replaces the snapshot with st.
	Save(ctx context.Context, st *model.State) error

	Close() error
}

// Open returns the Store for driver ("sqlite" or "file") at path.
func Open(ctx context.Context, driver, path string, logger *slog.Logger) (Store, error) {
	switch driver {
	case "", "sqlite":
		st, err := NewSQLiteStore(path, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate %s: %w", path, err)
		}
		return st, nil
	case "file":
		return NewFileStore(path, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
