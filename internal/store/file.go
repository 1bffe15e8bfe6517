package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/pkg/model"
)

// FileStore keeps the snapshot as a single JSON document.
//
// Save writes <path>.tmp, fsyncs it, renames it over <path> and fsyncs the
// directory, so the file at path is always either the old or the new
// snapshot.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
}

// fileSnapshot is the on-disk document. Version guards future layout changes.
type fileSnapshot struct {
	Version int          `json:"version"`
	State   *model.State `json:"state"`
}

const fileSnapshotVersion = 1

// NewFileStore returns a FileStore writing to path, creating its directory.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{
		path:   path,
		logger: logging.Component(logger, "store", "driver", "file"),
	}, nil
}

// Load reads the snapshot. A missing file returns model.ErrNoState.
func (s *FileStore) Load(_ context.Context) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.ErrNoState
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: "load", Err: err}
	}

	var snap fileSnapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, s.corrupt(err)
	}
	if snap.Version != fileSnapshotVersion {
		return nil, s.corrupt(fmt.Errorf("unsupported version %d", snap.Version))
	}
	if snap.State == nil {
		return nil, s.corrupt(errors.New("missing state"))
	}
	if snap.State.Workers == nil {
		snap.State.Workers = []*model.Worker{}
	}
	if snap.State.Queue == nil {
		snap.State.Queue = []model.JobSpec{}
	}
	if err := snap.State.Validate(); err != nil {
		return nil, s.corrupt(err)
	}
	s.logger.Debug("snapshot loaded", "path", s.path, "workers", len(snap.State.Workers), "queue", len(snap.State.Queue))
	return snap.State, nil
}

// Save atomically replaces the snapshot.
func (s *FileStore) Save(_ context.Context, st *model.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(fileSnapshot{Version: fileSnapshotVersion, State: st}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	s.logger.Debug("snapshot saved", "path", s.path, "bytes", len(data))
	return nil
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) corrupt(err error) error {
	return &model.StateCorruptionError{Path: s.path, Err: err}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
