package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Each Save replaces every row in
// one transaction, so the database always holds exactly one complete snapshot.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		// WAL with synchronous=FULL: a committed transaction survives power loss.
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// One writer; also keeps ":memory:" on a single shared connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		if existsNonEmpty(dbPath) {
			return nil, &model.StateCorruptionError{Path: dbPath, Err: err}
		}
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil || check != "ok" {
		db.Close()
		if err == nil {
			err = errors.New(check)
		}
		return nil, &model.StateCorruptionError{Path: dbPath, Err: err}
	}

	return &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: logging.Component(logger, "store", "driver", "sqlite"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// Save replaces the stored snapshot with st in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, st *model.State) error {
	s.logger.Debug("sql", "op", "save", "workers", len(st.Workers), "queue", len(st.Queue), "last_job_id", st.LastJobID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workers`); err != nil {
		return fmt.Errorf("clear workers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}

	for i, w := range st.Workers {
		envJSON, err := json.Marshal(envOrEmpty(w.Env))
		if err != nil {
			return fmt.Errorf("marshal env of worker %s: %w", w.ID, err)
		}
		runningJSON := ""
		if w.RunningJob != nil {
			data, err := json.Marshal(w.RunningJob)
			if err != nil {
				return fmt.Errorf("marshal running job of worker %s: %w", w.ID, err)
			}
			runningJSON = string(data)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workers (id, position, status, env, running_job) VALUES (?, ?, ?, ?, ?)`,
			w.ID, i, string(w.Status), string(envJSON), runningJSON,
		); err != nil {
			return fmt.Errorf("insert worker %s: %w", w.ID, err)
		}
	}

	for i, j := range st.Queue {
		argsJSON, err := json.Marshal(argsOrEmpty(j.Args))
		if err != nil {
			return fmt.Errorf("marshal args: %w", err)
		}
		envJSON, err := json.Marshal(envOrEmpty(j.Env))
		if err != nil {
			return fmt.Errorf("marshal env: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue (position, executable, args, env, dir) VALUES (?, ?, ?, ?, ?)`,
			i, j.Executable, string(argsJSON), string(envJSON), j.Dir,
		); err != nil {
			return fmt.Errorf("insert queued job %d: %w", i, err)
		}
	}

	meta := map[string]string{
		"last_job_id": strconv.FormatInt(st.LastJobID, 10),
		"saved_at":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v,
		); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load reads the stored snapshot. A database that has never been saved to
// returns model.ErrNoState.
func (s *SQLiteStore) Load(ctx context.Context) (*model.State, error) {
	s.logger.Debug("sql", "op", "load")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var lastID string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_job_id'`).Scan(&lastID)
	if err == sql.ErrNoRows {
		return nil, model.ErrNoState
	}
	if err != nil {
		return nil, s.corrupt(err)
	}

	st := model.NewState()
	if st.LastJobID, err = strconv.ParseInt(lastID, 10, 64); err != nil {
		return nil, s.corrupt(fmt.Errorf("last_job_id %q: %w", lastID, err))
	}

	if err := s.loadWorkers(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := s.loadQueue(ctx, tx, st); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, s.corrupt(err)
	}
	return st, nil
}

func (s *SQLiteStore) loadWorkers(ctx context.Context, tx *sql.Tx, st *model.State) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, status, env, running_job FROM workers ORDER BY position`)
	if err != nil {
		return s.corrupt(err)
	}
	defer rows.Close()

	for rows.Next() {
		var w model.Worker
		var status, envJSON, runningJSON string
		if err := rows.Scan(&w.ID, &status, &envJSON, &runningJSON); err != nil {
			return s.corrupt(err)
		}
		w.Status = model.WorkerStatus(status)
		if err := json.Unmarshal([]byte(envJSON), &w.Env); err != nil {
			return s.corrupt(fmt.Errorf("env of worker %s: %w", w.ID, err))
		}
		w.Env = w.Env.Clone()
		if runningJSON != "" {
			var rj model.RunningJob
			if err := json.Unmarshal([]byte(runningJSON), &rj); err != nil {
				return s.corrupt(fmt.Errorf("running job of worker %s: %w", w.ID, err))
			}
			w.RunningJob = &rj
		}
		st.Workers = append(st.Workers, &w)
	}
	if err := rows.Err(); err != nil {
		return s.corrupt(err)
	}
	return nil
}

func (s *SQLiteStore) loadQueue(ctx context.Context, tx *sql.Tx, st *model.State) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT executable, args, env, dir FROM queue ORDER BY position`)
	if err != nil {
		return s.corrupt(err)
	}
	defer rows.Close()

	for rows.Next() {
		var j model.JobSpec
		var argsJSON, envJSON string
		if err := rows.Scan(&j.Executable, &argsJSON, &envJSON, &j.Dir); err != nil {
			return s.corrupt(err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &j.Args); err != nil {
			return s.corrupt(fmt.Errorf("args of queued %s: %w", j.Executable, err))
		}
		if err := json.Unmarshal([]byte(envJSON), &j.Env); err != nil {
			return s.corrupt(fmt.Errorf("env of queued %s: %w", j.Executable, err))
		}
		j.Env = j.Env.Clone()
		st.Queue = append(st.Queue, j)
	}
	if err := rows.Err(); err != nil {
		return s.corrupt(err)
	}
	return nil
}

func (s *SQLiteStore) corrupt(err error) error {
	return &model.StateCorruptionError{Path: s.path, Err: err}
}

func existsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func envOrEmpty(e model.Env) model.Env {
	if e == nil {
		return model.Env{}
	}
	return e
}

func argsOrEmpty(a []string) []string {
	if a == nil {
		return []string{}
	}
	return a
}
