package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/me/jobd/pkg/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// drivers returns a fresh store per driver so every contract test runs twice.
func drivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, d := range []struct{ driver, path string }{
		{"sqlite", filepath.Join(dir, "state.db")},
		{"file", filepath.Join(dir, "state.json")},
	} {
		st, err := Open(context.Background(), d.driver, d.path, discardLogger())
		if err != nil {
			t.Fatalf("Open(%s): %v", d.driver, err)
		}
		t.Cleanup(func() { st.Close() })
		out[d.driver] = st
	}
	return out
}

func sampleState() *model.State {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	spec := model.JobSpec{Executable: "/opt/jobs/wc.sh", Args: []string{"data1"}, Env: model.Env{"MODE": "fast"}}
	return &model.State{
		Workers: []*model.Worker{
			{ID: "10.0.0.2", Status: model.WorkerIdle, Env: model.Env{"GPU": "0"}},
			{
				ID:     "10.0.0.1",
				Status: model.WorkerBusy,
				RunningJob: &model.RunningJob{
					ID:        "1772366400000",
					Spec:      spec,
					Command:   spec.Command(),
					PID:       4242,
					LogFile:   "logs/job_1772366400000.txt",
					StartedAt: started,
				},
			},
			{
				ID:     "10.0.0.3",
				Status: model.WorkerRemoving,
				RunningJob: &model.RunningJob{
					ID:        "1772366400001",
					Spec:      model.JobSpec{Executable: "/opt/jobs/wc.sh", Args: []string{"data2"}},
					Command:   "/opt/jobs/wc.sh data2",
					LogFile:   "logs/job_1772366400001.txt",
					StartedAt: started,
					Stale:     true,
				},
			},
		},
		Queue: []model.JobSpec{
			{Executable: "/opt/jobs/wc.sh", Args: []string{"data3"}},
			{Executable: "/opt/jobs/wc.sh", Args: []string{"data3"}, Dir: "/srv/in"},
			{Executable: "/opt/jobs/noargs.sh", Args: []string{}},
		},
		LastJobID: 1772366400001,
	}
}

func TestStore_FirstRunHasNoState(t *testing.T) {
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Load(context.Background())
			if !errors.Is(err, model.ErrNoState) {
				t.Fatalf("Load() error = %v, want ErrNoState", err)
			}
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			want := sampleState()
			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got, want)
			}
		})
	}
}

func TestStore_SaveReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	for name, st := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.Save(ctx, sampleState()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			next := model.NewState()
			next.Workers = append(next.Workers, &model.Worker{ID: "w9", Status: model.WorkerIdle})
			next.LastJobID = 7
			if err := st.Save(ctx, next); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Workers) != 1 || got.Workers[0].ID != "w9" {
				t.Errorf("Workers = %+v, want only w9", got.Workers)
			}
			if len(got.Queue) != 0 {
				t.Errorf("Queue = %+v, want empty", got.Queue)
			}
			if got.LastJobID != 7 {
				t.Errorf("LastJobID = %d, want 7", got.LastJobID)
			}
		})
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, driver := range []string{"sqlite", "file"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(dir, "state."+driver)
			st, err := Open(ctx, driver, path, discardLogger())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if err := st.Save(ctx, sampleState()); err != nil {
				t.Fatalf("Save: %v", err)
			}
			st.Close()

			st, err = Open(ctx, driver, path, discardLogger())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st.Close()
			got, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, sampleState()) {
				t.Errorf("reopened state differs: %+v", got)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "postgres", "x", discardLogger()); err == nil {
		t.Fatal("Open(postgres) returned nil error")
	}
}
