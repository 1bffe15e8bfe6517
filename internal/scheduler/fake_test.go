package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/me/jobd/internal/runner"
	"github.com/me/jobd/internal/store"
	"github.com/me/jobd/pkg/model"
)

// fakeRunner records launches and lets tests finish jobs by hand.
type fakeRunner struct {
	mu         sync.Mutex
	nextPID    int
	live       map[string]func(runner.Exit)
	pids       map[string]int
	launched   []runner.Request
	terminated []string
	failPaths  map[string]bool
	gate       chan struct{} // when set, Launch blocks until it is closed
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		nextPID:   1000,
		live:      map[string]func(runner.Exit){},
		pids:      map[string]int{},
		failPaths: map[string]bool{},
	}
}

func (f *fakeRunner) Launch(req runner.Request, onExit func(runner.Exit)) (int, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPaths[req.Path] {
		return 0, &model.LaunchError{JobID: req.JobID, Executable: req.Path, Err: errors.New("no such file")}
	}
	f.nextPID++
	f.live[req.JobID] = onExit
	f.pids[req.JobID] = f.nextPID
	f.launched = append(f.launched, req)
	return f.nextPID, nil
}

func (f *fakeRunner) Terminate(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.live[jobID]; !ok {
		return model.ErrUnknownJob
	}
	f.terminated = append(f.terminated, jobID)
	return nil
}

func (f *fakeRunner) Running(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[jobID]
	return ok
}

// finish delivers the exit of jobID synchronously.
func (f *fakeRunner) finish(t *testing.T, jobID string, code int) {
	t.Helper()
	f.mu.Lock()
	onExit, ok := f.live[jobID]
	pid := f.pids[jobID]
	delete(f.live, jobID)
	f.mu.Unlock()
	if !ok {
		t.Fatalf("finish: job %s is not running", jobID)
	}
	onExit(runner.Exit{JobID: jobID, PID: pid, ExitCode: code, Duration: time.Second})
}

func (f *fakeRunner) launches() []runner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runner.Request(nil), f.launched...)
}

func (f *fakeRunner) terminations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.terminated...)
}

// flakyStore fails Save while fail is set.
type flakyStore struct {
	store.Store
	fail atomic.Bool
}

func (s *flakyStore) Save(ctx context.Context, st *model.State) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, st)
}

// tickingClock returns a clock that advances 1ms per call from a fixed start.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

// pausingHandler discards records but blocks the first one whose message is
// msg until release is closed, signalling entered when it gets there.
type pausingHandler struct {
	slog.Handler
	msg     string
	once    *sync.Once
	entered chan struct{}
	release chan struct{}
}

func newPausingHandler(msg string) *pausingHandler {
	return &pausingHandler{
		Handler: slog.NewTextHandler(io.Discard, nil),
		msg:     msg,
		once:    &sync.Once{},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (h *pausingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(func() {
			close(h.entered)
			<-h.release
		})
	}
	return h.Handler.Handle(ctx, r)
}

func (h *pausingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.Handler = h.Handler.WithAttrs(attrs)
	return &c
}

func (h *pausingHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.Handler = h.Handler.WithGroup(name)
	return &c
}

type harness struct {
	s      *Scheduler
	runner *fakeRunner
	store  *flakyStore
	fatals chan error
	logDir string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", discardLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return newHarnessWithStore(t, st, opts...)
}

func newHarnessWithStore(t *testing.T, st store.Store, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithLogger(t, st, discardLogger(), opts...)
}

func newHarnessWithLogger(t *testing.T, st store.Store, logger *slog.Logger, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		runner: newFakeRunner(),
		store:  &flakyStore{Store: st},
		fatals: make(chan error, 8),
		logDir: filepath.Join(t.TempDir(), "logs"),
	}
	opts = append([]Option{
		WithClock(tickingClock()),
		WithFatal(func(err error) { h.fatals <- err }),
		WithEnviron(func() []string { return []string{"PATH=/bin", "JOB_ID=parent"} }),
	}, opts...)
	h.s = New(h.store, h.runner, Config{LogDir: h.logDir, WorkDir: "/srv/work"}, logger, opts...)
	if err := h.s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	return h
}

// settle waits until every dispatched launch has recorded its outcome.
func (h *harness) settle() { h.s.dispatching.Wait() }

func (h *harness) addWorker(t *testing.T, id string) {
	t.Helper()
	if err := h.s.AddWorker(context.Background(), id, nil); err != nil {
		t.Fatalf("AddWorker(%s): %v", id, err)
	}
	h.settle()
}

func (h *harness) addJob(t *testing.T, exe string, args ...string) {
	t.Helper()
	if err := h.s.AddJob(context.Background(), model.JobSpec{Executable: exe, Args: args}); err != nil {
		t.Fatalf("AddJob(%s): %v", exe, err)
	}
	h.settle()
}

func (h *harness) worker(t *testing.T, id string) *model.Worker {
	t.Helper()
	w, _ := h.s.Status().Worker(id)
	return w
}

// checkInvariants asserts the worker/job invariants on the current state.
func (h *harness) checkInvariants(t *testing.T) {
	t.Helper()
	if err := h.s.Status().Validate(); err != nil {
		t.Fatalf("invalid state: %v", err)
	}
}

func jobOf(t *testing.T, w *model.Worker) string {
	t.Helper()
	if w == nil || w.RunningJob == nil {
		t.Fatalf("worker %v has no running job", w)
	}
	return w.RunningJob.ID
}

func argsOf(r runner.Request) string { return fmt.Sprint(r.Args) }
