// Package scheduler owns the worker/queue state machine. Every mutation is
// made under one lock and persisted before any process is launched or
// signalled on its behalf.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/internal/runner"
	"github.com/me/jobd/internal/store"
	"github.com/me/jobd/pkg/model"
)

// Config holds scheduler configuration.
type Config struct {
	LogDir  string // Per-job log files: <LogDir>/job_<id>.txt
	WorkDir string // Working directory for jobs without their own Dir.
}

// FinishHook is called after a job's completion has been committed.
type FinishHook func(model.JobResult)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now; job ids are derived from it.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithFatal replaces the handler for persistence failures outside a control
// operation. The default logs and exits the process.
func WithFatal(fn func(error)) Option {
	return func(s *Scheduler) { s.fatal = fn }
}

// WithEnviron replaces os.Environ as the base environment of every job.
func WithEnviron(fn func() []string) Option {
	return func(s *Scheduler) { s.environ = fn }
}

// WithFinishHook registers a hook run for every finished job.
func WithFinishHook(h FinishHook) Option {
	return func(s *Scheduler) { s.hooks = append(s.hooks, h) }
}

// Scheduler matches queued jobs to idle workers.
type Scheduler struct {
	mu     sync.Mutex
	state  *model.State
	closed bool

	store  store.Store
	runner runner.Runner
	config Config
	logger *slog.Logger

	now     func() time.Time
	fatal   func(error)
	environ func() []string
	hooks   []FinishHook

	// dispatching counts launches that have not yet recorded their outcome.
	// It is incremented under mu, so a Shutdown that has set closed waits for
	// every launch committed before it. The store outlives them.
	dispatching sync.WaitGroup
}

// New creates a Scheduler with an empty state. Call Recover before use.
func New(st store.Store, r runner.Runner, cfg Config, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		state:   model.NewState(),
		store:   st,
		runner:  r,
		config:  cfg,
		logger:  logging.Component(logger, "scheduler"),
		now:     time.Now,
		environ: os.Environ,
	}
	s.fatal = func(err error) {
		s.logger.Error("fatal persistence failure, exiting", "error", err)
		os.Exit(1)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// effects are side effects collected under the lock and applied after the
// state that justifies them has been persisted and the lock released.
type effects struct {
	launches  []launch
	terminate []string // job ids
}

type launch struct {
	workerID string
	jobID    string
	req      runner.Request
}

// Recover loads the last snapshot. Running jobs it contains are marked stale:
// their processes are not re-attached, so their workers stay out of rotation
// until released or removed. A first run starts from an empty state.
func (s *Scheduler) Recover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, model.ErrNoState):
		s.logger.Info("no prior state, starting empty")
		st = model.NewState()
	case err != nil:
		return err
	}

	for _, w := range st.Workers {
		if w.RunningJob == nil {
			continue
		}
		w.RunningJob.Stale = true
		s.logger.Warn("worker held out of rotation: job status unknown after restart",
			"worker", w.ID, "job_id", w.RunningJob.ID, "pid", w.RunningJob.PID, "status", w.Status)
	}
	st.LastJobID = st.MaxJobID()
	s.state = st

	fx := &effects{}
	s.assignLocked(fx)
	if err := s.store.Save(ctx, s.state); err != nil {
		return &model.PersistenceError{Op: "recover", Err: err}
	}
	s.reserveLocked(fx)
	s.logger.Info("state recovered", "workers", len(st.Workers), "queue", len(st.Queue), "last_job_id", st.LastJobID)
	s.apply(fx)
	return nil
}

// mutate runs fn on the live state, runs the assignment pass, and persists
// the result. On any failure the state is rolled back and nothing is
// launched or signalled.
func (s *Scheduler) mutate(ctx context.Context, op string, fn func(st *model.State, fx *effects) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.ErrShuttingDown
	}
	prev := s.state.Clone()
	fx := &effects{}
	if err := fn(s.state, fx); err != nil {
		s.state = prev
		s.mu.Unlock()
		return err
	}
	s.assignLocked(fx)
	if err := s.store.Save(ctx, s.state); err != nil {
		s.state = prev
		s.mu.Unlock()
		return &model.PersistenceError{Op: op, Err: err}
	}
	s.reserveLocked(fx)
	s.mu.Unlock()

	s.apply(fx)
	return nil
}

// commitLocked persists a change made outside a control operation. A failure
// is fatal: in-memory state would otherwise run ahead of the snapshot.
func (s *Scheduler) commitLocked(op string) bool {
	if err := s.store.Save(context.Background(), s.state); err != nil {
		s.fatal(&model.PersistenceError{Op: op, Err: err})
		return false
	}
	return true
}

// assignLocked pairs the oldest queued job with the first idle worker, in
// registration order, until no pair remains.
func (s *Scheduler) assignLocked(fx *effects) {
	if s.closed {
		return
	}
	for len(s.state.Queue) > 0 {
		w := s.firstIdleLocked()
		if w == nil {
			return
		}
		spec := s.state.Queue[0]
		s.state.Queue = s.state.Queue[1:]

		id := s.nextJobIDLocked()
		rj := &model.RunningJob{
			ID:        id,
			Spec:      spec,
			Command:   spec.Command(),
			LogFile:   filepath.Join(s.config.LogDir, "job_"+id+".txt"),
			StartedAt: s.now().UTC(),
		}
		w.Status = model.WorkerBusy
		w.RunningJob = rj

		dir := spec.Dir
		if dir == "" {
			dir = s.config.WorkDir
		}
		fx.launches = append(fx.launches, launch{
			workerID: w.ID,
			jobID:    id,
			req: runner.Request{
				JobID:   id,
				Path:    spec.Executable,
				Args:    spec.Args,
				Env:     model.MergeEnviron(s.environ(), w.Env, spec.Env, model.Env{"JOB_ID": id, "SLAVE_IP": w.ID}),
				Dir:     dir,
				LogFile: rj.LogFile,
			},
		})
		s.logger.Info("job assigned", "job_id", id, "worker", w.ID, "command", rj.Command)
	}
}

func (s *Scheduler) firstIdleLocked() *model.Worker {
	for _, w := range s.state.Workers {
		if w.Status == model.WorkerIdle {
			return w
		}
	}
	return nil
}

// nextJobIDLocked returns the assignment time in Unix milliseconds, bumped
// past the last issued id when the clock has not advanced.
func (s *Scheduler) nextJobIDLocked() string {
	n := s.now().UnixMilli()
	if n <= s.state.LastJobID {
		n = s.state.LastJobID + 1
	}
	s.state.LastJobID = n
	return strconv.FormatInt(n, 10)
}

// reserveLocked counts fx's launches as in flight. It must run under mu, after
// the state that justifies them is committed and before apply.
func (s *Scheduler) reserveLocked(fx *effects) {
	s.dispatching.Add(len(fx.launches))
}

// apply performs side effects. Launches must already be reserved.
func (s *Scheduler) apply(fx *effects) {
	for _, jobID := range fx.terminate {
		if err := s.runner.Terminate(jobID); err != nil {
			s.logger.Warn("terminate failed", "job_id", jobID, "error", err)
		}
	}
	for _, l := range fx.launches {
		go s.start(l)
	}
}

// start launches one assigned job and records the outcome.
func (s *Scheduler) start(l launch) {
	defer s.dispatching.Done()

	pid, err := s.runner.Launch(l.req, s.onExit)
	if err != nil {
		s.launchFailed(l, err)
		return
	}

	s.mu.Lock()
	w := s.state.WorkerByJob(l.jobID)
	if w == nil {
		// Already finished, or replaced by a status load.
		s.mu.Unlock()
		return
	}
	w.RunningJob.PID = pid
	kill := w.RunningJob.KillRequested
	ok := s.commitLocked("record pid")
	s.mu.Unlock()

	if ok && kill {
		if err := s.runner.Terminate(l.jobID); err != nil {
			s.logger.Warn("terminate failed", "job_id", l.jobID, "error", err)
		}
	}
}

// launchFailed drops a job that could not be started. Its worker becomes
// idle again, or is deleted if it was being removed.
func (s *Scheduler) launchFailed(l launch, err error) {
	s.logger.Error("job launch failed, dropping job", "job_id", l.jobID, "worker", l.workerID, "error", err)

	s.mu.Lock()
	w := s.state.WorkerByJob(l.jobID)
	if w == nil {
		s.mu.Unlock()
		return
	}
	s.releaseLocked(w)
	fx := &effects{}
	s.assignLocked(fx)
	ok := s.commitLocked("drop failed launch")
	if ok {
		s.reserveLocked(fx)
	}
	s.mu.Unlock()

	if ok {
		s.apply(fx)
	}
}

// onExit is the runner's completion callback.
func (s *Scheduler) onExit(exit runner.Exit) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Info("job exit after shutdown ignored", "job_id", exit.JobID, "exit_code", exit.ExitCode)
		return
	}
	w := s.state.WorkerByJob(exit.JobID)
	if w == nil {
		s.mu.Unlock()
		s.logger.Warn("exit for untracked job ignored", "job_id", exit.JobID, "pid", exit.PID, "exit_code", exit.ExitCode)
		return
	}
	result := model.JobResult{
		Job:      *w.RunningJob,
		WorkerID: w.ID,
		ExitCode: exit.ExitCode,
		Signal:   exit.Signal,
		Duration: exit.Duration,
	}
	if result.Job.PID == 0 {
		result.Job.PID = exit.PID
	}
	s.releaseLocked(w)
	fx := &effects{}
	s.assignLocked(fx)
	ok := s.commitLocked("complete job " + exit.JobID)
	if ok {
		s.reserveLocked(fx)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.logger.Info("job finished", "job_id", exit.JobID, "worker", result.WorkerID, "exit_code", exit.ExitCode, "signal", exit.Signal)
	s.apply(fx)
	for _, h := range s.hooks {
		h(result)
	}
}

// releaseLocked clears w's running job: a removing worker is deleted, any
// other becomes idle.
func (s *Scheduler) releaseLocked(w *model.Worker) {
	w.RunningJob = nil
	if w.Status == model.WorkerRemoving {
		if _, i := s.state.Worker(w.ID); i >= 0 {
			s.state.RemoveWorkerAt(i)
		}
		s.logger.Info("worker removed", "worker", w.ID)
		return
	}
	w.Status = model.WorkerIdle
}

// Shutdown stops control operations, assignment and completion handling.
// Running jobs are not signalled or waited for; Shutdown only waits for
// launches already committed to record their pid. No launch starts after it
// returns.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.dispatching.Wait()
	s.logger.Info("scheduler stopped")
}

// Status returns a deep copy of the current state.
func (s *Scheduler) Status() *model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidState}, args...)...)
}
