// Package runner starts job executables as child processes, captures their
// output in per-job log files and reports each exit exactly once.
package runner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/pkg/model"
)

// Request describes one process launch.
type Request struct {
	JobID   string
	Path    string
	Args    []string
	Env     []string // Complete environment, already merged.
	Dir     string   // Working directory; empty means the daemon's cwd.
	LogFile string   // Receives stdout and stderr; truncated on launch.
}

// Exit is the single notification delivered when a launched process ends.
type Exit struct {
	JobID    string
	PID      int
	ExitCode int    // -1 when the process was killed by a signal.
	Signal   string // Signal name, e.g. "SIGTERM", when killed by one.
	Err      error  // Set when waiting on the process failed.
	Duration time.Duration
}

// Runner launches and tracks job processes.
type Runner interface {
	// Launch starts the process and returns its pid once it is running.
	// onExit is called exactly once, from another goroutine, when it ends.
	// A process that could not be started returns a *model.LaunchError and
	// onExit is never called.
	Launch(req Request, onExit func(Exit)) (int, error)

	// Terminate sends SIGTERM to the job's process group. The resulting exit
	// is still reported through onExit.
	Terminate(jobID string) error

	// Running reports whether the job's process is live and tracked.
	Running(jobID string) bool
}

// ProcessRunner is the Runner backed by os/exec.
type ProcessRunner struct {
	mu     sync.Mutex
	procs  map[string]*exec.Cmd
	logger *slog.Logger
}

// New creates a ProcessRunner.
func New(logger *slog.Logger) *ProcessRunner {
	return &ProcessRunner{
		procs:  make(map[string]*exec.Cmd),
		logger: logging.Component(logger, "runner"),
	}
}

// Launch implements Runner.
func (r *ProcessRunner) Launch(req Request, onExit func(Exit)) (int, error) {
	launchErr := func(err error) error {
		return &model.LaunchError{JobID: req.JobID, Executable: req.Path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(req.LogFile), 0o755); err != nil {
		return 0, launchErr(fmt.Errorf("create log dir: %w", err))
	}
	logf, err := os.OpenFile(req.LogFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, launchErr(fmt.Errorf("open log file: %w", err))
	}
	// The child holds its own descriptor once started.
	defer logf.Close()

	cmd := exec.Command(req.Path, req.Args...)
	cmd.Env = req.Env
	cmd.Dir = req.Dir
	cmd.Stdout = logf
	cmd.Stderr = logf
	cmd.SysProcAttr = sysProcAttr()

	r.mu.Lock()
	if _, dup := r.procs[req.JobID]; dup {
		r.mu.Unlock()
		return 0, launchErr(errors.New("job is already running"))
	}
	started := time.Now()
	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		fmt.Fprintf(logf, "jobd: cannot start %s: %v\n", req.Path, err)
		return 0, launchErr(err)
	}
	pid := cmd.Process.Pid
	r.procs[req.JobID] = cmd
	r.mu.Unlock()

	r.logger.Info("job started", "job_id", req.JobID, "pid", pid, "path", req.Path, "log_file", req.LogFile)

	go r.watch(req.JobID, cmd, started, onExit)
	return pid, nil
}

// watch waits for the process and reports its exit.
func (r *ProcessRunner) watch(jobID string, cmd *exec.Cmd, started time.Time, onExit func(Exit)) {
	waitErr := cmd.Wait()

	exit := Exit{
		JobID:    jobID,
		PID:      cmd.Process.Pid,
		ExitCode: cmd.ProcessState.ExitCode(),
		Signal:   exitSignal(cmd.ProcessState),
		Duration: time.Since(started),
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		exit.Err = waitErr
	}

	r.mu.Lock()
	delete(r.procs, jobID)
	r.mu.Unlock()

	r.logger.Info("job exited",
		"job_id", jobID,
		"pid", exit.PID,
		"exit_code", exit.ExitCode,
		"signal", exit.Signal,
		"duration", exit.Duration,
	)
	if onExit != nil {
		onExit(exit)
	}
}

// Terminate implements Runner.
func (r *ProcessRunner) Terminate(jobID string) error {
	r.mu.Lock()
	cmd, ok := r.procs[jobID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("terminate %s: %w", jobID, model.ErrUnknownJob)
	}

	pid := cmd.Process.Pid
	r.logger.Info("terminating job", "job_id", jobID, "pid", pid)
	if err := signalGroup(cmd.Process); err != nil {
		return fmt.Errorf("terminate %s (pid %d): %w", jobID, pid, err)
	}
	return nil
}

// Running implements Runner.
func (r *ProcessRunner) Running(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[jobID]
	return ok
}
