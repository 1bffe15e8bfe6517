package model

import (
	"slices"
	"strings"
	"time"
)

// JobSpec is the unit that gets queued: an executable with its arguments and
// extra environment. Dir is the working directory for the run; empty means
// the daemon's configured work dir.
type JobSpec struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
	Env        Env      `json:"env,omitempty"`
	Dir        string   `json:"dir,omitempty"`
}

// Equal compares executable and arguments only. Env and Dir are not part of
// a job's identity, so remove-by-command matches regardless of them.
func (j JobSpec) Equal(o JobSpec) bool {
	return j.Executable == o.Executable && slices.Equal(j.Args, o.Args)
}

// Command renders the command line for display.
func (j JobSpec) Command() string {
	if len(j.Args) == 0 {
		return j.Executable
	}
	return j.Executable + " " + strings.Join(j.Args, " ")
}

// Clone returns a deep copy.
func (j JobSpec) Clone() JobSpec {
	out := j
	out.Args = slices.Clone(j.Args)
	if out.Args == nil {
		out.Args = []string{}
	}
	out.Env = j.Env.Clone()
	return out
}

// RunningJob is a JobSpec bound to a worker and, once started, to a process.
type RunningJob struct {
	ID        string    `json:"id"`
	Spec      JobSpec   `json:"spec"`
	Command   string    `json:"command"`
	PID       int       `json:"pid,omitempty"`
	LogFile   string    `json:"log_file"`
	StartedAt time.Time `json:"started_at"`

	// Stale marks a job whose process the daemon does not track (recovered
	// after a restart or introduced by a status load). Its worker is held out
	// of rotation until released or removed.
	Stale bool `json:"stale,omitempty"`

	// KillRequested records an immediate removal that arrived before the
	// process was started; the signal is sent once the pid is known.
	KillRequested bool `json:"kill_requested,omitempty"`
}

// JobResult describes one finished job, delivered to finish hooks.
type JobResult struct {
	Job      RunningJob    `json:"job"`
	WorkerID string        `json:"worker_id"`
	ExitCode int           `json:"exit_code"`
	Signal   string        `json:"signal,omitempty"`
	Duration time.Duration `json:"duration"`
}
