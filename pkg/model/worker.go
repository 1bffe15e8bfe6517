package model

// Worker is one job-processing endpoint. The engine never talks to it; its ID
// is handed to the job script as SLAVE_IP.
type Worker struct {
	ID         string       `json:"id"`
	Status     WorkerStatus `json:"status"`
	Env        Env          `json:"env,omitempty"`
	RunningJob *RunningJob  `json:"running_job,omitempty"`
}

// WorkerStatus represents the lifecycle state of a Worker.
type WorkerStatus string

const (
	WorkerIdle     WorkerStatus = "idle"
	WorkerBusy     WorkerStatus = "busy"
	WorkerRemoving WorkerStatus = "removing"
)

// Valid reports whether s is a known status.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerIdle, WorkerBusy, WorkerRemoving:
		return true
	}
	return false
}

// HasJob reports whether a worker in status s must carry a RunningJob.
func (s WorkerStatus) HasJob() bool {
	return s == WorkerBusy || s == WorkerRemoving
}

// RemoveMode selects how a busy worker is removed.
type RemoveMode string

const (
	// RemoveWait lets the current job finish, then deletes the worker.
	RemoveWait RemoveMode = "wait"
	// RemoveImmediate signals the job's process group and deletes the worker
	// once the process exits.
	RemoveImmediate RemoveMode = "immediate"
)

// ParseRemoveMode accepts "wait", "immediate" and the CLI alias "kill".
func ParseRemoveMode(s string) (RemoveMode, bool) {
	switch s {
	case "", "wait":
		return RemoveWait, true
	case "immediate", "kill":
		return RemoveImmediate, true
	}
	return "", false
}
