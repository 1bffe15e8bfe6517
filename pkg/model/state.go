package model

import (
	"fmt"
	"strconv"
)

// State is the full scheduler state and the unit of persistence.
// Workers keep registration order; Queue is FIFO.
type State struct {
	Workers   []*Worker `json:"workers"`
	Queue     []JobSpec `json:"queue"`
	LastJobID int64     `json:"last_job_id"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Workers: []*Worker{}, Queue: []JobSpec{}}
}

// Clone returns a deep copy safe to hand out while the original keeps changing.
func (s *State) Clone() *State {
	out := &State{
		Workers:   make([]*Worker, 0, len(s.Workers)),
		Queue:     make([]JobSpec, 0, len(s.Queue)),
		LastJobID: s.LastJobID,
	}
	for _, w := range s.Workers {
		cw := &Worker{ID: w.ID, Status: w.Status, Env: w.Env.Clone()}
		if w.RunningJob != nil {
			rj := *w.RunningJob
			rj.Spec = w.RunningJob.Spec.Clone()
			cw.RunningJob = &rj
		}
		out.Workers = append(out.Workers, cw)
	}
	for _, j := range s.Queue {
		out.Queue = append(out.Queue, j.Clone())
	}
	return out
}

// Worker returns the worker with the given id and its index, or nil and -1.
func (s *State) Worker(id string) (*Worker, int) {
	for i, w := range s.Workers {
		if w.ID == id {
			return w, i
		}
	}
	return nil, -1
}

// WorkerByJob returns the worker running the given job id, or nil.
func (s *State) WorkerByJob(jobID string) *Worker {
	for _, w := range s.Workers {
		if w.RunningJob != nil && w.RunningJob.ID == jobID {
			return w
		}
	}
	return nil
}

// RemoveWorkerAt deletes the worker at index i, keeping order.
func (s *State) RemoveWorkerAt(i int) {
	s.Workers = append(s.Workers[:i], s.Workers[i+1:]...)
}

// MaxJobID returns the largest numeric running-job id in the state, or
// LastJobID if that is larger.
func (s *State) MaxJobID() int64 {
	max := s.LastJobID
	for _, w := range s.Workers {
		if w.RunningJob == nil {
			continue
		}
		if n, err := strconv.ParseInt(w.RunningJob.ID, 10, 64); err == nil && n > max {
			max = n
		}
	}
	return max
}

// Validate checks the structural invariants of a state: unique worker ids,
// busy/removing iff a running job is present, unique running job ids and
// non-empty queued executables.
func (s *State) Validate() error {
	ids := make(map[string]bool, len(s.Workers))
	jobs := make(map[string]bool)
	for i, w := range s.Workers {
		if w == nil || w.ID == "" {
			return fmt.Errorf("%w: worker %d has no id", ErrInvalidState, i)
		}
		if ids[w.ID] {
			return fmt.Errorf("%w: duplicate worker %q", ErrInvalidState, w.ID)
		}
		ids[w.ID] = true
		if !w.Status.Valid() {
			return fmt.Errorf("%w: worker %q has unknown status %q", ErrInvalidState, w.ID, w.Status)
		}
		if w.Status.HasJob() != (w.RunningJob != nil) {
			return fmt.Errorf("%w: worker %q is %s but running_job is %s",
				ErrInvalidState, w.ID, w.Status, presence(w.RunningJob != nil))
		}
		if w.RunningJob != nil {
			if w.RunningJob.ID == "" {
				return fmt.Errorf("%w: worker %q running job has no id", ErrInvalidState, w.ID)
			}
			if jobs[w.RunningJob.ID] {
				return fmt.Errorf("%w: job %s assigned twice", ErrInvalidState, w.RunningJob.ID)
			}
			jobs[w.RunningJob.ID] = true
		}
	}
	for i, j := range s.Queue {
		if j.Executable == "" {
			return fmt.Errorf("%w: queued job %d has no executable", ErrInvalidState, i)
		}
	}
	return nil
}

func presence(ok bool) string {
	if ok {
		return "set"
	}
	return "missing"
}
