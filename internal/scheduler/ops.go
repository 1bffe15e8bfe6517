package scheduler

import (
	"context"
	"fmt"
	"slices"

	"github.com/me/jobd/pkg/model"
)

// AddWorker registers one idle worker. See AddWorkers.
func (s *Scheduler) AddWorker(ctx context.Context, id string, env model.Env) error {
	return s.AddWorkers(ctx, []string{id}, env)
}

// AddWorkers registers idle workers sharing env. Either all are added or,
// on a duplicate identity, none are. Reachability is the caller's concern.
func (s *Scheduler) AddWorkers(ctx context.Context, ids []string, env model.Env) error {
	return s.mutate(ctx, "add worker", func(st *model.State, _ *effects) error {
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if id == "" {
				return invalid("worker id is required")
			}
			if w, _ := st.Worker(id); w != nil || seen[id] {
				return fmt.Errorf("%w: %s", model.ErrDuplicateWorker, id)
			}
			seen[id] = true
		}
		for _, id := range ids {
			st.Workers = append(st.Workers, &model.Worker{ID: id, Status: model.WorkerIdle, Env: env.Clone()})
			s.logger.Info("worker added", "worker", id)
		}
		return nil
	})
}

// RemoveWorker deletes an idle worker at once. A busy worker is marked
// removing and deleted when its job exits; with RemoveImmediate its process
// group is also sent SIGTERM. A worker whose job is stale has no process to
// wait for and is deleted at once without a signal.
func (s *Scheduler) RemoveWorker(ctx context.Context, id string, mode model.RemoveMode) error {
	return s.mutate(ctx, "remove worker", func(st *model.State, fx *effects) error {
		w, i := st.Worker(id)
		if w == nil {
			return fmt.Errorf("%w: %s", model.ErrUnknownWorker, id)
		}
		if w.RunningJob == nil || w.RunningJob.Stale {
			st.RemoveWorkerAt(i)
			s.logger.Info("worker removed", "worker", id)
			return nil
		}

		w.Status = model.WorkerRemoving
		s.logger.Info("worker marked for removal", "worker", id, "job_id", w.RunningJob.ID, "mode", mode)
		if mode == model.RemoveImmediate {
			w.RunningJob.KillRequested = true
			// Without a pid the launch is still in flight; it signals once started.
			if w.RunningJob.PID != 0 {
				fx.terminate = append(fx.terminate, w.RunningJob.ID)
			}
		}
		return nil
	})
}

// ReleaseWorker forces a worker whose job process is not tracked back to
// idle (or deletes it if it was being removed). It fails with
// model.ErrWorkerBusy when the job's process is live. Releasing an idle
// worker is a no-op.
func (s *Scheduler) ReleaseWorker(ctx context.Context, id string) error {
	return s.mutate(ctx, "release worker", func(st *model.State, _ *effects) error {
		w, _ := st.Worker(id)
		if w == nil {
			return fmt.Errorf("%w: %s", model.ErrUnknownWorker, id)
		}
		if w.RunningJob == nil {
			return nil
		}
		if s.runner.Running(w.RunningJob.ID) {
			return fmt.Errorf("%w: %s runs job %s", model.ErrWorkerBusy, id, w.RunningJob.ID)
		}
		s.logger.Warn("worker released, job forgotten", "worker", id, "job_id", w.RunningJob.ID, "pid", w.RunningJob.PID)
		s.releaseLocked(w)
		return nil
	})
}

// AddJob appends spec to the queue. See AddJobs.
func (s *Scheduler) AddJob(ctx context.Context, spec model.JobSpec) error {
	return s.AddJobs(ctx, []model.JobSpec{spec})
}

// AddJobs appends specs to the queue in order. Duplicates are kept.
func (s *Scheduler) AddJobs(ctx context.Context, specs []model.JobSpec) error {
	return s.mutate(ctx, "add job", func(st *model.State, _ *effects) error {
		for _, spec := range specs {
			if spec.Executable == "" {
				return invalid("job executable is required")
			}
		}
		for _, spec := range specs {
			st.Queue = append(st.Queue, spec.Clone())
			s.logger.Info("job queued", "command", spec.Command())
		}
		return nil
	})
}

// RemoveJob drops every queued entry equal to spec and returns how many were
// dropped. No match is not an error.
func (s *Scheduler) RemoveJob(ctx context.Context, spec model.JobSpec) (int, error) {
	var removed int
	err := s.mutate(ctx, "remove job", func(st *model.State, _ *effects) error {
		before := len(st.Queue)
		st.Queue = slices.DeleteFunc(st.Queue, spec.Equal)
		removed = before - len(st.Queue)
		if removed > 0 {
			s.logger.Info("jobs unqueued", "command", spec.Command(), "count", removed)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// LoadStatus replaces the whole state with next. Processes of running jobs
// absent from next are neither signalled nor tracked any longer; their exits
// are ignored. Running jobs in next whose process is live here stay managed,
// all others are marked stale.
func (s *Scheduler) LoadStatus(ctx context.Context, next *model.State) error {
	if next == nil {
		return invalid("state is required")
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next = next.Clone()
	return s.mutate(ctx, "load status", func(st *model.State, _ *effects) error {
		for _, w := range next.Workers {
			if w.RunningJob == nil {
				continue
			}
			w.RunningJob.Stale = !s.runner.Running(w.RunningJob.ID)
		}
		next.LastJobID = max(st.LastJobID, next.MaxJobID())
		*st = *next
		s.logger.Warn("state replaced", "workers", len(st.Workers), "queue", len(st.Queue))
		return nil
	})
}
