package model

import (
	"errors"
	"testing"
)

func busyWorker(id, jobID string) *Worker {
	return &Worker{
		ID:     id,
		Status: WorkerBusy,
		RunningJob: &RunningJob{
			ID:   jobID,
			Spec: JobSpec{Executable: "wc.sh", Args: []string{"d"}},
		},
	}
}

func TestState_Validate(t *testing.T) {
	tests := []struct {
		name  string
		state *State
		ok    bool
	}{
		{"empty", NewState(), true},
		{"idle and busy", &State{Workers: []*Worker{{ID: "w1", Status: WorkerIdle}, busyWorker("w2", "100")}}, true},
		{"duplicate worker", &State{Workers: []*Worker{{ID: "w1", Status: WorkerIdle}, {ID: "w1", Status: WorkerIdle}}}, false},
		{"empty id", &State{Workers: []*Worker{{Status: WorkerIdle}}}, false},
		{"unknown status", &State{Workers: []*Worker{{ID: "w1", Status: "sleeping"}}}, false},
		{"busy without job", &State{Workers: []*Worker{{ID: "w1", Status: WorkerBusy}}}, false},
		{"idle with job", &State{Workers: []*Worker{{ID: "w1", Status: WorkerIdle, RunningJob: &RunningJob{ID: "1"}}}}, false},
		{"job shared", &State{Workers: []*Worker{busyWorker("w1", "7"), busyWorker("w2", "7")}}, false},
		{"queued without executable", &State{Queue: []JobSpec{{Args: []string{"x"}}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidState) {
					t.Errorf("error %v does not wrap ErrInvalidState", err)
				}
			}
		})
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	s := &State{
		Workers:   []*Worker{busyWorker("w1", "5"), {ID: "w2", Status: WorkerIdle, Env: Env{"A": "1"}}},
		Queue:     []JobSpec{{Executable: "a.sh", Args: []string{"x"}}},
		LastJobID: 5,
	}
	c := s.Clone()
	c.Workers[0].RunningJob.PID = 999
	c.Workers[1].Env["A"] = "2"
	c.Queue[0].Args[0] = "y"

	if s.Workers[0].RunningJob.PID != 0 {
		t.Error("running job shared between clone and original")
	}
	if s.Workers[1].Env["A"] != "1" {
		t.Error("env shared between clone and original")
	}
	if s.Queue[0].Args[0] != "x" {
		t.Error("queue args shared between clone and original")
	}
	if c.LastJobID != 5 {
		t.Errorf("LastJobID = %d, want 5", c.LastJobID)
	}
}

func TestState_MaxJobID(t *testing.T) {
	s := &State{Workers: []*Worker{busyWorker("w1", "1700000000005")}, LastJobID: 1700000000001}
	if got := s.MaxJobID(); got != 1700000000005 {
		t.Errorf("MaxJobID = %d", got)
	}
	s.LastJobID = 1800000000000
	if got := s.MaxJobID(); got != 1800000000000 {
		t.Errorf("MaxJobID = %d", got)
	}
}

func TestWorkerStatus(t *testing.T) {
	tests := []struct {
		status WorkerStatus
		valid  bool
		hasJob bool
	}{
		{WorkerIdle, true, false},
		{WorkerBusy, true, true},
		{WorkerRemoving, true, true},
		{"draining", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.valid {
			t.Errorf("%q.Valid() = %v, want %v", tt.status, got, tt.valid)
		}
		if got := tt.status.HasJob(); got != tt.hasJob {
			t.Errorf("%q.HasJob() = %v, want %v", tt.status, got, tt.hasJob)
		}
	}
}

func TestParseRemoveMode(t *testing.T) {
	for in, want := range map[string]RemoveMode{"": RemoveWait, "wait": RemoveWait, "kill": RemoveImmediate, "immediate": RemoveImmediate} {
		got, ok := ParseRemoveMode(in)
		if !ok || got != want {
			t.Errorf("ParseRemoveMode(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseRemoveMode("force"); ok {
		t.Error("ParseRemoveMode(force) accepted")
	}
}
