package model

import "time"

// Response is the standard API response envelope.
type Response struct {
	Status    string    `json:"status"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Error     *APIError `json:"error"`
}

// AddWorkersRequest is the body of POST /api/v1/workers.
type AddWorkersRequest struct {
	IDs       []string `json:"ids"`
	Env       Env      `json:"env,omitempty"`
	SkipCheck bool     `json:"skip_check"`
}

// AddJobRequest is the body of POST /api/v1/jobs.
type AddJobRequest struct {
	JobSpec
	Count int `json:"count,omitempty"`
}

// RemoveJobRequest is the body of POST /api/v1/jobs/remove.
type RemoveJobRequest struct {
	Executable string   `json:"executable"`
	Args       []string `json:"args"`
}

// RemoveJobResponse reports how many queued entries were dropped.
type RemoveJobResponse struct {
	Removed int `json:"removed"`
}

// LogTail is the body of GET /api/v1/jobs/{id}/log.
type LogTail struct {
	JobID string   `json:"job_id"`
	Path  string   `json:"path"`
	Size  int64    `json:"size"`
	Lines []string `json:"lines"`
}
