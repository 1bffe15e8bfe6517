package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/jobd/pkg/model"
)

const (
	maxJobCount     = 10000
	defaultLogLines = 10
	maxLogLines     = 10000
)

type addJobResponse struct {
	Queued  int    `json:"queued"`
	Command string `json:"command"`
}

// handleAddJob queues count copies of a job.
// POST /api/v1/jobs
func (s *Server) handleAddJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.AddJobRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	if req.Executable == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "executable", Message: "executable is required"}))
		return
	}
	count := req.Count
	if count == 0 {
		count = 1
	}
	if count < 0 || count > maxJobCount {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid field",
				model.FieldError{Field: "count", Message: "count must be between 1 and " + strconv.Itoa(maxJobCount)}))
		return
	}

	specs := make([]model.JobSpec, count)
	for i := range specs {
		specs[i] = req.JobSpec.Clone()
	}
	if err := s.engine.AddJobs(r.Context(), specs); err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, addJobResponse{Queued: count, Command: req.JobSpec.Command()})
}

// handleRemoveJob drops every queued job matching executable and args.
// POST /api/v1/jobs/remove
func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.RemoveJobRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	if req.Executable == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "executable", Message: "executable is required"}))
		return
	}

	n, err := s.engine.RemoveJob(r.Context(), model.JobSpec{Executable: req.Executable, Args: req.Args})
	if err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, model.RemoveJobResponse{Removed: n})
}

// handleJobLog returns the last lines of a job's log file.
// GET /api/v1/jobs/{id}/log?lines=N
func (s *Server) handleJobLog(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid job id",
				model.FieldError{Field: "id", Message: "job ids are decimal numbers"}))
		return
	}
	lines := defaultLogLines
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxLogLines {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid query parameter",
					model.FieldError{Field: "lines", Message: "lines must be between 0 and " + strconv.Itoa(maxLogLines)}))
			return
		}
		lines = n
	}

	path := filepath.Join(s.logDir, "job_"+id+".txt")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job log", id))
		return
	}
	if err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	tail, err := tailLines(f, info.Size(), lines)
	if err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	respondOK(w, reqID, model.LogTail{JobID: id, Path: path, Size: info.Size(), Lines: tail})
}
