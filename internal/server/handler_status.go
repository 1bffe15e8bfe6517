package server

import (
	"net/http"

	"github.com/me/jobd/pkg/model"
)

// handleGetStatus returns the full scheduler state.
// GET /api/v1/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.engine.Status())
}

// handleLoadStatus replaces the scheduler state. Processes of running jobs
// missing from the new state keep running unmanaged.
// PUT /api/v1/status
func (s *Server) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var st model.State
	if !decodeBody(w, r, reqID, &st) {
		return
	}
	if st.Workers == nil {
		st.Workers = []*model.Worker{}
	}
	if st.Queue == nil {
		st.Queue = []model.JobSpec{}
	}
	if err := s.engine.LoadStatus(r.Context(), &st); err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	s.logger.Warn("state replaced by operator", "request_id", reqID, "workers", len(st.Workers), "queue", len(st.Queue))
	respondOK(w, reqID, s.engine.Status())
}

// handleShutdown acknowledges and then stops the daemon.
// POST /api/v1/shutdown
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.shutdown == nil {
		respondError(w, reqID, http.StatusServiceUnavailable, &model.APIError{
			Code:    model.ErrUnavailable,
			Message: "shutdown is not enabled on this server",
		})
		return
	}
	s.logger.Info("shutdown requested", "request_id", reqID)
	respondJSON(w, http.StatusAccepted, reqID, map[string]string{"status": "stopping"}, nil)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	go s.shutdown()
}
