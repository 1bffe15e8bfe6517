package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/jobd/pkg/model"
)

type removeWorkerResponse struct {
	ID      string           `json:"id"`
	Mode    model.RemoveMode `json:"mode"`
	Deleted bool             `json:"deleted"`
	Worker  *model.Worker    `json:"worker,omitempty"`
}

// handleAddWorkers registers idle workers after probing each one.
// POST /api/v1/workers
func (s *Server) handleAddWorkers(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.AddWorkersRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	if len(req.IDs) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "ids", Message: "at least one worker id is required"}))
		return
	}
	for _, id := range req.IDs {
		if id == "" {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid field",
					model.FieldError{Field: "ids", Message: "worker ids must not be empty"}))
			return
		}
	}

	if !req.SkipCheck && s.prober != nil {
		var unreachable []model.FieldError
		for _, id := range req.IDs {
			if err := s.prober.Probe(r.Context(), id); err != nil {
				s.logger.Warn("worker unreachable", "request_id", reqID, "worker", id, "error", err)
				unreachable = append(unreachable, model.FieldError{Field: id, Message: err.Error()})
			}
		}
		if len(unreachable) > 0 {
			respondError(w, reqID, http.StatusUnprocessableEntity, &model.APIError{
				Code:    model.ErrUnreachable,
				Message: "worker reachability check failed; use skip_check to add anyway",
				Details: unreachable,
			})
			return
		}
	}

	if err := s.engine.AddWorkers(r.Context(), req.IDs, req.Env); err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}

	st := s.engine.Status()
	added := make([]*model.Worker, 0, len(req.IDs))
	for _, id := range req.IDs {
		if wk, _ := st.Worker(id); wk != nil {
			added = append(added, wk)
		}
	}
	respondCreated(w, reqID, added)
}

// handleRemoveWorker removes a worker, waiting for or killing its job.
// DELETE /api/v1/workers/{id}?mode=wait|kill
func (s *Server) handleRemoveWorker(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	mode, ok := model.ParseRemoveMode(r.URL.Query().Get("mode"))
	if !ok {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid query parameter",
				model.FieldError{Field: "mode", Message: "mode must be wait or kill"}))
		return
	}

	if err := s.engine.RemoveWorker(r.Context(), id, mode); err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}

	wk, _ := s.engine.Status().Worker(id)
	respondOK(w, reqID, removeWorkerResponse{ID: id, Mode: mode, Deleted: wk == nil, Worker: wk})
}

// handleReleaseWorker forces a worker with an untracked job back to idle.
// POST /api/v1/workers/{id}/release
func (s *Server) handleReleaseWorker(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.engine.ReleaseWorker(r.Context(), id); err != nil {
		s.respondEngineError(w, reqID, err)
		return
	}
	wk, _ := s.engine.Status().Worker(id)
	respondOK(w, reqID, wk)
}
