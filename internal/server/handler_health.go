package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/me/jobd/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Workers   int    `json:"workers"`
	Busy      int    `json:"busy"`
	Queued    int    `json:"queued"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	st := s.engine.Status()
	busy := 0
	for _, wk := range st.Workers {
		if wk.Status != model.WorkerIdle {
			busy++
		}
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Workers:   len(st.Workers),
		Busy:      busy,
		Queued:    len(st.Queue),
	})
}
