package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "jobd API",
		Version:     "v1",
		Description: "jobd control API: workers, job queue and scheduler state",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Daemon health, uptime and counts"},
			{"/api/v1/status", []string{"GET", "PUT"}, "Scheduler state snapshot. PUT replaces the whole state"},
			{"/api/v1/workers", []string{"POST"}, "Add workers. Probes reachability unless skip_check is set"},
			{"/api/v1/workers/{id}", []string{"DELETE"}, "Remove a worker. ?mode=wait (default) or kill"},
			{"/api/v1/workers/{id}/release", []string{"POST"}, "Return a worker whose job process is unknown to idle"},
			{"/api/v1/jobs", []string{"POST"}, "Queue a job, count times"},
			{"/api/v1/jobs/remove", []string{"POST"}, "Remove every queued job with the given executable and args"},
			{"/api/v1/jobs/{id}/log", []string{"GET"}, "Tail of a job's log file. ?lines=N"},
			{"/api/v1/shutdown", []string{"POST"}, "Stop the daemon; running jobs are left alone"},
		},
	})
}
