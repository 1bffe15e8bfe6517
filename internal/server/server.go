package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/pkg/model"
)

// Version is reported by /health.
const Version = "0.1.0"

// Engine is the scheduler surface the control API drives.
type Engine interface {
	AddWorkers(ctx context.Context, ids []string, env model.Env) error
	RemoveWorker(ctx context.Context, id string, mode model.RemoveMode) error
	ReleaseWorker(ctx context.Context, id string) error
	AddJobs(ctx context.Context, specs []model.JobSpec) error
	RemoveJob(ctx context.Context, spec model.JobSpec) (int, error)
	Status() *model.State
	LoadStatus(ctx context.Context, st *model.State) error
}

// Server is the jobd control API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	engine    Engine
	logDir    string
	startTime time.Time
	prober    Prober // nil disables reachability checks
	shutdown  func() // nil disables POST /shutdown
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithProber sets the reachability probe run by add-worker.
func WithProber(p Prober) Option {
	return func(s *Server) {
		s.prober = p
	}
}

// WithShutdown sets the function POST /shutdown triggers. It is called after
// the response has been written.
func WithShutdown(fn func()) Option {
	return func(s *Server) {
		s.shutdown = fn
	}
}

// New creates a new Server with all routes registered. logDir is where job
// log files live.
func New(engine Engine, logDir string, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logging.Component(logger, "server"),
		engine:    engine,
		logDir:    logDir,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Get("/status", s.handleGetStatus)
		r.Put("/status", s.handleLoadStatus)

		r.Route("/workers", func(r chi.Router) {
			r.Post("/", s.handleAddWorkers)
			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveWorker)
				r.Post("/release", s.handleReleaseWorker)
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleAddJob)
			r.Post("/remove", s.handleRemoveJob)
			r.Get("/{id}/log", s.handleJobLog)
		})

		r.Post("/shutdown", s.handleShutdown)
	})
}
