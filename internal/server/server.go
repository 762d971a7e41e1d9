// Package server exposes the scheduler over HTTP: workflow CRUD and
// lifecycle actions, run history, upcoming runs, a websocket event stream
// and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/config"
	"github.com/jefeworks/jefe/internal/database"
	"github.com/jefeworks/jefe/internal/runs"
	"github.com/jefeworks/jefe/internal/scheduler"
	"github.com/jefeworks/jefe/internal/server/requestlog"
)

const defaultRequestLogCapacity = 1000

type Server struct {
	cfg         *config.Config
	sched       *scheduler.Scheduler
	db          *database.DB
	runs        *runs.Store
	requestLogs *requestlog.Store
	httpServer  *http.Server
	router      *Router
	version     string
}

type Option func(*Server)

// WithVersion sets the version string reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a server over the scheduler and run history store. db and
// runStore may be nil when run history is disabled; the related endpoints
// then report not found.
func New(cfg *config.Config, sched *scheduler.Scheduler, db *database.DB, runStore *runs.Store, opts ...Option) *Server {
	srv := &Server{
		cfg:         cfg,
		sched:       sched,
		db:          db,
		runs:        runStore,
		requestLogs: requestlog.NewStore(defaultRequestLogCapacity),
		version:     "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv
}

func (s *Server) Start(ctx context.Context) error {
	log.Info().
		Str("addr", s.cfg.Server.Address()).
		Msg("Starting server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.sched
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) RequestLogs() *requestlog.Store {
	return s.requestLogs
}
