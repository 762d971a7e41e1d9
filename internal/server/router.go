package server

import (
	"net/http"

	"github.com/jefeworks/jefe/internal/metrics"
	"github.com/jefeworks/jefe/internal/server/handlers"
	"github.com/jefeworks/jefe/internal/server/requestlog"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(requestlog.Middleware(r.server.requestLogs))
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	if len(r.server.cfg.Server.AllowedOrigins) > 0 {
		r.Use(CORSMiddleware(r.server.cfg.Server.AllowedOrigins))
	}
	if r.server.cfg.Server.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	wf := handlers.NewWorkflowHandlers(r.server.sched)
	r.mux.HandleFunc("GET /api/workflows", wf.List)
	r.mux.HandleFunc("POST /api/workflows", wf.Create)
	r.mux.HandleFunc("GET /api/workflows/{id}", wf.Get)
	r.mux.HandleFunc("DELETE /api/workflows/{id}", wf.Delete)
	r.mux.HandleFunc("POST /api/workflows/{id}/pause", wf.Pause)
	r.mux.HandleFunc("POST /api/workflows/{id}/resume", wf.Resume)
	r.mux.HandleFunc("POST /api/workflows/{id}/cancel", wf.Cancel)
	r.mux.HandleFunc("GET /api/upcoming", wf.Upcoming)
	r.mux.HandleFunc("POST /api/dispatch", wf.Dispatch)

	if r.server.runs != nil {
		rh := handlers.NewRunHandlers(r.server.runs)
		r.mux.HandleFunc("GET /api/runs", rh.List)
		r.mux.HandleFunc("GET /api/runs/stats", rh.Stats)
		r.mux.HandleFunc("GET /api/runs/{id}", rh.Get)
		r.mux.HandleFunc("GET /api/workflows/{id}/runs", rh.ListForWorkflow)
	}

	ev := handlers.NewEventsHandler(r.server.sched, r.server.cfg.Server.AllowedOrigins)
	r.mux.HandleFunc("GET /api/events", ev.Stream)

	logs := handlers.NewLogHandlers(r.server.requestLogs)
	r.mux.HandleFunc("GET /api/logs/requests", logs.ListRequests)

	health := handlers.NewHealthHandlers(r.server.db, r.server.sched, r.server.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.HandleFunc("GET /health/live", health.Liveness)
	r.mux.HandleFunc("GET /health/ready", health.Readiness)
	r.mux.HandleFunc("GET /{$}", health.Health)

	r.mux.Handle("GET /metrics", metrics.Handler())
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
