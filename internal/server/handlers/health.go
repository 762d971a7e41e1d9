package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jefeworks/jefe/internal/database"
	"github.com/jefeworks/jefe/internal/scheduler"
)

type HealthHandlers struct {
	db      *database.DB
	sched   *scheduler.Scheduler
	version string
}

func NewHealthHandlers(db *database.DB, sched *scheduler.Scheduler, version string) *HealthHandlers {
	return &HealthHandlers{
		db:      db,
		sched:   sched,
		version: version,
	}
}

type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Latency string       `json:"latency,omitempty"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Workflows  map[string]int             `json:"workflows"`
	Components map[string]ComponentHealth `json:"components"`
}

var startTime = time.Now()

const healthCheckTimeout = 5 * time.Second

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	components := make(map[string]ComponentHealth)
	overallStatus := HealthStatusHealthy

	if h.db != nil {
		dbHealth := h.checkDatabase(ctx)
		components["database"] = dbHealth
		if dbHealth.Status != HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	workflows := make(map[string]int)
	if h.sched != nil {
		all, err := h.sched.List(scheduler.ListOptions{})
		if err == nil {
			for _, wf := range all {
				workflows[string(wf.Status)]++
			}
		}
		components["scheduler"] = ComponentHealth{Status: HealthStatusHealthy}
	}

	resp := HealthResponse{
		Status:     overallStatus,
		Version:    h.version,
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Workflows:  workflows,
		Components: components,
	}

	JSON(w, http.StatusOK, resp)
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := h.db.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusDegraded,
			Latency: latency.String(),
			Message: "database ping failed",
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Latency: latency.String(),
	}
}

func (h *HealthHandlers) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HealthHandlers) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			JSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "database unavailable",
			})
			return
		}
	}

	JSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
