package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/scheduler"
)

// WorkflowHandlers handles workflow scheduling endpoints.
type WorkflowHandlers struct {
	sched *scheduler.Scheduler
}

// NewWorkflowHandlers creates new workflow handlers.
func NewWorkflowHandlers(sched *scheduler.Scheduler) *WorkflowHandlers {
	return &WorkflowHandlers{sched: sched}
}

// CreateWorkflowRequest is the request body for scheduling a workflow.
type CreateWorkflowRequest struct {
	Name              string                 `json:"name"`
	Description       string                 `json:"description"`
	Goal              string                 `json:"goal"`
	Type              scheduler.ScheduleType `json:"schedule_type"`
	Config            json.RawMessage        `json:"schedule_config"`
	MaxRuns           *int                   `json:"max_runs,omitempty"`
	WorkspaceTemplate string                 `json:"workspace_template,omitempty"`
	AgentTypes        []string               `json:"agent_types,omitempty"`
	Notifications     map[string]bool        `json:"notifications,omitempty"`
	Metadata          map[string]any         `json:"metadata,omitempty"`
}

// Create handles POST /api/workflows.
func (h *WorkflowHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "Invalid JSON body: "+err.Error())
		return
	}

	workflow, err := h.sched.Create(scheduler.CreateRequest{
		Name:              req.Name,
		Description:       req.Description,
		Goal:              req.Goal,
		Type:              req.Type,
		Config:            req.Config,
		MaxRuns:           req.MaxRuns,
		WorkspaceTemplate: req.WorkspaceTemplate,
		AgentTypes:        req.AgentTypes,
		Notifications:     req.Notifications,
		Metadata:          req.Metadata,
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidScheduleConfig) {
			BadRequest(w, err.Error())
			return
		}
		log.Error().Err(err).Str("name", req.Name).Msg("Failed to schedule workflow")
		InternalError(w, "Failed to schedule workflow")
		return
	}

	JSON(w, http.StatusCreated, workflow)
}

// List handles GET /api/workflows.
func (h *WorkflowHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := scheduler.ListOptions{
		NamePattern: r.URL.Query().Get("name"),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		if !scheduler.ValidStatus(scheduler.ScheduleStatus(status)) {
			BadRequest(w, "Unknown status: "+status)
			return
		}
		opts.Status = scheduler.ScheduleStatus(status)
	}

	workflows, err := h.sched.List(opts)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

// Get handles GET /api/workflows/{id}.
func (h *WorkflowHandlers) Get(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.sched.Get(r.PathValue("id"))
	if !ok {
		NotFound(w, "Workflow not found")
		return
	}
	JSON(w, http.StatusOK, workflow)
}

// Delete handles DELETE /api/workflows/{id}.
func (h *WorkflowHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.sched.Delete(r.PathValue("id")) {
		NotFound(w, "Workflow not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Pause handles POST /api/workflows/{id}/pause.
func (h *WorkflowHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "pause", h.sched.Pause)
}

// Resume handles POST /api/workflows/{id}/resume.
func (h *WorkflowHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resume", h.sched.Resume)
}

// Cancel handles POST /api/workflows/{id}/cancel.
func (h *WorkflowHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", h.sched.Cancel)
}

// transition distinguishes a missing workflow from one whose current state
// rejects the action.
func (h *WorkflowHandlers) transition(w http.ResponseWriter, r *http.Request, action string, fn func(string) bool) {
	id := r.PathValue("id")

	if fn(id) {
		workflow, _ := h.sched.Get(id)
		JSON(w, http.StatusOK, workflow)
		return
	}

	workflow, ok := h.sched.Get(id)
	if !ok {
		NotFound(w, "Workflow not found")
		return
	}
	Conflict(w, "Cannot "+action+" workflow in state "+string(workflow.Status))
}

// Upcoming handles GET /api/upcoming.
func (h *WorkflowHandlers) Upcoming(w http.ResponseWriter, r *http.Request) {
	within := 24 * time.Hour
	if param := r.URL.Query().Get("within"); param != "" {
		d, err := time.ParseDuration(param)
		if err != nil || d <= 0 {
			BadRequest(w, "Invalid within duration: "+param)
			return
		}
		within = d
	}

	upcoming := h.sched.Upcoming(within)
	JSON(w, http.StatusOK, map[string]any{
		"within":   within.String(),
		"upcoming": upcoming,
		"count":    len(upcoming),
	})
}

// Dispatch handles POST /api/dispatch, running one dispatch cycle without
// waiting for the next poll tick.
func (h *WorkflowHandlers) Dispatch(w http.ResponseWriter, r *http.Request) {
	if err := h.sched.DispatchDue(r.Context()); err != nil {
		log.Error().Err(err).Msg("Manual dispatch failed")
		InternalError(w, "Dispatch failed")
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}
