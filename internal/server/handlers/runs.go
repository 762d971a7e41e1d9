package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/database"
	"github.com/jefeworks/jefe/internal/runs"
)

// RunHandlers serves run history endpoints.
type RunHandlers struct {
	store *runs.Store
}

// NewRunHandlers creates new run history handlers.
func NewRunHandlers(store *runs.Store) *RunHandlers {
	return &RunHandlers{store: store}
}

const defaultRunPageSize = 50

// List handles GET /api/runs. Filters use the field:op:value form, e.g.
// filter=status:eq:failed or filter=workflow_id:eq:<id>. Runs come back
// newest first; sort=+started_at reverses the page.
func (h *RunHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts := runs.ListOptions{Limit: defaultRunPageSize}

	for _, raw := range r.URL.Query()["filter"] {
		filter, err := database.ParseFilterString(raw)
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		if filter.Op != database.OpEq {
			BadRequest(w, "Only eq filters are supported: "+raw)
			return
		}
		value, _ := filter.Value.(string)
		switch filter.Field {
		case "workflow_id":
			opts.WorkflowID = value
		case "status":
			opts.Status = runs.Status(value)
		default:
			BadRequest(w, "Unknown filter field: "+filter.Field)
			return
		}
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			BadRequest(w, "Invalid limit: "+limit)
			return
		}
		opts.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil || n < 0 {
			BadRequest(w, "Invalid offset: "+offset)
			return
		}
		opts.Offset = n
	}

	oldestFirst := false
	if sortParam := r.URL.Query().Get("sort"); sortParam != "" {
		field, order := database.ParseSortString(sortParam)
		if field != "started_at" {
			BadRequest(w, "Unsupported sort field: "+field)
			return
		}
		oldestFirst = order == database.SortAsc
	}

	records, err := h.store.List(r.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list runs")
		InternalError(w, "Failed to list runs")
		return
	}
	if oldestFirst {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}

	JSON(w, http.StatusOK, map[string]any{
		"runs":  records,
		"count": len(records),
	})
}

// ListForWorkflow handles GET /api/workflows/{id}/runs.
func (h *RunHandlers) ListForWorkflow(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context(), runs.ListOptions{
		WorkflowID: r.PathValue("id"),
		Limit:      defaultRunPageSize,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list workflow runs")
		InternalError(w, "Failed to list workflow runs")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"runs":  records,
		"count": len(records),
	})
}

// Get handles GET /api/runs/{id}.
func (h *RunHandlers) Get(w http.ResponseWriter, r *http.Request) {
	record, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			NotFound(w, "Run not found")
			return
		}
		log.Error().Err(err).Msg("Failed to get run")
		InternalError(w, "Failed to get run")
		return
	}
	JSON(w, http.StatusOK, record)
}

// Stats handles GET /api/runs/stats.
func (h *RunHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByStatus(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to count runs")
		InternalError(w, "Failed to count runs")
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	JSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"by_status": counts,
	})
}
