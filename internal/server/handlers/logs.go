package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jefeworks/jefe/internal/server/requestlog"
)

// LogHandlers exposes the in-memory request log ring buffer.
type LogHandlers struct {
	store *requestlog.Store
}

// NewLogHandlers creates new request log handlers.
func NewLogHandlers(store *requestlog.Store) *LogHandlers {
	return &LogHandlers{store: store}
}

// ListRequests handles GET /api/logs/requests.
func (h *LogHandlers) ListRequests(w http.ResponseWriter, r *http.Request) {
	opts := requestlog.FilterOptions{
		Method: r.URL.Query().Get("method"),
		Path:   r.URL.Query().Get("path"),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		n, err := strconv.Atoi(status)
		if err != nil {
			BadRequest(w, "Invalid status: "+status)
			return
		}
		opts.Status = n
	}
	if minStatus := r.URL.Query().Get("min_status"); minStatus != "" {
		n, err := strconv.Atoi(minStatus)
		if err != nil {
			BadRequest(w, "Invalid min_status: "+minStatus)
			return
		}
		opts.MinStatus = n
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			BadRequest(w, "Invalid since timestamp: "+since)
			return
		}
		opts.Since = t
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

	JSON(w, http.StatusOK, h.store.List(opts))
}
