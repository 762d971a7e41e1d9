package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/scheduler"
)

// EventsHandler streams scheduler activity over a WebSocket: workflow
// creation, fires, completions, failures and state changes.
type EventsHandler struct {
	sched          *scheduler.Scheduler
	originPatterns []string
}

// NewEventsHandler creates a new event stream handler.
func NewEventsHandler(sched *scheduler.Scheduler, originPatterns []string) *EventsHandler {
	if len(originPatterns) == 0 {
		originPatterns = []string{"*"}
	}
	return &EventsHandler{
		sched:          sched,
		originPatterns: originPatterns,
	}
}

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
)

// Stream handles GET /api/events.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}

	events, cancel := h.sched.Subscribe(eventBuffer)
	defer cancel()

	// Clients never send anything meaningful; CloseRead cancels the context
	// when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("Event stream connected")

	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "scheduler shutting down")
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					log.Debug().Err(err).Msg("Event stream write error")
				}
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}
