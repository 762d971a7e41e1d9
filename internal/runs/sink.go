package runs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/scheduler"
)

// Sink records run lifecycle notifications from the scheduler. Failures are
// logged and swallowed: history keeping must never break dispatch.
type Sink struct {
	store *Store
}

// NewSink creates a sink writing to the given store.
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

// RunStarted inserts a running record and returns its id.
func (s *Sink) RunStarted(w *scheduler.Workflow, startedAt time.Time, workspacePath string) string {
	rec := &Record{
		ID:            uuid.New().String(),
		WorkflowID:    w.ID,
		WorkflowName:  w.Name,
		Status:        StatusRunning,
		StartedAt:     startedAt,
		WorkspacePath: workspacePath,
	}

	if err := s.store.Create(context.Background(), rec); err != nil {
		log.Error().
			Err(err).
			Str("workflow_id", w.ID).
			Msg("Failed to record run start")
		return ""
	}
	return rec.ID
}

// RunFinished marks the record terminal with the run's result.
func (s *Sink) RunFinished(runID string, output string, runErr error) {
	if runID == "" {
		return
	}

	status := StatusCompleted
	errMsg := ""
	if runErr != nil {
		status = StatusFailed
		errMsg = runErr.Error()
	}

	if err := s.store.Finish(context.Background(), runID, status, time.Now().UTC(), output, errMsg); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("Failed to record run result")
	}
}
