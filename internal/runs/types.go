// Package runs keeps the per-dispatch history of workflow executions in
// SQLite, separate from the schedule table itself.
package runs

import "time"

// Status represents the state of a single workflow run.
type Status string

const (
	// StatusRunning indicates the orchestrator is still working.
	StatusRunning Status = "running"
	// StatusCompleted indicates the run finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the run ended with an error.
	StatusFailed Status = "failed"
)

// Record is one workflow run.
type Record struct {
	ID            string     `json:"id"`
	WorkflowID    string     `json:"workflow_id"`
	WorkflowName  string     `json:"workflow_name"`
	Status        Status     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMs    int        `json:"duration_ms"`
	Output        string     `json:"output,omitempty"`
	Error         string     `json:"error,omitempty"`
	WorkspacePath string     `json:"workspace_path,omitempty"`
}
