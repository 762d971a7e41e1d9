package scheduler

import (
	"errors"
	"time"
)

// ScheduleType represents the recurrence policy of a workflow.
type ScheduleType string

const (
	// ScheduleTypeOnce runs once at an absolute instant.
	ScheduleTypeOnce ScheduleType = "once"
	// ScheduleTypeDaily runs every day at a fixed hour:minute.
	ScheduleTypeDaily ScheduleType = "daily"
	// ScheduleTypeWeekly runs weekly on a fixed weekday at hour:minute.
	ScheduleTypeWeekly ScheduleType = "weekly"
	// ScheduleTypeInterval runs every N minutes/hours/days.
	ScheduleTypeInterval ScheduleType = "interval"
	// ScheduleTypeCron runs on a standard 5-field cron expression.
	ScheduleTypeCron ScheduleType = "cron"
)

// ScheduleStatus represents the lifecycle state of a workflow.
type ScheduleStatus string

const (
	// StatusPending indicates the workflow is waiting for its next run.
	StatusPending ScheduleStatus = "pending"
	// StatusRunning indicates the workflow is currently executing.
	StatusRunning ScheduleStatus = "running"
	// StatusCompleted indicates the workflow finished (once fired, or max runs hit).
	StatusCompleted ScheduleStatus = "completed"
	// StatusFailed indicates a one-shot workflow failed terminally.
	StatusFailed ScheduleStatus = "failed"
	// StatusPaused indicates the workflow is excluded from dispatch until resumed.
	StatusPaused ScheduleStatus = "paused"
	// StatusCancelled indicates the workflow was permanently stopped by the user.
	StatusCancelled ScheduleStatus = "cancelled"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s ScheduleStatus) bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusPaused, StatusCancelled:
		return true
	}
	return false
}

var (
	// ErrInvalidScheduleConfig indicates a schedule_config that does not match
	// its schedule_type. Rejected at creation time, before anything is persisted.
	ErrInvalidScheduleConfig = errors.New("invalid schedule config")

	// ErrCorruptStore indicates the persisted schedule table could not be read.
	// The scheduler recovers by starting with an empty table.
	ErrCorruptStore = errors.New("schedule store corrupt")
)

// Workflow is one user-defined recurring or one-off job.
type Workflow struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Goal              string          `json:"goal"`
	Type              ScheduleType    `json:"schedule_type"`
	Spec              Spec            `json:"-"`
	Status            ScheduleStatus  `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	LastRun           *time.Time      `json:"last_run,omitempty"`
	NextRun           *time.Time      `json:"next_run,omitempty"`
	RunCount          int             `json:"run_count"`
	MaxRuns           *int            `json:"max_runs,omitempty"`
	WorkspaceTemplate string          `json:"workspace_template,omitempty"`
	AgentTypes        []string        `json:"agent_types,omitempty"`
	Notifications     map[string]bool `json:"notifications,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
}

// Terminal reports whether the workflow can never be dispatched again
// without user intervention.
func (w *Workflow) Terminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusCancelled
}

// Exhausted reports whether the run-count cap has been reached.
func (w *Workflow) Exhausted() bool {
	return w.MaxRuns != nil && w.RunCount >= *w.MaxRuns
}

// DueAt reports whether the workflow should fire at the given instant.
// Only pending workflows with a next_run at or before now are due.
func (w *Workflow) DueAt(now time.Time) bool {
	return w.Status == StatusPending && w.NextRun != nil && !w.NextRun.After(now)
}

// Clone returns a deep-enough copy for handing records across the API
// boundary without exposing the scheduler's internal table entries.
func (w *Workflow) Clone() *Workflow {
	c := *w
	if w.LastRun != nil {
		t := *w.LastRun
		c.LastRun = &t
	}
	if w.NextRun != nil {
		t := *w.NextRun
		c.NextRun = &t
	}
	if w.MaxRuns != nil {
		n := *w.MaxRuns
		c.MaxRuns = &n
	}
	if w.AgentTypes != nil {
		c.AgentTypes = append([]string(nil), w.AgentTypes...)
	}
	if w.Notifications != nil {
		c.Notifications = make(map[string]bool, len(w.Notifications))
		for k, v := range w.Notifications {
			c.Notifications[k] = v
		}
	}
	if w.Metadata != nil {
		c.Metadata = make(map[string]any, len(w.Metadata))
		for k, v := range w.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
