package scheduler

import (
	"encoding/json"
	"fmt"
)

// workflowAlias avoids recursing into the custom marshalers.
type workflowAlias Workflow

type workflowWire struct {
	workflowAlias
	ScheduleConfig json.RawMessage `json:"schedule_config"`
}

// MarshalJSON emits the persisted record form: all record fields plus a
// schedule_config object whose keys depend on schedule_type.
func (w Workflow) MarshalJSON() ([]byte, error) {
	cfg, err := EncodeSpec(w.Spec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(workflowWire{
		workflowAlias:  workflowAlias(w),
		ScheduleConfig: cfg,
	})
}

// UnmarshalJSON decodes a persisted record, resolving schedule_config into
// the typed spec for the record's schedule_type. Unknown extra fields are
// tolerated for forward compatibility; missing required fields are rejected.
func (w *Workflow) UnmarshalJSON(data []byte) error {
	var wire workflowWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	rec := Workflow(wire.workflowAlias)
	if rec.ID == "" {
		return fmt.Errorf("workflow record missing id")
	}
	if rec.Name == "" {
		return fmt.Errorf("workflow record %s missing name", rec.ID)
	}
	if rec.Type == "" {
		return fmt.Errorf("workflow record %s missing schedule_type", rec.ID)
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if !ValidStatus(rec.Status) {
		return fmt.Errorf("workflow record %s has unknown status %q", rec.ID, rec.Status)
	}

	spec, err := DecodeSpec(rec.Type, wire.ScheduleConfig)
	if err != nil {
		return fmt.Errorf("workflow record %s: %w", rec.ID, err)
	}
	rec.Spec = spec

	*w = rec
	return nil
}
