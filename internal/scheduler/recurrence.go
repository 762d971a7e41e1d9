package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Spec is the recurrence policy of a workflow. One implementation exists per
// ScheduleType, each carrying its own strongly-typed configuration. Next is a
// pure function of the reference instant: no I/O, no side effects.
type Spec interface {
	// Type returns the schedule type this spec belongs to.
	Type() ScheduleType

	// Validate checks the configuration for internal consistency.
	Validate() error

	// Next computes the next trigger instant strictly relative to after.
	// ok is false when no future execution exists for this spec.
	Next(after time.Time) (next time.Time, ok bool)
}

// OnceSpec fires a single time at an absolute instant. A past-dated RunAt is
// allowed: the dispatch loop treats any next_run <= now as due, so the job
// fires on the next poll.
type OnceSpec struct {
	RunAt time.Time `json:"run_at"`
}

func (s OnceSpec) Type() ScheduleType { return ScheduleTypeOnce }

func (s OnceSpec) Validate() error {
	if s.RunAt.IsZero() {
		return fmt.Errorf("%w: once: run_at is required", ErrInvalidScheduleConfig)
	}
	return nil
}

func (s OnceSpec) Next(after time.Time) (time.Time, bool) {
	return s.RunAt, true
}

// DailySpec fires every day at hour:minute.
type DailySpec struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

func (s DailySpec) Type() ScheduleType { return ScheduleTypeDaily }

func (s DailySpec) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: daily: hour %d out of range 0-23", ErrInvalidScheduleConfig, s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: daily: minute %d out of range 0-59", ErrInvalidScheduleConfig, s.Minute)
	}
	return nil
}

func (s DailySpec) Next(after time.Time) (time.Time, bool) {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, after.Location())
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, true
}

// WeeklySpec fires weekly on a fixed weekday at hour:minute.
// DayOfWeek uses 0=Monday..6=Sunday.
type WeeklySpec struct {
	DayOfWeek int `json:"day_of_week"`
	Hour      int `json:"hour"`
	Minute    int `json:"minute"`
}

func (s WeeklySpec) Type() ScheduleType { return ScheduleTypeWeekly }

func (s WeeklySpec) Validate() error {
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return fmt.Errorf("%w: weekly: day_of_week %d out of range 0-6", ErrInvalidScheduleConfig, s.DayOfWeek)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: weekly: hour %d out of range 0-23", ErrInvalidScheduleConfig, s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: weekly: minute %d out of range 0-59", ErrInvalidScheduleConfig, s.Minute)
	}
	return nil
}

func (s WeeklySpec) Next(after time.Time) (time.Time, bool) {
	// time.Weekday counts Sunday=0; the schedule convention is Monday=0.
	refDay := (int(after.Weekday()) + 6) % 7
	daysAhead := s.DayOfWeek - refDay
	if daysAhead < 0 {
		daysAhead += 7
	}
	candidate := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, after.Location())
	candidate = candidate.AddDate(0, 0, daysAhead)
	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate, true
}

// IntervalUnit is the unit of an interval schedule.
type IntervalUnit string

const (
	UnitMinutes IntervalUnit = "minutes"
	UnitHours   IntervalUnit = "hours"
	UnitDays    IntervalUnit = "days"
)

// IntervalSpec fires every Value units. The caller passes the previous
// next_run (not wall clock) as the reference when advancing after a fire,
// which keeps the sequence drift-free under polling jitter.
type IntervalSpec struct {
	Value int          `json:"interval_value"`
	Unit  IntervalUnit `json:"interval_unit"`
}

func (s IntervalSpec) Type() ScheduleType { return ScheduleTypeInterval }

func (s IntervalSpec) Validate() error {
	if s.Value < 1 {
		return fmt.Errorf("%w: interval: interval_value must be positive, got %d", ErrInvalidScheduleConfig, s.Value)
	}
	switch s.Unit {
	case UnitMinutes, UnitHours, UnitDays:
		return nil
	default:
		return fmt.Errorf("%w: interval: unknown interval_unit %q", ErrInvalidScheduleConfig, s.Unit)
	}
}

// Duration returns the interval length.
func (s IntervalSpec) Duration() time.Duration {
	switch s.Unit {
	case UnitMinutes:
		return time.Duration(s.Value) * time.Minute
	case UnitDays:
		return time.Duration(s.Value) * 24 * time.Hour
	default:
		return time.Duration(s.Value) * time.Hour
	}
}

func (s IntervalSpec) Next(after time.Time) (time.Time, bool) {
	return after.Add(s.Duration()), true
}

// CronSpec fires on a standard 5-field cron expression.
type CronSpec struct {
	Expression string `json:"expression"`
}

// cronParser accepts minute-granularity expressions plus @hourly-style descriptors.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (s CronSpec) Type() ScheduleType { return ScheduleTypeCron }

func (s CronSpec) Validate() error {
	if s.Expression == "" {
		return fmt.Errorf("%w: cron: expression is required", ErrInvalidScheduleConfig)
	}
	if _, err := cronParser.Parse(s.Expression); err != nil {
		return fmt.Errorf("%w: cron: parsing %q: %v", ErrInvalidScheduleConfig, s.Expression, err)
	}
	return nil
}

func (s CronSpec) Next(after time.Time) (time.Time, bool) {
	sched, err := cronParser.Parse(s.Expression)
	if err != nil {
		return time.Time{}, false
	}
	return sched.Next(after), true
}

// DecodeSpec parses a schedule_config JSON object into the typed spec for the
// given schedule type, applying per-type defaults, and validates it. Unknown
// keys are tolerated; missing required keys or out-of-range values fail with
// ErrInvalidScheduleConfig.
func DecodeSpec(typ ScheduleType, raw json.RawMessage) (Spec, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var spec Spec
	switch typ {
	case ScheduleTypeOnce:
		var cfg struct {
			RunAt *string `json:"run_at"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: once: %v", ErrInvalidScheduleConfig, err)
		}
		if cfg.RunAt == nil {
			return nil, fmt.Errorf("%w: once: run_at is required", ErrInvalidScheduleConfig)
		}
		runAt, err := time.Parse(time.RFC3339, *cfg.RunAt)
		if err != nil {
			return nil, fmt.Errorf("%w: once: parsing run_at %q: %v", ErrInvalidScheduleConfig, *cfg.RunAt, err)
		}
		spec = OnceSpec{RunAt: runAt}

	case ScheduleTypeDaily:
		var cfg struct {
			Hour   *int `json:"hour"`
			Minute *int `json:"minute"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: daily: %v", ErrInvalidScheduleConfig, err)
		}
		spec = DailySpec{
			Hour:   intOr(cfg.Hour, 9),
			Minute: intOr(cfg.Minute, 0),
		}

	case ScheduleTypeWeekly:
		var cfg struct {
			DayOfWeek *int `json:"day_of_week"`
			Hour      *int `json:"hour"`
			Minute    *int `json:"minute"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: weekly: %v", ErrInvalidScheduleConfig, err)
		}
		spec = WeeklySpec{
			DayOfWeek: intOr(cfg.DayOfWeek, 0),
			Hour:      intOr(cfg.Hour, 9),
			Minute:    intOr(cfg.Minute, 0),
		}

	case ScheduleTypeInterval:
		var cfg struct {
			Value *int    `json:"interval_value"`
			Unit  *string `json:"interval_unit"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: interval: %v", ErrInvalidScheduleConfig, err)
		}
		unit := UnitHours
		if cfg.Unit != nil {
			unit = IntervalUnit(*cfg.Unit)
		}
		spec = IntervalSpec{
			Value: intOr(cfg.Value, 1),
			Unit:  unit,
		}

	case ScheduleTypeCron:
		var cfg struct {
			Expression string `json:"expression"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("%w: cron: %v", ErrInvalidScheduleConfig, err)
		}
		spec = CronSpec{Expression: cfg.Expression}

	default:
		return nil, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidScheduleConfig, typ)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// EncodeSpec serializes a spec back to its schedule_config wire form.
func EncodeSpec(spec Spec) (json.RawMessage, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encoding schedule config: %w", err)
	}
	return raw, nil
}

// AdvanceAfterFire computes the next run following a successful fire.
// Interval schedules advance from the previous next_run so that polling
// jitter never accumulates; every other recurring type advances from the
// fire instant. Once schedules never advance.
func AdvanceAfterFire(w *Workflow, firedAt time.Time) (time.Time, bool) {
	if w.Type == ScheduleTypeOnce {
		return time.Time{}, false
	}
	ref := firedAt
	if w.Type == ScheduleTypeInterval && w.NextRun != nil {
		ref = *w.NextRun
	}
	return w.Spec.Next(ref)
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}
