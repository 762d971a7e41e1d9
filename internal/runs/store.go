package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jefeworks/jefe/internal/database"
)

// ErrNotFound is returned when no run record exists for an id.
var ErrNotFound = errors.New("run not found")

// runColumns is the select list every read uses, in scan order.
var runColumns = []string{
	"id", "workflow_id", "workflow_name", "status",
	"started_at", "completed_at", "duration_ms",
	"output", "error", "workspace_path",
}

// Store handles database operations for run records.
type Store struct {
	db *database.DB
}

// NewStore creates a new run store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new run record.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	query, args := database.NewInsert("runs").
		Set("id", rec.ID).
		Set("workflow_id", rec.WorkflowID).
		Set("workflow_name", rec.WorkflowName).
		Set("status", string(rec.Status)).
		Set("started_at", rec.StartedAt.UTC().Format(time.RFC3339)).
		Set("completed_at", nullableTime(rec.CompletedAt)).
		Set("duration_ms", rec.DurationMs).
		Set("output", rec.Output).
		Set("error", rec.Error).
		Set("workspace_path", rec.WorkspacePath).
		Build()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

// Finish marks a run record terminal with its result.
func (s *Store) Finish(ctx context.Context, id string, status Status, completedAt time.Time, output, errMsg string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	durationMs := int(completedAt.Sub(rec.StartedAt).Milliseconds())
	if durationMs < 0 {
		durationMs = 0
	}

	query, args := database.NewUpdate("runs").
		Set("status", string(status)).
		Set("completed_at", completedAt.UTC().Format(time.RFC3339)).
		Set("duration_ms", durationMs).
		Set("output", output).
		Set("error", errMsg).
		Where("id", id).
		Build()

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating run record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get retrieves a run record by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	query, args := database.NewQuery("runs").
		Select(runColumns...).
		Where("id", id).
		Build()

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying run record: %w", err)
	}
	return rec, nil
}

// ListOptions filters List results.
type ListOptions struct {
	WorkflowID string
	Status     Status
	Limit      int
	Offset     int
}

// List retrieves run records newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Record, error) {
	q := database.NewQuery("runs").
		Select(runColumns...).
		OrderByDesc("started_at")

	if opts.WorkflowID != "" {
		q.Where("workflow_id", opts.WorkflowID)
	}
	if opts.Status != "" {
		q.Where("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q.Offset(opts.Offset)
	}

	query, args := q.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying run records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run records: %w", err)
	}
	return records, nil
}

// CountByStatus returns how many runs exist per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning run count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var startedAt string
	var completedAt sql.NullString

	if err := row.Scan(
		&rec.ID,
		&rec.WorkflowID,
		&rec.WorkflowName,
		&rec.Status,
		&startedAt,
		&completedAt,
		&rec.DurationMs,
		&rec.Output,
		&rec.Error,
		&rec.WorkspacePath,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	rec.StartedAt = t

	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}

	return &rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
