package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/metrics"
)

// RunRequest carries everything the orchestrator needs for one fire.
type RunRequest struct {
	WorkflowID    string
	Name          string
	Goal          string
	WorkspacePath string
	AgentTypes    []string
}

// Orchestrator executes one workflow run for a goal inside a workspace.
// The result body is opaque to the scheduler beyond success or failure.
type Orchestrator interface {
	Run(ctx context.Context, req RunRequest) (string, error)
}

// OrchestratorFactory produces a fresh orchestrator per dispatch, isolating
// failures between runs.
type OrchestratorFactory func() Orchestrator

// WorkspaceFactory provides an execution directory for a fired workflow.
// The template is opaque to the scheduler.
type WorkspaceFactory interface {
	Ensure(template, workflowName string, at time.Time) (string, error)
}

// RunSink receives run lifecycle notifications for history keeping. All
// methods are best-effort: sink failures never affect dispatch.
type RunSink interface {
	RunStarted(w *Workflow, startedAt time.Time, workspacePath string) (runID string)
	RunFinished(runID string, output string, runErr error)
}

// Scheduler owns the in-memory schedule table and the background dispatch
// loop. One mutex serializes every table mutation and every full-table
// persist; orchestrator invocations run outside the lock.
type Scheduler struct {
	store      *Store
	factory    OrchestratorFactory
	workspaces WorkspaceFactory
	runs       RunSink

	pollInterval time.Duration

	mu    sync.Mutex
	table map[string]*Workflow

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options configures optional scheduler collaborators.
type Options struct {
	// PollInterval is how often the dispatch loop wakes up (default: 1 minute).
	PollInterval time.Duration
	// Workspaces provides run directories; nil means runs execute with an
	// empty workspace path.
	Workspaces WorkspaceFactory
	// Runs receives run history notifications; nil disables history.
	Runs RunSink
}

// New creates a scheduler over the given store and orchestrator factory.
func New(store *Store, factory OrchestratorFactory, opts Options) *Scheduler {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		store:        store,
		factory:      factory,
		workspaces:   opts.Workspaces,
		runs:         opts.Runs,
		pollInterval: opts.PollInterval,
		table:        make(map[string]*Workflow),
		subs:         make(map[int]chan Event),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// LoadTable reads the persisted table into memory. A corrupt table is
// recovered as empty and logged rather than failing the process. Records
// persisted mid-run by a crashed process return to pending.
func (s *Scheduler) LoadTable() {
	workflows, err := s.store.Load()
	if err != nil {
		log.Error().
			Err(err).
			Str("path", s.store.Path()).
			Msg("Schedule table unreadable, starting with empty table")
		workflows = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.table = make(map[string]*Workflow, len(workflows))
	now := time.Now().UTC()
	for _, w := range workflows {
		normalizeLoaded(w, now)
		s.table[w.ID] = w
	}

	log.Info().
		Int("count", len(s.table)).
		Str("path", s.store.Path()).
		Msg("Schedule table loaded")
}

// normalizeLoaded repairs state that only a crash can produce: a run that was
// in flight when the process died returns to pending, and a pending record
// without a next run gets one recomputed.
func normalizeLoaded(w *Workflow, now time.Time) {
	if w.Status == StatusRunning {
		log.Warn().
			Str("workflow_id", w.ID).
			Str("name", w.Name).
			Msg("Workflow was mid-run at last shutdown, returning to pending")
		w.Status = StatusPending
	}
	if w.Status == StatusPending && w.NextRun == nil {
		if next, ok := w.Spec.Next(now); ok {
			w.NextRun = &next
		}
	}
}

// CreateRequest carries the inputs for scheduling a new workflow.
type CreateRequest struct {
	Name              string
	Description       string
	Goal              string
	Type              ScheduleType
	Config            json.RawMessage
	MaxRuns           *int
	WorkspaceTemplate string
	AgentTypes        []string
	Notifications     map[string]bool
	Metadata          map[string]any
}

// Create validates the schedule config, computes the initial next run,
// persists a new pending record and returns it. Fails with
// ErrInvalidScheduleConfig before anything is persisted on bad input.
func (s *Scheduler) Create(req CreateRequest) (*Workflow, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidScheduleConfig)
	}
	spec, err := DecodeSpec(req.Type, req.Config)
	if err != nil {
		return nil, err
	}
	if req.MaxRuns != nil && *req.MaxRuns < 1 {
		return nil, fmt.Errorf("%w: max_runs must be positive, got %d", ErrInvalidScheduleConfig, *req.MaxRuns)
	}

	now := time.Now().UTC()
	w := &Workflow{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Description:       req.Description,
		Goal:              req.Goal,
		Type:              req.Type,
		Spec:              spec,
		Status:            StatusPending,
		CreatedAt:         now,
		MaxRuns:           req.MaxRuns,
		WorkspaceTemplate: req.WorkspaceTemplate,
		AgentTypes:        req.AgentTypes,
		Notifications:     req.Notifications,
		Metadata:          req.Metadata,
	}
	// For a once schedule this is run_at itself, even when past-dated: the
	// dispatch loop treats any next_run <= now as due on the next poll.
	if next, ok := spec.Next(now); ok {
		w.NextRun = &next
	}

	s.mu.Lock()
	s.table[w.ID] = w
	err = s.persistLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("workflow_id", w.ID).
		Str("name", w.Name).
		Str("schedule_type", string(w.Type)).
		Msg("Workflow scheduled")
	s.publish(Event{Kind: EventCreated, WorkflowID: w.ID, Name: w.Name, Status: w.Status, At: now})

	return w.Clone(), nil
}

// Get returns the workflow with the given id.
func (s *Scheduler) Get(id string) (*Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.table[id]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// ListOptions filters List results.
type ListOptions struct {
	// Status keeps only workflows in the given state when non-empty.
	Status ScheduleStatus
	// NamePattern keeps only workflows whose name matches the glob.
	NamePattern string
}

// List returns workflows sorted by next run ascending, records without a
// next run last by creation time.
func (s *Scheduler) List(opts ListOptions) ([]*Workflow, error) {
	var matcher glob.Glob
	if opts.NamePattern != "" {
		var err error
		matcher, err = glob.Compile(opts.NamePattern)
		if err != nil {
			return nil, fmt.Errorf("compiling name pattern %q: %w", opts.NamePattern, err)
		}
	}

	s.mu.Lock()
	workflows := make([]*Workflow, 0, len(s.table))
	for _, w := range s.table {
		if opts.Status != "" && w.Status != opts.Status {
			continue
		}
		if matcher != nil && !matcher.Match(w.Name) {
			continue
		}
		workflows = append(workflows, w.Clone())
	}
	s.mu.Unlock()

	sort.Slice(workflows, func(i, j int) bool {
		a, b := workflows[i], workflows[j]
		switch {
		case a.NextRun != nil && b.NextRun != nil:
			if !a.NextRun.Equal(*b.NextRun) {
				return a.NextRun.Before(*b.NextRun)
			}
		case a.NextRun != nil:
			return true
		case b.NextRun != nil:
			return false
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return workflows, nil
}

// Pause excludes a pending or running workflow from dispatch, preserving its
// next run. Returns false for unknown ids or states that cannot pause.
func (s *Scheduler) Pause(id string) bool {
	return s.transition(id, EventPaused, func(w *Workflow) bool {
		if w.Status != StatusPending && w.Status != StatusRunning {
			return false
		}
		w.Status = StatusPaused
		return true
	})
}

// Resume returns a paused workflow to pending. A preserved next run already
// in the past makes it due on the next poll.
func (s *Scheduler) Resume(id string) bool {
	return s.transition(id, EventResumed, func(w *Workflow) bool {
		if w.Status != StatusPaused {
			return false
		}
		w.Status = StatusPending
		if w.NextRun == nil {
			if next, ok := w.Spec.Next(time.Now().UTC()); ok {
				w.NextRun = &next
			}
		}
		return true
	})
}

// Cancel permanently stops a workflow and clears its next run.
func (s *Scheduler) Cancel(id string) bool {
	return s.transition(id, EventCancelled, func(w *Workflow) bool {
		switch w.Status {
		case StatusPending, StatusRunning, StatusPaused, StatusFailed:
			w.Status = StatusCancelled
			w.NextRun = nil
			return true
		}
		return false
	})
}

// Delete removes the record entirely.
func (s *Scheduler) Delete(id string) bool {
	s.mu.Lock()
	w, ok := s.table[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.table, id)
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Str("workflow_id", id).Msg("Failed to persist after delete")
	}
	s.mu.Unlock()

	s.publish(Event{Kind: EventDeleted, WorkflowID: id, Name: w.Name, At: time.Now().UTC()})
	return true
}

// transition applies fn under the table lock, persists on success and emits
// an event. Returns false for unknown ids or when fn rejects the transition.
func (s *Scheduler) transition(id string, kind EventKind, fn func(*Workflow) bool) bool {
	s.mu.Lock()
	w, ok := s.table[id]
	if !ok || !fn(w) {
		s.mu.Unlock()
		return false
	}
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Str("workflow_id", id).Msg("Failed to persist state transition")
	}
	name, status := w.Name, w.Status
	s.mu.Unlock()

	s.publish(Event{Kind: kind, WorkflowID: id, Name: name, Status: status, At: time.Now().UTC()})
	return true
}

// UpcomingRun is one entry of the upcoming-runs view.
type UpcomingRun struct {
	WorkflowID  string    `json:"workflow_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	NextRun     time.Time `json:"next_run"`
}

// Upcoming returns pending workflows whose next run falls inside the window,
// soonest first.
func (s *Scheduler) Upcoming(within time.Duration) []UpcomingRun {
	now := time.Now().UTC()
	cutoff := now.Add(within)

	s.mu.Lock()
	var upcoming []UpcomingRun
	for _, w := range s.table {
		if w.Status != StatusPending || w.NextRun == nil || w.NextRun.After(cutoff) {
			continue
		}
		upcoming = append(upcoming, UpcomingRun{
			WorkflowID:  w.ID,
			Name:        w.Name,
			Description: w.Description,
			NextRun:     *w.NextRun,
		})
	}
	s.mu.Unlock()

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].NextRun.Before(upcoming[j].NextRun)
	})
	return upcoming
}

// Start begins the background dispatch loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.pollLoop(s.ctx)

	log.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("Workflow scheduler started")
}

// Stop signals the dispatch loop to finish its current cycle, waits for it,
// and flushes the table to the store. In-flight orchestrator invocations are
// never aborted.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Msg("Failed to persist table on shutdown")
	}
	s.mu.Unlock()

	s.closeSubscribers()
	log.Info().Msg("Workflow scheduler stopped")
}

// pollLoop fires due workflows once per poll interval until stopped.
func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.DispatchDue(ctx); err != nil {
				log.Error().Err(err).Msg("Dispatch cycle failed")
			}
		}
	}
}

// DispatchDue runs one dispatch cycle: fire every due workflow in next_run
// order. A single workflow's failure never stops the cycle.
func (s *Scheduler) DispatchDue(ctx context.Context) error {
	now := time.Now().UTC()

	s.mu.Lock()
	var due []string
	for id, w := range s.table {
		if w.DueAt(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return s.table[due[i]].NextRun.Before(*s.table[due[j]].NextRun)
	})
	s.mu.Unlock()

	metrics.RecordDispatchCycle(len(due))
	if len(due) == 0 {
		return nil
	}

	log.Debug().Int("due", len(due)).Msg("Dispatch cycle starting")

	for _, id := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.fire(ctx, id)
	}
	return nil
}

// fire claims one due workflow, invokes the orchestrator outside the table
// lock, and applies the resulting state transition.
func (s *Scheduler) fire(ctx context.Context, id string) {
	s.mu.Lock()
	w, ok := s.table[id]
	if !ok || !w.DueAt(time.Now().UTC()) {
		// Deleted, paused or cancelled since the cycle selected it.
		s.mu.Unlock()
		return
	}
	if w.Exhausted() {
		w.Status = StatusCompleted
		w.NextRun = nil
		if err := s.persistLocked(); err != nil {
			log.Error().Err(err).Str("workflow_id", id).Msg("Failed to persist exhausted workflow")
		}
		s.mu.Unlock()
		return
	}

	w.Status = StatusRunning
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Str("workflow_id", id).Msg("Failed to persist run claim")
	}
	name, template := w.Name, w.WorkspaceTemplate
	snapshot := w.Clone()
	s.mu.Unlock()

	firedAt := time.Now().UTC()
	log.Info().
		Str("workflow_id", id).
		Str("name", name).
		Msg("Firing workflow")
	s.publish(Event{Kind: EventFired, WorkflowID: id, Name: name, Status: StatusRunning, At: firedAt})

	workspacePath := ""
	var runErr error
	if s.workspaces != nil {
		workspacePath, runErr = s.workspaces.Ensure(template, name, firedAt)
		if runErr != nil {
			runErr = fmt.Errorf("preparing workspace: %w", runErr)
		}
	}

	runID := ""
	if s.runs != nil {
		runID = s.runs.RunStarted(snapshot, firedAt, workspacePath)
	}

	var output string
	if runErr == nil {
		output, runErr = s.factory().Run(ctx, RunRequest{
			WorkflowID:    id,
			Name:          name,
			Goal:          snapshot.Goal,
			WorkspacePath: workspacePath,
			AgentTypes:    snapshot.AgentTypes,
		})
	}
	duration := time.Since(firedAt)

	if s.runs != nil {
		s.runs.RunFinished(runID, output, runErr)
	}

	s.mu.Lock()
	w, ok = s.table[id]
	if !ok {
		// Deleted while running; nothing left to update.
		s.mu.Unlock()
		return
	}
	if w.Status != StatusRunning {
		// Cancelled or paused mid-run; the user's transition wins.
		s.mu.Unlock()
		return
	}

	var event Event
	if runErr != nil {
		event = s.applyFailureLocked(w, firedAt, runErr)
	} else {
		event = s.applySuccessLocked(w, firedAt)
	}
	if err := s.persistLocked(); err != nil {
		log.Error().Err(err).Str("workflow_id", id).Msg("Failed to persist run result")
	}
	s.mu.Unlock()

	metrics.RecordWorkflowRun(runErr == nil, duration)
	s.publish(event)
}

// applySuccessLocked advances the workflow after a successful fire.
func (s *Scheduler) applySuccessLocked(w *Workflow, firedAt time.Time) Event {
	// Compute the advance before mutating next_run: interval schedules
	// chain off the previous next_run to stay drift-free.
	next, recurs := AdvanceAfterFire(w, firedAt)

	w.LastRun = &firedAt
	w.RunCount++

	kind := EventCompleted
	switch {
	case !recurs, w.Exhausted():
		w.Status = StatusCompleted
		w.NextRun = nil
	default:
		w.Status = StatusPending
		w.NextRun = &next
	}

	log.Info().
		Str("workflow_id", w.ID).
		Str("name", w.Name).
		Int("run_count", w.RunCount).
		Str("status", string(w.Status)).
		Msg("Workflow run succeeded")

	return Event{Kind: kind, WorkflowID: w.ID, Name: w.Name, Status: w.Status, At: time.Now().UTC()}
}

// applyFailureLocked contains a failed invocation to this workflow's record.
// A once job fails terminally; a recurring job keeps its next_run untouched
// and retries on the next poll.
func (s *Scheduler) applyFailureLocked(w *Workflow, firedAt time.Time, runErr error) Event {
	w.LastRun = &firedAt
	if w.Type == ScheduleTypeOnce {
		w.Status = StatusFailed
		w.NextRun = nil
	} else {
		w.Status = StatusPending
	}

	log.Error().
		Err(runErr).
		Str("workflow_id", w.ID).
		Str("name", w.Name).
		Str("status", string(w.Status)).
		Msg("Workflow run failed")

	return Event{
		Kind:       EventFailed,
		WorkflowID: w.ID,
		Name:       w.Name,
		Status:     w.Status,
		At:         time.Now().UTC(),
		Error:      runErr.Error(),
	}
}

// persistLocked writes the full table to the store. Callers hold s.mu.
func (s *Scheduler) persistLocked() error {
	workflows := make([]*Workflow, 0, len(s.table))
	for _, w := range s.table {
		workflows = append(workflows, w)
	}
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	counts := make(map[ScheduleStatus]int, 6)
	for _, w := range workflows {
		counts[w.Status]++
	}
	metrics.UpdateWorkflowCounts(map[string]int{
		string(StatusPending):   counts[StatusPending],
		string(StatusRunning):   counts[StatusRunning],
		string(StatusCompleted): counts[StatusCompleted],
		string(StatusFailed):    counts[StatusFailed],
		string(StatusPaused):    counts[StatusPaused],
		string(StatusCancelled): counts[StatusCancelled],
	})

	return s.store.Save(workflows)
}
