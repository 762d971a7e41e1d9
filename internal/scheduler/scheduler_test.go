package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeOrchestrator records every goal it runs and fails on demand.
type fakeOrchestrator struct {
	mu      sync.Mutex
	goals   []string
	failFor map[string]error
	onRun   func(goal string)
}

func (f *fakeOrchestrator) Run(_ context.Context, req RunRequest) (string, error) {
	f.mu.Lock()
	f.goals = append(f.goals, req.Goal)
	err := f.failFor[req.Goal]
	onRun := f.onRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(req.Goal)
	}
	if err != nil {
		return "", err
	}
	return "done: " + req.Goal, nil
}

func (f *fakeOrchestrator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.goals)
}

func newTestScheduler(t *testing.T, orch *fakeOrchestrator) *Scheduler {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "schedules.json"))
	return New(store, func() Orchestrator { return orch }, Options{
		PollInterval: 10 * time.Millisecond,
	})
}

func onceConfig(runAt time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"run_at":%q}`, runAt.Format(time.RFC3339)))
}

func pastOnceRequest(name string) CreateRequest {
	return CreateRequest{
		Name:   name,
		Goal:   "goal-" + name,
		Type:   ScheduleTypeOnce,
		Config: onceConfig(time.Now().UTC().Add(-time.Minute)),
	}
}

// forceDue backdates a workflow's next run so the next dispatch selects it.
func forceDue(s *Scheduler, id string) {
	past := time.Now().UTC().Add(-time.Minute)
	s.mu.Lock()
	s.table[id].NextRun = &past
	s.mu.Unlock()
}

func TestCreate_ComputesNextRunAndPersists(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(CreateRequest{
		Name:   "daily-report",
		Goal:   "write the report",
		Type:   ScheduleTypeDaily,
		Config: json.RawMessage(`{"hour":9,"minute":0}`),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if w.Status != StatusPending {
		t.Errorf("status = %s, want pending", w.Status)
	}
	if w.NextRun == nil {
		t.Fatal("next_run is nil, want computed trigger time")
	}
	if !w.NextRun.After(time.Now().UTC()) {
		t.Errorf("next_run = %v, want in the future", w.NextRun)
	}

	// A fresh scheduler over the same file sees the record.
	restarted := New(s.store, func() Orchestrator { return orch }, Options{})
	restarted.LoadTable()
	got, ok := restarted.Get(w.ID)
	if !ok {
		t.Fatal("workflow not found after reload")
	}
	if got.Name != "daily-report" || got.Type != ScheduleTypeDaily {
		t.Errorf("reloaded = (%s, %s), want (daily-report, daily)", got.Name, got.Type)
	}
}

func TestCreate_InvalidConfigPersistsNothing(t *testing.T) {
	s := newTestScheduler(t, &fakeOrchestrator{})

	_, err := s.Create(CreateRequest{
		Name:   "broken",
		Type:   ScheduleTypeInterval,
		Config: json.RawMessage(`{"interval_value":0}`),
	})
	if !errors.Is(err, ErrInvalidScheduleConfig) {
		t.Fatalf("Create() error = %v, want ErrInvalidScheduleConfig", err)
	}

	workflows, err := s.List(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(workflows) != 0 {
		t.Errorf("table has %d workflows after rejected create, want 0", len(workflows))
	}
	if stored, _ := s.store.Load(); len(stored) != 0 {
		t.Errorf("store has %d workflows after rejected create, want 0", len(stored))
	}
}

func TestDispatchDue_OnceFiresExactlyOnce(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("one-shot"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}
	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatalf("second DispatchDue() error = %v", err)
	}

	if got := orch.callCount(); got != 1 {
		t.Errorf("orchestrator ran %d times, want exactly 1", got)
	}

	got, _ := s.Get(w.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.RunCount != 1 {
		t.Errorf("run_count = %d, want 1", got.RunCount)
	}
	if got.NextRun != nil {
		t.Errorf("next_run = %v, want nil after terminal completion", got.NextRun)
	}
	if got.LastRun == nil {
		t.Error("last_run is nil, want fire time")
	}
}

func TestDispatchDue_RecurringAdvancesAndStaysPending(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(CreateRequest{
		Name:   "sync",
		Goal:   "goal-sync",
		Type:   ScheduleTypeInterval,
		Config: json.RawMessage(`{"interval_value":30,"interval_unit":"minutes"}`),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	forceDue(s, w.ID)

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}

	got, _ := s.Get(w.ID)
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending for a recurring schedule", got.Status)
	}
	if got.RunCount != 1 {
		t.Errorf("run_count = %d, want 1", got.RunCount)
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now().UTC().Add(-time.Minute)) {
		t.Errorf("next_run = %v, want advanced past the fired slot", got.NextRun)
	}
}

func TestDispatchDue_MaxRunsExhaustion(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	maxRuns := 2
	w, err := s.Create(CreateRequest{
		Name:    "twice",
		Goal:    "goal-twice",
		Type:    ScheduleTypeInterval,
		Config:  json.RawMessage(`{"interval_value":1,"interval_unit":"hours"}`),
		MaxRuns: &maxRuns,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		forceDue(s, w.ID)
		if err := s.DispatchDue(context.Background()); err != nil {
			t.Fatalf("DispatchDue() #%d error = %v", i+1, err)
		}
	}

	got, _ := s.Get(w.ID)
	if got.RunCount != 2 {
		t.Fatalf("run_count = %d, want 2", got.RunCount)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed once max_runs is reached", got.Status)
	}
	if got.NextRun != nil {
		t.Errorf("next_run = %v, want nil after exhaustion", got.NextRun)
	}

	// Another cycle must not fire it again even if something backdates it.
	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := orch.callCount(); got != 2 {
		t.Errorf("orchestrator ran %d times, want 2", got)
	}
}

func TestPauseExcludesFromDispatch(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("paused-job"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !s.Pause(w.ID) {
		t.Fatal("Pause() = false, want true")
	}

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := orch.callCount(); got != 0 {
		t.Fatalf("orchestrator ran %d times while paused, want 0", got)
	}

	got, _ := s.Get(w.ID)
	if got.Status != StatusPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}
	if got.NextRun == nil {
		t.Error("next_run cleared by pause, want preserved")
	}

	// Resume with a past-due next_run makes it due on the next cycle.
	if !s.Resume(w.ID) {
		t.Fatal("Resume() = false, want true")
	}
	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := orch.callCount(); got != 1 {
		t.Errorf("orchestrator ran %d times after resume, want 1", got)
	}
}

func TestDispatchDue_FailureIsolation(t *testing.T) {
	orch := &fakeOrchestrator{failFor: map[string]error{
		"goal-flaky": errors.New("agent pipeline exploded"),
	}}
	s := newTestScheduler(t, orch)

	// The failing job is due first so its failure must not block the second.
	flaky, err := s.Create(pastOnceRequest("flaky"))
	if err != nil {
		t.Fatal(err)
	}
	steady, err := s.Create(pastOnceRequest("steady"))
	if err != nil {
		t.Fatal(err)
	}
	earlier := time.Now().UTC().Add(-2 * time.Minute)
	s.mu.Lock()
	s.table[flaky.ID].NextRun = &earlier
	s.mu.Unlock()

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatalf("DispatchDue() error = %v", err)
	}

	if got := orch.callCount(); got != 2 {
		t.Fatalf("orchestrator ran %d times, want both due jobs attempted", got)
	}

	gotFlaky, _ := s.Get(flaky.ID)
	if gotFlaky.Status != StatusFailed {
		t.Errorf("once-job failure status = %s, want failed", gotFlaky.Status)
	}
	if gotFlaky.RunCount != 0 {
		t.Errorf("failed run_count = %d, want 0 (only successes count)", gotFlaky.RunCount)
	}

	gotSteady, _ := s.Get(steady.ID)
	if gotSteady.Status != StatusCompleted {
		t.Errorf("second job status = %s, want completed", gotSteady.Status)
	}
}

func TestDispatchDue_RecurringFailureRetriesNextCycle(t *testing.T) {
	orch := &fakeOrchestrator{failFor: map[string]error{
		"goal-retry": errors.New("transient failure"),
	}}
	s := newTestScheduler(t, orch)

	w, err := s.Create(CreateRequest{
		Name:   "retry",
		Goal:   "goal-retry",
		Type:   ScheduleTypeDaily,
		Config: json.RawMessage(`{"hour":9}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	forceDue(s, w.ID)
	scheduled, _ := s.Get(w.ID)

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(w.ID)
	if got.Status != StatusPending {
		t.Fatalf("status after recurring failure = %s, want pending", got.Status)
	}
	if got.RunCount != 0 {
		t.Errorf("run_count = %d, want 0 after failed run", got.RunCount)
	}
	if got.NextRun == nil || !got.NextRun.Equal(*scheduled.NextRun) {
		t.Errorf("next_run = %v, want unchanged %v so the job retries", got.NextRun, scheduled.NextRun)
	}

	// Clear the fault: the next cycle picks the job up again and succeeds.
	orch.mu.Lock()
	delete(orch.failFor, "goal-retry")
	orch.mu.Unlock()

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Get(w.ID)
	if got.RunCount != 1 {
		t.Errorf("run_count = %d after retry, want 1", got.RunCount)
	}
}

func TestCancelDuringRunWins(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("cancel-me"))
	if err != nil {
		t.Fatal(err)
	}
	orch.onRun = func(string) {
		if !s.Cancel(w.ID) {
			t.Error("Cancel() = false while running, want true")
		}
	}

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(w.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled (mid-run transition wins)", got.Status)
	}
	if got.RunCount != 0 {
		t.Errorf("run_count = %d, want 0 when the run result is discarded", got.RunCount)
	}
	if got.NextRun != nil {
		t.Errorf("next_run = %v, want nil after cancel", got.NextRun)
	}
}

func TestDeleteDuringRunWins(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("delete-me"))
	if err != nil {
		t.Fatal(err)
	}
	orch.onRun = func(string) { s.Delete(w.ID) }

	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get(w.ID); ok {
		t.Error("workflow still present after delete-during-run")
	}
}

func TestCancel_TerminalStatesRejected(t *testing.T) {
	s := newTestScheduler(t, &fakeOrchestrator{})

	w, err := s.Create(pastOnceRequest("done"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}

	if s.Cancel(w.ID) {
		t.Error("Cancel() = true on a completed workflow, want false")
	}
	if s.Pause(w.ID) {
		t.Error("Pause() = true on a completed workflow, want false")
	}
	if s.Cancel("no-such-id") {
		t.Error("Cancel() = true for unknown id, want false")
	}
}

func TestList_FiltersAndOrder(t *testing.T) {
	s := newTestScheduler(t, &fakeOrchestrator{})

	mk := func(name string, due time.Duration) string {
		w, err := s.Create(CreateRequest{
			Name:   name,
			Type:   ScheduleTypeOnce,
			Config: onceConfig(time.Now().UTC().Add(due)),
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
		return w.ID
	}

	mk("nightly-backup", 3*time.Hour)
	mk("nightly-report", time.Hour)
	paused := mk("adhoc-cleanup", 2*time.Hour)
	s.Pause(paused)

	all, err := s.List(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d, want 3", len(all))
	}
	if all[0].Name != "nightly-report" || all[1].Name != "adhoc-cleanup" {
		t.Errorf("order = [%s, %s, %s], want soonest next_run first",
			all[0].Name, all[1].Name, all[2].Name)
	}

	pending, err := s.List(ListOptions{Status: StatusPending})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("List(pending) returned %d, want 2", len(pending))
	}

	nightly, err := s.List(ListOptions{NamePattern: "nightly-*"})
	if err != nil {
		t.Fatal(err)
	}
	if len(nightly) != 2 {
		t.Errorf("List(nightly-*) returned %d, want 2", len(nightly))
	}

	if _, err := s.List(ListOptions{NamePattern: "[bad"}); err == nil {
		t.Error("List() with malformed glob returned nil error")
	}
}

func TestUpcoming(t *testing.T) {
	s := newTestScheduler(t, &fakeOrchestrator{})

	mk := func(name string, due time.Duration) {
		if _, err := s.Create(CreateRequest{
			Name:   name,
			Type:   ScheduleTypeOnce,
			Config: onceConfig(time.Now().UTC().Add(due)),
		}); err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
	}
	mk("soon", 30*time.Minute)
	mk("later", 2*time.Hour)
	mk("next-week", 7*24*time.Hour)

	upcoming := s.Upcoming(24 * time.Hour)
	if len(upcoming) != 2 {
		t.Fatalf("Upcoming(24h) returned %d, want 2", len(upcoming))
	}
	if upcoming[0].Name != "soon" || upcoming[1].Name != "later" {
		t.Errorf("order = [%s, %s], want soonest first", upcoming[0].Name, upcoming[1].Name)
	}
}

func TestLoadTable_RecoversMidRunRecords(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("crashed"))
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a crash mid-run: persist the record as running.
	s.mu.Lock()
	s.table[w.ID].Status = StatusRunning
	if err := s.persistLocked(); err != nil {
		s.mu.Unlock()
		t.Fatal(err)
	}
	s.mu.Unlock()

	restarted := New(s.store, func() Orchestrator { return orch }, Options{})
	restarted.LoadTable()

	got, ok := restarted.Get(w.ID)
	if !ok {
		t.Fatal("workflow missing after reload")
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s after crash recovery, want pending", got.Status)
	}
	if got.NextRun == nil {
		t.Error("next_run is nil after crash recovery, want a trigger time")
	}
}

func TestLoadTable_CorruptStoreStartsEmpty(t *testing.T) {
	store := testStore(t)
	if err := os.WriteFile(store.Path(), []byte("not json at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(store, func() Orchestrator { return &fakeOrchestrator{} }, Options{})
	s.LoadTable()

	workflows, err := s.List(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(workflows) != 0 {
		t.Errorf("table has %d workflows from corrupt store, want 0", len(workflows))
	}

	// Normal operation resumes: creating replaces the bad file.
	if _, err := s.Create(pastOnceRequest("fresh")); err != nil {
		t.Fatalf("Create() after corrupt load error = %v", err)
	}
	if stored, err := store.Load(); err != nil || len(stored) != 1 {
		t.Errorf("store after recovery: %d workflows, err %v; want 1 record, nil", len(stored), err)
	}
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	events, cancel := s.Subscribe(16)
	defer cancel()

	w, err := s.Create(pastOnceRequest("observed"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DispatchDue(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := []EventKind{EventCreated, EventFired, EventCompleted}
	for _, kind := range want {
		select {
		case ev := <-events:
			if ev.Kind != kind {
				t.Fatalf("event kind = %s, want %s", ev.Kind, kind)
			}
			if ev.WorkflowID != w.ID {
				t.Errorf("event workflow_id = %s, want %s", ev.WorkflowID, w.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestStartStopFiresDueWorkflows(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	if _, err := s.Create(pastOnceRequest("background")); err != nil {
		t.Fatal(err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for orch.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poll loop never fired the due workflow")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
