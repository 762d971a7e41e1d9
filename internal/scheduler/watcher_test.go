package scheduler

import (
	"os"
	"testing"
)

func TestReload_PicksUpExternalEdit(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	if _, err := s.Create(pastOnceRequest("mine")); err != nil {
		t.Fatal(err)
	}

	// Another process rewrites the table with a different record set.
	external := testWorkflow(t, "theirs")
	if err := s.store.Save([]*Workflow{external}); err != nil {
		t.Fatal(err)
	}

	s.Reload()

	if _, ok := s.Get(external.ID); !ok {
		t.Error("externally added workflow missing after reload")
	}
	workflows, err := s.List(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(workflows) != 1 {
		t.Errorf("table has %d workflows after reload, want 1 (file wins)", len(workflows))
	}
}

func TestReload_KeepsMidRunEntries(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("busy"))
	if err != nil {
		t.Fatal(err)
	}

	// A CLI edit lands while this workflow is mid-run: the file still says
	// pending, but the daemon's in-flight state wins.
	s.mu.Lock()
	s.table[w.ID].Status = StatusRunning
	s.mu.Unlock()

	stale := w.Clone()
	stale.Status = StatusPending
	if err := s.store.Save([]*Workflow{stale}); err != nil {
		t.Fatal(err)
	}

	s.Reload()

	got, ok := s.Get(w.ID)
	if !ok {
		t.Fatal("mid-run workflow missing after reload")
	}
	if got.Status != StatusRunning {
		t.Errorf("status = %s after reload, want running preserved", got.Status)
	}
}

func TestReload_IgnoresCorruptFile(t *testing.T) {
	orch := &fakeOrchestrator{}
	s := newTestScheduler(t, orch)

	w, err := s.Create(pastOnceRequest("keep"))
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(s.store.Path(), []byte("{ broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	s.Reload()

	if _, ok := s.Get(w.ID); !ok {
		t.Error("in-memory table lost after reload of corrupt file")
	}
}
