package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jefeworks/jefe/internal/config"
	"github.com/jefeworks/jefe/internal/scheduler"
)

func lookupFor(workflows map[string]*scheduler.Workflow) WorkflowLookup {
	return func(id string) (*scheduler.Workflow, bool) {
		w, ok := workflows[id]
		return w, ok
	}
}

func runEvents(t *testing.T, n *Notifier, events ...scheduler.Event) {
	t.Helper()

	ch := make(chan scheduler.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)

	done := make(chan struct{})
	go func() {
		n.Run(context.Background(), ch)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier did not drain events")
	}
}

func TestNotifierDisabledWithoutURL(t *testing.T) {
	n := New(&config.NotifyConfig{}, lookupFor(nil))
	if n != nil {
		t.Fatal("New() without webhook URL should return nil")
	}
}

func TestNotifierDeliversCompletedEvent(t *testing.T) {
	var received atomic.Int32
	var payload Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer srv.Close()

	workflows := map[string]*scheduler.Workflow{
		"wf-1": {ID: "wf-1", Name: "nightly"},
	}
	n := New(&config.NotifyConfig{WebhookURL: srv.URL, MaxAttempts: 1}, lookupFor(workflows))

	runEvents(t, n, scheduler.Event{
		Kind:       scheduler.EventCompleted,
		WorkflowID: "wf-1",
		Name:       "nightly",
		Status:     scheduler.StatusPending,
		At:         time.Now().UTC(),
	})

	if received.Load() != 1 {
		t.Fatalf("webhook hit %d times, want 1", received.Load())
	}
	if payload.Event != "completed" || payload.WorkflowID != "wf-1" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNotifierRetriesOnServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	workflows := map[string]*scheduler.Workflow{
		"wf-1": {ID: "wf-1", Name: "flaky"},
	}
	n := New(&config.NotifyConfig{
		WebhookURL:  srv.URL,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, lookupFor(workflows))

	runEvents(t, n, scheduler.Event{Kind: scheduler.EventFailed, WorkflowID: "wf-1"})

	if hits.Load() != 2 {
		t.Errorf("webhook hit %d times, want 2 (one failure, one success)", hits.Load())
	}
}

func TestNotifierHonorsWorkflowToggles(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	workflows := map[string]*scheduler.Workflow{
		"quiet": {ID: "quiet", Notifications: map[string]bool{"on_success": false, "on_failure": true}},
		"loud":  {ID: "loud", Notifications: map[string]bool{"on_success": true}},
	}
	n := New(&config.NotifyConfig{WebhookURL: srv.URL, MaxAttempts: 1}, lookupFor(workflows))

	runEvents(t, n,
		scheduler.Event{Kind: scheduler.EventCompleted, WorkflowID: "quiet"},
		scheduler.Event{Kind: scheduler.EventCompleted, WorkflowID: "loud"},
		scheduler.Event{Kind: scheduler.EventFired, WorkflowID: "loud"},
		scheduler.Event{Kind: scheduler.EventCompleted, WorkflowID: "unknown"},
	)

	if hits.Load() != 1 {
		t.Errorf("webhook hit %d times, want 1 (loud completion only)", hits.Load())
	}
}

func TestNotifierGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	workflows := map[string]*scheduler.Workflow{
		"wf-1": {ID: "wf-1"},
	}
	n := New(&config.NotifyConfig{
		WebhookURL:  srv.URL,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
	}, lookupFor(workflows))

	runEvents(t, n, scheduler.Event{Kind: scheduler.EventFailed, WorkflowID: "wf-1"})

	if hits.Load() != 3 {
		t.Errorf("webhook hit %d times, want 3", hits.Load())
	}
}
