package scheduler

import "time"

// EventKind classifies scheduler activity events.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventPaused    EventKind = "paused"
	EventResumed   EventKind = "resumed"
	EventCancelled EventKind = "cancelled"
	EventDeleted   EventKind = "deleted"
	EventFired     EventKind = "fired"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventReloaded  EventKind = "reloaded"
)

// Event is one scheduler activity notification, consumed by the dashboard
// event stream.
type Event struct {
	Kind       EventKind      `json:"kind"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Status     ScheduleStatus `json:"status,omitempty"`
	At         time.Time      `json:"at"`
	Error      string         `json:"error,omitempty"`
}

// Subscribe registers an event channel. Slow consumers drop events rather
// than block dispatch. The returned func cancels the subscription.
func (s *Scheduler) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	cancel := func() {
		s.subsMu.Lock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
		s.subsMu.Unlock()
	}
	return ch, cancel
}

// publish fans an event out to every subscriber without blocking.
func (s *Scheduler) publish(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// closeSubscribers drops all subscriptions on shutdown.
func (s *Scheduler) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
