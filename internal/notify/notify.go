// Package notify delivers run outcome notifications to a webhook endpoint.
// Deliveries retry with exponential backoff; a workflow's notifications map
// controls which outcomes it reports.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jefeworks/jefe/internal/config"
	"github.com/jefeworks/jefe/internal/scheduler"
)

// WorkflowLookup resolves a workflow id to its current record, used to read
// the per-workflow notification toggles.
type WorkflowLookup func(id string) (*scheduler.Workflow, bool)

// Payload is the JSON document posted to the webhook.
type Payload struct {
	Event      string    `json:"event"`
	WorkflowID string    `json:"workflow_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// Notifier consumes scheduler events and posts run outcomes to a webhook.
type Notifier struct {
	url         string
	maxAttempts int
	baseDelay   time.Duration
	httpClient  *http.Client
	lookup      WorkflowLookup

	wg sync.WaitGroup
}

// New creates a notifier from the notify config. Returns nil when no webhook
// URL is configured.
func New(cfg *config.NotifyConfig, lookup WorkflowLookup) *Notifier {
	if cfg.WebhookURL == "" {
		return nil
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return &Notifier{
		url:         cfg.WebhookURL,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		lookup: lookup,
	}
}

// Run consumes events until the channel closes or the context is cancelled.
// Call it in a goroutine; pending deliveries finish before Run returns.
func (n *Notifier) Run(ctx context.Context, events <-chan scheduler.Event) {
	defer n.wg.Wait()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !n.wants(event) {
				continue
			}
			n.wg.Add(1)
			go func(e scheduler.Event) {
				defer n.wg.Done()
				n.deliver(ctx, e)
			}(event)
		case <-ctx.Done():
			return
		}
	}
}

// wants reports whether the event should be delivered, honoring the
// workflow's notification toggles. Workflows without toggles report both
// outcomes.
func (n *Notifier) wants(event scheduler.Event) bool {
	var toggle string
	switch event.Kind {
	case scheduler.EventCompleted:
		toggle = "on_success"
	case scheduler.EventFailed:
		toggle = "on_failure"
	default:
		return false
	}

	workflow, ok := n.lookup(event.WorkflowID)
	if !ok || len(workflow.Notifications) == 0 {
		return ok
	}
	return workflow.Notifications[toggle]
}

func (n *Notifier) deliver(ctx context.Context, event scheduler.Event) {
	payload, err := json.Marshal(Payload{
		Event:      string(event.Kind),
		WorkflowID: event.WorkflowID,
		Name:       event.Name,
		Status:     string(event.Status),
		At:         event.At,
		Error:      event.Error,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode notification payload")
		return
	}

	for attempt := 1; ; attempt++ {
		err := n.post(ctx, payload)
		if err == nil {
			log.Info().
				Str("workflow_id", event.WorkflowID).
				Str("event", string(event.Kind)).
				Int("attempt", attempt).
				Msg("Notification delivered")
			return
		}

		if attempt >= n.maxAttempts {
			log.Warn().
				Err(err).
				Str("workflow_id", event.WorkflowID).
				Str("event", string(event.Kind)).
				Int("attempts", attempt).
				Msg("Notification dropped after max attempts")
			return
		}

		delay := n.backoff(attempt)
		log.Debug().
			Err(err).
			Str("workflow_id", event.WorkflowID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Notification delivery failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, body)
}

const maxBackoffShift = 30

func (n *Notifier) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	return n.baseDelay * time.Duration(1<<attempt)
}
