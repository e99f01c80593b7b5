// Package notify fans governance events out to notification channels. Every
// channel gets its attempt and reports back independently: one channel's
// failure never suppresses another's delivery (settle-all, not fail-fast).
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
)

// Event is one governance notification.
type Event struct {
	Kind    string    `json:"kind"` // e.g. "auto_ban", "manual_ban"
	Subject string    `json:"subject"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Sender delivers an event over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Result is one channel's delivery outcome.
type Result struct {
	Sender string
	Err    error
}

// Dispatcher fans one event out to all senders concurrently.
type Dispatcher struct {
	senders []Sender
}

// New builds a Dispatcher over the given senders.
func New(senders ...Sender) *Dispatcher {
	return &Dispatcher{senders: senders}
}

// Dispatch sends ev to every sender and waits for all of them. The returned
// results are in sender order and include per-channel errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) []Result {
	results := make([]Result, len(d.senders))
	var wg sync.WaitGroup
	for i, sender := range d.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = Result{Sender: sender.Name(), Err: sender.Send(ctx, ev)}
		}()
	}
	wg.Wait()
	return results
}

// WebhookSender posts events as JSON to a single URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender builds a webhook channel with a bounded timeout.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

// Name identifies the channel by its target URL.
func (w *WebhookSender) Name() string { return w.url }

// Send posts the event.
func (w *WebhookSender) Send(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook post: status %d", resp.StatusCode)
	}
	return nil
}
