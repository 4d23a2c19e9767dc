package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Headers set on every webhook delivery. The delivery key is stable for a
// run and event type, so receivers can drop the duplicates a resumed run
// may send.
const (
	HeaderEvent       = "X-Pipeline-Event"
	HeaderRun         = "X-Pipeline-Run"
	HeaderDeliveryKey = "Idempotency-Key"
)

// WebhookNotifier posts events as JSON to an HTTP endpoint. Transport
// failures, 429 and 5xx responses are retried with exponential backoff until
// MaxElapsed; other 4xx responses fail at once.
type WebhookNotifier struct {
	URL        string
	Headers    map[string]string
	Client     *http.Client
	MaxElapsed time.Duration
}

// NewWebhookNotifier returns a notifier for url. headers are added to every
// request, typically for authorization.
func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:        url,
		Headers:    headers,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxElapsed: 30 * time.Second,
	}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = n.MaxElapsed
	return backoff.Retry(func() error {
		return n.deliver(ctx, event, body)
	}, backoff.WithContext(policy, ctx))
}

func (n *WebhookNotifier) deliver(ctx context.Context, event Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(event.Type))
	if event.RunID != "" {
		req.Header.Set(HeaderRun, event.RunID)
		req.Header.Set(HeaderDeliveryKey, event.RunID+":"+string(event.Type))
	}
	for k, v := range n.Headers {
		req.Header.Set(k, v)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	status := resp.StatusCode
	switch {
	case status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("webhook returned %d", status)
	default:
		return backoff.Permanent(fmt.Errorf("webhook returned %d", status))
	}
}
