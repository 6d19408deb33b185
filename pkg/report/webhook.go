package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
)

// Compile-time interface check.
var _ Sink = (*WebhookSink)(nil)

// WebhookSink POSTs events as JSON to an HTTP endpoint, with bounded
// retries and exponential backoff on transport failure or 5xx.
type WebhookSink struct {
	endpoint string
	client   *http.Client
	opts     WebhookOptions
}

// WebhookOptions configures webhook delivery.
type WebhookOptions struct {
	// Headers are set on every request.
	Headers map[string]string

	// Timeout bounds one delivery attempt.
	Timeout time.Duration

	// Retries is the attempt bound per event.
	Retries int

	// OnlyFindings restricts delivery to finding events.
	OnlyFindings bool

	// MinConfidence drops finding events below this tier. Zero keeps
	// everything the aggregator surfaced.
	MinConfidence oracle.Confidence
}

// NewWebhookSink creates a webhook sink for the given endpoint.
func NewWebhookSink(endpoint string, opts WebhookOptions) *WebhookSink {
	if opts.Timeout == 0 {
		opts.Timeout = duration.WebhookTimeout
	}
	if opts.Retries == 0 {
		opts.Retries = defaults.RetryDeliver
	}
	return &WebhookSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
	}
}

// OnEvent delivers the event, honoring the confidence filter.
func (s *WebhookSink) OnEvent(ctx context.Context, event Event) error {
	if fe, ok := event.(*FindingEvent); ok && s.opts.MinConfidence > 0 {
		if fe.Finding.Confidence < s.opts.MinConfidence {
			return nil
		}
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal %s: %w", event.EventType(), err)
	}
	return s.send(ctx, event.EventType(), body)
}

// Events returns the subscription implied by the options.
func (s *WebhookSink) Events() []EventType {
	if s.opts.OnlyFindings {
		return []EventType{EventTypeFinding}
	}
	return nil
}

// Close releases pooled connections.
func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// send posts the body with bounded retries. 5xx and transport errors
// retry; anything else is final.
func (s *WebhookSink) send(ctx context.Context, eventType EventType, body []byte) error {
	var lastErr error

	for attempt := 0; attempt < s.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := duration.RetryBase << (attempt - 1)
			if backoff > duration.RetryMax {
				backoff = duration.RetryMax
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: build request: %w", err)
		}
		req.Header.Set("Content-Type", defaults.ContentTypeJSON)
		req.Header.Set("User-Agent", defaults.ToolName+"/"+defaults.Version)
		req.Header.Set("X-Fuzzhound-Event", string(eventType))
		for key, value := range s.opts.Headers {
			req.Header.Set(key, value)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("webhook: %w", err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("webhook: server error %d", resp.StatusCode)
			continue
		}
		return fmt.Errorf("webhook: rejected with %d", resp.StatusCode)
	}
	return lastErr
}
