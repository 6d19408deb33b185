package report

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/oracle"
)

func TestWebhookDeliversEventWithHeaders(t *testing.T) {
	type seen struct {
		method    string
		contentTy string
		userAgent string
		eventKind string
		auth      string
		body      []byte
	}
	got := make(chan seen, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- seen{
			method:    r.Method,
			contentTy: r.Header.Get("Content-Type"),
			userAgent: r.Header.Get("User-Agent"),
			eventKind: r.Header.Get("X-Fuzzhound-Event"),
			auth:      r.Header.Get("Authorization"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WebhookOptions{
		Headers: map[string]string{"Authorization": "Bearer tok-123"},
	})
	defer sink.Close()

	if err := sink.OnEvent(context.Background(), findingEvent(oracle.Confirmed)); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}

	s := <-got
	if s.method != http.MethodPost {
		t.Errorf("method = %s", s.method)
	}
	if s.contentTy != "application/json" {
		t.Errorf("content type = %q", s.contentTy)
	}
	if s.userAgent != "fuzzhound/0.9.2" {
		t.Errorf("user agent = %q", s.userAgent)
	}
	if s.eventKind != "finding" {
		t.Errorf("event header = %q", s.eventKind)
	}
	if s.auth != "Bearer tok-123" {
		t.Errorf("auth header = %q", s.auth)
	}

	var msg struct {
		Finding struct {
			Field string `json:"field"`
			Class string `json:"class"`
		} `json:"finding"`
	}
	if err := json.Unmarshal(s.body, &msg); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if msg.Finding.Field != "q@query" || msg.Finding.Class != "xss" {
		t.Errorf("body finding = %+v", msg.Finding)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WebhookOptions{Retries: 2})
	defer sink.Close()

	if err := sink.OnEvent(context.Background(), findingEvent(oracle.Likely)); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WebhookOptions{Retries: 3})
	defer sink.Close()

	err := sink.OnEvent(context.Background(), findingEvent(oracle.Likely))
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (4xx must not retry)", attempts.Load())
	}
}

func TestWebhookExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WebhookOptions{Retries: 2})
	defer sink.Close()

	err := sink.OnEvent(context.Background(), findingEvent(oracle.Likely))
	if err == nil {
		t.Fatal("expected delivery error after retries")
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestWebhookMinConfidenceFilter(t *testing.T) {
	var delivered atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WebhookOptions{MinConfidence: oracle.Likely})
	defer sink.Close()

	ctx := context.Background()
	if err := sink.OnEvent(ctx, findingEvent(oracle.Informational)); err != nil {
		t.Fatalf("OnEvent(informational): %v", err)
	}
	if delivered.Load() != 0 {
		t.Errorf("informational finding was delivered below the floor")
	}

	if err := sink.OnEvent(ctx, findingEvent(oracle.Confirmed)); err != nil {
		t.Fatalf("OnEvent(confirmed): %v", err)
	}
	if delivered.Load() != 1 {
		t.Errorf("delivered = %d, want 1", delivered.Load())
	}
}

func TestWebhookOnlyFindingsSubscription(t *testing.T) {
	sink := NewWebhookSink("http://127.0.0.1:0", WebhookOptions{OnlyFindings: true})
	defer sink.Close()

	got := sink.Events()
	if len(got) != 1 || got[0] != EventTypeFinding {
		t.Errorf("subscription = %v", got)
	}

	all := NewWebhookSink("http://127.0.0.1:0", WebhookOptions{})
	defer all.Close()
	if all.Events() != nil {
		t.Errorf("default subscription = %v, want nil", all.Events())
	}
}

func TestWebhookCancelledContextStopsBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, WebhookOptions{Retries: 3})
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := sink.OnEvent(ctx, findingEvent(oracle.Likely))
	if err == nil {
		t.Fatal("expected error from cancelled delivery")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("delivery kept backing off for %v after cancel", elapsed)
	}
}
