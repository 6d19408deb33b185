package report

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/oracle"
)

// skipWithoutCollector skips the test unless an OTLP collector is
// listening locally, so the suite passes on bare CI runners.
func skipWithoutCollector(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "localhost:4317", 100*time.Millisecond)
	if err != nil {
		t.Skipf("no OTLP collector at localhost:4317: %v", err)
	}
	conn.Close()
}

func newTestTraceSink(t *testing.T) *TraceSink {
	t.Helper()
	sink, err := NewTraceSink(context.Background(), TraceOptions{
		Endpoint: "localhost:4317",
		Insecure: true,
	})
	if err != nil {
		t.Fatalf("NewTraceSink: %v", err)
	}
	return sink
}

func TestTraceSinkDefaults(t *testing.T) {
	skipWithoutCollector(t)

	sink := newTestTraceSink(t)
	defer sink.Close()

	if sink.ServiceName() != "fuzzhound" {
		t.Errorf("service name = %q", sink.ServiceName())
	}
	if sink.Endpoint() != "localhost:4317" {
		t.Errorf("endpoint = %q", sink.Endpoint())
	}
	if sink.Events() != nil {
		t.Errorf("subscription = %v, want nil", sink.Events())
	}
}

func TestTraceSinkScanLifecycle(t *testing.T) {
	skipWithoutCollector(t)

	sink := newTestTraceSink(t)
	defer sink.Close()

	ctx := context.Background()
	sequence := []Event{
		startEvent(),
		&StageEvent{BaseEvent: BaseEvent{Type: EventTypeStage, Scan: "scan-1"}, From: "idle", To: "crawling"},
		probeEvent("https://shop.example.com/search", "xss", "inconclusive", 0),
		findingEvent(oracle.Confirmed),
		&CompleteEvent{
			BaseEvent:   BaseEvent{Type: EventTypeComplete, Time: time.Now(), Scan: "scan-1"},
			Target:      "https://shop.example.com",
			Status:      "done",
			DurationSec: 12.5,
			Stats:       Stats{ProbesSent: 9, Findings: 1},
		},
	}
	for _, ev := range sequence {
		if err := sink.OnEvent(ctx, ev); err != nil {
			t.Fatalf("OnEvent(%s): %v", ev.EventType(), err)
		}
	}

	if sink.rootSpan != nil {
		t.Error("root span still open after complete event")
	}
}

func TestTraceSinkEventsBeforeStartAreIgnored(t *testing.T) {
	skipWithoutCollector(t)

	sink := newTestTraceSink(t)
	defer sink.Close()

	// No start event: nothing to attach to, but nothing fails either.
	if err := sink.OnEvent(context.Background(), findingEvent(oracle.Likely)); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
}

func TestTraceSinkCloseIsIdempotent(t *testing.T) {
	skipWithoutCollector(t)

	sink := newTestTraceSink(t)
	if err := sink.OnEvent(context.Background(), startEvent()); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	// Events after Close are dropped.
	if err := sink.OnEvent(context.Background(), findingEvent(oracle.Likely)); err != nil {
		t.Fatalf("OnEvent after Close: %v", err)
	}
}
