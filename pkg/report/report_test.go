package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/findings"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
)

// mockSink is a thread-safe sink for dispatcher tests.
type mockSink struct {
	mu         sync.Mutex
	eventCount atomic.Int32
	closeCount atomic.Int32
	types      []EventType
	seen       []Event
	blockTime  time.Duration
	shouldFail bool
}

func newMockSink(types ...EventType) *mockSink {
	return &mockSink{types: types}
}

func (m *mockSink) OnEvent(_ context.Context, event Event) error {
	m.eventCount.Add(1)
	if m.blockTime > 0 {
		time.Sleep(m.blockTime)
	}
	if m.shouldFail {
		return errors.New("mock sink error")
	}
	m.mu.Lock()
	m.seen = append(m.seen, event)
	m.mu.Unlock()
	return nil
}

func (m *mockSink) Events() []EventType { return m.types }

func (m *mockSink) Close() error {
	m.closeCount.Add(1)
	return nil
}

func (m *mockSink) count() int32 { return m.eventCount.Load() }

func testFinding(level oracle.Confidence) findings.Finding {
	return findings.Finding{
		URL:        "https://shop.example.com/search",
		Method:     "GET",
		Field:      "q@query",
		Class:      payload.ClassXSS,
		Confidence: level,
		Level:      level.String(),
		Rule:       "reflected-payload",
		Evidence:   "...<script>fz()</script>...",
		Payload:    payload.Payload{Class: payload.ClassXSS, Value: "<script>fz()</script>", Name: "script-tag"},
	}
}

func startEvent() *StartEvent {
	return &StartEvent{
		BaseEvent: BaseEvent{Type: EventTypeStart, Time: time.Now(), Scan: "scan-1"},
		Target:    "https://shop.example.com",
		Classes:   []string{"xss", "sqli"},
		Config:    ScanConfig{Concurrency: 10, MaxDepth: 3, MaxPages: 200},
	}
}

func findingEvent(level oracle.Confidence) *FindingEvent {
	return &FindingEvent{
		BaseEvent: BaseEvent{Type: EventTypeFinding, Time: time.Now(), Scan: "scan-1"},
		Finding:   testFinding(level),
	}
}

func TestDispatchFansOutToAllSinks(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})

	a := newMockSink()
	b := newMockSink()
	d.Register(a)
	d.Register(b)

	d.Dispatch(context.Background(), startEvent())
	d.Dispatch(context.Background(), findingEvent(oracle.Confirmed))

	if a.count() != 2 || b.count() != 2 {
		t.Fatalf("sink counts = %d, %d, want 2, 2", a.count(), b.count())
	}
}

func TestDispatchHonorsTypeFilter(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})

	everything := newMockSink()
	onlyFindings := newMockSink(EventTypeFinding)
	d.Register(everything)
	d.Register(onlyFindings)

	d.Dispatch(context.Background(), startEvent())
	d.Dispatch(context.Background(), findingEvent(oracle.Likely))
	d.Dispatch(context.Background(), &CompleteEvent{
		BaseEvent: BaseEvent{Type: EventTypeComplete, Time: time.Now(), Scan: "scan-1"},
		Status:    "done",
	})

	if everything.count() != 3 {
		t.Errorf("unfiltered sink saw %d events, want 3", everything.count())
	}
	if onlyFindings.count() != 1 {
		t.Errorf("filtered sink saw %d events, want 1", onlyFindings.count())
	}
}

func TestDispatchSurvivesFailingSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDispatcher(DispatcherConfig{Logger: logger})

	failing := newMockSink()
	failing.shouldFail = true
	healthy := newMockSink()
	d.Register(failing)
	d.Register(healthy)

	d.Dispatch(context.Background(), findingEvent(oracle.Confirmed))

	if healthy.count() != 1 {
		t.Errorf("healthy sink saw %d events, want 1", healthy.count())
	}
	if !strings.Contains(buf.String(), "sink delivery failed") {
		t.Error("expected failed delivery to be logged")
	}
}

func TestCloseWaitsForAsyncDeliveries(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Async: true})

	slow := newMockSink()
	slow.blockTime = 200 * time.Millisecond
	d.Register(slow)

	d.Dispatch(context.Background(), findingEvent(oracle.Confirmed))

	start := time.Now()
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Close returned in %v; expected it to wait for the async delivery", elapsed)
	}
	if slow.count() != 1 {
		t.Errorf("sink saw %d events after Close, want 1", slow.count())
	}
}

func TestDispatchAfterCloseIsNoop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Async: true})

	s := newMockSink()
	d.Register(s)

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d.Dispatch(context.Background(), startEvent())
	time.Sleep(20 * time.Millisecond)

	if s.count() != 0 {
		t.Errorf("sink saw %d events after Close, want 0", s.count())
	}
	if s.closeCount.Load() != 1 {
		t.Errorf("sink closed %d times, want 1", s.closeCount.Load())
	}
}

func TestConcurrentDispatchAndClose(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Async: true})

	s := newMockSink()
	s.blockTime = time.Millisecond
	d.Register(s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Dispatch(context.Background(), findingEvent(oracle.Likely))
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	if s.count() == 0 {
		t.Error("expected some events before close")
	}
}

func TestCloseJoinsSinkErrors(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	d.Register(&closeFailSink{})

	if err := d.Close(); err == nil {
		t.Fatal("expected sink close error to surface")
	}
	// Second close is a no-op.
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type closeFailSink struct{}

func (*closeFailSink) OnEvent(context.Context, Event) error { return nil }
func (*closeFailSink) Events() []EventType                  { return nil }
func (*closeFailSink) Close() error                         { return errors.New("close failed") }

func TestBaseEventAccessors(t *testing.T) {
	now := time.Now()
	e := BaseEvent{Type: EventTypeStage, Time: now, Scan: "scan-9"}

	if e.EventType() != EventTypeStage {
		t.Errorf("EventType = %q", e.EventType())
	}
	if !e.Timestamp().Equal(now) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp(), now)
	}
	if e.ScanID() != "scan-9" {
		t.Errorf("ScanID = %q", e.ScanID())
	}
}

func TestJSONLSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf, JSONLOptions{})

	if err := sink.OnEvent(context.Background(), startEvent()); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if err := sink.OnEvent(context.Background(), findingEvent(oracle.Confirmed)); err != nil {
		t.Fatalf("OnEvent: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var first struct {
		Type   string `json:"type"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal line 0: %v", err)
	}
	if first.Type != "start" || first.Target != "https://shop.example.com" {
		t.Errorf("line 0 = %+v", first)
	}

	var second struct {
		Type    string `json:"type"`
		Finding struct {
			Field      string `json:"field"`
			Confidence string `json:"confidence"`
		} `json:"finding"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal line 1: %v", err)
	}
	if second.Type != "finding" || second.Finding.Field != "q@query" || second.Finding.Confidence != "confirmed" {
		t.Errorf("line 1 = %+v", second)
	}
}

func TestJSONLSinkSubscriptions(t *testing.T) {
	all := NewJSONLSink(&bytes.Buffer{}, JSONLOptions{})
	if got := all.Events(); got != nil {
		t.Errorf("default subscription = %v, want nil", got)
	}

	only := NewJSONLSink(&bytes.Buffer{}, JSONLOptions{OnlyFindings: true})
	if got := only.Events(); len(got) != 1 || got[0] != EventTypeFinding {
		t.Errorf("OnlyFindings subscription = %v", got)
	}

	noProbes := NewJSONLSink(&bytes.Buffer{}, JSONLOptions{OmitProbes: true})
	for _, et := range noProbes.Events() {
		if et == EventTypeProbe {
			t.Error("OmitProbes subscription still includes probe events")
		}
	}
}

type closableBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closableBuffer) Close() error {
	c.closed = true
	return nil
}

func TestJSONLSinkClosesUnderlyingWriter(t *testing.T) {
	buf := &closableBuffer{}
	sink := NewJSONLSink(buf, JSONLOptions{})

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !buf.closed {
		t.Error("underlying writer was not closed")
	}
}

func TestLogSinkWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)

	events := []Event{
		startEvent(),
		&StageEvent{BaseEvent: BaseEvent{Type: EventTypeStage, Scan: "scan-1"}, From: "idle", To: "crawling"},
		&ProbeEvent{BaseEvent: BaseEvent{Type: EventTypeProbe, Scan: "scan-1"}, URL: "https://shop.example.com/search", Field: "q@query", Outcome: "clean"},
		findingEvent(oracle.Confirmed),
		&ErrorEvent{BaseEvent: BaseEvent{Type: EventTypeError, Scan: "scan-1"}, Stage: "crawling", Message: "fetch failed"},
		&CompleteEvent{BaseEvent: BaseEvent{Type: EventTypeComplete, Scan: "scan-1"}, Status: "done", Stats: Stats{ProbesSent: 42}},
	}
	for _, ev := range events {
		if err := sink.OnEvent(context.Background(), ev); err != nil {
			t.Fatalf("OnEvent(%s): %v", ev.EventType(), err)
		}
	}

	out := buf.String()
	for _, want := range []string{
		"scan started", "stage transition", "level=DEBUG", "finding",
		"level=WARN", "scan error", "scan complete", "probes=42",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q\n%s", want, out)
		}
	}
}

func TestLogSinkFatalErrorsLogAtError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewLogSink(logger)

	err := sink.OnEvent(context.Background(), &ErrorEvent{
		BaseEvent: BaseEvent{Type: EventTypeError, Scan: "scan-1"},
		Message:   "target unreachable",
		Fatal:     true,
	})
	if err != nil {
		t.Fatalf("OnEvent: %v", err)
	}
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("fatal error logged without ERROR level:\n%s", buf.String())
	}
}
