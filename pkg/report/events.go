package report

import (
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/findings"
)

// EventType discriminates scan events on the wire.
type EventType string

const (
	// EventTypeStart marks the beginning of a scan.
	EventTypeStart EventType = "start"
	// EventTypeStage marks an orchestrator state transition.
	EventTypeStage EventType = "stage"
	// EventTypeProbe records a single probe result.
	EventTypeProbe EventType = "probe"
	// EventTypeFinding announces a created or upgraded finding.
	EventTypeFinding EventType = "finding"
	// EventTypeProgress is a periodic counter snapshot.
	EventTypeProgress EventType = "progress"
	// EventTypeError reports a scan-level failure.
	EventTypeError EventType = "error"
	// EventTypeComplete marks the end of a scan.
	EventTypeComplete EventType = "complete"
)

// Event is the base interface for all scan events.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
	ScanID() string
}

// BaseEvent carries the fields common to every event. It is embedded
// in the concrete event types.
type BaseEvent struct {
	Type EventType `json:"type"`
	Time time.Time `json:"timestamp"`
	Scan string    `json:"scan_id"`
}

// EventType returns the type of this event.
func (e BaseEvent) EventType() EventType { return e.Type }

// Timestamp returns when this event occurred.
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanID returns the identifier of the scan that produced this event.
func (e BaseEvent) ScanID() string { return e.Scan }

// ScanConfig is the effective configuration announced at scan start.
type ScanConfig struct {
	Concurrency   int     `json:"concurrency"`
	MaxDepth      int     `json:"max_depth"`
	MaxPages      int     `json:"max_pages"`
	RatePerSec    float64 `json:"rate_per_sec,omitempty"`
	Render        bool    `json:"render"`
	Authenticated bool    `json:"authenticated"`
}

// StartEvent is emitted once when a scan begins.
type StartEvent struct {
	BaseEvent
	Target  string     `json:"target"`
	Classes []string   `json:"classes,omitempty"`
	Config  ScanConfig `json:"config"`
}

// StageEvent is emitted on every orchestrator state transition.
type StageEvent struct {
	BaseEvent
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// ProbeEvent records one dispatched probe. This is the high-volume
// event: one per payload sent.
type ProbeEvent struct {
	BaseEvent
	URL       string  `json:"url"`
	Method    string  `json:"method"`
	Field     string  `json:"field"`
	Class     string  `json:"class,omitempty"`
	Outcome   string  `json:"outcome"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// FindingEvent announces that a finding was created or that its
// confidence rose. The same finding key can appear more than once in a
// scan's event stream; consumers that want one record per finding
// should keep the last event per key.
type FindingEvent struct {
	BaseEvent
	Finding findings.Finding `json:"finding"`
}

// Stats are cumulative scan counters.
type Stats struct {
	PagesCrawled int            `json:"pages_crawled"`
	NodesFound   int            `json:"nodes_found"`
	FormsFound   int            `json:"forms_found"`
	ProbesSent   int            `json:"probes_sent"`
	Inconclusive int            `json:"inconclusive"`
	Blocked      int            `json:"blocked"`
	Findings     int            `json:"findings"`
	ByClass      map[string]int `json:"findings_by_class,omitempty"`
	ByConfidence map[string]int `json:"findings_by_confidence,omitempty"`
}

// ProgressEvent is a periodic snapshot of the running counters.
type ProgressEvent struct {
	BaseEvent
	Stage string `json:"stage"`
	Stats Stats  `json:"stats"`
}

// ErrorEvent reports a failure above the single-probe level, such as a
// stage abort or an authentication loss.
type ErrorEvent struct {
	BaseEvent
	Stage   string `json:"stage,omitempty"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// CompleteEvent is the final event of every scan, including aborted
// ones. Stats reflect whatever the scan managed to do.
type CompleteEvent struct {
	BaseEvent
	Target          string  `json:"target"`
	Status          string  `json:"status"`
	Degraded        bool    `json:"degraded,omitempty"`
	Unauthenticated bool    `json:"unauthenticated,omitempty"`
	DurationSec     float64 `json:"duration_sec"`
	Stats           Stats   `json:"stats"`
}
