package report

import (
	"context"
	"log/slog"
)

// Compile-time interface check.
var _ Sink = (*LogSink)(nil)

// LogSink mirrors scan events to a slog logger. Findings log at warn,
// per-probe results at debug, everything else at info.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// OnEvent logs the event with fields matching its type.
func (s *LogSink) OnEvent(_ context.Context, event Event) error {
	switch e := event.(type) {
	case *StartEvent:
		s.logger.Info("scan started",
			"scan", e.Scan,
			"target", e.Target,
			"classes", e.Classes,
			"concurrency", e.Config.Concurrency,
			"max_depth", e.Config.MaxDepth,
			"max_pages", e.Config.MaxPages,
			"render", e.Config.Render,
			"authenticated", e.Config.Authenticated)
	case *StageEvent:
		s.logger.Info("stage transition",
			"scan", e.Scan, "from", e.From, "to", e.To, "reason", e.Reason)
	case *ProbeEvent:
		s.logger.Debug("probe",
			"url", e.URL, "field", e.Field, "class", e.Class,
			"outcome", e.Outcome, "latency_ms", e.LatencyMs)
	case *FindingEvent:
		s.logger.Warn("finding",
			"scan", e.Scan,
			"url", e.Finding.URL,
			"field", e.Finding.Field,
			"class", e.Finding.Class,
			"confidence", e.Finding.Level,
			"rule", e.Finding.Rule,
			"unauthenticated", e.Finding.Unauthenticated)
	case *ProgressEvent:
		s.logger.Info("progress",
			"scan", e.Scan, "stage", e.Stage,
			"pages", e.Stats.PagesCrawled,
			"probes", e.Stats.ProbesSent,
			"findings", e.Stats.Findings)
	case *ErrorEvent:
		logFn := s.logger.Warn
		if e.Fatal {
			logFn = s.logger.Error
		}
		logFn("scan error",
			"scan", e.Scan, "stage", e.Stage, "url", e.URL, "error", e.Message)
	case *CompleteEvent:
		s.logger.Info("scan complete",
			"scan", e.Scan,
			"status", e.Status,
			"degraded", e.Degraded,
			"duration_sec", e.DurationSec,
			"pages", e.Stats.PagesCrawled,
			"probes", e.Stats.ProbesSent,
			"findings", e.Stats.Findings)
	}
	return nil
}

// Events subscribes to everything; level filtering is the logger's job.
func (s *LogSink) Events() []EventType { return nil }

// Close is a no-op.
func (s *LogSink) Close() error { return nil }
