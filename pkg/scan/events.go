package scan

import (
	"context"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/engine"
	"github.com/fuzzhound/fuzzhound/pkg/findings"
	"github.com/fuzzhound/fuzzhound/pkg/report"
)

// Event emission. The dispatcher is optional; everything here is a
// no-op without one. Events use a background context so a cancelled
// scan can still report its final state.

func (s *Scanner) base(t report.EventType) report.BaseEvent {
	return report.BaseEvent{Type: t, Time: time.Now(), Scan: s.id}
}

func (s *Scanner) emit(event report.Event) {
	if s.cfg.Reporter == nil {
		return
	}
	s.cfg.Reporter.Dispatch(context.Background(), event)
}

func (s *Scanner) emitStart() {
	classes := make([]string, 0)
	var cfg report.ScanConfig
	if s.cfg.Probe != nil {
		cfg.Concurrency = s.cfg.Probe.Concurrency
		cfg.RatePerSec = s.cfg.Probe.RateLimit
		for _, class := range s.cfg.Probe.Classes {
			classes = append(classes, string(class))
		}
	}
	if s.cfg.Crawl != nil {
		cfg.MaxDepth = s.cfg.Crawl.MaxDepth
		cfg.MaxPages = s.cfg.Crawl.MaxPages
		cfg.Render = s.cfg.Crawl.Render
	}
	cfg.Authenticated = s.sessions != nil && s.sessions.AuthConfigured()

	s.emit(&report.StartEvent{
		BaseEvent: s.base(report.EventTypeStart),
		Target:    s.cfg.Target,
		Classes:   classes,
		Config:    cfg,
	})
}

func (s *Scanner) emitProbe(res engine.Result) {
	event := &report.ProbeEvent{
		BaseEvent: s.base(report.EventTypeProbe),
		URL:       res.Node.URL,
		Method:    res.Node.Method,
		Field:     res.Field.Identity(),
		Class:     string(res.Payload.Class),
		Outcome:   res.Outcome.String(),
		LatencyMs: float64(res.Elapsed.Microseconds()) / 1000,
	}
	s.emit(event)
}

func (s *Scanner) emitFinding(f findings.Finding) {
	s.emit(&report.FindingEvent{
		BaseEvent: s.base(report.EventTypeFinding),
		Finding:   f,
	})
}

func (s *Scanner) emitProgress(_ context.Context) {
	s.mu.Lock()
	stats := s.stats
	stage := s.state.String()
	s.mu.Unlock()
	stats.Findings = s.store.Len()

	s.emit(&report.ProgressEvent{
		BaseEvent: s.base(report.EventTypeProgress),
		Stage:     stage,
		Stats:     stats,
	})
}

func (s *Scanner) emitError(stage State, url, message string, fatal bool) {
	s.emit(&report.ErrorEvent{
		BaseEvent: s.base(report.EventTypeError),
		Stage:     stage.String(),
		URL:       url,
		Message:   message,
		Fatal:     fatal,
	})
}

func (s *Scanner) emitComplete(summary *Summary) {
	s.emit(&report.CompleteEvent{
		BaseEvent:       s.base(report.EventTypeComplete),
		Target:          summary.Target,
		Status:          summary.State.String(),
		Degraded:        summary.Degraded,
		Unauthenticated: summary.Unauthenticated,
		DurationSec:     summary.Duration.Seconds(),
		Stats:           summary.Stats,
	})
}
