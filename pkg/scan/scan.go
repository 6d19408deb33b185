// Package scan sequences one full run: authenticate, crawl, probe,
// aggregate, report. The orchestrator owns the state machine and the
// shared budget; component failures below the stage level never abort
// the run, they degrade it.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fuzzhound/fuzzhound/pkg/crawler"
	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/engine"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/findings"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/report"
	"github.com/fuzzhound/fuzzhound/pkg/session"
	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// State is one stage of the scan lifecycle.
type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateCrawling
	StateProbing
	StateFinalizing
	StateDone
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateCrawling:
		return "crawling"
	case StateProbing:
		return "probing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the scan can never leave this state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// transitions lists the legal successor states. Aborted is reachable
// from every non-terminal state but only through cancellation; Failed
// only from the preflight.
var transitions = map[State][]State{
	StateIdle:           {StateAuthenticating, StateCrawling, StateAborted, StateFailed},
	StateAuthenticating: {StateCrawling, StateAborted},
	StateCrawling:       {StateProbing, StateAborted},
	StateProbing:        {StateFinalizing, StateAborted},
	StateFinalizing:     {StateDone, StateAborted},
}

// Config holds orchestrator-level settings. Component configs are
// passed through untouched; nil means that component's defaults.
type Config struct {
	// Target is the validated origin the scan starts from.
	Target string

	Crawl  *crawler.Config
	Probe  *engine.Config
	Oracle *oracle.Config

	// MinConfidence is the lowest tier kept as a finding. Zero means
	// the aggregator default (likely).
	MinConfidence oracle.Confidence

	// Reporter receives scan events. Nil disables reporting.
	Reporter *report.Dispatcher

	// ProgressEvery emits a progress event after this many probes.
	ProgressEvery int

	Logger *slog.Logger
}

// Summary is everything a completed (or aborted) scan produced.
type Summary struct {
	ID     string
	Target string
	State  State

	// Degraded means some region of the target could not be covered:
	// a challenge was not bypassed, a probe pair was blocked, or
	// authentication was configured but lost.
	Degraded bool

	// Unauthenticated means auth was configured but not in effect when
	// the scan ended.
	Unauthenticated bool

	Duration time.Duration
	Model    *surface.Model
	Findings []findings.Finding
	Stats    report.Stats
}

// Scanner drives one scan run. A Scanner is single-use: Run may be
// called once.
type Scanner struct {
	id       string
	cfg      *Config
	client   fetch.Client
	sessions *session.Manager
	crawl    *crawler.Crawler
	probes   *engine.Engine
	store    *findings.Store
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	degraded bool
	ran      bool

	stats report.Stats
}

// New assembles a Scanner around a shared transport and session.
// sessions may be nil for a scan with no session handling at all.
func New(client fetch.Client, sessions *session.Manager, cfg *Config) *Scanner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaults.ChannelSmall
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		id:       uuid.NewString(),
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		crawl:    crawler.New(client, sessions, cfg.Crawl),
		probes:   engine.New(client, sessions, oracle.New(cfg.Oracle), cfg.Probe),
		store:    findings.NewStore(cfg.MinConfidence),
		logger:   logger,
		state:    StateIdle,
	}
}

// ID returns the scan run identifier.
func (s *Scanner) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether any region of the target was left uncovered.
func (s *Scanner) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Run executes the full pipeline. Cancellation ends the scan in
// StateAborted with everything gathered so far still in the Summary;
// only an unreachable origin or a second Run call returns an error.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return nil, ErrScanConsumed
	}
	s.ran = true
	s.mu.Unlock()

	started := time.Now()
	s.emitStart()

	if err := s.preflight(ctx); err != nil {
		s.transition(StateFailed, "origin unreachable")
		s.emitError(StateIdle, s.cfg.Target, err.Error(), true)
		summary := s.finish(started)
		s.emitComplete(summary)
		return summary, fmt.Errorf("%w: %v", ErrOriginUnreachable, err)
	}

	if s.sessions != nil && s.sessions.AuthConfigured() {
		s.authenticate(ctx)
	}

	if ctx.Err() != nil {
		return s.abort(started), nil
	}

	nodes, err := s.runCrawl(ctx)
	if err != nil {
		// Only an invalid origin reaches here and preflight already
		// parsed it, but the stage still reports rather than panics.
		s.transition(StateFailed, "crawl could not start")
		s.emitError(StateCrawling, s.cfg.Target, err.Error(), true)
		summary := s.finish(started)
		s.emitComplete(summary)
		return summary, err
	}

	if ctx.Err() != nil {
		return s.abort(started), nil
	}

	s.runProbes(ctx, nodes)

	if ctx.Err() != nil {
		return s.abort(started), nil
	}

	s.transition(StateFinalizing, "probe queue drained")
	summary := s.finish(started)
	s.transition(StateDone, "")
	summary.State = StateDone
	s.emitComplete(summary)
	return summary, nil
}

// preflight makes first contact with the origin. A transport failure
// here is the one scan-fatal error; any HTTP status, including a
// challenge page, means the origin exists and the crawler takes over.
func (s *Scanner) preflight(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, duration.HTTPCrawl)
	defer cancel()

	req := fetch.NewRequest(http.MethodGet, s.cfg.Target)
	req.Header.Set("Accept", defaults.AcceptHTML)
	_, err := s.client.Do(ctx, req)
	return err
}

func (s *Scanner) authenticate(ctx context.Context) {
	s.transition(StateAuthenticating, "")
	if err := s.sessions.Authenticate(ctx); err != nil {
		s.logger.Warn("authentication failed, continuing unauthenticated", "error", err)
		s.emitError(StateAuthenticating, "", err.Error(), false)
		s.degrade()
	}
}

// runCrawl drains the discovery stream into the surface model and
// returns the nodes in discovery order.
func (s *Scanner) runCrawl(ctx context.Context) ([]*surface.Node, error) {
	s.transition(StateCrawling, "")

	stream, err := s.crawl.Discover(ctx, s.cfg.Target)
	if err != nil {
		return nil, err
	}
	for node := range stream {
		s.mu.Lock()
		s.stats.NodesFound++
		if len(node.Fields) > 0 {
			s.stats.FormsFound++
		}
		if node.Degraded {
			s.degraded = true
		}
		s.mu.Unlock()
	}

	fetched, _, _, blocked := s.crawl.Stats().Snapshot()
	s.mu.Lock()
	s.stats.PagesCrawled = fetched
	if blocked > 0 {
		s.degraded = true
	}
	s.mu.Unlock()

	return s.crawl.Model().Nodes(), nil
}

// runProbes feeds every crawled node through the injection engine and
// folds verdicts into the finding store.
func (s *Scanner) runProbes(ctx context.Context, nodes []*surface.Node) {
	s.transition(StateProbing, "crawl budget exhausted")

	for res := range s.probes.Run(ctx, nodes) {
		s.recordResult(ctx, res)
	}
}

func (s *Scanner) recordResult(ctx context.Context, res engine.Result) {
	s.mu.Lock()
	s.stats.ProbesSent++
	switch res.Outcome {
	case engine.OutcomeInconclusive:
		s.stats.Inconclusive++
	case engine.OutcomeBlocked:
		s.stats.Blocked++
		s.degraded = true
	}
	probes := s.stats.ProbesSent
	s.mu.Unlock()

	s.emitProbe(res)

	if res.Outcome == engine.OutcomeFinding && res.Verdict != nil {
		changed := s.store.Record(findings.Candidate{
			Node:            res.Node,
			Field:           res.Field,
			Payload:         res.Payload,
			Verdict:         *res.Verdict,
			Unauthenticated: res.Unauthenticated,
		})
		if changed {
			if f, ok := s.store.Get(res.Node.URL, res.Field.Identity(), res.Verdict.Class); ok {
				s.emitFinding(f)
			}
		}
	}

	if probes%s.cfg.ProgressEvery == 0 {
		s.emitProgress(ctx)
	}
}

// abort finalizes a cancelled scan. Partial results stay reportable.
func (s *Scanner) abort(started time.Time) *Summary {
	s.transition(StateAborted, "cancelled")
	summary := s.finish(started)
	s.emitComplete(summary)
	return summary
}

// finish snapshots the summary without changing state.
func (s *Scanner) finish(started time.Time) *Summary {
	found := s.store.Findings()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Findings = len(found)
	s.stats.ByClass = make(map[string]int)
	s.stats.ByConfidence = make(map[string]int)
	for _, f := range found {
		s.stats.ByClass[string(f.Class)]++
		s.stats.ByConfidence[f.Level]++
	}

	unauthenticated := s.sessions != nil && s.sessions.AuthConfigured() && !s.sessions.Authenticated()
	if unauthenticated {
		s.degraded = true
	}

	return &Summary{
		ID:              s.id,
		Target:          s.cfg.Target,
		State:           s.state,
		Degraded:        s.degraded,
		Unauthenticated: unauthenticated,
		Duration:        time.Since(started),
		Model:           s.crawl.Model(),
		Findings:        found,
		Stats:           s.stats,
	}
}

func (s *Scanner) degrade() {
	s.mu.Lock()
	s.degraded = true
	s.mu.Unlock()
}

// transition moves the state machine, logging and reporting the edge.
// An illegal edge is a programming error and is logged, not obeyed.
func (s *Scanner) transition(to State, reason string) {
	s.mu.Lock()
	from := s.state
	legal := to == StateFailed || to == StateAborted
	for _, next := range transitions[from] {
		if next == to {
			legal = true
			break
		}
	}
	if !legal || from.Terminal() {
		s.mu.Unlock()
		s.logger.Error("illegal state transition", "from", from.String(), "to", to.String())
		return
	}
	s.state = to
	s.mu.Unlock()

	s.logger.Info("scan stage", "scan", s.id, "from", from.String(), "to", to.String())
	s.emit(&report.StageEvent{
		BaseEvent: s.base(report.EventTypeStage),
		From:      from.String(),
		To:        to.String(),
		Reason:    reason,
	})
}
