// Package engine dispatches injection probes against the discovered
// surface. For every (node, field) pair it fetches one baseline, then
// walks the applicable payload sequence, sending each test request
// through the session layer and handing the response pair to the oracle.
// A failed probe is recorded as inconclusive and never aborts the scan.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fuzzhound/fuzzhound/pkg/challenge"
	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
	"github.com/fuzzhound/fuzzhound/pkg/session"
	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// Config holds probe pacing and scope.
type Config struct {
	// Concurrency is the probe worker count.
	Concurrency int

	// Delay is consulted before each dispatch, per worker.
	Delay DelayPolicy

	// RateLimit is a global requests-per-second cap across all workers.
	// Zero disables it; per-worker Delay still applies.
	RateLimit float64

	// Retries bounds transport-failure retries per dispatch.
	Retries int

	// Classes restricts probing to these vulnerability classes. Empty
	// means every registered class.
	Classes []payload.Class

	// Payloads is the payload registry. Nil means the default registry.
	Payloads *payload.Registry

	// Clock is the waiting implementation. Nil means real time.
	Clock Clock

	Logger *slog.Logger
}

// DefaultConfig returns standard probe pacing.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: defaults.ConcurrencyMedium,
		Delay:       FixedDelay(duration.ProbeDelay),
		Retries:     defaults.RetryTransport,
	}
}

// Outcome says what a single probe established.
type Outcome int

const (
	// OutcomeClean means the oracle found no evidence.
	OutcomeClean Outcome = iota

	// OutcomeFinding means the oracle produced a verdict.
	OutcomeFinding

	// OutcomeInconclusive means dispatch failed after retries; nothing
	// can be said about the probe.
	OutcomeInconclusive

	// OutcomeBlocked means a challenge page answered instead of content.
	OutcomeBlocked
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinding:
		return "finding"
	case OutcomeInconclusive:
		return "inconclusive"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "clean"
	}
}

// Result is the record of one probe. Verdict is set only for findings.
type Result struct {
	Node    *surface.Node
	Field   surface.Field
	Payload payload.Payload
	Outcome Outcome
	Verdict *oracle.Verdict
	Err     error

	// Elapsed is the test request round-trip time. Zero when dispatch
	// never completed.
	Elapsed time.Duration

	// Unauthenticated marks results produced after authentication was
	// permanently lost.
	Unauthenticated bool
}

// Engine drives probes through a shared transport and session.
type Engine struct {
	cfg      *Config
	client   fetch.Client
	sessions *session.Manager
	oracle   *oracle.Oracle
	payloads *payload.Registry
	limiter  *rate.Limiter
	clock    Clock
	logger   *slog.Logger

	mu        sync.Mutex
	baselines map[string]*baselineEntry
}

// baselineEntry guards the at-most-once dispatch of one pair's baseline.
type baselineEntry struct {
	once sync.Once
	resp *fetch.Response
	err  error
}

// fieldJob is one (node, field) pair to probe.
type fieldJob struct {
	node  *surface.Node
	field surface.Field
}

// New creates an Engine. sessions may be nil for unauthenticated scans.
func New(client fetch.Client, sessions *session.Manager, orc *oracle.Oracle, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.ConcurrencyMedium
	}
	if cfg.Delay == nil {
		cfg.Delay = FixedDelay(duration.ProbeDelay)
	}
	if cfg.Retries < 0 {
		cfg.Retries = defaults.RetryTransport
	}
	reg := cfg.Payloads
	if reg == nil {
		reg = payload.DefaultRegistry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Engine{
		cfg:       cfg,
		client:    client,
		sessions:  sessions,
		oracle:    orc,
		payloads:  reg,
		limiter:   limiter,
		clock:     clock,
		logger:    logger,
		baselines: make(map[string]*baselineEntry),
	}
}

// Run probes every field of every probeable node and streams results.
// The channel closes when the queue drains or ctx is cancelled;
// in-flight probes complete either way.
func (e *Engine) Run(ctx context.Context, nodes []*surface.Node) <-chan Result {
	out := make(chan Result, defaults.ChannelMedium)
	jobs := make(chan fieldJob)

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				e.probeField(ctx, job.node, job.field, out)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, node := range nodes {
			if !probeable(node) {
				continue
			}
			for _, field := range node.Fields {
				select {
				case jobs <- fieldJob{node: node, field: field}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// probeable filters out nodes that cannot answer probes meaningfully.
func probeable(node *surface.Node) bool {
	return node != nil && !node.Degraded && node.FetchErr == "" && len(node.Fields) > 0
}

// probeField runs the full payload sequence for one (node, field) pair.
func (e *Engine) probeField(ctx context.Context, node *surface.Node, field surface.Field, out chan<- Result) {
	if ctx.Err() != nil {
		return
	}

	baseline, err := e.baseline(ctx, node, field)
	if err != nil {
		out <- Result{
			Node: node, Field: field,
			Outcome: OutcomeInconclusive, Err: err,
			Unauthenticated: e.unauthenticated(),
		}
		return
	}

	fctx := payload.FieldContext{Type: field.Type, Location: field.Location, Sample: field.Sample}
	n := 0
	for _, class := range e.classes() {
		for _, p := range e.payloads.Generate(class, fctx) {
			if ctx.Err() != nil {
				return
			}
			e.clock.Sleep(ctx, e.cfg.Delay(n))
			n++

			test, err := e.dispatchProbe(ctx, node, field, p.Value)
			if err != nil {
				out <- Result{
					Node: node, Field: field, Payload: p,
					Outcome: OutcomeInconclusive, Err: err,
					Unauthenticated: e.unauthenticated(),
				}
				continue
			}

			if det, blocked := challenge.Detect(test); blocked {
				e.logger.Warn("probe blocked by challenge",
					"url", node.URL, "field", field.Name,
					"kind", det.Kind, "provider", det.Provider)
				out <- Result{
					Node: node, Field: field, Payload: p,
					Outcome: OutcomeBlocked,
					Err:     fmt.Errorf("%w: %s/%s", ErrBlocked, det.Kind, det.Provider),
					Elapsed: test.Duration,
				}
				// The field is behind active mitigation now; hammering
				// it further only burns budget.
				return
			}

			res := Result{
				Node: node, Field: field, Payload: p,
				Elapsed:         test.Duration,
				Unauthenticated: e.unauthenticated(),
			}
			if v, ok := e.oracle.Classify(baseline, test, p); ok {
				res.Outcome = OutcomeFinding
				res.Verdict = &v
			}
			out <- res
		}
	}
}

// baseline returns the pair's cached baseline response, dispatching it
// at most once per scan.
func (e *Engine) baseline(ctx context.Context, node *surface.Node, field surface.Field) (*fetch.Response, error) {
	key := node.Key() + " " + field.Identity()

	e.mu.Lock()
	entry, ok := e.baselines[key]
	if !ok {
		entry = &baselineEntry{}
		e.baselines[key] = entry
	}
	e.mu.Unlock()

	entry.once.Do(func() {
		req, err := baselineRequest(node)
		if err != nil {
			entry.err = err
			return
		}
		entry.resp, entry.err = e.dispatch(ctx, req)
	})
	return entry.resp, entry.err
}

// dispatchProbe builds and sends one test request.
func (e *Engine) dispatchProbe(ctx context.Context, node *surface.Node, field surface.Field, value string) (*fetch.Response, error) {
	req, err := buildRequest(node, field, value)
	if err != nil {
		return nil, err
	}
	return e.dispatch(ctx, req)
}

// dispatch sends a request through the session layer with bounded
// retries and exponential backoff on transport failure.
func (e *Engine) dispatch(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	if e.sessions != nil {
		if err := e.sessions.EnsureAuthenticated(ctx); err != nil {
			// Authentication is permanently lost; the scan continues
			// unauthenticated and results are tagged.
			e.logger.Debug("proceeding unauthenticated", "error", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := duration.RetryBase << (attempt - 1)
			if backoff > duration.RetryMax {
				backoff = duration.RetryMax
			}
			e.clock.Sleep(ctx, backoff)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := e.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (e *Engine) doOnce(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, duration.HTTPProbe)
	defer cancel()

	send := req
	if e.sessions != nil {
		decorated, err := e.sessions.Decorate(req)
		if err != nil {
			return nil, err
		}
		send = decorated
	}
	resp, err := e.client.Do(ctx, send)
	if err != nil {
		return nil, err
	}
	if e.sessions != nil {
		e.sessions.Observe(send.URL, resp)
	}
	return resp, nil
}

// classes resolves the enabled class list.
func (e *Engine) classes() []payload.Class {
	if len(e.cfg.Classes) > 0 {
		return e.cfg.Classes
	}
	return e.payloads.Classes()
}

func (e *Engine) unauthenticated() bool {
	return e.sessions != nil && e.sessions.AuthConfigured() && !e.sessions.Authenticated()
}
