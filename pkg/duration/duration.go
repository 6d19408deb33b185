// Package duration provides canonical time constants for the entire codebase.
//
// Usage:
//
//	ctx, cancel := context.WithTimeout(ctx, duration.ContextCrawl)
//	if delta > duration.TimingThreshold {
//
// Reference these constants instead of scattering hardcoded time.Duration
// literals through the code.
package duration

import "time"

// ============================================================================
// HTTP REQUEST TIMEOUTS
// ============================================================================
//
// Per-request timeouts, chosen by operation kind.
// ============================================================================

const (
	// HTTPProbe is for injection probes against a single endpoint (10s)
	HTTPProbe = 10 * time.Second

	// HTTPCrawl is for page fetches during discovery (15s)
	HTTPCrawl = 15 * time.Second

	// HTTPAuth is for login flows, which may chain redirects (30s)
	HTTPAuth = 30 * time.Second

	// HTTPRender is for browser-rendered fetches, which load subresources (45s)
	HTTPRender = 45 * time.Second
)

// ============================================================================
// STAGE/CONTEXT BOUNDS
// ============================================================================
//
// Use these for context.WithTimeout() around whole scan stages.
// ============================================================================

const (
	// ContextCrawl bounds the discovery stage (10min)
	ContextCrawl = 10 * time.Minute

	// ContextProbe bounds the probing stage (30min)
	ContextProbe = 30 * time.Minute

	// ContextScan bounds a full scan run (45min)
	ContextScan = 45 * time.Minute
)

// ============================================================================
// PACING AND RETRY
// ============================================================================
//
// Use these for inter-request delays and transport-failure backoff.
// ============================================================================

const (
	// ProbeDelay is the default pause between consecutive probes per worker (250ms)
	ProbeDelay = 250 * time.Millisecond

	// CrawlDelay is the default pause between page fetches per worker (100ms)
	CrawlDelay = 100 * time.Millisecond

	// RetryBase is the initial backoff after a transport failure (500ms)
	RetryBase = 500 * time.Millisecond

	// RetryMax caps backoff growth (8s)
	RetryMax = 8 * time.Second

	// ThinkTimeMean is the mean of the human-like think-time distribution (800ms)
	ThinkTimeMean = 800 * time.Millisecond

	// ThinkTimeStdDev is the spread of the think-time distribution (300ms)
	ThinkTimeStdDev = 300 * time.Millisecond
)

// ============================================================================
// ORACLE TIMING THRESHOLDS
// ============================================================================
//
// Use these for time-based evidence rules.
// ============================================================================

const (
	// TimingThreshold is the minimum baseline-vs-test latency delta that
	// time-based rules treat as significant, absent explicit config (3s)
	TimingThreshold = 3 * time.Second

	// TimingSlack is subtracted from the expected injected sleep when
	// comparing, absorbing network jitter (1s)
	TimingSlack = 1 * time.Second

	// SlowResponse flags a response as slow in scan statistics (5s)
	SlowResponse = 5 * time.Second
)

// ============================================================================
// BROWSER/RENDERED FETCH
// ============================================================================

const (
	// BrowserPage is the page load timeout for rendered fetches (30s)
	BrowserPage = 30 * time.Second

	// BrowserSettle is the wait after load for dynamic content (2s)
	BrowserSettle = 2 * time.Second
)

// ============================================================================
// SINK DELIVERY
// ============================================================================
//
// Use these for report sinks that talk to external systems.
// ============================================================================

const (
	// WebhookTimeout bounds one delivery attempt to an external endpoint (10s)
	WebhookTimeout = 10 * time.Second

	// SinkShutdown bounds graceful shutdown of sink servers and exporters (5s)
	SinkShutdown = 5 * time.Second
)

// ============================================================================
// NETWORK/TRANSPORT
// ============================================================================

const (
	// DialTimeout is for establishing TCP connections (10s)
	DialTimeout = 10 * time.Second

	// KeepAlive is the TCP keep-alive interval (30s)
	KeepAlive = 30 * time.Second

	// IdleConnTimeout is the idle connection pool timeout (90s)
	IdleConnTimeout = 90 * time.Second

	// TLSHandshake is the TLS handshake timeout (10s)
	TLSHandshake = 10 * time.Second
)
