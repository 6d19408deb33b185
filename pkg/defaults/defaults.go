// Package defaults provides canonical default values for the entire codebase.
//
// Usage:
//
//	cfg.Concurrency = defaults.ConcurrencyMedium
//	req.Header.Set("Content-Type", defaults.ContentTypeForm)
//
// Reference these constants instead of scattering magic numbers through the
// code.
package defaults

import "fmt"

// ToolName is the canonical tool name used in user agents, service
// names, and delivery headers.
const ToolName = "fuzzhound"

// Version is the current fuzzhound version
const Version = "0.9.2"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================
//
// Use these for worker pools and parallel fetch fan-out. Choose by how
// aggressive the stage is allowed to be against the target.
// ============================================================================

const (
	// ConcurrencySerial runs one request at a time (1)
	ConcurrencySerial = 1

	// ConcurrencyLow is for polite scans of small targets (4)
	ConcurrencyLow = 4

	// ConcurrencyMedium is the standard probing pool size (10)
	ConcurrencyMedium = 10

	// ConcurrencyHigh is for fast scans where the target tolerates it (25)
	ConcurrencyHigh = 25

	// ConcurrencyCrawl is the default crawl fetch fan-out (5)
	ConcurrencyCrawl = 5
)

// ============================================================================
// RETRY SETTINGS
// ============================================================================

const (
	// RetryNone disables retries (0)
	RetryNone = 0

	// RetryTransport is the bound on transport-failure retries per probe (2)
	RetryTransport = 2

	// RetryAuth is the bound on automatic re-authentication per scan (3)
	RetryAuth = 3

	// RetryDeliver is the attempt bound for external sink deliveries (3)
	RetryDeliver = 3
)

// ============================================================================
// BUDGETS
// ============================================================================
//
// Crawl and probe budgets. Budget exhaustion is a normal termination
// condition, never an error.
// ============================================================================

const (
	// DepthShallow is for quick surface checks (1)
	DepthShallow = 1

	// DepthDefault is the standard crawl depth (3)
	DepthDefault = 3

	// DepthDeep is for thorough discovery (5)
	DepthDeep = 5

	// PagesDefault is the standard page budget (50)
	PagesDefault = 50

	// PagesMax is the hard page ceiling regardless of config (1000)
	PagesMax = 1000
)

// ============================================================================
// BUFFER AND CHANNEL SIZES
// ============================================================================

const (
	// BufferSmall is for typical reads (4KB)
	BufferSmall = 4 * 1024

	// BufferMedium is for larger reads (32KB)
	BufferMedium = 32 * 1024

	// BufferMax is the maximum response body size retained (1MB)
	BufferMax = 1024 * 1024

	// ChannelSmall is for typical buffered channels (100)
	ChannelSmall = 100

	// ChannelMedium is for queue-style channels (1000)
	ChannelMedium = 1000

	// ChannelCrawl is the crawl frontier buffer (10000)
	ChannelCrawl = 10000
)

// ============================================================================
// CONNECTION POOLING
// ============================================================================

const (
	// PoolIdleConns is the idle connection pool size across all hosts (100)
	PoolIdleConns = 100

	// PoolConnsPerHost bounds connections to a single host (25)
	PoolConnsPerHost = 25
)

// ============================================================================
// HTTP CONTENT TYPES AND ACCEPT HEADERS
// ============================================================================

const (
	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"

	// ContentTypeForm is application/x-www-form-urlencoded
	ContentTypeForm = "application/x-www-form-urlencoded"

	// ContentTypeMultipart is multipart/form-data
	ContentTypeMultipart = "multipart/form-data"

	// ContentTypeHTML is text/html
	ContentTypeHTML = "text/html"

	// AcceptAll accepts any content type
	AcceptAll = "*/*"

	// AcceptHTML accepts HTML and related types (standard browser)
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ============================================================================
// USER AGENTS
// ============================================================================
//
// A scan that should look like a person uses a real browser string, never
// the tool banner.
// ============================================================================

const (
	// UAChrome is a current Chrome user agent
	UAChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// UAFirefox is a current Firefox user agent
	UAFirefox = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"

	// UASafari is a current Safari user agent
	UASafari = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15"

	// UAMinimal is the bare tool banner, for targets that are ours
	UAMinimal = "fuzzhound/" + Version
)

// UserAgent returns the tool user agent with optional context.
func UserAgent(context string) string {
	if context == "" {
		return UAMinimal
	}
	return fmt.Sprintf("fuzzhound/%s (%s)", Version, context)
}

// ============================================================================
// RATE LIMITING
// ============================================================================

const (
	// RateLimitNone disables the global cap; per-worker delay still applies (0)
	RateLimitNone = 0

	// RateLimitPolite is a conservative global cap (10 req/s)
	RateLimitPolite = 10

	// RateLimitDefault is a moderate global cap (50 req/s)
	RateLimitDefault = 50
)

// ============================================================================
// THRESHOLDS AND LIMITS
// ============================================================================

const (
	// MaxRedirects is the maximum number of redirects followed during auth
	MaxRedirects = 10

	// MaxURLLength caps accepted URLs during extraction
	MaxURLLength = 8192

	// MaxFieldsPerNode caps the fields recorded for one surface node
	MaxFieldsPerNode = 100

	// SizeDeltaThreshold is the minimum body-length delta the boolean rule
	// treats as significant, absent explicit config (bytes)
	SizeDeltaThreshold = 100

	// EvidenceContext is how many bytes of context surround an evidence match
	EvidenceContext = 20

	// EvidenceMaxLen caps a stored evidence snippet
	EvidenceMaxLen = 240
)
