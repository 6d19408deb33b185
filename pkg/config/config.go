// Package config holds the validated scan configuration the CLI hands to
// the orchestrator. The core never parses argv; callers fill a Config
// from flags or a YAML profile and call Validate before running.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
)

// Duration is a time.Duration that decodes YAML strings like "500ms".
type Duration time.Duration

// UnmarshalYAML parses durations in time.ParseDuration syntax.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrBadProfile, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AuthConfig describes the target's login flow. A nil AuthConfig means
// the scan runs unauthenticated by design.
type AuthConfig struct {
	LoginURL      string            `yaml:"login_url"`
	Method        string            `yaml:"method"`
	UsernameField string            `yaml:"username_field"`
	PasswordField string            `yaml:"password_field"`
	Username      string            `yaml:"username"`
	Password      string            `yaml:"password"`
	Extra         map[string]string `yaml:"extra"`

	// MaxReauth bounds how many times the login flow may run per scan.
	MaxReauth int `yaml:"max_reauth"`
}

// OutputConfig selects the report sinks to attach. Empty values leave a
// sink unregistered; the slog mirror is always on.
type OutputConfig struct {
	// JSONLPath receives one JSON event per line; "-" means stdout.
	JSONLPath string `yaml:"jsonl"`

	// MetricsPort exposes a Prometheus scrape endpoint on this port.
	MetricsPort int `yaml:"metrics_port"`

	// TraceEndpoint is an OTLP gRPC collector, e.g. "localhost:4317".
	TraceEndpoint string `yaml:"trace_endpoint"`

	// WebhookURL receives finding events as JSON POSTs.
	WebhookURL string `yaml:"webhook"`
}

// Config is the complete scan configuration. Immutable for a run.
type Config struct {
	// Target is the origin the scan starts from.
	Target string `yaml:"target"`

	// AllowHosts are hosts beyond the origin the crawler may enter.
	AllowHosts []string `yaml:"allow_hosts"`

	// Crawl budgets.
	MaxDepth int `yaml:"max_depth"`
	MaxPages int `yaml:"max_pages"`

	// Concurrency is the probe worker count; CrawlConcurrency the page
	// fetch worker count.
	Concurrency      int `yaml:"concurrency"`
	CrawlConcurrency int `yaml:"crawl_concurrency"`

	// Delay is the per-worker pause between dispatches. HumanDelay
	// replaces the fixed pause with normally distributed think time.
	Delay      Duration `yaml:"delay"`
	HumanDelay bool     `yaml:"human_delay"`

	// RatePerSec is an optional global request cap across all workers.
	RatePerSec float64 `yaml:"rate_per_sec"`

	// Retries bounds transport-failure retries per dispatch.
	Retries int `yaml:"retries"`

	// Render fetches pages through the headless browser path.
	Render bool `yaml:"render"`

	// Impersonate selects a TLS ClientHello fingerprint profile.
	Impersonate string `yaml:"impersonate"`

	Proxy      string `yaml:"proxy"`
	SkipVerify bool   `yaml:"skip_verify"`

	// Classes restricts probing to these vulnerability classes. Empty
	// means every registered class.
	Classes []string `yaml:"classes"`

	// MinConfidence is the lowest tier surfaced as a finding:
	// "informational", "likely" (default), or "confirmed".
	MinConfidence string `yaml:"min_confidence"`

	// TimingThreshold is the blind-injection timing delta. An explicit
	// input, never calibrated against the target.
	TimingThreshold Duration `yaml:"timing_threshold"`

	// SizeDelta is the boolean-rule body-size threshold in bytes.
	SizeDelta int `yaml:"size_delta"`

	Auth   *AuthConfig  `yaml:"auth"`
	Output OutputConfig `yaml:"output"`
}

// DefaultConfig returns the standard scan budgets and thresholds.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:         defaults.DepthDefault,
		MaxPages:         defaults.PagesDefault,
		Concurrency:      defaults.ConcurrencyMedium,
		CrawlConcurrency: defaults.ConcurrencyCrawl,
		Delay:            Duration(duration.ProbeDelay),
		Retries:          defaults.RetryTransport,
		MinConfidence:    "likely",
		TimingThreshold:  Duration(duration.TimingThreshold),
		SizeDelta:        defaults.SizeDeltaThreshold,
	}
}

// Load reads a YAML scan profile over the defaults. Values absent from
// the file keep their defaults; Validate is still the caller's job.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadProfile, err)
	}
	return cfg, nil
}

// confidenceTiers are the accepted MinConfidence values.
var confidenceTiers = map[string]bool{
	"informational": true,
	"likely":        true,
	"confirmed":     true,
}

// Validate checks for errors the scan cannot recover from. It normalizes
// class names and the confidence tier in place.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Target) == "" {
		return ErrMissingTarget
	}
	u, err := url.Parse(c.Target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, c.Target)
	}

	if c.MaxDepth < 0 || c.MaxPages < 0 || c.Concurrency < 0 || c.Retries < 0 ||
		c.RatePerSec < 0 || c.Delay < 0 || c.TimingThreshold < 0 {
		return ErrNegativeBudget
	}

	known := payload.Classes()
	registered := make(map[string]bool)
	names := make([]string, 0, len(known))
	for _, class := range known {
		registered[string(class)] = true
		names = append(names, string(class))
	}
	for i, class := range c.Classes {
		name := strings.ToLower(strings.TrimSpace(class))
		if !registered[name] {
			return fmt.Errorf("%w: %q (have %s)",
				ErrUnknownClass, class, strings.Join(names, ", "))
		}
		c.Classes[i] = name
	}

	if c.MinConfidence != "" {
		tier := strings.ToLower(strings.TrimSpace(c.MinConfidence))
		if !confidenceTiers[tier] {
			return fmt.Errorf("%w: %q", ErrBadConfidence, c.MinConfidence)
		}
		c.MinConfidence = tier
	}

	if c.Auth != nil {
		if c.Auth.LoginURL == "" {
			return fmt.Errorf("%w: auth block without login_url", ErrBadAuth)
		}
		if lu, err := url.Parse(c.Auth.LoginURL); err != nil || lu.Host == "" {
			return fmt.Errorf("%w: login_url %q", ErrBadAuth, c.Auth.LoginURL)
		}
		if c.Auth.Username == "" && c.Auth.Password == "" && len(c.Auth.Extra) == 0 {
			return fmt.Errorf("%w: auth block without credentials", ErrBadAuth)
		}
	}
	return nil
}

// ClassList returns the configured classes as payload class tags.
func (c *Config) ClassList() []payload.Class {
	out := make([]payload.Class, 0, len(c.Classes))
	for _, name := range c.Classes {
		out = append(out, payload.Class(name))
	}
	return out
}
