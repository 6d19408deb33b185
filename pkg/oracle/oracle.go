// Package oracle classifies probe responses against per-class evidence
// rules. For each vulnerability class a fixed-priority rule chain is
// evaluated against the (baseline, test, payload) triple; the first match
// determines the verdict and its confidence tier. No matching rule means
// no verdict at all, so silence is never reported as evidence.
package oracle

import (
	"time"

	"github.com/spaolacci/murmur3"

	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
)

// Confidence orders evidence strength. Only Likely and Confirmed are
// surfaced to the aggregator by default.
type Confidence int

const (
	Informational Confidence = iota + 1
	Likely
	Confirmed
)

func (c Confidence) String() string {
	switch c {
	case Informational:
		return "informational"
	case Likely:
		return "likely"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Verdict is the classification of one probe response. Immutable once
// produced.
type Verdict struct {
	Class      payload.Class
	Confidence Confidence
	Rule       string
	Evidence   string
	Diff       string
}

// Config holds the thresholds the evidence rules consult. The timing
// threshold is an explicit input rather than something calibrated per
// target; tune it per scan profile.
type Config struct {
	TimingThreshold time.Duration
	SizeDelta       int
}

// DefaultConfig returns thresholds suitable for typical targets.
func DefaultConfig() *Config {
	return &Config{
		TimingThreshold: duration.TimingThreshold,
		SizeDelta:       defaultSizeDelta,
	}
}

// Oracle evaluates rule chains. Safe for concurrent use; rule chains are
// snapshotted at construction and never mutated afterwards.
type Oracle struct {
	cfg       *Config
	byClass   map[payload.Class][]Rule
	secondary []Rule
}

// New builds an Oracle from the process-wide rule registry.
func New(cfg *Config) *Oracle {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	byClass, secondary := registeredRules()
	return &Oracle{cfg: cfg, byClass: byClass, secondary: secondary}
}

// Classify runs the payload class's rule chain, then the class-independent
// secondary chain, returning the first match. ok is false when no rule
// matched or either response is missing.
func (o *Oracle) Classify(baseline, test *fetch.Response, p payload.Payload) (Verdict, bool) {
	if baseline == nil || test == nil {
		return Verdict{}, false
	}
	if identical(baseline, test, o.cfg.TimingThreshold) {
		return Verdict{}, false
	}

	in := Input{Baseline: baseline, Test: test, Payload: p, Config: o.cfg}

	for _, rule := range o.byClass[p.Class] {
		if v, ok := rule.Evaluate(in); ok {
			if v.Class == "" {
				v.Class = p.Class
			}
			v.Rule = rule.Name()
			return v, true
		}
	}
	for _, rule := range o.secondary {
		if v, ok := rule.Evaluate(in); ok {
			v.Rule = rule.Name()
			return v, true
		}
	}
	return Verdict{}, false
}

// identical short-circuits the rule chains when the test response cannot
// be distinguished from the baseline: same status, same body hash, timing
// within threshold. Hashing is far cheaper than running every signature
// table over an unchanged body.
func identical(baseline, test *fetch.Response, threshold time.Duration) bool {
	if baseline.Status != test.Status {
		return false
	}
	if murmur3.Sum32([]byte(baseline.Body)) != murmur3.Sum32([]byte(test.Body)) {
		return false
	}
	delta := test.Duration - baseline.Duration
	if delta < 0 {
		delta = -delta
	}
	return delta < threshold
}
