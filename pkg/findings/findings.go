// Package findings aggregates probe verdicts into deduplicated findings.
// A finding is keyed by (URL, field identity, class); repeated evidence
// for the same key only ever raises its confidence, so concurrent
// arrival order cannot change the final result.
package findings

import (
	"sort"
	"sync"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// Candidate is one verdict with the probe context it came from.
type Candidate struct {
	Node            *surface.Node
	Field           surface.Field
	Payload         payload.Payload
	Verdict         oracle.Verdict
	Unauthenticated bool
}

// Finding is one stored, deduplicated vulnerability observation.
type Finding struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Field      string            `json:"field"`
	Class      payload.Class     `json:"class"`
	Confidence oracle.Confidence `json:"-"`
	Level      string            `json:"confidence"`
	Rule       string            `json:"rule"`
	Evidence   string            `json:"evidence,omitempty"`
	Diff       string            `json:"diff,omitempty"`

	// OWASP is the Top 10 category code for the class, when one maps.
	OWASP string `json:"owasp,omitempty"`

	// Payload is the payload that first reached the current confidence.
	Payload payload.Payload `json:"payload"`

	// EvidenceByTier keeps the first evidence seen at each tier the
	// finding has passed through.
	EvidenceByTier map[string]string `json:"evidence_by_tier,omitempty"`

	// Unauthenticated marks findings produced after authentication was
	// lost; they may reflect a weaker vantage point.
	Unauthenticated bool `json:"unauthenticated,omitempty"`

	seq int
}

// Key returns the finding's identity within a scan.
func (f *Finding) Key() string {
	return f.URL + " " + f.Field + " " + string(f.Class)
}

func candidateKey(c Candidate) string {
	return c.Node.URL + " " + c.Field.Identity() + " " + string(c.Verdict.Class)
}

// Store is the single-writer finding aggregator.
type Store struct {
	mu    sync.Mutex
	byKey map[string]*Finding
	seq   int
	min   oracle.Confidence
}

// NewStore creates a Store surfacing findings at or above min. Zero
// means the default: likely and confirmed only.
func NewStore(min oracle.Confidence) *Store {
	if min == 0 {
		min = oracle.Likely
	}
	return &Store{byKey: make(map[string]*Finding), min: min}
}

// Record folds one candidate into the store. It reports whether the
// stored state changed: a finding was created or its confidence rose.
// Confidence never decreases, and the first evidence seen at each tier
// is the one kept for that tier.
func (s *Store) Record(c Candidate) bool {
	if c.Node == nil || c.Verdict.Confidence < s.min {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := candidateKey(c)
	tier := c.Verdict.Confidence.String()

	f, ok := s.byKey[key]
	if !ok {
		s.seq++
		s.byKey[key] = &Finding{
			URL:             c.Node.URL,
			Method:          c.Node.Method,
			Field:           c.Field.Identity(),
			Class:           c.Verdict.Class,
			Confidence:      c.Verdict.Confidence,
			Level:           tier,
			Rule:            c.Verdict.Rule,
			Evidence:        c.Verdict.Evidence,
			Diff:            c.Verdict.Diff,
			OWASP:           defaults.OWASPCategory(string(c.Verdict.Class)),
			Payload:         c.Payload,
			EvidenceByTier:  map[string]string{tier: c.Verdict.Evidence},
			Unauthenticated: c.Unauthenticated,
			seq:             s.seq,
		}
		return true
	}

	if _, seen := f.EvidenceByTier[tier]; !seen {
		f.EvidenceByTier[tier] = c.Verdict.Evidence
	}
	if c.Verdict.Confidence <= f.Confidence {
		return false
	}

	f.Confidence = c.Verdict.Confidence
	f.Level = tier
	f.Rule = c.Verdict.Rule
	f.Evidence = f.EvidenceByTier[tier]
	f.Diff = c.Verdict.Diff
	f.Payload = c.Payload
	f.Unauthenticated = c.Unauthenticated
	return true
}

// Len returns the number of stored findings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

// Get returns a snapshot of the finding stored under the given
// identity, if any.
func (s *Store) Get(url, field string, class payload.Class) (Finding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byKey[url+" "+field+" "+string(class)]
	if !ok {
		return Finding{}, false
	}
	cp := *f
	cp.EvidenceByTier = make(map[string]string, len(f.EvidenceByTier))
	for k, v := range f.EvidenceByTier {
		cp.EvidenceByTier[k] = v
	}
	return cp, true
}

// Findings returns snapshot copies ordered by confidence descending,
// then by discovery order.
func (s *Store) Findings() []Finding {
	s.mu.Lock()
	out := make([]Finding, 0, len(s.byKey))
	for _, f := range s.byKey {
		cp := *f
		cp.EvidenceByTier = make(map[string]string, len(f.EvidenceByTier))
		for k, v := range f.EvidenceByTier {
			cp.EvidenceByTier[k] = v
		}
		out = append(out, cp)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// CountByClass returns finding counts per vulnerability class.
func (s *Store) CountByClass() map[payload.Class]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[payload.Class]int)
	for _, f := range s.byKey {
		out[f.Class]++
	}
	return out
}
