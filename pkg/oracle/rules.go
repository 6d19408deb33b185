package oracle

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
)

// Input bundles everything a rule may inspect.
type Input struct {
	Baseline *fetch.Response
	Test     *fetch.Response
	Payload  payload.Payload
	Config   *Config
}

// Rule is one evidence check. Evaluate returns ok=false when the rule has
// nothing to say about this probe; the chain then moves to the next rule.
type Rule interface {
	Name() string
	Evaluate(Input) (Verdict, bool)
}

// Rule chains are registered per class at init time. Order within a chain
// is priority order.
var ruleRegistry = struct {
	mu        sync.RWMutex
	byClass   map[payload.Class][]Rule
	secondary []Rule
}{byClass: make(map[payload.Class][]Rule)}

// RegisterRules appends rules to a class's chain.
func RegisterRules(class payload.Class, rules ...Rule) {
	ruleRegistry.mu.Lock()
	defer ruleRegistry.mu.Unlock()
	ruleRegistry.byClass[class] = append(ruleRegistry.byClass[class], rules...)
}

// RegisterSecondary appends class-independent rules evaluated after every
// class chain. These set their own verdict class.
func RegisterSecondary(rules ...Rule) {
	ruleRegistry.mu.Lock()
	defer ruleRegistry.mu.Unlock()
	ruleRegistry.secondary = append(ruleRegistry.secondary, rules...)
}

func registeredRules() (map[payload.Class][]Rule, []Rule) {
	ruleRegistry.mu.RLock()
	defer ruleRegistry.mu.RUnlock()
	byClass := make(map[payload.Class][]Rule, len(ruleRegistry.byClass))
	for class, chain := range ruleRegistry.byClass {
		byClass[class] = append([]Rule(nil), chain...)
	}
	return byClass, append([]Rule(nil), ruleRegistry.secondary...)
}

func init() {
	RegisterRules(payload.ClassXSS,
		reflectedRawRule{},
		domDeltaRule{},
		reflectedEncodedRule{},
	)
	RegisterRules(payload.ClassSQLI,
		sqlErrorRule{},
		timingRule{class: payload.ClassSQLI},
		booleanDeltaRule{},
	)
	RegisterRules(payload.ClassSSRF,
		ssrfIndicatorRule{},
	)
	RegisterRules(payload.ClassTraversal,
		fileContentRule{},
		pathDisclosureRule{class: payload.ClassTraversal, confidence: Likely},
	)
	RegisterRules(payload.ClassSSTI,
		templateEvalRule{},
		templateErrorRule{},
	)
	RegisterSecondary(
		serverErrorRule{},
		pathDisclosureRule{class: ClassPathDisclosure, confidence: Informational},
		debugInfoRule{},
	)
}

// statusDiff renders the baseline-vs-test status summary used in Diff.
func statusDiff(in Input) string {
	return fmt.Sprintf("status %d -> %d", in.Baseline.Status, in.Test.Status)
}

func sizeDiff(in Input) string {
	return fmt.Sprintf("length %d -> %d", len(in.Baseline.Body), len(in.Test.Body))
}

// ==================== XSS RULES ====================

// reflectedRawRule: the payload appears verbatim in the test body with its
// markup metacharacters intact, and did not appear in the baseline.
type reflectedRawRule struct{}

func (reflectedRawRule) Name() string { return "reflected-unencoded" }

func (reflectedRawRule) Evaluate(in Input) (Verdict, bool) {
	value := in.Payload.Value
	if !containsMarkup(value) {
		return Verdict{}, false
	}
	idx := strings.Index(in.Test.Body, value)
	if idx < 0 || strings.Contains(in.Baseline.Body, value) {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Confirmed,
		Evidence:   snippet(in.Test.Body, idx, idx+len(value)),
		Diff:       statusDiff(in),
	}, true
}

// domDeltaRule: the rendered DOM grew a script or event-handler node
// carrying the payload that the baseline DOM did not have.
type domDeltaRule struct{}

func (domDeltaRule) Name() string { return "dom-delta" }

func (domDeltaRule) Evaluate(in Input) (Verdict, bool) {
	if in.Test.DOM == "" {
		return Verdict{}, false
	}
	value := in.Payload.Value
	idx := activeDOMIndex(in.Test.DOM, value)
	if idx < 0 || activeDOMIndex(in.Baseline.DOM, value) >= 0 {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Confirmed,
		Evidence:   snippet(in.Test.DOM, idx, idx+len(value)),
		Diff:       "rendered DOM gained an active node",
	}, true
}

// reflectedEncodedRule: the payload is reflected only in entity-encoded
// form. Not exploitable as-is, but worth a note.
type reflectedEncodedRule struct{}

func (reflectedEncodedRule) Name() string { return "reflected-encoded" }

func (reflectedEncodedRule) Evaluate(in Input) (Verdict, bool) {
	value := in.Payload.Value
	if !containsMarkup(value) {
		return Verdict{}, false
	}
	encoded := htmlEscape(value)
	if encoded == value {
		return Verdict{}, false
	}
	idx := strings.Index(in.Test.Body, encoded)
	if idx < 0 || strings.Contains(in.Baseline.Body, encoded) {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Informational,
		Evidence:   snippet(in.Test.Body, idx, idx+len(encoded)),
		Diff:       statusDiff(in),
	}, true
}

// ==================== SQL INJECTION RULES ====================

// sqlErrorRule: a database error signature appears in the test body and
// not in the baseline.
type sqlErrorRule struct{}

func (sqlErrorRule) Name() string { return "sql-error" }

func (sqlErrorRule) Evaluate(in Input) (Verdict, bool) {
	loc, pattern := matchSQLError(in.Test.Body)
	if loc == nil {
		return Verdict{}, false
	}
	if baseLoc, _ := matchSQLError(in.Baseline.Body); baseLoc != nil {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Confirmed,
		Evidence:   snippet(in.Test.Body, loc[0], loc[1]),
		Diff:       fmt.Sprintf("%s; dialect hint %s", statusDiff(in), pattern),
	}, true
}

// timingRule: the test response took at least the configured threshold
// longer than the baseline. Shared by any class with a delay primitive.
type timingRule struct {
	class payload.Class
}

func (r timingRule) Name() string { return "timing-delta" }

func (r timingRule) Evaluate(in Input) (Verdict, bool) {
	delta := in.Test.Duration - in.Baseline.Duration
	if delta < in.Config.TimingThreshold {
		return Verdict{}, false
	}
	return Verdict{
		Class:      r.class,
		Confidence: Likely,
		Evidence:   fmt.Sprintf("response delayed by %v (baseline %v)", in.Test.Duration, in.Baseline.Duration),
		Diff:       fmt.Sprintf("timing +%v", delta),
	}, true
}

// booleanDeltaRule: same status but the body size moved beyond the
// configured threshold, the classic boolean-blind signal.
type booleanDeltaRule struct{}

func (booleanDeltaRule) Name() string { return "boolean-delta" }

func (booleanDeltaRule) Evaluate(in Input) (Verdict, bool) {
	if in.Baseline.Status != in.Test.Status {
		return Verdict{}, false
	}
	delta := len(in.Test.Body) - len(in.Baseline.Body)
	if delta < 0 {
		delta = -delta
	}
	if delta < in.Config.SizeDelta {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Likely,
		Evidence:   sizeDiff(in),
		Diff:       fmt.Sprintf("size delta %d", delta),
	}, true
}

// ==================== SSRF RULES ====================

// ssrfIndicatorRule: internal-service or cloud-metadata content leaked
// into the test body.
type ssrfIndicatorRule struct{}

func (ssrfIndicatorRule) Name() string { return "ssrf-indicator" }

func (ssrfIndicatorRule) Evaluate(in Input) (Verdict, bool) {
	loc := matchFirst(ssrfIndicatorPatterns, in.Test.Body)
	if loc == nil {
		return Verdict{}, false
	}
	if matchFirst(ssrfIndicatorPatterns, in.Baseline.Body) != nil {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Confirmed,
		Evidence:   snippet(in.Test.Body, loc[0], loc[1]),
		Diff:       statusDiff(in),
	}, true
}

// ==================== TRAVERSAL RULES ====================

// fileContentRule: contents of a well-known system file in the response.
type fileContentRule struct{}

func (fileContentRule) Name() string { return "file-content" }

func (fileContentRule) Evaluate(in Input) (Verdict, bool) {
	loc := matchFirst(systemFilePatterns, in.Test.Body)
	if loc == nil {
		return Verdict{}, false
	}
	if matchFirst(systemFilePatterns, in.Baseline.Body) != nil {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Confirmed,
		Evidence:   snippet(in.Test.Body, loc[0], loc[1]),
		Diff:       statusDiff(in),
	}, true
}

// pathDisclosureRule: an absolute filesystem path leaked into the body.
// Tier depends on whether the probing class was traversal.
type pathDisclosureRule struct {
	class      payload.Class
	confidence Confidence
}

func (r pathDisclosureRule) Name() string { return "path-disclosure" }

func (r pathDisclosureRule) Evaluate(in Input) (Verdict, bool) {
	loc := matchFirst(pathDisclosurePatterns, in.Test.Body)
	if loc == nil {
		return Verdict{}, false
	}
	if matchFirst(pathDisclosurePatterns, in.Baseline.Body) != nil {
		return Verdict{}, false
	}
	return Verdict{
		Class:      r.class,
		Confidence: r.confidence,
		Evidence:   snippet(in.Test.Body, loc[0], loc[1]),
		Diff:       statusDiff(in),
	}, true
}

// ==================== TEMPLATE INJECTION RULES ====================

// templateEvalRule: the arithmetic inside the payload was evaluated by a
// server-side template engine. The raw marker must be absent, otherwise
// the engine merely echoed it.
type templateEvalRule struct{}

func (templateEvalRule) Name() string { return "template-eval" }

func (templateEvalRule) Evaluate(in Input) (Verdict, bool) {
	origin := in.Payload.Base
	if origin == "" {
		origin = in.Payload.Value
	}
	expected := expectedEvaluation(origin)
	if expected == "" {
		return Verdict{}, false
	}
	if strings.Contains(in.Test.Body, origin) {
		return Verdict{}, false
	}
	idx := strings.Index(in.Test.Body, expected)
	if idx < 0 || strings.Contains(in.Baseline.Body, expected) {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Confirmed,
		Evidence:   snippet(in.Test.Body, idx, idx+len(expected)),
		Diff:       statusDiff(in),
	}, true
}

// templateErrorRule: a template engine stack trace or syntax error.
type templateErrorRule struct{}

func (templateErrorRule) Name() string { return "template-error" }

func (templateErrorRule) Evaluate(in Input) (Verdict, bool) {
	loc := matchFirst(templateErrorPatterns, in.Test.Body)
	if loc == nil {
		return Verdict{}, false
	}
	if matchFirst(templateErrorPatterns, in.Baseline.Body) != nil {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: Likely,
		Evidence:   snippet(in.Test.Body, loc[0], loc[1]),
		Diff:       statusDiff(in),
	}, true
}

// ==================== SECONDARY RULES ====================

// serverErrorRule: the probe pushed the server from a healthy status into
// a 5xx. Reported under its own class so it aggregates separately.
type serverErrorRule struct{}

func (serverErrorRule) Name() string { return "server-error" }

func (serverErrorRule) Evaluate(in Input) (Verdict, bool) {
	if in.Test.Status < 500 || in.Baseline.Status >= 500 {
		return Verdict{}, false
	}
	head := in.Test.Body
	if len(head) > evidenceHeadLen {
		head = head[:evidenceHeadLen]
	}
	return Verdict{
		Class:      ClassServerError,
		Confidence: Likely,
		Evidence:   strings.TrimSpace(head),
		Diff:       statusDiff(in),
	}, true
}

// debugInfoRule: framework debug output (stack traces, debug banners).
type debugInfoRule struct{}

func (debugInfoRule) Name() string { return "debug-info" }

func (debugInfoRule) Evaluate(in Input) (Verdict, bool) {
	loc := matchFirst(debugInfoPatterns, in.Test.Body)
	if loc == nil {
		return Verdict{}, false
	}
	if matchFirst(debugInfoPatterns, in.Baseline.Body) != nil {
		return Verdict{}, false
	}
	return Verdict{
		Class:      ClassDebugInfo,
		Confidence: Informational,
		Evidence:   snippet(in.Test.Body, loc[0], loc[1]),
		Diff:       statusDiff(in),
	}, true
}
