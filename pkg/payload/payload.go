// Package payload provides the vulnerability payload library and mutator.
// Each vulnerability class registers a generator; generators produce base
// payloads contextualized to a field, and a fixed transform chain expands
// them into encoding and evasion variants. Output is deterministic and
// deduplicated per call, so a scan is reproducible from its inputs.
package payload

import (
	"sort"
	"sync"

	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// Class tags a vulnerability class. Classes are the registry keys for
// generators and the grouping key for findings.
type Class string

const (
	ClassXSS       Class = "xss"
	ClassSQLI      Class = "sqli"
	ClassSSRF      Class = "ssrf"
	ClassTraversal Class = "path-traversal"
	ClassSSTI      Class = "ssti"
)

// Payload is one candidate value for a probe. Lineage fields record which
// base payload and transform produced it, for reproducibility and report
// clarity.
type Payload struct {
	Class    Class  `json:"class"`
	Value    string `json:"value"`
	Name     string `json:"name"`               // label of the base payload
	Encoding string `json:"encoding,omitempty"` // "" for the base form
	Base     string `json:"base,omitempty"`     // base value when transformed
}

// FieldContext describes the field a payload set is generated for.
type FieldContext struct {
	Type     surface.FieldType
	Location surface.Location
	Sample   string
}

// Generator produces the base payload set for one vulnerability class.
// Implementations are registered at init time.
type Generator interface {
	// Class returns the vulnerability class this generator covers.
	Class() Class

	// Applicable reports whether the class makes structural sense for the
	// field. Inapplicable classes generate nothing.
	Applicable(ctx FieldContext) bool

	// Base returns the base payloads for the field context, in a fixed
	// order. Values are pre-transform.
	Base(ctx FieldContext) []Payload
}

// Transform expands a base payload into one variant. Transforms that leave
// the value unchanged are dropped during generation.
type Transform interface {
	// Name returns the transform's encoding tag.
	Name() string

	// Classes returns the classes this transform applies to; nil means all.
	Classes() []Class

	// Apply returns the transformed value.
	Apply(value string) string
}

// Registry holds generators by class and the ordered transform chain.
type Registry struct {
	mu         sync.RWMutex
	generators map[Class]Generator
	classOrder []Class
	transforms []Transform
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		generators: make(map[Class]Generator),
	}
}

// Register adds a class generator. Registering a class twice replaces the
// earlier generator, keeping the original position in class order.
func (r *Registry) Register(g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.generators[g.Class()]; !exists {
		r.classOrder = append(r.classOrder, g.Class())
	}
	r.generators[g.Class()] = g
}

// RegisterTransform appends a transform to the chain. Chain order is
// generation order, so registration order matters for determinism.
func (r *Registry) RegisterTransform(t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms = append(r.transforms, t)
}

// Classes returns the registered classes in registration order.
func (r *Registry) Classes() []Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Class, len(r.classOrder))
	copy(out, r.classOrder)
	return out
}

// Generate produces the full payload sequence for one class and field
// context: base payloads first, then transform variants, deduplicated by
// produced value. Output order is deterministic given the same inputs.
func (r *Registry) Generate(class Class, ctx FieldContext) []Payload {
	r.mu.RLock()
	gen, ok := r.generators[class]
	transforms := make([]Transform, len(r.transforms))
	copy(transforms, r.transforms)
	r.mu.RUnlock()

	if !ok || !gen.Applicable(ctx) {
		return nil
	}

	bases := gen.Base(ctx)
	seen := make(map[string]bool, len(bases)*(len(transforms)+1))
	out := make([]Payload, 0, len(bases))

	for _, p := range bases {
		if seen[p.Value] {
			continue
		}
		seen[p.Value] = true
		p.Class = class
		out = append(out, p)
	}

	baseCount := len(out)
	for i := 0; i < baseCount; i++ {
		base := out[i]
		// Pre-encoded bases (e.g. traversal's %2f forms) are not re-transformed.
		if base.Encoding != "" {
			continue
		}
		for _, tr := range transforms {
			if !transformCovers(tr, class) {
				continue
			}
			v := tr.Apply(base.Value)
			if v == "" || v == base.Value || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, Payload{
				Class:    class,
				Value:    v,
				Name:     base.Name,
				Encoding: tr.Name(),
				Base:     base.Value,
			})
		}
	}

	return out
}

// GenerateAll produces payloads for every registered class applicable to
// the context, classes in registration order.
func (r *Registry) GenerateAll(ctx FieldContext) []Payload {
	var out []Payload
	for _, class := range r.Classes() {
		out = append(out, r.Generate(class, ctx)...)
	}
	return out
}

func transformCovers(t Transform, class Class) bool {
	classes := t.Classes()
	if len(classes) == 0 {
		return true
	}
	for _, c := range classes {
		if c == class {
			return true
		}
	}
	return false
}

// DefaultRegistry is the process-wide registry that init functions populate.
var DefaultRegistry = NewRegistry()

// Register adds a generator to the default registry.
func Register(g Generator) {
	DefaultRegistry.Register(g)
}

// RegisterTransform appends a transform to the default registry's chain.
func RegisterTransform(t Transform) {
	DefaultRegistry.RegisterTransform(t)
}

// Generate produces payloads from the default registry.
func Generate(class Class, ctx FieldContext) []Payload {
	return DefaultRegistry.Generate(class, ctx)
}

// GenerateAll produces payloads from the default registry for every
// applicable class.
func GenerateAll(ctx FieldContext) []Payload {
	return DefaultRegistry.GenerateAll(ctx)
}

// Classes lists the default registry's classes sorted lexically, for
// configuration validation and help output.
func Classes() []Class {
	classes := DefaultRegistry.Classes()
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	return classes
}
