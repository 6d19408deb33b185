package surface

import (
	"sync"
)

// Model is the store of discovered nodes for one scan run. Writes are
// serialized; readers may proceed concurrently. Nodes live for the run's
// lifetime and are handed to the report sink at the end.
type Model struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // discovery order of node keys
}

// NewModel creates an empty surface model.
func NewModel() *Model {
	return &Model{
		nodes: make(map[string]*Node),
	}
}

// Add records a node on first visit. Returns false when a node with the
// same normalized URL and method already exists; the stored node is not
// touched in that case.
func (m *Model) Add(n *Node) bool {
	key := n.Key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[key]; exists {
		return false
	}
	m.nodes[key] = n
	m.order = append(m.order, key)
	return true
}

// Visited reports whether a node with this normalized URL and method was
// already recorded.
func (m *Model) Visited(normalizedURL, method string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[NodeKey(normalizedURL, method)]
	return ok
}

// Get returns the node for a key, or nil.
func (m *Model) Get(key string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[key]
}

// Len returns the number of recorded nodes.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// AppendFields adds newly observed fields to an existing node, skipping any
// field whose identity is already recorded. The only permitted mutation of
// a node after creation.
func (m *Model) AppendFields(key string, fields []Field) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[key]
	if !ok {
		return 0
	}

	known := make(map[string]bool, len(n.Fields))
	for _, f := range n.Fields {
		known[f.Identity()] = true
	}

	added := 0
	for _, f := range fields {
		if known[f.Identity()] {
			continue
		}
		known[f.Identity()] = true
		n.Fields = append(n.Fields, f)
		added++
	}
	return added
}

// MarkError records a fetch failure on a node. The node stays in the model
// so the report shows exactly what was reachable.
func (m *Model) MarkError(key, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[key]; ok {
		n.FetchErr = msg
	}
}

// MarkDegraded flags a node whose challenge could not be bypassed.
func (m *Model) MarkDegraded(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[key]; ok {
		n.Degraded = true
	}
}

// Nodes returns the recorded nodes in discovery order. The slice is fresh
// but the pointers are shared; callers must not mutate nodes.
func (m *Model) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Node, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.nodes[key])
	}
	return out
}

// Degraded reports whether any node carries the degraded flag.
func (m *Model) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nodes {
		if n.Degraded {
			return true
		}
	}
	return false
}
