package crawler

import (
	"context"

	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// Discoverer is the consumer-side interface for surface discovery.
// Consumers that need crawling should depend on this interface rather
// than the concrete Crawler type, enabling testing with mock crawlers.
type Discoverer interface {
	Discover(ctx context.Context, origin string) (<-chan *surface.Node, error)
	Model() *surface.Model
}

// Ensure the concrete Crawler satisfies the interface at compile time.
var _ Discoverer = (*Crawler)(nil)
