package engine

import "errors"

var (
	// ErrPathFieldUnresolved means a path-located field has no segment in
	// the node URL to substitute, so the probe cannot be built.
	ErrPathFieldUnresolved = errors.New("engine: path field has no matching segment")

	// ErrBlocked means the target answered a probe with a challenge page
	// instead of content.
	ErrBlocked = errors.New("engine: probe blocked by challenge")
)
