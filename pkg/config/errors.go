package config

import "errors"

// Sentinel errors for configuration failure modes. Check with errors.Is.
var (
	// ErrMissingTarget means no target origin was supplied.
	ErrMissingTarget = errors.New("config: missing target")

	// ErrInvalidTarget means the target is not a crawlable http(s) URL.
	ErrInvalidTarget = errors.New("config: invalid target")

	// ErrNegativeBudget means a budget or pacing value is below zero.
	ErrNegativeBudget = errors.New("config: negative budget")

	// ErrUnknownClass means a requested vulnerability class is not
	// registered in the payload registry.
	ErrUnknownClass = errors.New("config: unknown vulnerability class")

	// ErrBadConfidence means MinConfidence is not a known tier.
	ErrBadConfidence = errors.New("config: unknown confidence tier")

	// ErrBadAuth means the auth block is incomplete.
	ErrBadAuth = errors.New("config: invalid auth block")

	// ErrBadProfile means a YAML profile could not be decoded.
	ErrBadProfile = errors.New("config: invalid profile")
)
