package challenge

import "errors"

var (
	// ErrManualRequired is returned by a Solver that cannot proceed
	// without human interaction.
	ErrManualRequired = errors.New("challenge: manual solve required")

	// ErrBypassFailed is returned when the bypass collaborator ran but
	// the origin still serves the challenge.
	ErrBypassFailed = errors.New("challenge: bypass failed")
)
