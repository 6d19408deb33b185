package session

import "errors"

// Sentinel errors returned by the Manager. Use errors.Is; Authenticate
// wraps these with flow context.
var (
	// ErrNotConfigured is returned by Authenticate when no login flow is set.
	ErrNotConfigured = errors.New("session: no login configured")

	// ErrAuthFailed is returned when a login flow completed without
	// establishing an authenticated session.
	ErrAuthFailed = errors.New("session: authentication failed")

	// ErrAuthExhausted is returned once the bounded re-authentication
	// budget is spent; the session is permanently unauthenticated.
	ErrAuthExhausted = errors.New("session: re-authentication budget exhausted")

	// ErrInvalidRequest is returned by Decorate for a draft whose URL
	// cannot carry a consistent session snapshot.
	ErrInvalidRequest = errors.New("session: request cannot be decorated")
)
