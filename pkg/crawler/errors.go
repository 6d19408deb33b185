package crawler

import "errors"

var (
	// ErrInvalidOrigin means the start URL could not be normalized into a
	// crawlable http(s) origin.
	ErrInvalidOrigin = errors.New("crawler: invalid origin")
)
