package scan

import "errors"

var (
	// ErrOriginUnreachable means first contact with the target failed at
	// the transport level. The one scan-fatal error.
	ErrOriginUnreachable = errors.New("scan: origin unreachable")

	// ErrScanConsumed is returned by Run on a Scanner that already ran.
	// A fresh run needs a fresh Scanner.
	ErrScanConsumed = errors.New("scan: scanner already ran")
)
