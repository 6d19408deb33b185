// Package iohelper provides helpers for reading HTTP response bodies safely.
package iohelper

import (
	"io"
	"log/slog"
)

// Body size limits by use case.
const (
	// HeaderMaxBodySize is for error pages and status checks (8KB)
	HeaderMaxBodySize int64 = 8 * 1024

	// PageMaxBodySize is for HTML pages fed to the crawler and oracle (1MB)
	PageMaxBodySize int64 = 1024 * 1024

	// AssetMaxBodySize is for scripts and other subresources (4MB)
	AssetMaxBodySize int64 = 4 * 1024 * 1024
)

// ReadBody reads from r up to maxSize bytes. A nil reader yields an empty
// slice. The limit keeps a hostile or misconfigured target from exhausting
// memory.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadPage reads an HTML page body with the standard 1MB limit.
func ReadPage(r io.Reader) ([]byte, error) {
	return ReadBody(r, PageMaxBodySize)
}

// ReadPageOrLog reads a page body and logs read failures instead of
// returning them. The returned slice may be nil on error.
func ReadPageOrLog(r io.Reader, logger *slog.Logger) []byte {
	data, err := ReadPage(r)
	if err != nil && logger != nil {
		logger.Warn("body read failed", slog.String("error", err.Error()))
	}
	return data
}

// DrainAndClose reads any remaining data from r and closes it if it is a
// ReadCloser, so the underlying connection can be reused for keep-alive.
// Always returns nil so it can sit in a defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}

	// Bounded drain; a response larger than this is not worth salvaging
	// the connection for.
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64*1024))

	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}
