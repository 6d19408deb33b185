// Package fetch defines the transport contract the scanner core dispatches
// through: a Request/Response pair carrying everything the response oracle
// needs (status, headers, body, timing, optional rendered DOM), and the
// Client interface implemented by the plain HTTP and browser-rendered paths.
package fetch

import (
	"context"
	"net/http"
	"time"
)

// Request is a draft of one outbound probe or crawl fetch. Drafts pass
// through session decoration before dispatch, so Header must never be nil.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   string

	// Render requests the browser-rendered path, yielding a DOM snapshot.
	Render bool
}

// NewRequest returns a GET draft with an initialized header map.
func NewRequest(method, url string) *Request {
	return &Request{Method: method, URL: url, Header: make(http.Header)}
}

// Clone returns a deep copy safe to mutate independently.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// Response is the outcome of one dispatched Request. Body is decoded to
// UTF-8 by the transport before the oracle ever sees it.
type Response struct {
	Status   int
	Header   http.Header
	Body     string
	Duration time.Duration

	// DOM holds the rendered document snapshot when Render was requested.
	DOM string

	// FinalURL is the URL after redirects, used for login-success checks.
	FinalURL string
}

// Client dispatches a single request. Transport errors come back as
// errors, never as panics; a non-2xx status is a valid Response.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}
