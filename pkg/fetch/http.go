package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/iohelper"
)

// Config holds HTTP transport configuration. Request deadlines come from
// the caller's context, so there is no per-request timeout here.
type Config struct {
	// Proxy is an optional HTTP/SOCKS proxy URL. Malformed values are
	// ignored and the client dials directly.
	Proxy string

	// InsecureSkipVerify skips TLS certificate verification. Scan targets
	// frequently run self-signed staging certs, so this defaults on.
	InsecureSkipVerify bool

	// FollowRedirects replays the redirect chain like a browser would.
	// Intermediate Set-Cookie headers are preserved on the final response.
	FollowRedirects bool

	// MaxRedirects caps the chain; past it the last response is returned
	// as-is rather than failing the fetch.
	MaxRedirects int

	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes int64

	MaxIdleConns    int
	MaxConnsPerHost int

	// UserAgent is applied when the decorated request carries none.
	UserAgent string

	// Impersonate selects a TLS ClientHello fingerprint profile
	// ("chrome", "firefox", "safari", "edge", "ios", "random"). Empty
	// uses the standard Go TLS stack.
	Impersonate string
}

// DefaultConfig returns transport settings for typical scan targets.
func DefaultConfig() *Config {
	return &Config{
		InsecureSkipVerify: true,
		FollowRedirects:    true,
		MaxRedirects:       defaults.MaxRedirects,
		MaxBodyBytes:       defaults.BufferMax,
		MaxIdleConns:       defaults.PoolIdleConns,
		MaxConnsPerHost:    defaults.PoolConnsPerHost,
		UserAgent:          defaults.UAChrome,
	}
}

// HTTPClient is the plain (non-rendered) transport. Safe for concurrent
// use; the underlying connection pool is shared across requests.
type HTTPClient struct {
	cfg  *Config
	base *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTP creates an HTTPClient. A nil cfg uses DefaultConfig.
func NewHTTP(cfg *Config) *HTTPClient {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaults.MaxRedirects
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.BufferMax
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaults.PoolIdleConns
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaults.PoolConnsPerHost
	}

	var rt http.RoundTripper
	if cfg.Impersonate != "" {
		rt = newImpersonateTransport(cfg)
	} else {
		rt = newTransport(cfg)
	}
	return &HTTPClient{cfg: cfg, base: &http.Client{Transport: rt}}
}

func newTransport(cfg *Config) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   duration.DialTimeout,
		KeepAlive: duration.KeepAlive,
	}

	t := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     duration.IdleConnTimeout,
		TLSHandshakeTimeout: duration.TLSHandshake,
		ForceAttemptHTTP2:   true,
		DialContext:         dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	if cfg.Proxy != "" {
		if proxyURL, err := url.Parse(cfg.Proxy); err == nil && proxyURL.Scheme != "" {
			t.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return t
}

// Do dispatches one request and materializes the response: redirects
// followed, body size-capped, content-encoding undone, charset decoded
// to UTF-8 so the oracle compares like with like.
func (c *HTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	for name, values := range req.Header {
		hreq.Header[name] = append([]string(nil), values...)
	}
	if hreq.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		hreq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	// Per-call client copy sharing the pooled transport, so the redirect
	// cookie trail stays local to this request.
	var trail []string
	hc := *c.base
	hc.CheckRedirect = func(r *http.Request, via []*http.Request) error {
		if !c.cfg.FollowRedirects || len(via) >= c.cfg.MaxRedirects {
			return http.ErrUseLastResponse
		}
		if prev := r.Response; prev != nil {
			trail = append(trail, prev.Header.Values("Set-Cookie")...)
		}
		return nil
	}

	start := time.Now()
	hresp, err := hc.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, req.URL, err)
	}
	defer iohelper.DrainAndClose(hresp.Body)

	raw, err := iohelper.ReadBody(hresp.Body, c.cfg.MaxBodyBytes)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}

	raw = decompress(raw, hresp.Header.Get("Content-Encoding"), c.cfg.MaxBodyBytes)

	out := &Response{
		Status:   hresp.StatusCode,
		Header:   hresp.Header,
		Body:     decodeCharset(raw, hresp.Header.Get("Content-Type")),
		Duration: elapsed,
		FinalURL: hresp.Request.URL.String(),
	}
	for _, sc := range trail {
		out.Header.Add("Set-Cookie", sc)
	}
	return out, nil
}

// Close releases pooled connections.
func (c *HTTPClient) Close() {
	if t, ok := c.base.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// decompress undoes an explicit Content-Encoding. The standard transport
// handles gzip transparently only when the request did not name its own
// Accept-Encoding; browser header profiles always do.
func decompress(raw []byte, encoding string, max int64) []byte {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		r = fr
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw
	}

	out, err := io.ReadAll(io.LimitReader(r, max))
	if err != nil && len(out) == 0 {
		return raw
	}
	return out
}

// decodeCharset transcodes textual bodies to UTF-8 using the declared or
// sniffed charset. Non-text bodies pass through untouched.
func decodeCharset(raw []byte, contentType string) string {
	if len(raw) == 0 {
		return ""
	}
	if !textual(contentType) {
		return string(raw)
	}
	enc, name, _ := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" || enc == nil {
		return string(raw)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func textual(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" {
		// No declared type; assume text and let sniffing decide.
		return true
	}
	return strings.Contains(ct, "text") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "javascript")
}
