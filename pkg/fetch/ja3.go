package fetch

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
)

// helloProfile pairs a TLS ClientHello fingerprint with the User-Agent
// that matches it. Mixing a Chrome hello with a Firefox UA is itself a
// bot signal, so the two always travel together.
type helloProfile struct {
	hello     utls.ClientHelloID
	userAgent string
}

var helloProfiles = map[string]helloProfile{
	"chrome": {
		hello:     utls.HelloChrome_120,
		userAgent: defaults.UAChrome,
	},
	"firefox": {
		hello:     utls.HelloFirefox_120,
		userAgent: defaults.UAFirefox,
	},
	"safari": {
		hello:     utls.HelloSafari_16_0,
		userAgent: defaults.UASafari,
	},
	"edge": {
		hello:     utls.HelloEdge_106,
		userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	},
	"ios": {
		hello:     utls.HelloIOS_14,
		userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
	},
	"random": {
		hello:     utls.HelloRandomized,
		userAgent: defaults.UAChrome,
	},
}

// ImpersonationProfiles returns the available fingerprint profile names.
func ImpersonationProfiles() []string {
	names := make([]string, 0, len(helloProfiles))
	for name := range helloProfiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// profileFor resolves a profile name, falling back to chrome for
// unrecognized values. A scan with a typoed profile still looks like a
// browser rather than like Go.
func profileFor(name string) helloProfile {
	if p, ok := helloProfiles[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return helloProfiles["chrome"]
}

// impersonateTransport dials TLS with a browser ClientHello instead of
// the Go stack's own fingerprint. Connections are single-use; fingerprint
// consistency matters more than pooling on targets that inspect hellos.
type impersonateTransport struct {
	profile    helloProfile
	skipVerify bool
	inner      *http.Transport
}

func newImpersonateTransport(cfg *Config) *impersonateTransport {
	t := &impersonateTransport{
		profile:    profileFor(cfg.Impersonate),
		skipVerify: cfg.InsecureSkipVerify,
	}
	t.inner = &http.Transport{
		DialTLSContext:    t.dialTLS,
		DisableKeepAlives: true,
		ForceAttemptHTTP2: false,
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = t.profile.userAgent
	}
	return t
}

func (t *impersonateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.profile.userAgent)
	}
	return t.inner.RoundTrip(req)
}

func (t *impersonateTransport) dialTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := &net.Dialer{Timeout: duration.DialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	uconn := utls.UClient(conn, &utls.Config{
		ServerName:         host,
		InsecureSkipVerify: t.skipVerify,
		NextProtos:         []string{"http/1.1"},
	}, t.profile.hello)
	if err := uconn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return uconn, nil
}
