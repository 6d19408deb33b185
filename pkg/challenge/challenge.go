// Package challenge detects bot-mitigation and CAPTCHA responses and
// defines the collaborator contracts for getting past them. The scanner
// core never solves a challenge itself; it recognizes one, hands the URL
// to the configured collaborator, and records degradation when that
// fails.
package challenge

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/regexcache"
)

// Kind is the broad challenge family, which decides the collaborator.
type Kind string

const (
	KindNone       Kind = ""
	KindBotCheck   Kind = "bot-check"
	KindCAPTCHA    Kind = "captcha"
	KindRateBlock  Kind = "rate-block"
	KindLoginBlock Kind = "login-block"
)

// Detection names what blocked a response.
type Detection struct {
	Kind     Kind
	Provider string
	Evidence string
}

// signature describes one provider's block page.
type signature struct {
	provider     string
	kind         Kind
	statusCodes  []int
	headerChecks map[string]*regexp.Regexp
	bodyPatterns []*regexp.Regexp
}

var signatures = []signature{
	{
		provider:    "cloudflare",
		kind:        KindBotCheck,
		statusCodes: []int{403, 503},
		headerChecks: map[string]*regexp.Regexp{
			"Server": regexcache.MustGet(`(?i)cloudflare`),
		},
		bodyPatterns: []*regexp.Regexp{
			regexcache.MustGet(`(?i)checking your browser before accessing`),
			regexcache.MustGet(`(?i)just a moment\.\.\.`),
			regexcache.MustGet(`(?i)cf-browser-verification|cf_chl_`),
		},
	},
	{
		provider: "recaptcha",
		kind:     KindCAPTCHA,
		bodyPatterns: []*regexp.Regexp{
			regexcache.MustGet(`class="g-recaptcha"`),
			regexcache.MustGet(`recaptcha/api\.js`),
			regexcache.MustGet(`api\.js\?render=`),
		},
	},
	{
		provider: "hcaptcha",
		kind:     KindCAPTCHA,
		bodyPatterns: []*regexp.Regexp{
			regexcache.MustGet(`class="h-captcha"`),
			regexcache.MustGet(`hcaptcha\.com/1/api\.js`),
		},
	},
	{
		provider:    "akamai",
		kind:        KindBotCheck,
		statusCodes: []int{403},
		headerChecks: map[string]*regexp.Regexp{
			"Server": regexcache.MustGet(`(?i)akamai`),
		},
		bodyPatterns: []*regexp.Regexp{
			regexcache.MustGet(`(?i)access denied.*akamai`),
		},
	},
	{
		provider:    "generic",
		kind:        KindRateBlock,
		statusCodes: []int{429},
	},
	{
		provider: "generic",
		kind:     KindCAPTCHA,
		bodyPatterns: []*regexp.Regexp{
			regexcache.MustGet(`(?i)complete the captcha|verify you are human`),
		},
	},
}

// Detect reports whether a response is a challenge block rather than real
// content. Status-only signatures need the status alone; body signatures
// match against the first chunk of the body.
func Detect(resp *fetch.Response) (Detection, bool) {
	if resp == nil {
		return Detection{}, false
	}
	for _, sig := range signatures {
		if sig.matches(resp) {
			ev := sig.evidence(resp)
			return Detection{Kind: sig.kind, Provider: sig.provider, Evidence: ev}, true
		}
	}
	return Detection{}, false
}

func (s signature) matches(resp *fetch.Response) bool {
	statusOK := len(s.statusCodes) == 0
	for _, code := range s.statusCodes {
		if resp.Status == code {
			statusOK = true
			break
		}
	}
	if !statusOK {
		return false
	}

	headerOK := len(s.headerChecks) == 0
	for name, re := range s.headerChecks {
		if re.MatchString(headerValue(resp.Header, name)) {
			headerOK = true
			break
		}
	}
	if !headerOK {
		return false
	}

	if len(s.bodyPatterns) == 0 {
		// Status/header-only signature. An empty signature matches nothing.
		return len(s.statusCodes) > 0 || len(s.headerChecks) > 0
	}
	for _, re := range s.bodyPatterns {
		if re.MatchString(resp.Body) {
			return true
		}
	}
	return false
}

func (s signature) evidence(resp *fetch.Response) string {
	for _, re := range s.bodyPatterns {
		if m := re.FindString(resp.Body); m != "" {
			return m
		}
	}
	return strings.TrimSpace(headerValue(resp.Header, "Server"))
}

func headerValue(h http.Header, name string) string {
	if h == nil {
		return ""
	}
	return h.Get(name)
}

// BypassResult is what a bypass collaborator hands back on success.
type BypassResult struct {
	Cookies []*http.Cookie
	Body    string
}

// Bypasser is the external challenge-bypass capability. Implementations
// typically drive a real browser through the check.
type Bypasser interface {
	Bypass(ctx context.Context, url string) (*BypassResult, error)
}

// Descriptor identifies a CAPTCHA for the solving collaborator.
type Descriptor struct {
	URL      string
	Provider string
	SiteKey  string
}

// Solver is the external CAPTCHA resolution capability. A solver that
// cannot proceed without a person returns ErrManualRequired.
type Solver interface {
	Solve(ctx context.Context, d Descriptor) (token string, err error)
}

// siteKeyRE pulls the provider site key out of a challenge page.
var siteKeyRE = regexcache.MustGet(`data-sitekey="([^"]+)"`)

// SiteKey extracts the CAPTCHA site key from a blocked page body.
func SiteKey(body string) string {
	if m := siteKeyRE.FindStringSubmatch(body); len(m) == 2 {
		return m[1]
	}
	return ""
}
