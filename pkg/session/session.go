// Package session owns every piece of authentication state a scan carries:
// cookie jar, auth headers, and the authenticated flag. Other components
// never touch that state directly; they hand request drafts to Decorate
// and responses to Observe, and the Manager keeps the snapshot coherent.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"

	"github.com/fuzzhound/fuzzhound/pkg/challenge"
	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
)

// Credentials for the login flow. Kept separate from LoginConfig so a
// config file can reference them from the environment.
type Credentials struct {
	Username string
	Password string
}

// LoginConfig describes the login form of the target.
type LoginConfig struct {
	URL           string
	Method        string
	UsernameField string
	PasswordField string

	// Extra fields submitted alongside the credentials (static tokens,
	// "remember me" flags).
	Extra map[string]string
}

// Config holds Manager configuration.
type Config struct {
	Login       *LoginConfig
	Credentials Credentials

	// Headers are static auth headers (API keys, bearer tokens) applied
	// to every decorated request.
	Headers http.Header

	// MaxReauth bounds how many times the full login flow may run per
	// scan, counting the initial one.
	MaxReauth int

	// Solver handles a CAPTCHA encountered on the login page. Optional.
	Solver challenge.Solver

	Logger *slog.Logger
}

// DefaultConfig returns a Config with the standard re-auth budget.
func DefaultConfig() *Config {
	return &Config{MaxReauth: defaults.RetryAuth}
}

// Manager is the single writer of session state. All methods are safe for
// concurrent use; Authenticate holds the state lock for its whole flow,
// so decoration blocks until the login attempt settles.
type Manager struct {
	mu            sync.Mutex
	jar           *cookiejar.Jar
	authenticated bool
	authAttempts  int

	cfg    *Config
	client fetch.Client
	logger *slog.Logger
}

// New creates a Manager dispatching its login flow through client.
func New(client fetch.Client, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxReauth <= 0 {
		cfg.MaxReauth = defaults.RetryAuth
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("session: cookie jar: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{jar: jar, cfg: cfg, client: client, logger: logger}, nil
}

// Authenticated reports whether the last login flow succeeded and no
// invalidation has been observed since.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// AuthConfigured reports whether a login flow is configured at all.
// Without one the scan is unauthenticated by design and results carry
// no authentication tag.
func (m *Manager) AuthConfigured() bool {
	return m.cfg.Login != nil
}

// Decorate returns a copy of the draft carrying the full current session
// snapshot. A draft whose URL cannot be parsed is rejected so a request
// never goes out with partial state.
func (m *Manager) Decorate(req *fetch.Request) (*fetch.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decorateLocked(req)
}

func (m *Manager) decorateLocked(req *fetch.Request) (*fetch.Request, error) {
	u, err := url.Parse(req.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRequest, req.URL)
	}

	out := req.Clone()
	for name, values := range m.cfg.Headers {
		out.Header[name] = append([]string(nil), values...)
	}
	if cookies := m.jar.Cookies(u); len(cookies) > 0 {
		pairs := make([]string, 0, len(cookies))
		for _, c := range cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}
		out.Header.Set("Cookie", strings.Join(pairs, "; "))
	}
	return out, nil
}

// Observe feeds a response back into session state: absorbs Set-Cookie
// headers and flips the authenticated flag when the response looks like a
// session invalidation.
func (m *Manager) Observe(reqURL string, resp *fetch.Response) {
	if resp == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeLocked(reqURL, resp)
}

func (m *Manager) observeLocked(reqURL string, resp *fetch.Response) {
	if u, err := url.Parse(reqURL); err == nil && u.Host != "" {
		if cookies := (&http.Response{Header: resp.Header}).Cookies(); len(cookies) > 0 {
			m.jar.SetCookies(u, cookies)
		}
	}
	if m.authenticated && m.looksInvalidated(resp) {
		m.logger.Debug("session invalidated", "url", reqURL, "status", resp.Status)
		m.authenticated = false
	}
}

// looksInvalidated recognizes a 401/403 or a redirect back to the login
// page.
func (m *Manager) looksInvalidated(resp *fetch.Response) bool {
	if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
		return true
	}
	dest := resp.Header.Get("Location")
	if dest == "" && resp.FinalURL != "" {
		dest = resp.FinalURL
	}
	if dest == "" {
		return false
	}
	if m.cfg.Login != nil && samePage(dest, m.cfg.Login.URL) {
		return true
	}
	lower := strings.ToLower(dest)
	return strings.Contains(lower, "login") || strings.Contains(lower, "signin")
}

// ImportCookies absorbs cookies handed over by a bypass collaborator.
func (m *Manager) ImportCookies(rawURL string, cookies []*http.Cookie) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || len(cookies) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jar.SetCookies(u, cookies)
}

// Authenticate runs the configured login flow. It counts against the
// bounded re-auth budget whether it succeeds or not, and holds the state
// lock throughout so no probe dispatches mid-login.
func (m *Manager) Authenticate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	login := m.cfg.Login
	if login == nil {
		return ErrNotConfigured
	}
	if m.authenticated {
		return nil
	}
	if m.authAttempts >= m.cfg.MaxReauth {
		return ErrAuthExhausted
	}
	m.authAttempts++

	form, err := m.prepareLoginForm(ctx, login)
	if err != nil {
		return err
	}

	method := login.Method
	if method == "" {
		method = http.MethodPost
	}
	req := fetch.NewRequest(method, login.URL)
	req.Header.Set("Content-Type", defaults.ContentTypeForm)
	req.Body = form.Encode()

	decorated, err := m.decorateLocked(req)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(ctx, decorated)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	m.observeLocked(login.URL, resp)

	if !loginSucceeded(login.URL, resp) {
		m.logger.Warn("login flow failed",
			"url", login.URL, "status", resp.Status, "attempt", m.authAttempts)
		return fmt.Errorf("%w: landed on %s", ErrAuthFailed, landingURL(login.URL, resp))
	}

	m.authenticated = true
	m.logger.Info("authenticated", "url", login.URL, "attempt", m.authAttempts)
	return nil
}

// EnsureAuthenticated re-runs the login flow if the session has been
// invalidated, within the re-auth budget. A no-op when no login is
// configured or the session is healthy.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	m.mu.Lock()
	healthy := m.authenticated || m.cfg.Login == nil
	m.mu.Unlock()
	if healthy {
		return nil
	}
	return m.Authenticate(ctx)
}

// prepareLoginForm fetches the login page for its cookies, solves any
// CAPTCHA guarding it, and assembles the credential form.
func (m *Manager) prepareLoginForm(ctx context.Context, login *LoginConfig) (url.Values, error) {
	form := url.Values{}
	form.Set(login.UsernameField, m.cfg.Credentials.Username)
	form.Set(login.PasswordField, m.cfg.Credentials.Password)
	for name, value := range login.Extra {
		form.Set(name, value)
	}

	page := fetch.NewRequest(http.MethodGet, login.URL)
	decorated, err := m.decorateLocked(page)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(ctx, decorated)
	if err != nil {
		// The POST may still work without the page's cookies.
		m.logger.Debug("login page fetch failed", "url", login.URL, "error", err)
		return form, nil
	}
	m.observeLocked(login.URL, resp)

	det, blocked := challenge.Detect(resp)
	if !blocked || det.Kind != challenge.KindCAPTCHA {
		return form, nil
	}
	if m.cfg.Solver == nil {
		return nil, fmt.Errorf("%w: %s on login page", challenge.ErrManualRequired, det.Provider)
	}
	token, err := m.cfg.Solver.Solve(ctx, challenge.Descriptor{
		URL:      login.URL,
		Provider: det.Provider,
		SiteKey:  challenge.SiteKey(resp.Body),
	})
	if err != nil {
		return nil, fmt.Errorf("session: captcha solve: %w", err)
	}
	form.Set(captchaField(det.Provider), token)
	return form, nil
}

func captchaField(provider string) string {
	switch provider {
	case "hcaptcha":
		return "h-captcha-response"
	default:
		return "g-recaptcha-response"
	}
}

// loginSucceeded applies the landing-page test: a login that worked
// navigates away from the login URL.
func loginSucceeded(loginURL string, resp *fetch.Response) bool {
	if resp.Status >= 400 {
		return false
	}
	landed := landingURL(loginURL, resp)
	return !samePage(landed, loginURL)
}

func landingURL(loginURL string, resp *fetch.Response) string {
	if resp.FinalURL != "" {
		return resp.FinalURL
	}
	if dest := resp.Header.Get("Location"); dest != "" {
		return dest
	}
	return loginURL
}

// samePage compares URLs by host and path, ignoring query and fragment.
func samePage(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	pa := strings.TrimSuffix(ua.Path, "/")
	pb := strings.TrimSuffix(ub.Path, "/")
	if ua.Host != "" && ub.Host != "" && !strings.EqualFold(ua.Host, ub.Host) {
		return false
	}
	return pa == pb
}
