package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
)

// BrowserConfig configures the rendered fetch path.
type BrowserConfig struct {
	// ChromePath overrides browser binary discovery.
	ChromePath string

	// Headless hides the browser window. Off is only useful when
	// debugging what a target serves to a real screen.
	Headless bool

	NoSandbox bool
	Proxy     string
	UserAgent string

	// Stealth injects a script on every new document that hides the
	// usual automation markers (navigator.webdriver and friends).
	Stealth bool
}

// DefaultBrowserConfig returns settings for unattended rendering.
func DefaultBrowserConfig() *BrowserConfig {
	return &BrowserConfig{
		Headless:  true,
		NoSandbox: true,
		Stealth:   true,
		UserAgent: defaults.UAChrome,
	}
}

// Browser renders GET fetches through a headless Chrome tab and delegates
// everything else to a plain transport. The browser process starts lazily
// on the first rendered fetch and is shared across requests; each fetch
// gets its own tab, so concurrent renders are safe.
type Browser struct {
	cfg      *BrowserConfig
	fallback Client

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

var _ Client = (*Browser)(nil)

// NewBrowser creates a Browser. A nil fallback gets a default HTTPClient;
// a nil cfg uses DefaultBrowserConfig.
func NewBrowser(fallback Client, cfg *BrowserConfig) *Browser {
	if cfg == nil {
		cfg = DefaultBrowserConfig()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UAChrome
	}
	if fallback == nil {
		fallback = NewHTTP(nil)
	}
	return &Browser{cfg: cfg, fallback: fallback}
}

// Do renders the request when it asks for rendering and is a GET;
// anything else goes through the plain transport. Probes stay on the
// plain path even in rendered scans, so only page loads pay for Chrome.
func (b *Browser) Do(ctx context.Context, req *Request) (*Response, error) {
	if !req.Render || (req.Method != "" && req.Method != http.MethodGet) {
		return b.fallback.Do(ctx, req)
	}

	alloc, err := b.allocator()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(alloc)
	defer cancelTab()

	budget := duration.BrowserPage
	if deadline, ok := ctx.Deadline(); ok {
		if rem := time.Until(deadline); rem < budget {
			budget = rem
		}
	}
	tabCtx, cancelBudget := context.WithTimeout(tabCtx, budget)
	defer cancelBudget()

	// The redirect chain emits one document response per hop, all on the
	// main frame; the last one is the page we ended up on. Subframe
	// documents are ignored.
	var capture struct {
		sync.Mutex
		frame  cdp.FrameID
		status int
		header http.Header
	}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument {
			return
		}
		capture.Lock()
		defer capture.Unlock()
		if capture.frame == "" {
			capture.frame = e.FrameID
		}
		if e.FrameID != capture.frame {
			return
		}
		capture.status = int(e.Response.Status)
		capture.header = make(http.Header, len(e.Response.Headers))
		for name, value := range e.Response.Headers {
			capture.header.Set(name, fmt.Sprint(value))
		}
	})

	var (
		dom      string
		finalURL string
		cookies  []*network.Cookie
	)

	actions := []chromedp.Action{network.Enable()}
	if len(req.Header) > 0 {
		headers := make(network.Headers, len(req.Header))
		for name, values := range req.Header {
			headers[name] = strings.Join(values, ", ")
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if b.cfg.Stealth {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}))
	}
	actions = append(actions,
		chromedp.Navigate(req.URL),
		chromedp.Sleep(duration.BrowserSettle),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &dom, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			got, err := storage.GetCookies().Do(ctx)
			if err == nil {
				cookies = got
			}
			return nil
		}),
	)

	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, fmt.Errorf("fetch: render %s: %w", req.URL, err)
	}
	elapsed := time.Since(start)

	capture.Lock()
	status := capture.status
	header := capture.header
	capture.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	if header == nil {
		header = make(http.Header)
	}

	out := &Response{
		Status:   status,
		Header:   header,
		Body:     dom,
		DOM:      dom,
		Duration: elapsed,
		FinalURL: finalURL,
	}
	for _, sc := range cookieLines(cookies, req.URL) {
		out.Header.Add("Set-Cookie", sc)
	}
	return out, nil
}

// Close shuts the shared browser process down. Subsequent rendered
// fetches start a fresh one.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCtx, b.allocCancel = nil, nil
	}
}

func (b *Browser) allocator() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCtx != nil {
		return b.allocCtx, nil
	}

	var opts []chromedp.ExecAllocatorOption
	if b.cfg.Headless {
		opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts,
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	} else {
		// DefaultExecAllocatorOptions carries Headless at index 2; copy
		// around it to get a visible window.
		base := chromedp.DefaultExecAllocatorOptions[:]
		opts = append(opts, base[0], base[1])
		opts = append(opts, base[3:]...)
	}

	opts = append(opts,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.UserAgent(b.cfg.UserAgent),
	)
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if b.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromePath))
	}
	if b.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.cfg.Proxy))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return b.allocCtx, nil
}

// cookieLines renders browser-jar cookies scoped to the fetched host as
// Set-Cookie lines, so session observation sees what Chrome accepted,
// including cookies set from script.
func cookieLines(cookies []*network.Cookie, rawURL string) []string {
	host := hostOf(rawURL)
	if host == "" {
		return nil
	}
	var lines []string
	for _, c := range cookies {
		domain := strings.TrimPrefix(c.Domain, ".")
		if !strings.EqualFold(domain, host) && !strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain)) {
			continue
		}
		line := c.Name + "=" + c.Value + "; Path=" + c.Path
		if c.Domain != "" {
			line += "; Domain=" + c.Domain
		}
		if c.Secure {
			line += "; Secure"
		}
		if c.HTTPOnly {
			line += "; HttpOnly"
		}
		lines = append(lines, line)
	}
	return lines
}

func hostOf(rawURL string) string {
	rest, ok := strings.CutPrefix(rawURL, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(rawURL, "http://")
		if !ok {
			return ""
		}
	}
	for i, r := range rest {
		if r == '/' || r == '?' || r == '#' || r == ':' {
			return rest[:i]
		}
	}
	return rest
}

// stealthScript hides the common automation markers a bot check inspects
// before the page's own scripts run.
const stealthScript = `
(function() {
    Object.defineProperty(navigator, 'webdriver', {
        get: () => undefined,
        configurable: true
    });
    if (!window.chrome) {
        window.chrome = { runtime: {}, loadTimes: function() {}, csi: function() {}, app: {} };
    }
    Object.defineProperty(navigator, 'plugins', {
        get: () => [
            { name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer' },
            { name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai' },
            { name: 'Native Client', filename: 'internal-nacl-plugin' }
        ],
        configurable: true
    });
    Object.defineProperty(navigator, 'languages', {
        get: () => ['en-US', 'en'],
        configurable: true
    });
    delete window.cdc_adoQpoasnfa76pfcZLmcfl_Array;
    delete window.cdc_adoQpoasnfa76pfcZLmcfl_Promise;
    delete window.cdc_adoQpoasnfa76pfcZLmcfl_Symbol;
})();
`
