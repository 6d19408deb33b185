// Package crawler walks a target origin breadth-first under depth and
// page budgets, populating the surface model with pages, forms, and
// script-declared API endpoints. Page fetches fan out across a bounded
// worker pool; every write to the model goes through its single-writer
// interface. A failed page never fails the crawl.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/challenge"
	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/session"
	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// Config holds crawl budgets and behavior.
type Config struct {
	// MaxDepth bounds link traversal in edges from the origin.
	MaxDepth int

	// MaxPages bounds the total number of surface nodes recorded.
	MaxPages int

	// Concurrency is the page-fetch worker count.
	Concurrency int

	// Delay is the per-worker pause after each fetch.
	Delay time.Duration

	// AllowHosts are hosts beyond the origin that may be crawled.
	AllowHosts []string

	// Render requests browser-rendered fetches for pages.
	Render bool

	// Bypasser handles challenge-blocked responses. Optional; without
	// one a blocked origin degrades immediately.
	Bypasser challenge.Bypasser

	Logger *slog.Logger
}

// DefaultConfig returns the standard crawl budgets.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:    defaults.DepthDefault,
		MaxPages:    defaults.PagesDefault,
		Concurrency: defaults.ConcurrencyCrawl,
		Delay:       duration.CrawlDelay,
	}
}

// Stats holds crawl counters, safe to snapshot while the crawl runs.
type Stats struct {
	mu       sync.Mutex
	fetched  int
	recorded int
	errors   int
	blocked  int
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() (fetched, recorded, errors, blocked int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched, s.recorded, s.errors, s.blocked
}

func (s *Stats) add(fetched, recorded, errors, blocked int) {
	s.mu.Lock()
	s.fetched += fetched
	s.recorded += recorded
	s.errors += errors
	s.blocked += blocked
	s.mu.Unlock()
}

// Crawler discovers the attack surface of one origin.
type Crawler struct {
	cfg      *Config
	client   fetch.Client
	sessions *session.Manager
	model    *surface.Model
	logger   *slog.Logger
	stats    Stats

	origin string

	mu       sync.Mutex
	claimed  map[string]struct{}
	slots    int
	bypassed map[string]bool
}

// task is one queued page fetch. url is the normalized identity; raw is
// the link as resolved, queries intact, and is what actually gets
// fetched so the page renders the way a clicked link would.
type task struct {
	url    string
	raw    string
	depth  int
	parent string
}

// New creates a Crawler dispatching through client. sessions may be nil
// for an unauthenticated crawl.
func New(client fetch.Client, sessions *session.Manager, cfg *Config) *Crawler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.DepthDefault
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.PagesDefault
	}
	if cfg.MaxPages > defaults.PagesMax {
		cfg.MaxPages = defaults.PagesMax
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.ConcurrencyCrawl
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		model:    surface.NewModel(),
		logger:   logger,
		claimed:  make(map[string]struct{}),
		bypassed: make(map[string]bool),
	}
}

// Model returns the surface model the crawl populates.
func (c *Crawler) Model() *surface.Model { return c.model }

// Stats returns the live crawl counters.
func (c *Crawler) Stats() *Stats { return &c.stats }

// Discover crawls breadth-first from origin and streams every recorded
// node. The channel closes when budgets are exhausted, the frontier is
// empty, or ctx is cancelled; the model keeps everything streamed so far.
func (c *Crawler) Discover(ctx context.Context, origin string) (<-chan *surface.Node, error) {
	normalized := surface.Normalize(origin)
	if normalized == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}
	c.origin = normalized

	out := make(chan *surface.Node, c.cfg.MaxPages)
	// Every queued task holds a claimed slot, so the queue never exceeds
	// MaxPages and sends below cannot block.
	tasks := make(chan task, defaults.ChannelCrawl)

	var taskWG, workerWG sync.WaitGroup

	enqueue := func(t task) {
		if !c.claimSlot(surface.NodeKey(t.url, http.MethodGet)) {
			return
		}
		taskWG.Add(1)
		tasks <- t
	}

	for i := 0; i < c.cfg.Concurrency; i++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for t := range tasks {
				if ctx.Err() == nil {
					c.crawlPage(ctx, t, enqueue, out)
					c.pause(ctx)
				}
				taskWG.Done()
			}
		}()
	}

	enqueue(task{url: normalized, raw: normalized, depth: 0})

	go func() {
		taskWG.Wait()
		close(tasks)
		workerWG.Wait()
		close(out)
	}()

	return out, nil
}

// claimSlot reserves a node slot for key. Every recorded node claims
// exactly once, which is what enforces both the visited set and the
// page budget.
func (c *Crawler) claimSlot(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.claimed[key]; dup {
		return false
	}
	if c.slots >= c.cfg.MaxPages {
		return false
	}
	c.claimed[key] = struct{}{}
	c.slots++
	return true
}

// claimBypass consumes the origin's single bypass attempt, reporting
// whether it was still available.
func (c *Crawler) claimBypass(origin string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bypassed[origin] {
		return false
	}
	c.bypassed[origin] = true
	return true
}

func (c *Crawler) pause(ctx context.Context) {
	if c.cfg.Delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.Delay):
	}
}

// crawlPage fetches one page, records its node, and feeds discovered
// links back into the frontier.
func (c *Crawler) crawlPage(ctx context.Context, t task, enqueue func(task), out chan<- *surface.Node) {
	node := &surface.Node{
		URL:    t.url,
		Method: http.MethodGet,
		Depth:  t.depth,
		Parent: t.parent,
	}
	pageURL, err := url.Parse(t.raw)
	if err != nil {
		node.FetchErr = err.Error()
		c.record(node, out)
		c.stats.add(0, 0, 1, 0)
		return
	}
	node.Fields = capFields(fieldsFromQuery(pageURL))

	resp, err := c.fetchPage(ctx, t.raw)
	if err != nil {
		node.FetchErr = err.Error()
		c.record(node, out)
		c.stats.add(0, 0, 1, 0)
		c.logger.Debug("page fetch failed", "url", t.url, "error", err)
		return
	}

	if det, blocked := challenge.Detect(resp); blocked {
		resp = c.handleBlocked(ctx, t.raw, det, node, resp)
		if node.Degraded {
			c.record(node, out)
			return
		}
	}

	node.Status = resp.Status
	if resp.Status >= 400 {
		node.FetchErr = fmt.Sprintf("status %d", resp.Status)
		c.record(node, out)
		c.stats.add(0, 0, 1, 0)
		return
	}

	doc := resp.Body
	if resp.DOM != "" {
		doc = resp.DOM
	}
	if resp.FinalURL != "" {
		if u, err := url.Parse(resp.FinalURL); err == nil {
			pageURL = u
		}
	}
	parsed := extractPage(doc, pageURL)
	node.Title = parsed.Title
	c.record(node, out)

	c.recordForms(parsed.Forms, t.depth, node.Key(), out)
	c.recordEndpoints(parsed.Endpoints, t.depth, node.Key(), out)

	if t.depth >= c.cfg.MaxDepth {
		return
	}
	links := append(parsed.Links, headerLinks(resp.Header, pageURL)...)
	for _, link := range links {
		normalized := surface.Normalize(link)
		if normalized == "" || !c.allowed(normalized) || skipExtension(normalized) {
			continue
		}
		enqueue(task{url: normalized, raw: link, depth: t.depth + 1, parent: node.Key()})
	}
}

func (c *Crawler) fetchPage(ctx context.Context, rawURL string) (*fetch.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, duration.HTTPCrawl)
	defer cancel()

	req := fetch.NewRequest(http.MethodGet, rawURL)
	req.Render = c.cfg.Render
	req.Header.Set("Accept", defaults.AcceptHTML)

	if c.sessions != nil {
		decorated, err := c.sessions.Decorate(req)
		if err != nil {
			return nil, err
		}
		req = decorated
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if c.sessions != nil {
		c.sessions.Observe(rawURL, resp)
	}
	c.stats.add(1, 0, 0, 0)
	return resp, nil
}

// handleBlocked runs the once-per-origin bypass path. On success the
// returned response replaces the blocked one; on persistent failure the
// node and the model are marked degraded.
func (c *Crawler) handleBlocked(ctx context.Context, rawURL string, det challenge.Detection, node *surface.Node, blocked *fetch.Response) *fetch.Response {
	c.stats.add(0, 0, 0, 1)

	origin := originOf(rawURL)
	if c.cfg.Bypasser == nil || !c.claimBypass(origin) {
		c.degrade(node, det)
		return blocked
	}

	c.logger.Info("challenge detected, attempting bypass",
		"url", rawURL, "kind", det.Kind, "provider", det.Provider)

	result, err := c.cfg.Bypasser.Bypass(ctx, rawURL)
	if err != nil {
		c.logger.Warn("bypass failed", "origin", origin, "error", err)
		c.degrade(node, det)
		return blocked
	}
	if c.sessions != nil && len(result.Cookies) > 0 {
		c.sessions.ImportCookies(rawURL, result.Cookies)
	}
	if result.Body != "" {
		return &fetch.Response{Status: http.StatusOK, Body: result.Body, FinalURL: rawURL}
	}

	refetched, err := c.fetchPage(ctx, rawURL)
	if err != nil {
		c.degrade(node, det)
		return blocked
	}
	if _, still := challenge.Detect(refetched); still {
		c.degrade(node, det)
		return blocked
	}
	return refetched
}

func (c *Crawler) degrade(node *surface.Node, det challenge.Detection) {
	node.Degraded = true
	node.FetchErr = fmt.Sprintf("blocked: %s/%s", det.Kind, det.Provider)
}

// recordForms adds each parsed form as its own node. A form whose action
// collides with an already recorded node contributes its fields to that
// node instead.
func (c *Crawler) recordForms(forms []formInfo, depth int, parent string, out chan<- *surface.Node) {
	for _, f := range forms {
		normalized := surface.Normalize(f.Action)
		if normalized == "" || !c.allowed(normalized) {
			continue
		}
		key := surface.NodeKey(normalized, f.Method)
		if !c.claimSlot(key) {
			c.model.AppendFields(key, capFields(f.Fields))
			continue
		}
		c.record(&surface.Node{
			URL:    normalized,
			Method: f.Method,
			Depth:  depth,
			Parent: parent,
			Fields: capFields(f.Fields),
		}, out)
	}
}

// recordEndpoints adds script-declared API endpoints as probe targets.
// They are recorded, not fetched.
func (c *Crawler) recordEndpoints(endpoints []endpointInfo, depth int, parent string, out chan<- *surface.Node) {
	for _, ep := range endpoints {
		normalized := surface.Normalize(ep.URL)
		if normalized == "" || !c.allowed(normalized) {
			continue
		}
		key := surface.NodeKey(normalized, ep.Method)
		if !c.claimSlot(key) {
			if u, err := url.Parse(ep.URL); err == nil {
				c.model.AppendFields(key, capFields(fieldsFromQuery(u)))
			}
			continue
		}
		node := &surface.Node{
			URL:    normalized,
			Method: ep.Method,
			Depth:  depth,
			Parent: parent,
		}
		if u, err := url.Parse(ep.URL); err == nil {
			node.Fields = capFields(fieldsFromQuery(u))
		}
		c.record(node, out)
	}
}

func (c *Crawler) record(node *surface.Node, out chan<- *surface.Node) {
	if !c.model.Add(node) {
		return
	}
	c.stats.add(0, 1, 0, 0)
	out <- node
}

// allowed reports whether a normalized URL stays on the origin or an
// allow-listed host.
func (c *Crawler) allowed(normalized string) bool {
	if surface.SameOrigin(c.origin, normalized) {
		return true
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	for _, host := range c.cfg.AllowHosts {
		if strings.EqualFold(u.Host, host) {
			return true
		}
	}
	return false
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

func capFields(fields []surface.Field) []surface.Field {
	if len(fields) > defaults.MaxFieldsPerNode {
		return fields[:defaults.MaxFieldsPerNode]
	}
	return fields
}

// staticExtensions are asset suffixes never worth a page fetch.
var staticExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {}, ".webm": {},
	".pdf": {}, ".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {}, ".css": {},
}

func skipExtension(normalized string) bool {
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, skip := staticExtensions[ext]
	return skip
}
