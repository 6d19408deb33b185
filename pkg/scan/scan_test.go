package scan

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/crawler"
	"github.com/fuzzhound/fuzzhound/pkg/engine"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
	"github.com/fuzzhound/fuzzhound/pkg/report"
	"github.com/fuzzhound/fuzzhound/pkg/session"
)

// vulnerableApp is a small shop with a reflected-XSS search box and an
// optional login-gated area.
func vulnerableApp() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><title>shop</title><body>
			<a href="/about">about</a>
			<form action="/search" method="get">
				<input type="text" name="q" value="42">
			</form>
		</body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><title>about</title><body>plain page</body></html>`)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		// Reflects the query verbatim: textbook reflected XSS.
		fmt.Fprintf(w, `<html><body>results for %s</body></html>`, r.URL.Query().Get("q"))
	})
	return httptest.NewServer(mux)
}

func fastConfig(target string, classes ...payload.Class) *Config {
	return &Config{
		Target: target,
		Crawl:  &crawler.Config{MaxDepth: 2, MaxPages: 20, Concurrency: 2},
		Probe: &engine.Config{
			Concurrency: 2,
			Delay:       engine.FixedDelay(0),
			Classes:     classes,
		},
	}
}

func TestScanFindsReflectedXSS(t *testing.T) {
	srv := vulnerableApp()
	defer srv.Close()

	s := New(fetch.NewHTTP(nil), nil, fastConfig(srv.URL, payload.ClassXSS))
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.State != StateDone {
		t.Fatalf("State = %v, want Done", summary.State)
	}
	if summary.Degraded {
		t.Error("Degraded = true for a clean scan")
	}
	if summary.Stats.PagesCrawled == 0 || summary.Stats.ProbesSent == 0 {
		t.Errorf("stats not populated: %+v", summary.Stats)
	}

	var hit bool
	for _, f := range summary.Findings {
		if f.Class == payload.ClassXSS && f.Field == "q@query" && f.Confidence == oracle.Confirmed {
			hit = true
		}
	}
	if !hit {
		t.Errorf("no confirmed XSS finding on q@query; findings = %+v", summary.Findings)
	}
}

func TestScanIdenticalResponsesYieldNoFindings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<form action="/echo" method="get"><input type="text" name="q" value="x"></form>
		</body></html>`)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		// Same body no matter what arrives.
		fmt.Fprint(w, `<html><body>nothing to see</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := New(fetch.NewHTTP(nil), nil, fastConfig(srv.URL))
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(summary.Findings) != 0 {
		t.Errorf("Findings = %+v, want none", summary.Findings)
	}
	if summary.State != StateDone {
		t.Errorf("State = %v, want Done", summary.State)
	}
}

func TestScanUnreachableOriginIsFatal(t *testing.T) {
	s := New(fetch.NewHTTP(nil), nil, fastConfig("http://127.0.0.1:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	summary, err := s.Run(ctx)
	if !errors.Is(err, ErrOriginUnreachable) {
		t.Fatalf("Run() error = %v, want ErrOriginUnreachable", err)
	}
	if summary == nil || summary.State != StateFailed {
		t.Errorf("summary = %+v, want StateFailed", summary)
	}
}

func TestScanCancellationAborts(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/slow">next</a></body></html>`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, "<html><body>late</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer once.Do(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
		once.Do(func() { close(release) })
	}()

	s := New(fetch.NewHTTP(nil), nil, fastConfig(srv.URL))
	summary, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil on cancellation", err)
	}
	if summary.State != StateAborted {
		t.Errorf("State = %v, want Aborted", summary.State)
	}
	if summary.Model == nil {
		t.Error("Model = nil; partial results must stay reportable")
	}
	if summary.Findings == nil {
		t.Error("Findings = nil, want non-null (possibly empty) set")
	}
}

func TestScanChallengeDegradesWithoutAborting(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/blocked">blocked</a>
			<a href="/open">open</a>
		</body></html>`)
	})
	mux.HandleFunc("/blocked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "<html><body>Checking your browser before accessing</body></html>")
	})
	mux.HandleFunc("/open", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><title>open</title><body>fine</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := New(fetch.NewHTTP(nil), nil, fastConfig(srv.URL))
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.State != StateDone {
		t.Errorf("State = %v, want Done (degraded, not aborted)", summary.State)
	}
	if !summary.Degraded {
		t.Error("Degraded = false, want true after unbypassed challenge")
	}

	// The sibling page was still crawled past the blocked one.
	if !summary.Model.Visited(srv.URL+"/open", http.MethodGet) {
		t.Error("sibling /open not crawled after challenge block")
	}
}

// loginApp gates a private page behind a cookie session.
func loginApp(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/private">private</a></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			r.ParseForm()
			if r.Form.Get("user") == "admin" && r.Form.Get("pass") == "hunter2" {
				http.SetCookie(w, &http.Cookie{Name: "sid", Value: "s3cret", Path: "/"})
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			fmt.Fprint(w, `<html><body>bad credentials<form method="post"></form></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><body><form method="post">
			<input name="user"><input type="password" name="pass">
		</form></body></html>`)
	})
	mux.HandleFunc("/private", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err != nil || c.Value != "s3cret" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		fmt.Fprintf(w, `<html><title>private</title><body>hello %s</body></html>`,
			html.EscapeString(r.URL.Query().Get("name")))
	})
	return httptest.NewServer(mux)
}

func newLoginSession(t *testing.T, client fetch.Client, base, password string) *session.Manager {
	t.Helper()
	mgr, err := session.New(client, &session.Config{
		Login: &session.LoginConfig{
			URL:           base + "/login",
			UsernameField: "user",
			PasswordField: "pass",
		},
		Credentials: session.Credentials{Username: "admin", Password: password},
	})
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func TestScanAuthenticatedRun(t *testing.T) {
	srv := loginApp(t)
	defer srv.Close()

	client := fetch.NewHTTP(nil)
	mgr := newLoginSession(t, client, srv.URL, "hunter2")

	s := New(client, mgr, fastConfig(srv.URL, payload.ClassXSS))
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.State != StateDone {
		t.Fatalf("State = %v, want Done", summary.State)
	}
	if summary.Unauthenticated {
		t.Error("Unauthenticated = true with correct credentials")
	}
	if !mgr.Authenticated() {
		t.Error("session not authenticated after scan")
	}
}

func TestScanWrongCredentialsContinuesUnauthenticated(t *testing.T) {
	srv := loginApp(t)
	defer srv.Close()

	client := fetch.NewHTTP(nil)
	mgr := newLoginSession(t, client, srv.URL, "wrong")

	s := New(client, mgr, fastConfig(srv.URL, payload.ClassXSS))
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, scan must survive auth failure", err)
	}
	if summary.State != StateDone {
		t.Errorf("State = %v, want Done", summary.State)
	}
	if !summary.Unauthenticated {
		t.Error("Unauthenticated = false after failed login")
	}
	if !summary.Degraded {
		t.Error("Degraded = false, want true when auth was configured but lost")
	}
}

func TestScannerIsSingleUse(t *testing.T) {
	srv := vulnerableApp()
	defer srv.Close()

	s := New(fetch.NewHTTP(nil), nil, fastConfig(srv.URL, payload.ClassXSS))
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := s.Run(context.Background()); !errors.Is(err, ErrScanConsumed) {
		t.Errorf("second Run() error = %v, want ErrScanConsumed", err)
	}
}

func TestScanEmitsLifecycleEvents(t *testing.T) {
	srv := vulnerableApp()
	defer srv.Close()

	sink := &captureSink{}
	dispatcher := report.NewDispatcher(report.DispatcherConfig{})
	dispatcher.Register(sink)

	cfg := fastConfig(srv.URL, payload.ClassXSS)
	cfg.Reporter = dispatcher

	s := New(fetch.NewHTTP(nil), nil, cfg)
	summary, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := dispatcher.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	types := sink.typeSet()
	for _, want := range []report.EventType{
		report.EventTypeStart,
		report.EventTypeStage,
		report.EventTypeProbe,
		report.EventTypeFinding,
		report.EventTypeComplete,
	} {
		if !types[want] {
			t.Errorf("no %q event emitted", want)
		}
	}
	if sink.completeStatus != StateDone.String() {
		t.Errorf("complete status = %q, want %q", sink.completeStatus, StateDone)
	}
	_ = summary
}

type captureSink struct {
	mu             sync.Mutex
	events         []report.Event
	completeStatus string
}

func (c *captureSink) OnEvent(_ context.Context, event report.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	if complete, ok := event.(*report.CompleteEvent); ok {
		c.completeStatus = complete.Status
	}
	return nil
}

func (c *captureSink) Events() []report.EventType { return nil }

func (c *captureSink) Close() error { return nil }

func (c *captureSink) typeSet() map[report.EventType]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := make(map[report.EventType]bool, len(c.events))
	for _, e := range c.events {
		set[e.EventType()] = true
	}
	return set
}
