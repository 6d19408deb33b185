package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/config"
	"github.com/fuzzhound/fuzzhound/pkg/crawler"
	"github.com/fuzzhound/fuzzhound/pkg/engine"
	"github.com/fuzzhound/fuzzhound/pkg/fetch"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/report"
	"github.com/fuzzhound/fuzzhound/pkg/scan"
	"github.com/fuzzhound/fuzzhound/pkg/session"
)

// buildScanner assembles the transport, session, and component configs
// into one Scanner. The returned closer shuts down the browser when the
// rendered path was requested.
func buildScanner(cfg *config.Config, dispatcher *report.Dispatcher) (*scan.Scanner, func(), error) {
	client, closeClient := buildClient(cfg)

	sessions, err := buildSessions(client, cfg.Auth)
	if err != nil {
		closeClient()
		return nil, nil, err
	}

	scanner := scan.New(client, sessions, &scan.Config{
		Target: cfg.Target,
		Crawl: &crawler.Config{
			MaxDepth:    cfg.MaxDepth,
			MaxPages:    cfg.MaxPages,
			Concurrency: cfg.CrawlConcurrency,
			Delay:       cfg.Delay.Std(),
			AllowHosts:  cfg.AllowHosts,
			Render:      cfg.Render,
		},
		Probe: &engine.Config{
			Concurrency: cfg.Concurrency,
			Delay:       delayPolicy(cfg),
			RateLimit:   cfg.RatePerSec,
			Retries:     cfg.Retries,
			Classes:     cfg.ClassList(),
		},
		Oracle: &oracle.Config{
			TimingThreshold: cfg.TimingThreshold.Std(),
			SizeDelta:       cfg.SizeDelta,
		},
		MinConfidence: confidenceTier(cfg.MinConfidence),
		Reporter:      dispatcher,
	})
	return scanner, closeClient, nil
}

// buildClient returns the shared transport: the pooled HTTP client, and
// the browser-rendered path layered over it when Render is on.
func buildClient(cfg *config.Config) (fetch.Client, func()) {
	httpCfg := fetch.DefaultConfig()
	httpCfg.Proxy = cfg.Proxy
	httpCfg.Impersonate = cfg.Impersonate
	if cfg.SkipVerify {
		httpCfg.InsecureSkipVerify = true
	}
	base := fetch.NewHTTP(httpCfg)

	if !cfg.Render {
		return base, func() {}
	}
	browser := fetch.NewBrowser(base, nil)
	return browser, browser.Close
}

// buildSessions wires the login flow. A nil auth block means the scan
// runs without session handling.
func buildSessions(client fetch.Client, auth *config.AuthConfig) (*session.Manager, error) {
	if auth == nil {
		return nil, nil
	}
	method := auth.Method
	if method == "" {
		method = http.MethodPost
	}
	return session.New(client, &session.Config{
		Login: &session.LoginConfig{
			URL:           auth.LoginURL,
			Method:        method,
			UsernameField: auth.UsernameField,
			PasswordField: auth.PasswordField,
			Extra:         auth.Extra,
		},
		Credentials: session.Credentials{
			Username: auth.Username,
			Password: auth.Password,
		},
		MaxReauth: auth.MaxReauth,
		Logger:    slog.Default(),
	})
}

// delayPolicy picks the probe pacing: normally distributed think time
// when human-delay is on, otherwise the configured fixed pause.
func delayPolicy(cfg *config.Config) engine.DelayPolicy {
	if cfg.HumanDelay {
		return engine.DefaultHumanDelay(time.Now().UnixNano())
	}
	return engine.FixedDelay(cfg.Delay.Std())
}

func confidenceTier(name string) oracle.Confidence {
	switch name {
	case "informational":
		return oracle.Informational
	case "confirmed":
		return oracle.Confirmed
	default:
		return oracle.Likely
	}
}
