// Command fuzzhound crawls one web origin and probes its input surface
// for injection vulnerabilities while behaving like a signed-in user.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fuzzhound/fuzzhound/pkg/config"
	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/report"
	"github.com/fuzzhound/fuzzhound/pkg/ui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return defaults.ExitSuccess
		}
		fmt.Fprintf(stderr, "fuzzhound: %v\n", err)
		return defaults.ExitUserError
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "fuzzhound: %v\n", err)
		return defaults.ExitUserError
	}

	setupLogging(stderr, opts.verbose, opts.silent)
	ui.SetNoColor(opts.noColor)
	if !opts.silent {
		ui.Banner(stdout, cfg.Target)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher, closeSinks, err := buildReporting(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(stderr, "fuzzhound: %v\n", err)
		return defaults.ExitUserError
	}
	defer closeSinks()

	scanner, closeClients, err := buildScanner(cfg, dispatcher)
	if err != nil {
		fmt.Fprintf(stderr, "fuzzhound: %v\n", err)
		return defaults.ExitUserError
	}
	defer closeClients()

	summary, err := scanner.Run(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "fuzzhound: %v\n", err)
		return defaults.ExitTargetError
	}

	if !opts.silent {
		ui.PrintFindings(stdout, summary.Findings, opts.verbose)
		ui.PrintSummary(stdout, summary.State.String(), summary.Degraded, summary.Duration, summary.Stats)
	}

	if len(summary.Findings) > 0 {
		return defaults.ExitFindings
	}
	return defaults.ExitSuccess
}

// cliOptions are presentation knobs that never reach the core.
type cliOptions struct {
	verbose bool
	silent  bool
	noColor bool
}

// parseFlags builds the scan configuration: YAML profile first, then
// flags the user actually set on top.
func parseFlags(args []string, stderr io.Writer) (*config.Config, cliOptions, error) {
	fs := flag.NewFlagSet("fuzzhound", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts    cliOptions
		profile = fs.String("profile", "", "YAML scan profile")

		target     = fs.String("u", "", "target origin URL")
		allowHosts = fs.String("allow-hosts", "", "comma-separated extra hosts the crawler may enter")

		depth       = fs.Int("depth", 0, "max crawl depth in links from the origin")
		maxPages    = fs.Int("max-pages", 0, "max surface nodes to record")
		concurrency = fs.Int("c", 0, "probe worker count")
		crawlConc   = fs.Int("crawl-concurrency", 0, "page fetch worker count")

		delay      = fs.Duration("delay", 0, "per-worker pause between requests")
		humanDelay = fs.Bool("human-delay", false, "normally distributed think time instead of a fixed pause")
		rate       = fs.Float64("rate", 0, "global requests-per-second cap (0 = per-worker delay only)")
		retries    = fs.Int("retries", -1, "transport retries per request")

		render      = fs.Bool("render", false, "fetch pages through headless Chrome")
		impersonate = fs.String("impersonate", "", "TLS fingerprint profile: chrome, firefox, safari, edge, ios, random")
		proxy       = fs.String("proxy", "", "HTTP/SOCKS proxy URL")
		skipVerify  = fs.Bool("skip-verify", false, "skip TLS certificate verification")

		classes       = fs.String("classes", "", "comma-separated vulnerability classes (default all)")
		minConfidence = fs.String("min-confidence", "", "lowest finding tier: informational, likely, confirmed")
		timing        = fs.Duration("timing-threshold", 0, "blind-injection timing delta")

		loginURL  = fs.String("login-url", "", "login form URL")
		username  = fs.String("login-user", "", "login username")
		password  = fs.String("login-pass", "", "login password")
		userField = fs.String("user-field", "", "username form field name")
		passField = fs.String("pass-field", "", "password form field name")

		jsonl       = fs.String("jsonl", "", "write scan events as JSON lines ('-' = stdout)")
		metricsPort = fs.Int("metrics-port", 0, "serve Prometheus metrics on this port")
		trace       = fs.String("trace", "", "OTLP gRPC collector endpoint for scan traces")
		webhook     = fs.String("webhook", "", "POST finding events to this URL")
	)
	fs.BoolVar(&opts.verbose, "v", false, "verbose output")
	fs.BoolVar(&opts.silent, "silent", false, "suppress banner and summary")
	fs.BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}

	cfg := config.DefaultConfig()
	if *profile != "" {
		loaded, err := config.Load(*profile)
		if err != nil {
			return nil, opts, err
		}
		cfg = loaded
	}

	// Flags the user set override the profile.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["u"] {
		cfg.Target = *target
	}
	if set["allow-hosts"] {
		cfg.AllowHosts = splitList(*allowHosts)
	}
	if set["depth"] {
		cfg.MaxDepth = *depth
	}
	if set["max-pages"] {
		cfg.MaxPages = *maxPages
	}
	if set["c"] {
		cfg.Concurrency = *concurrency
	}
	if set["crawl-concurrency"] {
		cfg.CrawlConcurrency = *crawlConc
	}
	if set["delay"] {
		cfg.Delay = config.Duration(*delay)
	}
	if set["human-delay"] {
		cfg.HumanDelay = *humanDelay
	}
	if set["rate"] {
		cfg.RatePerSec = *rate
	}
	if set["retries"] {
		cfg.Retries = *retries
	}
	if set["render"] {
		cfg.Render = *render
	}
	if set["impersonate"] {
		cfg.Impersonate = *impersonate
	}
	if set["proxy"] {
		cfg.Proxy = *proxy
	}
	if set["skip-verify"] {
		cfg.SkipVerify = *skipVerify
	}
	if set["classes"] {
		cfg.Classes = splitList(*classes)
	}
	if set["min-confidence"] {
		cfg.MinConfidence = *minConfidence
	}
	if set["timing-threshold"] {
		cfg.TimingThreshold = config.Duration(*timing)
	}
	if set["jsonl"] {
		cfg.Output.JSONLPath = *jsonl
	}
	if set["metrics-port"] {
		cfg.Output.MetricsPort = *metricsPort
	}
	if set["trace"] {
		cfg.Output.TraceEndpoint = *trace
	}
	if set["webhook"] {
		cfg.Output.WebhookURL = *webhook
	}

	if *loginURL != "" {
		if cfg.Auth == nil {
			cfg.Auth = &config.AuthConfig{}
		}
		cfg.Auth.LoginURL = *loginURL
	}
	if cfg.Auth != nil {
		if *username != "" {
			cfg.Auth.Username = *username
		}
		if *password != "" {
			cfg.Auth.Password = *password
		}
		if *userField != "" {
			cfg.Auth.UsernameField = *userField
		}
		if *passField != "" {
			cfg.Auth.PasswordField = *passField
		}
	}

	return cfg, opts, nil
}

func setupLogging(stderr io.Writer, verbose, silent bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if silent {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
}

// buildReporting assembles the event dispatcher from the output config.
// The returned closer flushes every sink.
func buildReporting(ctx context.Context, cfg *config.Config, opts cliOptions) (*report.Dispatcher, func(), error) {
	dispatcher := report.NewDispatcher(report.DispatcherConfig{Async: true})

	// Always mirrored to the log; the handler level does the filtering.
	dispatcher.Register(report.NewLogSink(slog.Default()))

	var closers []io.Closer
	if path := cfg.Output.JSONLPath; path != "" {
		w := io.Writer(os.Stdout)
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return nil, nil, fmt.Errorf("jsonl output: %w", err)
			}
			closers = append(closers, f)
			w = f
		}
		dispatcher.Register(report.NewJSONLSink(w, report.JSONLOptions{OmitProbes: !opts.verbose}))
	}
	if port := cfg.Output.MetricsPort; port > 0 {
		sink, err := report.NewMetricsSink(report.MetricsOptions{Port: port})
		if err != nil {
			return nil, nil, fmt.Errorf("metrics sink: %w", err)
		}
		dispatcher.Register(sink)
	}
	if endpoint := cfg.Output.TraceEndpoint; endpoint != "" {
		sink, err := report.NewTraceSink(ctx, report.TraceOptions{Endpoint: endpoint, Insecure: true})
		if err != nil {
			return nil, nil, fmt.Errorf("trace sink: %w", err)
		}
		dispatcher.Register(sink)
	}
	if url := cfg.Output.WebhookURL; url != "" {
		dispatcher.Register(report.NewWebhookSink(url, report.WebhookOptions{OnlyFindings: true}))
	}

	closeAll := func() {
		if err := dispatcher.Close(); err != nil {
			slog.Warn("closing report sinks", "error", err)
		}
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Warn("closing output file", "error", err)
			}
		}
	}
	return dispatcher, closeAll, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
