package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fuzzhound/fuzzhound/pkg/duration"
)

// Compile-time interface check.
var _ Sink = (*MetricsSink)(nil)

// MetricsSink exposes scan metrics for Prometheus scraping. It serves
// a metrics endpoint for the lifetime of the scan: probe and finding
// counters, crawl and duration gauges, and a probe latency histogram.
type MetricsSink struct {
	server   *http.Server
	registry *prometheus.Registry
	opts     MetricsOptions

	probesTotal   *prometheus.CounterVec
	findingsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec

	pagesCrawled *prometheus.GaugeVec
	scanSeconds  *prometheus.GaugeVec

	probeSeconds *prometheus.HistogramVec

	mu     sync.Mutex
	closed bool
}

// MetricsOptions configures the metrics sink.
type MetricsOptions struct {
	// Port for the scrape server (default 9090).
	Port int

	// Path for the metrics endpoint (default "/metrics").
	Path string

	Logger *slog.Logger
}

// NewMetricsSink creates a metrics sink and starts its scrape server.
// The server runs until Close.
func NewMetricsSink(opts MetricsOptions) (*MetricsSink, error) {
	if opts.Port == 0 {
		opts.Port = 9090
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &MetricsSink{
		// Own registry; the default one belongs to the host process.
		registry: prometheus.NewRegistry(),
		opts:     opts,
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("metrics: register: %w", err)
	}
	s.startServer()
	return s, nil
}

func (s *MetricsSink) initMetrics() error {
	s.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhound_probes_total",
			Help: "Probes dispatched, by vulnerability class and outcome",
		},
		[]string{"target", "class", "outcome"},
	)
	s.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhound_finding_events_total",
			Help: "Finding state changes (created or confidence raised)",
		},
		[]string{"target", "class", "confidence"},
	)
	s.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fuzzhound_errors_total",
			Help: "Scan-level errors, by stage",
		},
		[]string{"target", "stage"},
	)
	s.pagesCrawled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fuzzhound_pages_crawled",
			Help: "Pages fetched by the crawler so far",
		},
		[]string{"target"},
	)
	s.scanSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fuzzhound_scan_duration_seconds",
			Help: "Total scan duration in seconds",
		},
		[]string{"target"},
	)
	s.probeSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fuzzhound_probe_duration_seconds",
			Help:    "Probe round-trip time distribution",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"target", "outcome"},
	)

	for _, c := range []prometheus.Collector{
		s.probesTotal, s.findingsTotal, s.errorsTotal,
		s.pagesCrawled, s.scanSeconds, s.probeSeconds,
	} {
		if err := s.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *MetricsSink) startServer() {
	mux := http.NewServeMux()
	mux.Handle(s.opts.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.opts.Port),
		Handler:      mux,
		ReadTimeout:  duration.SinkShutdown,
		WriteTimeout: duration.WebhookTimeout,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			// The scan outlives a dead scrape endpoint.
			s.opts.Logger.Error("metrics server failed", "error", err)
		}
	}()
}

// OnEvent updates the metrics touched by the event.
func (s *MetricsSink) OnEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	switch e := event.(type) {
	case *ProbeEvent:
		target := metricHost(e.URL)
		s.probesTotal.WithLabelValues(target, e.Class, e.Outcome).Inc()
		if e.LatencyMs > 0 {
			s.probeSeconds.WithLabelValues(target, e.Outcome).Observe(e.LatencyMs / 1000.0)
		}
	case *FindingEvent:
		s.findingsTotal.WithLabelValues(
			metricHost(e.Finding.URL), string(e.Finding.Class), e.Finding.Level).Inc()
	case *ErrorEvent:
		s.errorsTotal.WithLabelValues(metricHost(e.URL), e.Stage).Inc()
	case *CompleteEvent:
		target := metricHost(e.Target)
		s.pagesCrawled.WithLabelValues(target).Set(float64(e.Stats.PagesCrawled))
		s.scanSeconds.WithLabelValues(target).Set(e.DurationSec)
	}
	return nil
}

// Events subscribes to the metric-bearing event types.
func (s *MetricsSink) Events() []EventType {
	return []EventType{
		EventTypeProbe, EventTypeFinding, EventTypeError, EventTypeComplete,
	}
}

// Close shuts down the scrape server.
func (s *MetricsSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.SinkShutdown)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// MetricsAddr returns the local scrape URL.
func (s *MetricsSink) MetricsAddr() string {
	return fmt.Sprintf("http://localhost:%d%s", s.opts.Port, s.opts.Path)
}

// metricHost reduces a URL to its host for use as a metric label,
// keeping label cardinality bounded by the number of scanned hosts.
func metricHost(rawURL string) string {
	if rawURL == "" {
		return "unknown"
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
