package report

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/duration"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
)

// Compile-time interface check.
var _ Sink = (*TraceSink)(nil)

// TraceSink exports scan telemetry to an OpenTelemetry collector. Each
// scan becomes one root span; stage transitions, findings, and probe
// failures become span events on it. A confirmed finding marks the
// span with error status.
type TraceSink struct {
	opts           TraceOptions
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu       sync.Mutex
	rootSpan trace.Span
	closed   bool

	scanID string
	target string
}

// TraceOptions configures the OpenTelemetry sink.
type TraceOptions struct {
	// Endpoint is the OTLP gRPC endpoint (default "localhost:4317").
	Endpoint string

	// ServiceName overrides the reported service name.
	ServiceName string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// Headers are added to every export request.
	Headers map[string]string
}

// NewTraceSink creates a trace sink exporting to the configured
// collector. Export failures degrade silently; they never slow a scan.
func NewTraceSink(ctx context.Context, opts TraceOptions) (*TraceSink, error) {
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4317"
	}
	if opts.ServiceName == "" {
		opts.ServiceName = defaults.ToolName
	}

	var grpcOpts []grpc.DialOption
	if opts.Insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	exporterOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithDialOption(grpcOpts...),
	}
	if opts.Insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	ctx, cancel := context.WithTimeout(ctx, duration.WebhookTimeout)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("otel: exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(defaults.Version),
		attribute.String("service.component", "scanner"),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)

	return &TraceSink{
		opts:           opts,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer("fuzzhound/scan"),
	}, nil
}

// OnEvent maps scan events onto the scan's root span.
func (s *TraceSink) OnEvent(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	switch e := event.(type) {
	case *StartEvent:
		s.handleStart(ctx, e)
	case *StageEvent:
		s.handleStage(e)
	case *ProbeEvent:
		s.handleProbe(e)
	case *FindingEvent:
		s.handleFinding(e)
	case *ProgressEvent:
		s.handleProgress(e)
	case *ErrorEvent:
		s.handleError(e)
	case *CompleteEvent:
		s.handleComplete(e)
	}
	return nil
}

func (s *TraceSink) handleStart(ctx context.Context, start *StartEvent) {
	s.scanID = start.ScanID()
	s.target = start.Target

	_, span := s.tracer.Start(ctx, "fuzzhound.scan",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("scan_id", s.scanID),
			attribute.String("target", s.target),
			attribute.StringSlice("classes", start.Classes),
			attribute.Int("concurrency", start.Config.Concurrency),
			attribute.Int("max_depth", start.Config.MaxDepth),
			attribute.Int("max_pages", start.Config.MaxPages),
			attribute.Bool("render", start.Config.Render),
			attribute.Bool("authenticated", start.Config.Authenticated),
		),
	)
	s.rootSpan = span
}

func (s *TraceSink) handleStage(stage *StageEvent) {
	if s.rootSpan == nil {
		return
	}
	s.rootSpan.AddEvent("stage_transition", trace.WithAttributes(
		attribute.String("from", stage.From),
		attribute.String("to", stage.To),
		attribute.String("reason", stage.Reason),
	))
}

// handleProbe records only failed probes; clean results would bloat the
// span by orders of magnitude, and findings arrive as their own events.
func (s *TraceSink) handleProbe(probe *ProbeEvent) {
	if s.rootSpan == nil {
		return
	}
	if probe.Outcome != "inconclusive" && probe.Outcome != "blocked" {
		return
	}
	s.rootSpan.AddEvent("probe_"+probe.Outcome, trace.WithAttributes(
		attribute.String("url", probe.URL),
		attribute.String("field", probe.Field),
		attribute.String("class", probe.Class),
		attribute.Float64("latency_ms", probe.LatencyMs),
	))
}

func (s *TraceSink) handleFinding(finding *FindingEvent) {
	if s.rootSpan == nil {
		return
	}
	f := finding.Finding
	s.rootSpan.AddEvent("finding", trace.WithAttributes(
		attribute.String("url", f.URL),
		attribute.String("field", f.Field),
		attribute.String("class", string(f.Class)),
		attribute.String("confidence", f.Level),
		attribute.String("rule", f.Rule),
		attribute.Bool("unauthenticated", f.Unauthenticated),
	))
	if f.Confidence >= oracle.Confirmed {
		s.rootSpan.SetStatus(codes.Error, "confirmed vulnerability")
	}
}

func (s *TraceSink) handleProgress(progress *ProgressEvent) {
	if s.rootSpan == nil {
		return
	}
	s.rootSpan.AddEvent("progress", trace.WithAttributes(
		attribute.String("stage", progress.Stage),
		attribute.Int("pages_crawled", progress.Stats.PagesCrawled),
		attribute.Int("probes_sent", progress.Stats.ProbesSent),
		attribute.Int("findings", progress.Stats.Findings),
	))
}

func (s *TraceSink) handleError(errEvent *ErrorEvent) {
	if s.rootSpan == nil {
		return
	}
	s.rootSpan.AddEvent("scan_error", trace.WithAttributes(
		attribute.String("stage", errEvent.Stage),
		attribute.String("url", errEvent.URL),
		attribute.String("message", errEvent.Message),
		attribute.Bool("fatal", errEvent.Fatal),
	))
	if errEvent.Fatal {
		s.rootSpan.SetStatus(codes.Error, errEvent.Message)
	}
}

func (s *TraceSink) handleComplete(complete *CompleteEvent) {
	if s.rootSpan == nil {
		return
	}
	s.rootSpan.SetAttributes(
		attribute.String("status", complete.Status),
		attribute.Bool("degraded", complete.Degraded),
		attribute.Bool("unauthenticated", complete.Unauthenticated),
		attribute.Float64("duration_sec", complete.DurationSec),
		attribute.Int("pages_crawled", complete.Stats.PagesCrawled),
		attribute.Int("probes_sent", complete.Stats.ProbesSent),
		attribute.Int("findings", complete.Stats.Findings),
	)
	if complete.Status == "done" && complete.Stats.Findings == 0 {
		s.rootSpan.SetStatus(codes.Ok, "scan clean")
	}
	s.rootSpan.End()
	s.rootSpan = nil
}

// Events subscribes to everything; volume control happens per handler.
func (s *TraceSink) Events() []EventType { return nil }

// Close ends any open span and flushes the exporter.
func (s *TraceSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.rootSpan != nil {
		s.rootSpan.End()
		s.rootSpan = nil
	}
	if s.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), duration.SinkShutdown)
		defer cancel()
		if err := s.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("otel: shutdown: %w", err)
		}
	}
	return nil
}

// Endpoint returns the OTLP endpoint in use.
func (s *TraceSink) Endpoint() string { return s.opts.Endpoint }

// ServiceName returns the reported service name.
func (s *TraceSink) ServiceName() string { return s.opts.ServiceName }
