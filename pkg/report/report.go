// Package report routes scan events to registered sinks.
//
// The orchestrator emits structured events (scan start, stage
// transitions, probe results, findings, completion) through a
// Dispatcher, which fans them out to every sink that wants them.
// Built-in sinks cover structured logs, JSON lines, Prometheus
// metrics, OpenTelemetry traces, and webhook delivery; anything
// richer renders from the same records downstream.
package report

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Sink consumes scan events. Implementations must be safe for
// concurrent use; the dispatcher may deliver from multiple goroutines.
type Sink interface {
	// OnEvent handles one event. Errors are logged by the dispatcher
	// and never stop a scan.
	OnEvent(ctx context.Context, event Event) error

	// Events returns the event types this sink wants. Nil or empty
	// means every event.
	Events() []EventType

	// Close flushes buffered output and releases sink resources.
	Close() error
}

// Dispatcher fans events out to registered sinks. It is safe for
// concurrent use.
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []Sink
	async  bool
	logger *slog.Logger

	wg     sync.WaitGroup
	closed bool
}

// DispatcherConfig configures event delivery.
type DispatcherConfig struct {
	// Async delivers events in goroutines so a slow sink cannot
	// stall probing. Close waits for in-flight deliveries.
	Async bool

	Logger *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{async: cfg.Async, logger: logger}
}

// Register adds a sink. Sinks registered after dispatching starts see
// only subsequent events.
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// Dispatch delivers the event to every sink that wants its type. Sink
// errors are logged, not returned: one failing sink must not cost the
// others their events. After Close, Dispatch is a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}

	for _, s := range d.sinks {
		if !sinkWants(s, event.EventType()) {
			continue
		}
		if d.async {
			d.wg.Add(1)
			go func(s Sink) {
				defer d.wg.Done()
				if err := s.OnEvent(ctx, event); err != nil {
					d.logger.Debug("sink delivery failed",
						"event", event.EventType(), "error", err)
				}
			}(s)
			continue
		}
		if err := s.OnEvent(ctx, event); err != nil {
			d.logger.Debug("sink delivery failed",
				"event", event.EventType(), "error", err)
		}
	}
}

// Close waits for in-flight async deliveries, then closes every sink.
// The dispatcher must not be used afterwards.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.Unlock()

	// wg.Add only happens under RLock with closed unset, so no new
	// deliveries can start once the flag is visible.
	d.wg.Wait()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sinkWants reports whether the sink subscribed to the event type.
func sinkWants(s Sink, t EventType) bool {
	types := s.Events()
	if len(types) == 0 {
		return true
	}
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}
