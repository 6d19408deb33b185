package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Compile-time interface check.
var _ Sink = (*JSONLSink)(nil)

// JSONLSink writes events as newline-delimited JSON. Each event is one
// self-contained object per line, so jq, grep, and streaming parsers
// can follow a scan in real time.
type JSONLSink struct {
	mu   sync.Mutex
	w    io.Writer
	enc  *json.Encoder
	opts JSONLOptions
}

// JSONLOptions configures the JSONL sink.
type JSONLOptions struct {
	// OnlyFindings restricts output to finding events.
	OnlyFindings bool

	// OmitProbes drops the high-volume per-probe events but keeps
	// everything else.
	OmitProbes bool

	// Pretty indents output. Not JSONL-compliant; debugging only.
	Pretty bool
}

// NewJSONLSink creates a JSONL sink writing to w.
func NewJSONLSink(w io.Writer, opts JSONLOptions) *JSONLSink {
	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	return &JSONLSink{w: w, enc: enc, opts: opts}
}

// OnEvent writes the event as a single JSON line.
func (s *JSONLSink) OnEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(event); err != nil {
		return fmt.Errorf("jsonl: encode %s: %w", event.EventType(), err)
	}
	return nil
}

// Events returns the subscription implied by the options.
func (s *JSONLSink) Events() []EventType {
	if s.opts.OnlyFindings {
		return []EventType{EventTypeFinding}
	}
	if s.opts.OmitProbes {
		return []EventType{
			EventTypeStart, EventTypeStage, EventTypeFinding,
			EventTypeProgress, EventTypeError, EventTypeComplete,
		}
	}
	return nil
}

// Close closes the underlying writer when it is an io.Closer.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closer, ok := s.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
