package iohelper

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestReadBody(t *testing.T) {
	t.Run("nil reader", func(t *testing.T) {
		data, err := ReadBody(nil, PageMaxBodySize)
		if err != nil {
			t.Fatalf("ReadBody(nil) error: %v", err)
		}
		if len(data) != 0 {
			t.Errorf("expected empty slice, got %d bytes", len(data))
		}
	})

	t.Run("under limit", func(t *testing.T) {
		data, err := ReadBody(strings.NewReader("hello"), 100)
		if err != nil {
			t.Fatalf("ReadBody error: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("got %q, want %q", data, "hello")
		}
	})

	t.Run("truncates at limit", func(t *testing.T) {
		data, err := ReadBody(strings.NewReader("0123456789"), 4)
		if err != nil {
			t.Fatalf("ReadBody error: %v", err)
		}
		if string(data) != "0123" {
			t.Errorf("got %q, want %q", data, "0123")
		}
	})
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	t.Run("nil reader", func(t *testing.T) {
		if err := DrainAndClose(nil); err != nil {
			t.Errorf("DrainAndClose(nil) = %v, want nil", err)
		}
	})

	t.Run("drains and closes", func(t *testing.T) {
		tracker := &closeTracker{Reader: bytes.NewReader(make([]byte, 1024))}
		if err := DrainAndClose(tracker); err != nil {
			t.Fatalf("DrainAndClose error: %v", err)
		}
		if !tracker.closed {
			t.Error("reader was not closed")
		}
		// Everything should have been consumed.
		n, _ := tracker.Read(make([]byte, 1))
		if n != 0 {
			t.Error("reader was not drained")
		}
	})

	t.Run("plain reader without Close", func(t *testing.T) {
		if err := DrainAndClose(strings.NewReader("x")); err != nil {
			t.Errorf("DrainAndClose = %v, want nil", err)
		}
	})
}
