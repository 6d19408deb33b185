package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/findings"
	"github.com/fuzzhound/fuzzhound/pkg/oracle"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
	"github.com/fuzzhound/fuzzhound/pkg/report"
)

func init() {
	// Keep assertions independent of the test terminal.
	SetNoColor(true)
}

func sampleFinding() findings.Finding {
	return findings.Finding{
		URL:        "https://shop.example.com/search",
		Method:     "GET",
		Field:      "q@query",
		Class:      payload.ClassXSS,
		Confidence: oracle.Confirmed,
		Level:      "confirmed",
		Rule:       "reflected-unencoded",
		Evidence:   "...<script>alert(1)</script>...",
		Payload:    payload.Payload{Class: payload.ClassXSS, Value: "<script>alert(1)</script>"},
	}
}

func TestBannerNamesToolAndTarget(t *testing.T) {
	var sb strings.Builder
	Banner(&sb, "https://shop.example.com")
	out := sb.String()
	if !strings.Contains(out, "target:") || !strings.Contains(out, "https://shop.example.com") {
		t.Errorf("banner missing target line:\n%s", out)
	}
	if !strings.Contains(out, "v") {
		t.Errorf("banner missing version:\n%s", out)
	}
}

func TestFormatFindingContainsAllParts(t *testing.T) {
	line := FormatFinding(sampleFinding())
	for _, want := range []string{"[confirmed]", "[xss]", "GET", "https://shop.example.com/search", "q@query", "reflected-unencoded"} {
		if !strings.Contains(line, want) {
			t.Errorf("FormatFinding missing %q in %q", want, line)
		}
	}
}

func TestFormatFindingTagsUnauthenticated(t *testing.T) {
	f := sampleFinding()
	f.Unauthenticated = true
	if !strings.Contains(FormatFinding(f), "(unauthenticated)") {
		t.Error("unauthenticated finding not tagged")
	}
}

func TestPrintFindingsVerboseShowsPayload(t *testing.T) {
	var sb strings.Builder
	PrintFindings(&sb, []findings.Finding{sampleFinding()}, true)
	if !strings.Contains(sb.String(), "<script>alert(1)</script>") {
		t.Errorf("verbose output missing payload:\n%s", sb.String())
	}
}

func TestPrintSummaryStates(t *testing.T) {
	stats := report.Stats{
		PagesCrawled: 12,
		NodesFound:   15,
		ProbesSent:   340,
		Findings:     2,
		ByConfidence: map[string]int{"likely": 1, "confirmed": 1},
	}

	tests := []struct {
		name     string
		status   string
		degraded bool
		want     string
	}{
		{"clean", "done", false, "scan done"},
		{"degraded", "done", true, "scan done (degraded)"},
		{"aborted", "aborted", false, "scan aborted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			PrintSummary(&sb, tt.status, tt.degraded, 3*time.Second, stats)
			out := sb.String()
			if !strings.Contains(out, tt.want) {
				t.Errorf("summary missing %q:\n%s", tt.want, out)
			}
			if !strings.Contains(out, "340") {
				t.Errorf("summary missing probe count:\n%s", out)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate(strings.Repeat("a", 20), 10); got != strings.Repeat("a", 10)+"..." {
		t.Errorf("truncate = %q", got)
	}
}
