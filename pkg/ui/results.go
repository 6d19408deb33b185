package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fuzzhound/fuzzhound/pkg/findings"
	"github.com/fuzzhound/fuzzhound/pkg/report"
)

const maxPayloadWidth = 72

// FormatFinding renders one finding line:
//
//	[confirmed] [xss] GET https://target/search q@query reflected-unencoded
func FormatFinding(f findings.Finding) string {
	parts := []string{
		bracket(ConfidenceStyle(f.Level).Render(f.Level)),
		bracket(ClassStyle.Render(string(f.Class))),
		StatValueStyle.Render(f.Method) + " " + URLStyle.Render(f.URL),
		StatValueStyle.Render(f.Field),
		SubtleStyle.Render(f.Rule),
	}
	if f.Unauthenticated {
		parts = append(parts, DegradedStyle.Render("(unauthenticated)"))
	}
	return strings.Join(parts, " ")
}

// PrintFindings writes one line per finding plus payload detail when
// verbose is set.
func PrintFindings(w io.Writer, found []findings.Finding, verbose bool) {
	for _, f := range found {
		fmt.Fprintln(w, FormatFinding(f))
		if verbose {
			fmt.Fprintf(w, "      %s\n",
				SubtleStyle.Render("-> "+truncate(f.Payload.Value, maxPayloadWidth)))
			if f.Evidence != "" {
				fmt.Fprintf(w, "      %s\n",
					SubtleStyle.Render("   "+truncate(f.Evidence, maxPayloadWidth)))
			}
			if f.OWASP != "" {
				fmt.Fprintf(w, "      %s\n", SubtleStyle.Render("   "+f.OWASP))
			}
		}
	}
}

// PrintSummary writes the completion block: status line, counters, and
// findings by confidence tier.
func PrintSummary(w io.Writer, status string, degraded bool, elapsed time.Duration, stats report.Stats) {
	fmt.Fprintln(w)
	switch {
	case status != "done":
		fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("scan "+status), SubtleStyle.Render(elapsed.Round(time.Millisecond).String()))
	case degraded:
		fmt.Fprintf(w, "%s %s\n", DegradedStyle.Render("scan done (degraded)"), SubtleStyle.Render(elapsed.Round(time.Millisecond).String()))
	default:
		fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("scan done"), SubtleStyle.Render(elapsed.Round(time.Millisecond).String()))
	}

	row(w, "pages crawled", stats.PagesCrawled)
	row(w, "surface nodes", stats.NodesFound)
	row(w, "forms found", stats.FormsFound)
	row(w, "probes sent", stats.ProbesSent)
	if stats.Inconclusive > 0 {
		row(w, "inconclusive", stats.Inconclusive)
	}
	if stats.Blocked > 0 {
		row(w, "blocked", stats.Blocked)
	}
	row(w, "findings", stats.Findings)

	for _, tier := range orderedTiers(stats.ByConfidence) {
		fmt.Fprintf(w, "    %s %s\n",
			ConfidenceStyle(tier).Render(fmt.Sprintf("%-13s", tier)),
			StatValueStyle.Render(fmt.Sprintf("%d", stats.ByConfidence[tier])))
	}
}

func row(w io.Writer, label string, value int) {
	fmt.Fprintf(w, "  %s %s\n",
		StatLabelStyle.Render(fmt.Sprintf("%-15s", label)),
		StatValueStyle.Render(fmt.Sprintf("%d", value)))
}

var tierOrder = map[string]int{"confirmed": 0, "likely": 1, "informational": 2}

func orderedTiers(byConfidence map[string]int) []string {
	tiers := make([]string, 0, len(byConfidence))
	for tier := range byConfidence {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tierOrder[tiers[i]] < tierOrder[tiers[j]] })
	return tiers
}

func bracket(s string) string {
	return BracketStyle.Render("[") + s + BracketStyle.Render("]")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
