package oracle

import (
	"html"
	"regexp"
	"strings"

	"github.com/fuzzhound/fuzzhound/pkg/defaults"
	"github.com/fuzzhound/fuzzhound/pkg/payload"
	"github.com/fuzzhound/fuzzhound/pkg/regexcache"
)

// Classes emitted by secondary rules only; they have no payload generator.
const (
	ClassServerError    = payload.Class("server-error")
	ClassDebugInfo      = payload.Class("debug-info")
	ClassPathDisclosure = payload.Class("path-disclosure")
)

const (
	defaultSizeDelta = defaults.SizeDeltaThreshold
	evidenceHeadLen  = defaults.EvidenceMaxLen
)

// sqlErrorPatterns map database error signatures to a dialect hint. The
// generic entries stay last so a dialect-specific hint wins when both match.
var sqlErrorPatterns = []struct {
	dialect string
	re      *regexp.Regexp
}{
	{"mysql", regexcache.MustGet(`(?i)SQL syntax.*MySQL`)},
	{"mysql", regexcache.MustGet(`(?i)Warning.*mysqli?_`)},
	{"mysql", regexcache.MustGet(`(?i)You have an error in your SQL syntax`)},
	{"mysql", regexcache.MustGet(`(?i)mysql_fetch_`)},
	{"postgresql", regexcache.MustGet(`(?i)PostgreSQL.*ERROR`)},
	{"postgresql", regexcache.MustGet(`(?i)pg_query\(\)|pg_exec\(\)`)},
	{"postgresql", regexcache.MustGet(`(?i)org\.postgresql\.util\.PSQLException`)},
	{"postgresql", regexcache.MustGet(`(?i)ERROR:\s*syntax error at or near`)},
	{"mssql", regexcache.MustGet(`(?i)Unclosed quotation mark after`)},
	{"mssql", regexcache.MustGet(`(?i)Microsoft SQL (Native Client|Server)`)},
	{"mssql", regexcache.MustGet(`(?i)ODBC SQL Server Driver`)},
	{"mssql", regexcache.MustGet(`(?i)Msg \d+, Level \d+, State \d+`)},
	{"oracle", regexcache.MustGet(`\bORA-[0-9]{4,}`)},
	{"oracle", regexcache.MustGet(`(?i)quoted string not properly terminated`)},
	{"sqlite", regexcache.MustGet(`(?i)SQLite3?::|SQLITE_ERROR`)},
	{"sqlite", regexcache.MustGet(`(?i)unrecognized token:`)},
	{"generic", regexcache.MustGet(`(?i)SQL (syntax|error)`)},
	{"generic", regexcache.MustGet(`(?i)java\.sql\.SQLException`)},
	{"generic", regexcache.MustGet(`(?i)Incorrect syntax near`)},
}

// sqlKeywords gates the expensive signature sweep. A body with none of
// these cannot match any pattern above.
var sqlKeywords = []string{
	"sql", "syntax", "mysql", "postgres", "sqlite", "ora-",
	"odbc", "quotation", "unrecognized token",
}

// matchSQLError returns the first signature match location and its dialect
// hint, or nil when the body is clean.
func matchSQLError(body string) ([]int, string) {
	lower := strings.ToLower(body)
	keywordHit := false
	for _, kw := range sqlKeywords {
		if strings.Contains(lower, kw) {
			keywordHit = true
			break
		}
	}
	if !keywordHit {
		return nil, ""
	}
	for _, sig := range sqlErrorPatterns {
		if loc := sig.re.FindStringIndex(body); loc != nil {
			return loc, sig.dialect
		}
	}
	return nil, ""
}

var ssrfIndicatorPatterns = []*regexp.Regexp{
	regexcache.MustGet(`ami-id|instance-id|local-hostname`),
	regexcache.MustGet(`(?m)^root:.*:0:0:`),
	regexcache.MustGet(`computeMetadata`),
	regexcache.MustGet(`(?i)EC2 ?Metadata`),
	regexcache.MustGet(`(?i)metadata\.google\.internal`),
}

var systemFilePatterns = []*regexp.Regexp{
	regexcache.MustGet(`(?m)^root:.*:0:0:`),
	regexcache.MustGet(`(?m)^(daemon|nobody|www-data):.*:\d+:\d+:`),
	regexcache.MustGet(`(?i)\[fonts\]|\[extensions\]|\[mci extensions\]`),
	regexcache.MustGet(`(?i)\[boot loader\]`),
}

var pathDisclosurePatterns = []*regexp.Regexp{
	regexcache.MustGet(`[A-Za-z]:\\(?:[\w .-]+\\)+[\w .-]+`),
	regexcache.MustGet(`(?:/var/www|/usr/local|/home/\w+|/opt/\w+)(?:/[\w.-]+)+`),
	regexcache.MustGet(`(?i)in <b>/[^<]+</b> on line`),
}

var templateErrorPatterns = []*regexp.Regexp{
	regexcache.MustGet(`(?i)jinja2\.exceptions\.`),
	regexcache.MustGet(`(?i)TemplateSyntaxError|UndefinedError`),
	regexcache.MustGet(`(?i)Twig[\\_]Error`),
	regexcache.MustGet(`(?i)Liquid error`),
	regexcache.MustGet(`(?i)freemarker\.(core|template)`),
	regexcache.MustGet(`(?i)ERB::|ActionView::Template::Error`),
}

var debugInfoPatterns = []*regexp.Regexp{
	regexcache.MustGet(`Traceback \(most recent call last\)`),
	regexcache.MustGet(`(?i)Fatal error:.*on line \d+`),
	regexcache.MustGet(`(?m)^\s+at [\w.$]+\([\w.]+\.java:\d+\)`),
	regexcache.MustGet(`(?i)DEBUG ?= ?True`),
	regexcache.MustGet(`(?i)whoops, looks like something went wrong`),
	regexcache.MustGet(`goroutine \d+ \[running\]`),
}

// matchFirst returns the location of the first pattern matching body.
func matchFirst(patterns []*regexp.Regexp, body string) []int {
	for _, re := range patterns {
		if loc := re.FindStringIndex(body); loc != nil {
			return loc
		}
	}
	return nil
}

// markupIndicators make a reflected value meaningful as markup rather
// than inert text.
var markupIndicators = []string{"<", "onerror=", "onload=", "ontoggle=", "onmouseover=", "javascript:", "{{", "${"}

func containsMarkup(value string) bool {
	for _, ind := range markupIndicators {
		if strings.Contains(value, ind) {
			return true
		}
	}
	return false
}

// htmlEscape mirrors the escaping servers typically apply to reflected
// input, for detecting neutralized reflections.
func htmlEscape(value string) string {
	return html.EscapeString(value)
}

// activeDOMIndex locates value inside an active DOM context: a script
// element or an inline event handler. Returns -1 when absent or inert.
func activeDOMIndex(dom, value string) int {
	if dom == "" || value == "" {
		return -1
	}
	idx := strings.Index(dom, value)
	if idx < 0 {
		return -1
	}
	// Active when inside a <script> block.
	open := strings.LastIndex(strings.ToLower(dom[:idx]), "<script")
	if open >= 0 {
		closing := strings.Index(strings.ToLower(dom[open:idx]), "</script")
		if closing < 0 {
			return idx
		}
	}
	// Or when the value itself carries an executable node.
	lower := strings.ToLower(value)
	if strings.Contains(lower, "<script") || strings.Contains(lower, "onerror=") ||
		strings.Contains(lower, "onload=") || strings.Contains(lower, "ontoggle=") {
		return idx
	}
	return -1
}

// expectedEvaluation returns the output a template engine would produce
// for the arithmetic marker embedded in origin, or "" when origin carries
// no marker.
func expectedEvaluation(origin string) string {
	if strings.Contains(origin, "7*'7'") {
		return "7777777"
	}
	if strings.Contains(origin, "7*7") {
		return "49"
	}
	return ""
}

// snippet extracts the matched region with surrounding context, elided at
// both ends when clipped.
func snippet(body string, start, end int) string {
	from := start - defaults.EvidenceContext
	if from < 0 {
		from = 0
	}
	to := end + defaults.EvidenceContext
	if to > len(body) {
		to = len(body)
	}
	s := body[from:to]
	if len(s) > defaults.EvidenceMaxLen {
		s = s[:defaults.EvidenceMaxLen]
		to = from + defaults.EvidenceMaxLen
	}
	if from > 0 {
		s = "..." + s
	}
	if to < len(body) {
		s += "..."
	}
	return s
}
