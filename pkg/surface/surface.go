// Package surface provides the typed model of a target's discovered attack
// surface: pages, forms, fields, and API parameters. The crawler populates
// it, the injection engine reads it, and the report sink receives it at the
// end of a scan.
package surface

import (
	"net/url"
	"strings"
)

// FieldType classifies a discovered input once, at discovery time.
// Downstream logic switches on the tag instead of re-inspecting markup.
type FieldType int

const (
	TypeUnknown FieldType = iota
	TypeText
	TypeHidden
	TypeFile
	TypeNumeric
	TypeBoolean
)

// String returns the lowercase name of the field type.
func (t FieldType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeHidden:
		return "hidden"
	case TypeFile:
		return "file"
	case TypeNumeric:
		return "numeric"
	case TypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Location says where a field travels in a request.
type Location int

const (
	InQuery Location = iota
	InBody
	InHeader
	InPath
)

// String returns the lowercase name of the location.
func (l Location) String() string {
	switch l {
	case InQuery:
		return "query"
	case InBody:
		return "body"
	case InHeader:
		return "header"
	case InPath:
		return "path"
	default:
		return "unknown"
	}
}

// Field is one input on a surface node. Immutable once recorded.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Location Location  `json:"location"`
	Sample   string    `json:"sample,omitempty"` // default or observed value
	Required bool      `json:"required,omitempty"`
}

// Identity returns the stable identity of a field within its node,
// name plus location. Two inputs with the same name in different
// locations are distinct fields.
func (f Field) Identity() string {
	return f.Name + "@" + f.Location.String()
}

// Node is one discovered page or endpoint. Created by the crawler on first
// visit; after creation only newly observed fields may be appended. The
// parent URL is kept for path reconstruction only.
type Node struct {
	URL       string   `json:"url"` // normalized, query stripped
	Method    string   `json:"method"`
	Depth     int      `json:"depth"`
	Parent    string   `json:"parent,omitempty"`
	Title     string   `json:"title,omitempty"`
	Status    int      `json:"status,omitempty"`
	Fields    []Field  `json:"fields,omitempty"`
	FetchErr  string   `json:"fetch_error,omitempty"` // error marker; node kept, crawl continued
	Degraded  bool     `json:"degraded,omitempty"`    // challenge blocked and bypass failed
	FormIDs   []string `json:"form_ids,omitempty"`
}

// Key returns the node's identity within a scan: normalized URL + method.
func (n *Node) Key() string {
	return NodeKey(n.URL, n.Method)
}

// NodeKey builds the visited-set key for a URL and method.
func NodeKey(normalizedURL, method string) string {
	return strings.ToUpper(method) + " " + normalizedURL
}

// Normalize canonicalizes a URL for deduplication: lowercases scheme and
// host, drops the default port, strips query string and fragment, and
// ensures a non-empty path. Returns the empty string for URLs that cannot
// be probed (javascript:, mailto:, data: and malformed input).
func Normalize(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:", "about:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	u.Fragment = ""
	u.RawQuery = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// SameOrigin reports whether candidate shares scheme and host with origin.
func SameOrigin(origin, candidate string) bool {
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	c, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return strings.EqualFold(o.Scheme, c.Scheme) && strings.EqualFold(o.Host, c.Host)
}

// InferType resolves a FieldType from the markup's declared input kind and
// the sample value shape. Resolution happens once here; nothing downstream
// re-probes the markup.
func InferType(inputKind, sample string) FieldType {
	switch strings.ToLower(inputKind) {
	case "hidden":
		return TypeHidden
	case "file":
		return TypeFile
	case "number", "range":
		return TypeNumeric
	case "checkbox", "radio":
		return TypeBoolean
	case "text", "search", "email", "url", "tel", "password", "textarea", "select":
		// Declared text-like kinds still defer to the sample shape: a text
		// input prefilled with "42" behaves numerically server-side.
		return refineBySample(sample, TypeText)
	case "":
		return refineBySample(sample, TypeUnknown)
	default:
		return refineBySample(sample, TypeUnknown)
	}
}

// refineBySample narrows a fallback type using the observed sample value.
func refineBySample(sample string, fallback FieldType) FieldType {
	s := strings.TrimSpace(sample)
	if s == "" {
		return fallback
	}
	switch strings.ToLower(s) {
	case "true", "false", "on", "off", "yes", "no":
		return TypeBoolean
	}
	if isAllDigits(s) {
		return TypeNumeric
	}
	return fallback
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
