// Package defaults provides canonical default values for the entire codebase.
// This file carries the OWASP Top 10 2021 reference data used to tag findings.
//
// Usage:
//
//	code := defaults.OWASPCategory("sqli")       // "A03:2021"
//	name := defaults.OWASPTop10[code].Name       // "Injection"
package defaults

// OWASPEntry is one OWASP Top 10 2021 category.
type OWASPEntry struct {
	Code string // e.g. "A03:2021"
	Name string // e.g. "Injection"
	URL  string
}

// OWASPTop10 holds the categories fuzzhound findings can map to, indexed by code.
var OWASPTop10 = map[string]OWASPEntry{
	"A01:2021": {
		Code: "A01:2021",
		Name: "Broken Access Control",
		URL:  "https://owasp.org/Top10/A01_2021-Broken_Access_Control/",
	},
	"A03:2021": {
		Code: "A03:2021",
		Name: "Injection",
		URL:  "https://owasp.org/Top10/A03_2021-Injection/",
	},
	"A05:2021": {
		Code: "A05:2021",
		Name: "Security Misconfiguration",
		URL:  "https://owasp.org/Top10/A05_2021-Security_Misconfiguration/",
	},
	"A07:2021": {
		Code: "A07:2021",
		Name: "Identification and Authentication Failures",
		URL:  "https://owasp.org/Top10/A07_2021-Identification_and_Authentication_Failures/",
	},
	"A10:2021": {
		Code: "A10:2021",
		Name: "Server-Side Request Forgery",
		URL:  "https://owasp.org/Top10/A10_2021-Server-Side_Request_Forgery_%28SSRF%29/",
	},
}

// owaspByClass maps vulnerability class tags to OWASP codes.
var owaspByClass = map[string]string{
	"xss":            "A03:2021",
	"sqli":           "A03:2021",
	"ssti":           "A03:2021",
	"path-traversal": "A01:2021",
	"ssrf":           "A10:2021",
	"server-error":   "A05:2021",
	"debug-info":     "A05:2021",
	"path-disclosure": "A05:2021",
	"auth":           "A07:2021",
}

// OWASPCategory returns the OWASP Top 10 code for a vulnerability class tag,
// or the empty string when the class has no mapping.
func OWASPCategory(class string) string {
	return owaspByClass[normalizeClass(class)]
}

// normalizeClass lowercases a class tag and folds underscores to hyphens.
func normalizeClass(class string) string {
	result := make([]byte, 0, len(class))
	for i := 0; i < len(class); i++ {
		c := class[i]
		switch {
		case c >= 'A' && c <= 'Z':
			result = append(result, c+32)
		case c == '_':
			result = append(result, '-')
		default:
			result = append(result, c)
		}
	}
	return string(result)
}
