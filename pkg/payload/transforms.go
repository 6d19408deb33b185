package payload

import (
	"net/url"
	"strings"
	"unicode"
)

// Built-in transforms, registered in a fixed order so variant output is
// deterministic. A transform returning its input unchanged produces no
// variant for that base.

func init() {
	RegisterTransform(urlEncodeTransform{})
	RegisterTransform(doubleURLEncodeTransform{})
	RegisterTransform(htmlEntityTransform{})
	RegisterTransform(caseSwapTransform{})
	RegisterTransform(sqlCommentTransform{})
}

// ==================== URL ENCODING ====================

// urlEncodeTransform percent-encodes the payload for query contexts.
type urlEncodeTransform struct{}

func (urlEncodeTransform) Name() string     { return "url" }
func (urlEncodeTransform) Classes() []Class { return nil }
func (urlEncodeTransform) Apply(s string) string {
	return url.QueryEscape(s)
}

// doubleURLEncodeTransform encodes twice, for servers that decode once
// before a filter and once after.
type doubleURLEncodeTransform struct{}

func (doubleURLEncodeTransform) Name() string     { return "double-url" }
func (doubleURLEncodeTransform) Classes() []Class { return nil }
func (doubleURLEncodeTransform) Apply(s string) string {
	return url.QueryEscape(url.QueryEscape(s))
}

// ==================== HTML ENTITIES ====================

// htmlEntityTransform rewrites markup metacharacters as decimal entities.
// Only useful where the sink decodes entities, so it stays XSS-scoped.
type htmlEntityTransform struct{}

func (htmlEntityTransform) Name() string     { return "html-entity" }
func (htmlEntityTransform) Classes() []Class { return []Class{ClassXSS} }

var htmlEntityReplacer = strings.NewReplacer(
	`<`, `&#60;`,
	`>`, `&#62;`,
	`"`, `&#34;`,
	`'`, `&#39;`,
)

func (htmlEntityTransform) Apply(s string) string {
	return htmlEntityReplacer.Replace(s)
}

// ==================== CASE SWAPPING ====================

// caseSwapTransform alternates letter case to slip past case-sensitive
// keyword filters. Alternation by letter position keeps it deterministic.
type caseSwapTransform struct{}

func (caseSwapTransform) Name() string     { return "case-swap" }
func (caseSwapTransform) Classes() []Class { return []Class{ClassXSS, ClassSQLI} }

func (caseSwapTransform) Apply(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	letter := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			if letter%2 == 1 {
				r = unicode.ToUpper(r)
			} else {
				r = unicode.ToLower(r)
			}
			letter++
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ==================== SQL COMMENT INFLATION ====================

// sqlCommentTransform replaces spaces with inline comments, the classic
// keyword-splitting evasion for SQL filters.
type sqlCommentTransform struct{}

func (sqlCommentTransform) Name() string     { return "sql-comment" }
func (sqlCommentTransform) Classes() []Class { return []Class{ClassSQLI} }

func (sqlCommentTransform) Apply(s string) string {
	return strings.ReplaceAll(s, " ", "/**/")
}
