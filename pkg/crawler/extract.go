package crawler

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/fuzzhound/fuzzhound/pkg/regexcache"
	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

// page holds everything worth keeping from one parsed document.
type page struct {
	Title     string
	Links     []string
	Forms     []formInfo
	Endpoints []endpointInfo
}

// formInfo is a parsed <form> with its resolved action and typed inputs.
type formInfo struct {
	Action string
	Method string
	Fields []surface.Field
}

// endpointInfo is an API call spotted inside script content.
type endpointInfo struct {
	URL    string
	Method string
	Source string
}

// extractPage tokenizes an HTML document and pulls out links, forms, and
// script-declared API endpoints. Broken markup never fails extraction;
// the tokenizer simply stops at the error point.
func extractPage(body string, base *url.URL) page {
	var p page

	z := html.NewTokenizer(strings.NewReader(body))
	var (
		inTitle  bool
		inScript bool
		form     *formInfo
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return p

		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.Data {
			case "title":
				inTitle = tt == html.StartTagToken

			case "script":
				if attrValue(t, "src") == "" && tt == html.StartTagToken {
					inScript = true
				}

			case "a", "area":
				if href := attrValue(t, "href"); href != "" {
					if resolved := resolveURL(href, base); resolved != "" {
						p.Links = append(p.Links, resolved)
					}
				}

			case "iframe", "frame":
				if src := attrValue(t, "src"); src != "" {
					if resolved := resolveURL(src, base); resolved != "" {
						p.Links = append(p.Links, resolved)
					}
				}

			case "form":
				if form != nil {
					p.Forms = append(p.Forms, *form)
				}
				form = parseFormTag(t, base)

			case "input":
				if form != nil {
					if f, ok := parseInputTag(t, form.Method); ok {
						form.Fields = append(form.Fields, f)
					}
				}

			case "textarea", "select":
				if form != nil {
					if name := attrValue(t, "name"); name != "" {
						form.Fields = append(form.Fields, surface.Field{
							Name:     name,
							Type:     surface.TypeText,
							Location: formLocation(form.Method),
							Required: hasAttr(t, "required"),
						})
					}
				}
			}

		case html.EndTagToken:
			t := z.Token()
			switch t.Data {
			case "title":
				inTitle = false
			case "script":
				inScript = false
			case "form":
				if form != nil {
					p.Forms = append(p.Forms, *form)
					form = nil
				}
			}

		case html.TextToken:
			switch {
			case inTitle:
				p.Title += strings.TrimSpace(z.Token().Data)
			case inScript:
				text := z.Token().Data
				if len(strings.TrimSpace(text)) >= 10 {
					p.Endpoints = append(p.Endpoints, extractScriptEndpoints(text, base)...)
				}
			}
		}
	}
}

func attrValue(t html.Token, key string) string {
	for _, a := range t.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(t html.Token, key string) bool {
	for _, a := range t.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func parseFormTag(t html.Token, base *url.URL) *formInfo {
	method := strings.ToUpper(attrValue(t, "method"))
	if method == "" {
		method = http.MethodGet
	}
	action := attrValue(t, "action")
	resolved := resolveURL(action, base)
	if resolved == "" && base != nil {
		// A form without an action posts back to the current page.
		resolved = base.String()
	}
	return &formInfo{Action: resolved, Method: method}
}

func parseInputTag(t html.Token, formMethod string) (surface.Field, bool) {
	name := attrValue(t, "name")
	if name == "" {
		return surface.Field{}, false
	}
	kind := strings.ToLower(attrValue(t, "type"))
	if kind == "submit" || kind == "button" || kind == "image" || kind == "reset" {
		return surface.Field{}, false
	}
	sample := attrValue(t, "value")
	return surface.Field{
		Name:     name,
		Type:     surface.InferType(kind, sample),
		Location: formLocation(formMethod),
		Sample:   sample,
		Required: hasAttr(t, "required"),
	}, true
}

func formLocation(method string) surface.Location {
	if strings.EqualFold(method, http.MethodGet) {
		return surface.InQuery
	}
	return surface.InBody
}

// scriptCallRE matches fetch/XHR wrapper calls with a literal URL.
var scriptCallRE = regexcache.MustGet(`(?i)(fetch|axios\.(?:get|post|put|patch|delete)|\$\.(?:get|post|ajax)|XMLHttpRequest)\s*\(\s*['"]([^'"]{2,200})['"]`)

// quotedAPIPathRE matches quoted absolute paths that look like API routes.
var quotedAPIPathRE = regexcache.MustGet(`['"](/(?:api|rest|graphql|v\d+)[A-Za-z0-9_/.-]{0,180})['"]`)

// extractScriptEndpoints mines inline script text for API calls. A URL
// already captured from a call site is not repeated as a bare path.
func extractScriptEndpoints(text string, base *url.URL) []endpointInfo {
	var out []endpointInfo
	seen := make(map[string]bool)

	for _, m := range scriptCallRE.FindAllStringSubmatch(text, -1) {
		call, target := strings.ToLower(m[1]), m[2]
		resolved := resolveURL(target, base)
		if resolved == "" || seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, endpointInfo{
			URL:    resolved,
			Method: methodForCall(call),
			Source: "script-call",
		})
	}

	for _, m := range quotedAPIPathRE.FindAllStringSubmatch(text, -1) {
		resolved := resolveURL(m[1], base)
		if resolved == "" || seen[resolved] {
			continue
		}
		seen[resolved] = true
		out = append(out, endpointInfo{URL: resolved, Method: http.MethodGet, Source: "script-path"})
	}
	return out
}

func methodForCall(call string) string {
	switch {
	case strings.Contains(call, ".post"):
		return http.MethodPost
	case strings.Contains(call, ".put"):
		return http.MethodPut
	case strings.Contains(call, ".patch"):
		return http.MethodPatch
	case strings.Contains(call, ".delete"):
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// resolveURL resolves href against base and drops anything that is not
// plain http(s).
func resolveURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	var abs *url.URL
	if base != nil {
		abs = base.ResolveReference(ref)
	} else {
		abs = ref
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

// headerLinks mines response headers that reveal application structure.
func headerLinks(h http.Header, base *url.URL) []string {
	var links []string
	for _, link := range h.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			part = strings.TrimSpace(part)
			start := strings.IndexByte(part, '<')
			if start < 0 {
				continue
			}
			end := strings.IndexByte(part[start:], '>')
			if end <= 0 {
				continue
			}
			if resolved := resolveURL(part[start+1:start+end], base); resolved != "" {
				links = append(links, resolved)
			}
		}
	}
	if loc := h.Get("Location"); loc != "" {
		if resolved := resolveURL(loc, base); resolved != "" {
			links = append(links, resolved)
		}
	}
	return links
}

// fieldsFromQuery turns a URL's query parameters into typed fields.
func fieldsFromQuery(u *url.URL) []surface.Field {
	query := u.Query()
	if len(query) == 0 {
		return nil
	}
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	// Stable field order regardless of map iteration.
	sort.Strings(names)

	fields := make([]surface.Field, 0, len(names))
	for _, name := range names {
		sample := query.Get(name)
		fields = append(fields, surface.Field{
			Name:     name,
			Type:     surface.InferType("", sample),
			Location: surface.InQuery,
			Sample:   sample,
		})
	}
	return fields
}
