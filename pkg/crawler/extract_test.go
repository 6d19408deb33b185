package crawler

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/fuzzhound/fuzzhound/pkg/surface"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestExtractLinksAndTitle(t *testing.T) {
	base := mustParse(t, "https://shop.example.com/catalog/")
	p := extractPage(`<html><head><title>Catalog</title></head><body>
		<a href="shoes">relative</a>
		<a href="/cart">rooted</a>
		<a href="https://shop.example.com/about">absolute</a>
		<a href="#top">fragment</a>
		<a href="javascript:void(0)">script</a>
		<a href="mailto:sales@example.com">mail</a>
		<iframe src="/embed/help"></iframe>
	</body></html>`, base)

	if p.Title != "Catalog" {
		t.Errorf("title = %q", p.Title)
	}
	want := map[string]bool{
		"https://shop.example.com/catalog/shoes": true,
		"https://shop.example.com/cart":          true,
		"https://shop.example.com/about":         true,
		"https://shop.example.com/embed/help":    true,
	}
	if len(p.Links) != len(want) {
		t.Fatalf("links = %v", p.Links)
	}
	for _, l := range p.Links {
		if !want[l] {
			t.Errorf("unexpected link %q", l)
		}
	}
}

func TestExtractFormWithTypedFields(t *testing.T) {
	base := mustParse(t, "https://shop.example.com/signup")
	p := extractPage(`<form method="POST" action="/users/create">
		<input type="text" name="username" required>
		<input type="email" name="email" value="a@b.example">
		<input type="number" name="age">
		<input type="checkbox" name="newsletter">
		<input type="hidden" name="csrf" value="tok">
		<input type="file" name="avatar">
		<input type="submit" value="Create">
		<textarea name="bio"></textarea>
		<select name="country"><option>NL</option></select>
	</form>`, base)

	if len(p.Forms) != 1 {
		t.Fatalf("forms = %d", len(p.Forms))
	}
	f := p.Forms[0]
	if f.Action != "https://shop.example.com/users/create" || f.Method != http.MethodPost {
		t.Errorf("form = %+v", f)
	}

	types := make(map[string]surface.FieldType)
	for _, fld := range f.Fields {
		types[fld.Name] = fld.Type
		if fld.Location != surface.InBody {
			t.Errorf("%s location = %v, want body", fld.Name, fld.Location)
		}
	}
	want := map[string]surface.FieldType{
		"username":   surface.TypeText,
		"email":      surface.TypeText,
		"age":        surface.TypeNumeric,
		"newsletter": surface.TypeBoolean,
		"csrf":       surface.TypeHidden,
		"avatar":     surface.TypeFile,
		"bio":        surface.TypeText,
		"country":    surface.TypeText,
	}
	if len(types) != len(want) {
		t.Fatalf("fields = %v (submit must be excluded)", types)
	}
	for name, typ := range want {
		if types[name] != typ {
			t.Errorf("%s type = %v, want %v", name, types[name], typ)
		}
	}
}

func TestExtractFormDefaults(t *testing.T) {
	base := mustParse(t, "https://shop.example.com/feedback")
	p := extractPage(`<form><input name="comment"></form>`, base)

	if len(p.Forms) != 1 {
		t.Fatalf("forms = %d", len(p.Forms))
	}
	f := p.Forms[0]
	if f.Method != http.MethodGet {
		t.Errorf("method = %q, want GET default", f.Method)
	}
	if f.Action != base.String() {
		t.Errorf("action = %q, want the page itself", f.Action)
	}
	if len(f.Fields) != 1 || f.Fields[0].Location != surface.InQuery {
		t.Errorf("fields = %+v, want one query field", f.Fields)
	}
}

func TestExtractScriptEndpoints(t *testing.T) {
	base := mustParse(t, "https://shop.example.com/")
	p := extractPage(`<script>
		fetch('/api/orders?status=open');
		axios.post('/api/orders');
		$.get("/api/stock");
		const reviewsURL = "/api/v2/reviews";
	</script>`, base)

	got := make(map[string]string)
	for _, ep := range p.Endpoints {
		got[ep.URL] = ep.Method
	}
	want := map[string]string{
		"https://shop.example.com/api/orders?status=open": http.MethodGet,
		"https://shop.example.com/api/orders":             http.MethodPost,
		"https://shop.example.com/api/stock":              http.MethodGet,
		"https://shop.example.com/api/v2/reviews":         http.MethodGet,
	}
	for url, method := range want {
		if got[url] != method {
			t.Errorf("endpoint %s method = %q, want %q", url, got[url], method)
		}
	}
}

func TestResolveURL(t *testing.T) {
	base := mustParse(t, "https://shop.example.com/a/b")
	tests := []struct {
		href string
		want string
	}{
		{"c", "https://shop.example.com/a/c"},
		{"/root", "https://shop.example.com/root"},
		{"//cdn.example.com/x", "https://cdn.example.com/x"},
		{"https://other.example.com/", "https://other.example.com/"},
		{"#section", ""},
		{"javascript:alert(1)", ""},
		{"mailto:x@y.example", ""},
		{"  /trimmed  ", "https://shop.example.com/trimmed"},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.href, base); got != tt.want {
			t.Errorf("resolveURL(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestHeaderLinks(t *testing.T) {
	base := mustParse(t, "https://shop.example.com/list")
	h := http.Header{
		"Link":     []string{`</list?page=2>; rel="next", </list?page=1>; rel="prev"`},
		"Location": []string{"/moved"},
	}
	links := headerLinks(h, base)

	want := map[string]bool{
		"https://shop.example.com/list?page=2": true,
		"https://shop.example.com/list?page=1": true,
		"https://shop.example.com/moved":       true,
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v", links)
	}
	for _, l := range links {
		if !want[l] {
			t.Errorf("unexpected header link %q", l)
		}
	}
}

func TestFieldsFromQuery(t *testing.T) {
	u := mustParse(t, "https://shop.example.com/item?zeta=last&id=42&flag=true")
	fields := fieldsFromQuery(u)

	if len(fields) != 3 {
		t.Fatalf("fields = %+v", fields)
	}
	// Stable alphabetical order keeps probe plans deterministic.
	if fields[0].Name != "flag" || fields[1].Name != "id" || fields[2].Name != "zeta" {
		t.Errorf("order = %s, %s, %s", fields[0].Name, fields[1].Name, fields[2].Name)
	}
	if fields[0].Type != surface.TypeBoolean {
		t.Errorf("flag type = %v", fields[0].Type)
	}
	if fields[1].Type != surface.TypeNumeric || fields[1].Sample != "42" {
		t.Errorf("id field = %+v", fields[1])
	}
	for _, f := range fields {
		if f.Location != surface.InQuery {
			t.Errorf("%s location = %v", f.Name, f.Location)
		}
	}
}
