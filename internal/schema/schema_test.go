package schema

import "testing"

func TestExtractSchemaFromBodyEmpty(t *testing.T) {
	for _, body := range []string{"", "   ", "not json"} {
		if got := ExtractSchemaFromBody(body); len(got) != 0 {
			t.Errorf("body %q: got %v, want empty descriptor", body, got)
		}
	}
}

func TestExtractSchemaScalarTypes(t *testing.T) {
	cases := []struct {
		body string
		typ  string
	}{
		{`null`, "null"},
		{`true`, "boolean"},
		{`42`, "integer"},
		{`3.14`, "number"},
		{`10.0`, "number"},
		{`"hello"`, "string"},
	}
	for _, c := range cases {
		got := ExtractSchemaFromBody(c.body)
		if got["type"] != c.typ {
			t.Errorf("body %q: type = %v, want %q", c.body, got["type"], c.typ)
		}
	}
}

func TestExtractSchemaArray(t *testing.T) {
	got := ExtractSchemaFromBody(`[{"id": 1}, {"id": 2}]`)
	if got["type"] != "array" {
		t.Fatalf("type = %v", got["type"])
	}
	if got["length"] != 2 {
		t.Fatalf("length = %v", got["length"])
	}
	items, ok := got["items"].(Descriptor)
	if !ok {
		t.Fatalf("items not a Descriptor: %T", got["items"])
	}
	if items["type"] != "object" {
		t.Errorf("items.type = %v, want object", items["type"])
	}
}

func TestExtractSchemaObject(t *testing.T) {
	got := ExtractSchemaFromBody(`{"name": "x", "count": 5, "nested": {"a": true}}`)
	if got["type"] != "object" {
		t.Fatalf("type = %v", got["type"])
	}
	if got["field_count"] != 3 {
		t.Fatalf("field_count = %v", got["field_count"])
	}
	props := got["properties"].(Descriptor)
	if props["count"].(Descriptor)["type"] != "integer" {
		t.Errorf("count type = %v", props["count"].(Descriptor)["type"])
	}
}

func TestExtractLinksHATEOAS(t *testing.T) {
	data := map[string]any{
		"_links": map[string]any{
			"self": "/users/1",
			"next": "https://api.example.com/users/2",
		},
		"name": "irrelevant",
	}
	links := ExtractLinks(data, "https://api.example.com")
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2", links)
	}
}

func TestExtractLinksArrayCap(t *testing.T) {
	arr := make([]any, 60)
	for i := range arr {
		arr[i] = map[string]any{"href": "/item"}
	}
	links := ExtractLinks(arr, "https://api.example.com")
	if len(links) != 50 {
		t.Fatalf("links = %d, want 50 (fan-out cap)", len(links))
	}
}

func TestNormalizeLink(t *testing.T) {
	base := "https://api.example.com"
	cases := []struct{ in, want string }{
		{"https://api.example.com/users/1?x=1", "/users/1"},
		{"/users/1/", "/users/1"},
		{"/", "/"},
		{"", ""},
		{"users/1#frag", "/users/1"},
	}
	for _, c := range cases {
		if got := NormalizeLink(c.in, base); got != c.want {
			t.Errorf("NormalizeLink(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractParamsFromError(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"error": "missing field: username"}`, "username"},
		{`{"error": "'email' is required"}`, "email"},
		{`{"error": "field 'age' is missing"}`, "age"},
		{`{"error": "expected 'token'"}`, "token"},
	}
	for _, c := range cases {
		hints := ExtractParamsFromError(c.body)
		if len(hints) == 0 || hints[0].Name != c.want {
			t.Errorf("body %q: hints = %v, want name %q", c.body, hints, c.want)
		}
	}
}

func TestExtractHTMLLinks(t *testing.T) {
	html := `<html><body>
		<a href="/docs">Docs</a>
		<a href="https://api.example.com/swagger">Swagger</a>
		<a href="javascript:void(0)">skip</a>
		<a href="https://other.com/x">skip-external</a>
		<form action="/submit"></form>
	</body></html>`
	links := ExtractHTMLLinks(html, "https://api.example.com")
	want := map[string]bool{"/docs": false, "https://api.example.com/swagger": false, "/submit": false}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %d entries", links, len(want))
	}
	for _, l := range links {
		if _, ok := want[l]; !ok {
			t.Errorf("unexpected link %q", l)
		}
	}
}
