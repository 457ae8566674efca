package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lukisch/apiprober/internal/httpworker"
)

func newWorker() *httpworker.Worker {
	return httpworker.New(httpworker.Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "apiprober"})
}

func TestLoadAllowsAllOnMissingRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := New("apiprober")
	ok, raw := p.Load(context.Background(), newWorker(), srv.URL)
	if ok {
		t.Fatalf("ok = true, want false")
	}
	if raw != "" {
		t.Fatalf("raw = %q, want empty", raw)
	}
	if !p.IsAllowed("/anything") {
		t.Fatalf("expected allow-all on missing robots.txt")
	}
}

func TestParseDisallowAllowPrecedence(t *testing.T) {
	body := `
User-agent: *
Disallow: /private
Allow: /private/public
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := New("apiprober")
	ok, _ := p.Load(context.Background(), newWorker(), srv.URL)
	if !ok {
		t.Fatalf("expected successful load")
	}
	if p.IsAllowed("/private/secret") {
		t.Errorf("/private/secret should be disallowed")
	}
	if !p.IsAllowed("/private/public") {
		t.Errorf("/private/public should be allowed (more specific rule)")
	}
	if !p.IsAllowed("/open") {
		t.Errorf("/open should be allowed")
	}
}

func TestParseWildcardAndAnchor(t *testing.T) {
	body := `
User-agent: *
Disallow: /api/*/internal$
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := New("apiprober")
	p.Load(context.Background(), newWorker(), srv.URL)

	if p.IsAllowed("/api/v1/internal") == true {
		t.Errorf("/api/v1/internal should be disallowed")
	}
	if !p.IsAllowed("/api/v1/internal/extra") {
		t.Errorf("/api/v1/internal/extra should be allowed ($ anchors)")
	}
}

func TestCrawlDelay(t *testing.T) {
	body := `
User-agent: *
Crawl-delay: 10
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := New("apiprober")
	p.Load(context.Background(), newWorker(), srv.URL)

	delay, ok := p.CrawlDelay()
	if !ok || delay != 10 {
		t.Fatalf("crawl delay = %d, %v; want 10, true", delay, ok)
	}
}

func TestPerAgentGroupSelection(t *testing.T) {
	body := `
User-agent: apiprober
Disallow: /only-for-apiprober

User-agent: *
Disallow: /everyone
`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	p := New("apiprober/0.1")
	p.Load(context.Background(), newWorker(), srv.URL)

	if p.IsAllowed("/only-for-apiprober") {
		t.Errorf("expected apiprober-specific rule to apply")
	}
	if !p.IsAllowed("/everyone") {
		t.Errorf("wildcard group should not apply once a specific group matches")
	}
}
