package wordlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/lukisch/apiprober/internal/dedup"
	"github.com/lukisch/apiprober/internal/httpworker"
)

func writeWordlist(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write wordlist: %v", err)
	}
}

func TestLoadStripsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	writeWordlist(t, dir, "a.txt", []string{"/users", "", "# comment", "/posts"})

	got, err := Load(dir, "a.txt")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"/users", "/posts"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadAllDedupsPreservingOrder(t *testing.T) {
	dir := t.TempDir()
	writeWordlist(t, dir, "a.txt", []string{"/users", "/posts"})
	writeWordlist(t, dir, "b.txt", []string{"/posts", "/comments"})

	got, err := LoadAll(dir, []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	want := []string{"/users", "/posts", "/comments"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProbeFoundAndSkipsKnown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			w.WriteHeader(200)
		case "/missing":
			w.WriteHeader(404)
		case "/legacy":
			if r.Method == http.MethodHead {
				w.WriteHeader(405)
				return
			}
			w.WriteHeader(200)
		}
	}))
	defer srv.Close()

	w := httpworker.New(httpworker.Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "ua"})
	known := dedup.New()
	known.Add("/already-known")

	paths := []string{"/already-known", "/users", "/missing", "/legacy"}
	var found []string
	results := Probe(context.Background(), w, srv.URL, paths, nil, known, 0, func(r Result) {
		found = append(found, r.Path)
	})

	if len(results) != 2 {
		t.Fatalf("results = %v, want 2 (users, legacy)", results)
	}
	if !known.Has("/users") || !known.Has("/legacy") {
		t.Errorf("found paths should be added to known set")
	}
	if known.Has("/missing") {
		t.Errorf("404 path should not be marked known")
	}
}

func TestProbeRespectsMaxRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	w := httpworker.New(httpworker.Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "ua"})
	known := dedup.New()
	paths := []string{"/a", "/b", "/c"}

	results := Probe(context.Background(), w, srv.URL, paths, nil, known, 1, nil)
	if len(results) != 1 {
		t.Fatalf("expected probing to stop once max_requests is reached, got %v", results)
	}
}
