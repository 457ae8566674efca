package linkfollow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lukisch/apiprober/internal/dedup"
	"github.com/lukisch/apiprober/internal/httpworker"
	"github.com/lukisch/apiprober/internal/store"
)

type fakeStore struct {
	endpoints []store.Endpoint
	responses map[uint64][]store.Response
}

func (f *fakeStore) ListEndpointsForService(serviceID uint64) ([]store.Endpoint, error) {
	return f.endpoints, nil
}

func (f *fakeStore) ListResponsesForEndpoint(endpointID uint64) ([]store.Response, error) {
	return f.responses[endpointID], nil
}

func TestRunDiscoversNewLinksAndStopsWhenDry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/2":
			w.WriteHeader(200)
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()

	fs := &fakeStore{
		endpoints: []store.Endpoint{{ID: 1, ServiceID: 1, Path: "/users/1"}},
		responses: map[uint64][]store.Response{
			1: {{EndpointID: 1, BodySample: `{"_links": {"next": "/users/2"}}`}},
		},
	}

	w := httpworker.New(httpworker.Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "ua"})
	known := dedup.New()
	known.Add("/users/1")

	var found []string
	results := Run(context.Background(), w, srv.URL, fs, 1, nil, known, 2, 0, func(r Result) {
		found = append(found, r.Path)
	})

	if len(results) != 1 || results[0].Path != "/users/2" {
		t.Fatalf("results = %v, want one result for /users/2", results)
	}
	if !known.Has("/users/2") {
		t.Errorf("expected /users/2 to be marked known")
	}
}

func TestRunStopsWhenNoNewLinks(t *testing.T) {
	fs := &fakeStore{
		endpoints: []store.Endpoint{{ID: 1, ServiceID: 1, Path: "/users/1"}},
		responses: map[uint64][]store.Response{
			1: {{EndpointID: 1, BodySample: `{}`}},
		},
	}
	w := httpworker.New(httpworker.Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "ua"})
	known := dedup.New()

	results := Run(context.Background(), w, "https://example.test", fs, 1, nil, known, 3, 0, nil)
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}
