package store

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apiprober_test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertServiceInsertThenMerge(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.UpsertService(Service{Name: "example", BaseURL: "https://example.com", Description: "first"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	id2, err := s.UpsertService(Service{Name: "example", BaseURL: "https://example.com/v2", ServerHeader: "nginx"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}

	svc, err := s.GetServiceByName("example")
	if err != nil || svc == nil {
		t.Fatalf("lookup: %v, %v", svc, err)
	}
	if svc.BaseURL != "https://example.com/v2" {
		t.Errorf("base_url = %q, want overwritten value", svc.BaseURL)
	}
	if svc.Description != "first" {
		t.Errorf("description = %q, want preserved (non-overwrite-with-empty)", svc.Description)
	}
	if svc.ServerHeader != "nginx" {
		t.Errorf("server_header = %q, want nginx", svc.ServerHeader)
	}
}

func TestUpsertEndpointUnionsSets(t *testing.T) {
	s := newTestStore(t)
	svcID, _ := s.UpsertService(Service{Name: "svc", BaseURL: "https://svc.test"})

	id1, err := s.UpsertEndpoint(Endpoint{
		ServiceID: svcID, Path: "/users",
		Methods: []string{"GET"}, StatusCodes: []int{200},
		ContentTypes: []string{"application/json"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	id2, err := s.UpsertEndpoint(Endpoint{
		ServiceID: svcID, Path: "/users",
		Methods: []string{"POST"}, StatusCodes: []int{201},
		AuthRequired: true, AuthTypeHint: "bearer",
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d, %d", id1, id2)
	}

	ep, err := s.GetEndpoint(id1)
	if err != nil || ep == nil {
		t.Fatalf("lookup: %v, %v", ep, err)
	}
	if len(ep.Methods) != 2 {
		t.Errorf("methods = %v, want union of GET+POST", ep.Methods)
	}
	if len(ep.StatusCodes) != 2 {
		t.Errorf("status codes = %v, want union of 200+201", ep.StatusCodes)
	}
	if !ep.AuthRequired {
		t.Errorf("auth_required should OR-latch to true")
	}
	if ep.AuthTypeHint != "bearer" {
		t.Errorf("auth_type_hint = %q, want bearer", ep.AuthTypeHint)
	}
}

func TestUpsertParameterMerge(t *testing.T) {
	s := newTestStore(t)
	svcID, _ := s.UpsertService(Service{Name: "svc", BaseURL: "https://svc.test"})
	epID, _ := s.UpsertEndpoint(Endpoint{ServiceID: svcID, Path: "/users"})

	s.UpsertParameter(Parameter{EndpointID: epID, Name: "id", Location: "query", Required: false, ParamType: "string"})
	s.UpsertParameter(Parameter{EndpointID: epID, Name: "id", Location: "query", Required: true, ExampleValue: "42"})

	params, err := s.ListParametersForEndpoint(epID)
	if err != nil || len(params) != 1 {
		t.Fatalf("params = %v, err = %v", params, err)
	}
	if !params[0].Required {
		t.Errorf("required should OR-latch to true")
	}
	if params[0].ExampleValue != "42" {
		t.Errorf("example_value = %q, want 42", params[0].ExampleValue)
	}
}

func TestAddResponseAppendsAndTruncates(t *testing.T) {
	s := newTestStore(t)
	svcID, _ := s.UpsertService(Service{Name: "svc", BaseURL: "https://svc.test"})
	epID, _ := s.UpsertEndpoint(Endpoint{ServiceID: svcID, Path: "/users"})

	longBody := strings.Repeat("x", 3000)
	id1, err := s.AddResponse(Response{EndpointID: epID, Method: "GET", StatusCode: 200, BodySample: longBody})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	id2, _ := s.AddResponse(Response{EndpointID: epID, Method: "GET", StatusCode: 200, BodySample: "short"})
	if id1 == id2 {
		t.Fatalf("expected distinct response rows, got same id")
	}

	responses, err := s.ListResponsesForEndpoint(epID)
	if err != nil || len(responses) != 2 {
		t.Fatalf("responses = %v, err = %v", responses, err)
	}
	if len(responses[0].BodySample) > bodySampleLimit {
		t.Errorf("body sample length = %d, want <= %d", len(responses[0].BodySample), bodySampleLimit)
	}
}

func TestProbeRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	svcID, _ := s.UpsertService(Service{Name: "svc", BaseURL: "https://svc.test"})

	runID, err := s.CreateProbeRun(ProbeRun{ServiceID: svcID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateProbeRun(runID, RunCompleted, 42, 7, map[string]any{"phase": "done"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	last, err := s.GetLastProbeRun(svcID)
	if err != nil || last == nil {
		t.Fatalf("last run: %v, %v", last, err)
	}
	if last.Status != RunCompleted {
		t.Errorf("status = %q, want completed", last.Status)
	}
	if last.FinishedAt == nil {
		t.Errorf("finished_at should be set for a terminal status")
	}
	if last.ExternalID == "" {
		t.Errorf("expected a stable external id to be stamped")
	}
}

func TestTruncateUTF8PreservesValidity(t *testing.T) {
	s := "héllo wörld" // contains multi-byte runes
	for n := 0; n <= len(s)+2; n++ {
		got := truncateUTF8(s, n)
		if len(got) > n {
			t.Fatalf("truncateUTF8(%q, %d) = %q, longer than limit", s, n, got)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncateUTF8(%q, %d) = %q, not valid UTF-8", s, n, got)
		}
	}
}
