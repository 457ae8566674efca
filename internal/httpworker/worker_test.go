package httpworker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequestBasicGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	w := New(Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "test-agent"})
	resp := w.Get(context.Background(), srv.URL)

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !resp.OK() {
		t.Fatalf("OK() = false, want true")
	}
	if !resp.IsJSON {
		t.Fatalf("IsJSON = false, want true")
	}
	if resp.Body != `{"ok":true}` {
		t.Fatalf("body = %q", resp.Body)
	}
	if w.RequestCount() != 1 {
		t.Fatalf("request count = %d, want 1", w.RequestCount())
	}
}

func TestAuthHeaders(t *testing.T) {
	tests := []struct {
		name      string
		auth      Auth
		wantKey   string
		wantValue string
	}{
		{"bearer", Auth{Type: "bearer", Value: "tok123"}, "Authorization", "Bearer tok123"},
		{"api_key", Auth{Type: "api_key", Value: "key123"}, "X-Api-Key", "key123"},
		{"basic", Auth{Type: "basic", Value: "user:pass"}, "Authorization", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Header.Get(tt.wantKey)
				w.WriteHeader(200)
			}))
			defer srv.Close()

			w := New(Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "ua", Auth: tt.auth})
			w.Get(context.Background(), srv.URL)
			if got != tt.wantValue {
				t.Errorf("header %s = %q, want %q", tt.wantKey, got, tt.wantValue)
			}
		})
	}
}

func TestRequestTransportError(t *testing.T) {
	w := New(Config{DelayMS: 0, TimeoutSeconds: 1, UserAgent: "ua"})
	resp := w.Get(context.Background(), "http://127.0.0.1:1")
	if resp.StatusCode != 0 {
		t.Fatalf("status = %d, want 0", resp.StatusCode)
	}
	if resp.Error == "" {
		t.Fatalf("expected error to be populated")
	}
}

func TestRateLimitEnforcesDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	w := New(Config{DelayMS: 100, TimeoutSeconds: 5, UserAgent: "ua"})
	start := time.Now()
	w.Get(context.Background(), srv.URL)
	w.Get(context.Background(), srv.URL)
	elapsed := time.Since(start)
	if elapsed < 100*time.Millisecond {
		t.Fatalf("elapsed = %v, want >= 100ms", elapsed)
	}
}

func TestSetDelayMS(t *testing.T) {
	w := New(Config{DelayMS: 500, TimeoutSeconds: 5, UserAgent: "ua"})
	w.SetDelayMS(2000)
	if w.DelayMS() != 2000 {
		t.Fatalf("DelayMS() = %d, want 2000", w.DelayMS())
	}
}

func TestJSONBodyEncoding(t *testing.T) {
	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(200)
	}))
	defer srv.Close()

	w := New(Config{DelayMS: 0, TimeoutSeconds: 5, UserAgent: "ua"})
	w.Request(context.Background(), srv.URL, http.MethodPost, map[string]any{"a": float64(1)}, nil)
	if gotContentType != "application/json" {
		t.Errorf("content-type = %q", gotContentType)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestDecodeBodyInvalidUTF8(t *testing.T) {
	raw := []byte{0xff, 0xfe, 'a', 'b'}
	out := decodeBody(raw)
	if len(out) == 0 {
		t.Fatalf("expected non-empty decoded body")
	}
}
