// Package httpworker implements the rate-limited HTTP request issuer (the
// HTTP Worker, component A) that every discovery phase routes requests
// through.
package httpworker

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// Response is the uniform record returned for every request, successful or
// not. The worker never raises: transport failures surface as a zero
// StatusCode with Error populated.
type Response struct {
	URL         string
	Method      string
	StatusCode  int
	Headers     http.Header
	Body        string
	ContentType string
	ElapsedMS   int64
	Error       string
	IsJSON      bool
}

// OK reports whether the response represents a successful or redirected
// outcome (2xx/3xx), matching HttpResponse.ok in the original client.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// Auth holds the worker's outbound authentication settings.
type Auth struct {
	Type  string // none | bearer | api_key | basic
	Value string
}

// Worker is a single-threaded, cooperative HTTP request issuer. It is safe
// to mutate DelayMS concurrently (the Robots Policy escalates it before the
// first phase runs) but Request itself is meant to be called sequentially,
// matching the single-threaded design of §5.
type Worker struct {
	client    *http.Client
	userAgent string
	auth      Auth
	timeout   time.Duration

	mu         sync.Mutex
	delayMS    int64
	requestCtr int64

	// floorLimit is the actual rate-limiting mechanism: a token bucket of
	// burst 1 refilling once every delayMS, so Wait blocks exactly until
	// the minimum inter-request spacing has elapsed. Its limit is kept in
	// sync with delayMS by SetDelayMS.
	floorLimit *rate.Limiter
}

// Config configures a new Worker.
type Config struct {
	DelayMS        int
	TimeoutSeconds int
	UserAgent      string
	Auth           Auth
	// SkipTLSVerify allows probing services with self-signed certs, a
	// common target for this kind of passive discovery tool.
	SkipTLSVerify bool
}

// New creates a new HTTP Worker.
func New(cfg Config) *Worker {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify},
	}
	return &Worker{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:  cfg.UserAgent,
		auth:       cfg.Auth,
		timeout:    timeout,
		delayMS:    int64(cfg.DelayMS),
		floorLimit: rate.NewLimiter(delayToLimit(int64(cfg.DelayMS)), 1),
	}
}

// delayToLimit converts a minimum inter-request spacing in milliseconds into
// the token-bucket rate that enforces it: one token every ms, no limiting at
// all when ms <= 0.
func delayToLimit(ms int64) rate.Limit {
	if ms <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Duration(ms) * time.Millisecond)
}

// RequestCount returns the strictly increasing count of requests issued so
// far, incremented the moment each outbound call begins.
func (w *Worker) RequestCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requestCtr
}

// SetDelayMS updates the minimum inter-request spacing. Used by the Robots
// Policy to escalate the floor to the declared crawl-delay.
func (w *Worker) SetDelayMS(ms int) {
	w.mu.Lock()
	w.delayMS = int64(ms)
	w.mu.Unlock()
	w.floorLimit.SetLimit(delayToLimit(int64(ms)))
}

// DelayMS returns the current minimum inter-request spacing.
func (w *Worker) DelayMS() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(w.delayMS)
}

// Request issues one HTTP request, rate-limited to at least DelayMS since
// the start of the previous request. body may be nil, a map[string]any (JSON
// encoded), a string (UTF-8 encoded), or a []byte (passed through).
func (w *Worker) Request(ctx context.Context, rawURL, method string, body any, extraHeaders map[string]string) Response {
	w.rateLimit(ctx)

	headers := http.Header{}
	headers.Set("User-Agent", w.userAgent)
	headers.Set("Accept", "application/json, text/html, */*")

	switch w.auth.Type {
	case "bearer":
		if w.auth.Value != "" {
			headers.Set("Authorization", "Bearer "+w.auth.Value)
		}
	case "api_key":
		if w.auth.Value != "" {
			headers.Set("X-API-Key", w.auth.Value)
		}
	case "basic":
		if w.auth.Value != "" {
			encoded := base64.StdEncoding.EncodeToString([]byte(w.auth.Value))
			headers.Set("Authorization", "Basic "+encoded)
		}
	}

	for k, v := range extraHeaders {
		headers.Set(k, v)
	}

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case map[string]any:
		data, err := json.Marshal(b)
		if err != nil {
			return Response{URL: rawURL, Method: method, Error: err.Error()}
		}
		reader = bytes.NewReader(data)
		headers.Set("Content-Type", "application/json")
	case string:
		reader = strings.NewReader(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		return Response{URL: rawURL, Method: method, Error: fmt.Sprintf("unsupported body type %T", body)}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return Response{URL: rawURL, Method: method, Error: err.Error()}
	}
	req.Header = headers

	w.mu.Lock()
	w.requestCtr++
	w.mu.Unlock()

	start := time.Now()
	resp, err := w.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return Response{URL: rawURL, Method: method, ElapsedMS: elapsed, Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	contentType := resp.Header.Get("Content-Type")

	return Response{
		URL:         rawURL,
		Method:      method,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header,
		Body:        decodeBody(raw),
		ContentType: contentType,
		ElapsedMS:   elapsed,
		IsJSON:      strings.Contains(strings.ToLower(contentType), "json"),
	}
}

// decodeBody decodes raw bytes as UTF-8. If the bytes are not valid UTF-8,
// it falls back to latin-1: every byte becomes the rune of the same value,
// so decoding never fails and the result is always valid UTF-8 (§4.2/§7-3,
// invariant 4 of §3).
func decodeBody(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, c := range raw {
		b.WriteRune(rune(c))
	}
	return b.String()
}

// Get is a convenience wrapper for Request(ctx, url, "GET", nil, nil).
func (w *Worker) Get(ctx context.Context, url string) Response {
	return w.Request(ctx, url, http.MethodGet, nil, nil)
}

// Head is a convenience wrapper for Request(ctx, url, "HEAD", nil, nil).
func (w *Worker) Head(ctx context.Context, url string) Response {
	return w.Request(ctx, url, http.MethodHead, nil, nil)
}

// rateLimit blocks until at least DelayMS has elapsed since the start of
// the previous request, enforced by floorLimit's token bucket (burst 1,
// refilling once every DelayMS). The first request issues without delay,
// since the bucket starts full.
func (w *Worker) rateLimit(ctx context.Context) {
	_ = w.floorLimit.Wait(ctx)
}
