// Package methodprobe implements the Method Prober (component H): testing
// each HTTP method against a known endpoint and inferring its supported
// method set, auth requirement, and content types.
package methodprobe

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/lukisch/apiprober/internal/httpworker"
)

// SafeMethods is the read-only method set used when skip_destructive is
// enabled.
var SafeMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}

// AllMethods is the full method set tested when skip_destructive is
// disabled.
var AllMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodOptions,
	http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// Result is the combined outcome of testing every method against one path.
type Result struct {
	Methods      []string
	StatusCodes  map[string]int
	AuthRequired bool
	AuthTypeHint string
	AllowHeader  string
	ContentTypes []string
}

// excludedStatus are status codes that mean "method not supported here,"
// so the method itself is not added to Supported even though a response
// was received, matching test_methods's exclusion set.
var excludedStatus = map[int]bool{404: true, 405: true, 501: true}

// Test issues every method in methods against baseURL+path and aggregates
// the result, matching test_methods.
func Test(ctx context.Context, w *httpworker.Worker, baseURL, path string, methods []string) Result {
	res := Result{StatusCodes: map[string]int{}}
	supported := map[string]struct{}{}
	contentTypes := map[string]struct{}{}

	for _, method := range methods {
		resp := w.Request(ctx, baseURL+path, method, nil, nil)
		if resp.StatusCode == 0 {
			continue
		}
		res.StatusCodes[method] = resp.StatusCode

		if method == http.MethodOptions {
			if allow := resp.Headers.Get("Allow"); allow != "" {
				res.AllowHeader = allow
				for _, m := range strings.Split(allow, ",") {
					supported[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
				}
			}
		}
		if !excludedStatus[resp.StatusCode] {
			supported[method] = struct{}{}
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			res.AuthRequired = true
			if hint := authHint(resp.Headers.Get("WWW-Authenticate")); hint != "" {
				res.AuthTypeHint = hint
			}
		}

		if ct := resp.ContentType; ct != "" {
			if idx := strings.IndexByte(ct, ';'); idx >= 0 {
				ct = ct[:idx]
			}
			contentTypes[strings.TrimSpace(ct)] = struct{}{}
		}
	}

	for m := range supported {
		res.Methods = append(res.Methods, m)
	}
	sort.Strings(res.Methods)
	for ct := range contentTypes {
		res.ContentTypes = append(res.ContentTypes, ct)
	}
	sort.Strings(res.ContentTypes)
	return res
}

// authHint derives a coarse auth-scheme hint from a WWW-Authenticate
// header: substring match on "bearer"/"basic"/"api", else the header's
// first whitespace-delimited token, matching test_methods's inference.
func authHint(header string) string {
	lower := strings.ToLower(header)
	switch {
	case strings.Contains(lower, "bearer"):
		return "bearer"
	case strings.Contains(lower, "basic"):
		return "basic"
	case strings.Contains(lower, "api"):
		return "api_key"
	}
	fields := strings.Fields(header)
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}
