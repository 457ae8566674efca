// Package specscan implements the Spec Scanner (component E): probing a
// fixed list of conventional OpenAPI/Swagger document locations and, on a
// hit, extracting endpoints and parameters from the document.
package specscan

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/lukisch/apiprober/internal/httpworker"
	"github.com/lukisch/apiprober/internal/robots"
)

// SwaggerPaths is probed in order; the first path that yields a parseable
// spec document wins. Order matches discovery/openapi_detect.py exactly.
var SwaggerPaths = []string{
	"/swagger.json", "/openapi.json", "/api-docs", "/api-docs.json",
	"/swagger.yaml", "/openapi.yaml", "/docs", "/swagger", "/swagger-ui",
	"/api/swagger.json", "/api/openapi.json", "/v1/swagger.json",
	"/v2/swagger.json", "/.well-known/openapi",
}

// Spec is the decoded document found at the winning path, along with
// where it was found.
type Spec struct {
	URL      string
	Document map[string]any
}

// Endpoint is one path extracted from a spec document.
type Endpoint struct {
	Path        string
	Methods     []string
	Description string
	Parameters  []Parameter
}

// Parameter is one parameter extracted from a spec document operation.
type Parameter struct {
	Name     string
	Location string
	Required bool
	Type     string
}

// Detect probes SwaggerPaths in order, skipping any the robots policy
// disallows, and returns the first document whose top level contains one
// of "paths", "swagger", or "openapi". Returns nil if none match.
func Detect(ctx context.Context, w *httpworker.Worker, baseURL string, policy *robots.Policy) *Spec {
	for _, path := range SwaggerPaths {
		if policy != nil && !policy.IsAllowed(path) {
			continue
		}
		resp := w.Get(ctx, baseURL+path)
		if resp.Error != "" || !resp.OK() || resp.Body == "" {
			continue
		}
		doc, ok := tryParseSpec(resp.Body)
		if !ok {
			continue
		}
		return &Spec{URL: baseURL + path, Document: doc}
	}
	return nil
}

func tryParseSpec(body string) (map[string]any, bool) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, false
	}
	for _, key := range []string{"paths", "swagger", "openapi"} {
		if _, ok := doc[key]; ok {
			return doc, true
		}
	}
	return nil, false
}

var knownMethods = []string{"get", "head", "post", "put", "patch", "delete", "options"}

// ExtractEndpoints walks spec["paths"], collecting every path item that
// declares at least one HTTP method. basePath (from spec["basePath"]) is
// prefixed onto every path when present. Matches
// extract_endpoints_from_spec field-for-field.
func ExtractEndpoints(doc map[string]any) []Endpoint {
	pathsVal, ok := doc["paths"].(map[string]any)
	if !ok {
		return nil
	}
	basePath, _ := doc["basePath"].(string)

	var endpoints []Endpoint
	// Deterministic order for reproducible scans/tests.
	keys := make([]string, 0, len(pathsVal))
	for k := range pathsVal {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, path := range keys {
		itemVal := pathsVal[path]
		item, ok := itemVal.(map[string]any)
		if !ok {
			continue
		}
		fullPath := path
		if basePath != "" {
			fullPath = basePath + path
		}

		var methods []string
		var description string
		var params []Parameter

		for _, m := range knownMethods {
			opVal, ok := item[m]
			if !ok {
				continue
			}
			methods = append(methods, strings.ToUpper(m))
			op, _ := opVal.(map[string]any)
			if op == nil {
				continue
			}
			if description == "" {
				if s, ok := op["summary"].(string); ok && s != "" {
					description = s
				} else if s, ok := op["description"].(string); ok && s != "" {
					description = s
				}
			}
			params = append(params, extractParams(op)...)
		}
		// Per-path-item (shared-across-methods) parameters, applied to
		// every method of that path.
		params = append(params, extractParams(item)...)

		if len(methods) == 0 {
			continue
		}
		endpoints = append(endpoints, Endpoint{
			Path:        fullPath,
			Methods:     methods,
			Description: description,
			Parameters:  dedupeParams(params),
		})
	}
	return endpoints
}

func extractParams(obj map[string]any) []Parameter {
	raw, ok := obj["parameters"].([]any)
	if !ok {
		return nil
	}
	var out []Parameter
	for _, pv := range raw {
		p, ok := pv.(map[string]any)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		if name == "" {
			continue
		}
		location, _ := p["in"].(string)
		if location == "" {
			location = "query"
		}
		required, _ := p["required"].(bool)
		typ, _ := p["type"].(string)
		if typ == "" {
			if schema, ok := p["schema"].(map[string]any); ok {
				typ, _ = schema["type"].(string)
			}
		}
		if typ == "" {
			typ = "string"
		}
		out = append(out, Parameter{Name: name, Location: location, Required: required, Type: typ})
	}
	return out
}

// dedupeParams keeps the first occurrence of each (name, location) pair.
func dedupeParams(params []Parameter) []Parameter {
	seen := map[string]struct{}{}
	var out []Parameter
	for _, p := range params {
		key := p.Name + "\x00" + p.Location
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Metadata extracts the service-level metadata fields folded into a
// Service's Metadata map when a spec is found: api_title, api_version,
// api_description, and openapi_spec_url.
func Metadata(spec *Spec) map[string]any {
	meta := map[string]any{"openapi_spec_url": spec.URL}
	if info, ok := spec.Document["info"].(map[string]any); ok {
		if v, ok := info["title"].(string); ok && v != "" {
			meta["api_title"] = v
		}
		if v, ok := info["version"].(string); ok && v != "" {
			meta["api_version"] = v
		}
		if v, ok := info["description"].(string); ok && v != "" {
			meta["api_description"] = v
		}
	}
	return meta
}
