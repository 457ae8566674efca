// Package linkfollow implements the Link Follower (component I):
// re-reading stored responses for HATEOAS/HTML links, normalizing them,
// and probing any not already known, for up to maxDepth rounds.
package linkfollow

import (
	"context"
	"net/http"

	"github.com/lukisch/apiprober/internal/dedup"
	"github.com/lukisch/apiprober/internal/httpworker"
	"github.com/lukisch/apiprober/internal/robots"
	"github.com/lukisch/apiprober/internal/schema"
	"github.com/lukisch/apiprober/internal/store"
)

// Result is one new path discovered via link-following.
type Result struct {
	Path     string
	Response httpworker.Response
}

// Store is the subset of *store.Store the Link Follower reads from.
type Store interface {
	ListEndpointsForService(serviceID uint64) ([]store.Endpoint, error)
	ListResponsesForEndpoint(endpointID uint64) ([]store.Response, error)
}

// Run performs up to maxDepth rounds of link discovery, matching
// discover_from_responses. Each round re-reads every stored response body
// for the service, extracts candidate links (JSON HATEOAS links plus, as a
// SPEC_FULL addition, HTML anchors/forms), normalizes and filters against
// known, and probes the rest. Two independent conditions stop the loop
// early: no new links were found, or a round's probes found nothing.
func Run(ctx context.Context, w *httpworker.Worker, baseURL string, st Store, serviceID uint64, policy *robots.Policy, known *dedup.Set, maxDepth int, maxRequests int, onFound func(Result)) []Result {
	var all []Result

	for round := 0; round < maxDepth; round++ {
		if maxRequests > 0 && int(w.RequestCount()) >= maxRequests {
			break
		}

		newLinks := collectNewLinks(st, serviceID, baseURL, known)
		if len(newLinks) == 0 {
			break
		}

		var roundResults []Result
		for _, link := range newLinks {
			if maxRequests > 0 && int(w.RequestCount()) >= maxRequests {
				break
			}
			if policy != nil && !policy.IsAllowed(link) {
				continue
			}
			resp := w.Get(ctx, baseURL+link)
			if resp.StatusCode <= 0 || resp.StatusCode == http.StatusNotFound {
				continue
			}
			result := Result{Path: link, Response: resp}
			roundResults = append(roundResults, result)
			known.Add(link)
			if onFound != nil {
				onFound(result)
			}
		}

		all = append(all, roundResults...)
		if len(roundResults) == 0 {
			break
		}
	}
	return all
}

// collectNewLinks re-reads every response body stored for the service,
// extracts JSON and HTML links, normalizes them, and returns those not
// already in known.
func collectNewLinks(st Store, serviceID uint64, baseURL string, known *dedup.Set) []string {
	endpoints, err := st.ListEndpointsForService(serviceID)
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{}
	var out []string
	add := func(raw string) {
		norm := schema.NormalizeLink(raw, baseURL)
		if norm == "" || known.Has(norm) {
			return
		}
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}

	for _, ep := range endpoints {
		responses, err := st.ListResponsesForEndpoint(ep.ID)
		if err != nil {
			continue
		}
		for _, resp := range responses {
			if resp.BodySample == "" {
				continue
			}
			for _, link := range schema.ExtractLinksFromBody(resp.BodySample, baseURL) {
				add(link)
			}
			for _, link := range schema.ExtractHTMLLinks(resp.BodySample, baseURL) {
				add(link)
			}
		}
	}
	return out
}
