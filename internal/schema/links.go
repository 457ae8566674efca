package schema

import (
	"encoding/json"
	"strings"
)

// hateoasKeys mirrors the key set checked by _walk_for_links when deciding
// whether a dict entry is itself a link.
var hateoasKeys = map[string]struct{}{
	"href": {}, "url": {}, "link": {}, "self": {}, "next": {},
	"prev": {}, "first": {}, "last": {}, "related": {},
}

// jsonFanOutLimit bounds how many elements of an array are walked for
// links, matching data[:50] in the original extractor.
const jsonFanOutLimit = 50

// ExtractLinks walks a decoded JSON value looking for link-shaped strings:
// absolute URLs under baseURL, or root-relative paths. It mirrors
// extract_links_from_json/_walk_for_links, including the HATEOAS link keys,
// the "_links" container and the 50-element array fan-out cap. Each
// occurrence of a link string is reported once; repeated occurrences are
// not de-duplicated.
func ExtractLinks(v any, baseURL string) []string {
	var out []string
	walkForLinks(v, baseURL, &out)
	return out
}

func walkForLinks(v any, baseURL string, out *[]string) {
	switch val := v.(type) {
	case string:
		if isLinkString(val, baseURL) {
			*out = append(*out, val)
		}
	case map[string]any:
		// Every value is visited exactly once, so a link string is
		// reported once per occurrence. The "_links" container is walked
		// like any other value.
		for key, child := range val {
			if _, isLinkKey := hateoasKeys[key]; isLinkKey {
				if s, ok := child.(string); ok {
					if isLinkString(s, baseURL) {
						*out = append(*out, s)
					}
					continue
				}
			}
			walkForLinks(child, baseURL, out)
		}
	case []any:
		limit := len(val)
		if limit > jsonFanOutLimit {
			limit = jsonFanOutLimit
		}
		for _, child := range val[:limit] {
			walkForLinks(child, baseURL, out)
		}
	}
}

func isLinkString(s, baseURL string) bool {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return strings.HasPrefix(s, baseURL)
	}
	if strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//") {
		return true
	}
	return false
}

// ExtractLinksFromBody parses body as JSON and extracts links from it,
// returning nil (not an error) if the body is not valid JSON.
func ExtractLinksFromBody(body, baseURL string) []string {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil
	}
	return ExtractLinks(v, baseURL)
}

// NormalizeLink reduces a discovered link to a bare, comparable path:
// strip the base URL prefix, force a leading slash, drop query/fragment,
// and drop any trailing slash (except the root). Returns "" if nothing
// usable remains, matching _normalize_link's None return.
func NormalizeLink(link, baseURL string) string {
	link = strings.TrimPrefix(link, baseURL)
	if link == "" {
		return ""
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	if idx := strings.IndexByte(link, '?'); idx >= 0 {
		link = link[:idx]
	}
	if idx := strings.IndexByte(link, '#'); idx >= 0 {
		link = link[:idx]
	}
	if link != "/" {
		link = strings.TrimSuffix(link, "/")
	}
	if link == "" {
		return ""
	}
	return link
}
