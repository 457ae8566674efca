// Package robots implements the Robots Policy (component B): fetching and
// interpreting a target's robots.txt, failing open on any error.
package robots

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/lukisch/apiprober/internal/httpworker"
)

// rule is a single Allow/Disallow directive compiled to a matcher.
type rule struct {
	allow   bool
	pattern *regexp.Regexp
	// specificity is the length of the original (uncompiled) directive
	// path, used to break ties between overlapping rules the way real
	// robots parsers do: the longest matching pattern wins.
	specificity int
}

// group holds the rules declared under one or more User-agent lines.
type group struct {
	agents []string
	rules  []rule
	delay  *int // crawl-delay in seconds, if declared
}

// Policy holds the parsed robots.txt for one service and answers
// allow/deny and crawl-delay queries against it.
type Policy struct {
	userAgent string
	loaded    bool
	raw       string
	groups    []group
}

// New returns an unloaded Policy for the given user agent. Call Load before
// IsAllowed/CrawlDelay; neither of them fetches robots.txt, and on an
// unloaded Policy they report everything allowed and no crawl delay.
func New(userAgent string) *Policy {
	return &Policy{userAgent: userAgent}
}

// Load fetches {baseURL}/robots.txt and parses it. It returns (true, raw
// text) on success. On ANY failure — network error, non-2xx status, empty
// body — it installs an "allow everything" rule set and returns (false,
// ""), matching RobotsChecker.load()'s fail-open contract.
func (p *Policy) Load(ctx context.Context, w *httpworker.Worker, baseURL string) (bool, string) {
	url := strings.TrimRight(baseURL, "/") + "/robots.txt"
	resp := w.Get(ctx, url)
	if resp.Error != "" || !resp.OK() || strings.TrimSpace(resp.Body) == "" {
		p.allowAll()
		return false, ""
	}
	p.parse(resp.Body)
	p.raw = resp.Body
	p.loaded = true
	return true, resp.Body
}

func (p *Policy) allowAll() {
	p.groups = nil
	p.loaded = true
	p.raw = ""
}

// IsAllowed reports whether path may be fetched under the loaded policy.
// If the policy has not been loaded yet, it behaves as if fetching
// robots.txt had failed (allow everything), matching the original's
// lazy-load-on-first-check behavior in practice (the orchestrator always
// loads before probing, so this only matters for direct unit use).
func (p *Policy) IsAllowed(path string) bool {
	if !p.loaded || len(p.groups) == 0 {
		return true
	}
	g := p.matchingGroup()
	if g == nil {
		return true
	}
	var best *rule
	for i := range g.rules {
		r := &g.rules[i]
		if r.pattern.MatchString(path) {
			// Longest match wins; on a tie, Allow beats Disallow.
			if best == nil || r.specificity > best.specificity ||
				(r.specificity == best.specificity && r.allow && !best.allow) {
				best = r
			}
		}
	}
	if best == nil {
		return true
	}
	return best.allow
}

// CrawlDelay returns the declared crawl-delay in seconds for the matching
// user-agent group, or (0, false) if none was declared.
func (p *Policy) CrawlDelay() (int, bool) {
	g := p.matchingGroup()
	if g == nil || g.delay == nil {
		return 0, false
	}
	return *g.delay, true
}

// matchingGroup finds the most specific group applying to p.userAgent:
// an exact (case-insensitive) agent-name match wins over the "*" wildcard
// group, matching standard robots.txt precedence.
func (p *Policy) matchingGroup() *group {
	var wildcard *group
	ua := strings.ToLower(p.userAgent)
	for i := range p.groups {
		g := &p.groups[i]
		for _, a := range g.agents {
			if a == "*" {
				if wildcard == nil {
					wildcard = g
				}
				continue
			}
			if strings.Contains(ua, strings.ToLower(a)) {
				return g
			}
		}
	}
	return wildcard
}

// parse implements a hand-rolled robots.txt directive parser: group
// boundaries are runs of consecutive User-agent lines followed by their
// Allow/Disallow/Crawl-delay directives, per RFC 9309's de-facto grammar.
func (p *Policy) parse(body string) {
	p.groups = nil
	scanner := bufio.NewScanner(strings.NewReader(body))

	var current *group
	newGroupPending := true

	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		directive := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])

		switch directive {
		case "user-agent":
			if current == nil || !newGroupPending {
				p.groups = append(p.groups, group{})
				current = &p.groups[len(p.groups)-1]
				newGroupPending = true
			}
			current.agents = append(current.agents, value)
		case "allow", "disallow":
			if current == nil {
				continue
			}
			newGroupPending = false
			if value == "" && directive == "disallow" {
				continue // "Disallow:" with empty value means allow all
			}
			current.rules = append(current.rules, rule{
				allow:       directive == "allow",
				pattern:     compilePattern(value),
				specificity: len(value),
			})
		case "crawl-delay":
			if current == nil {
				continue
			}
			newGroupPending = false
			if secs, err := strconv.Atoi(value); err == nil {
				current.delay = &secs
			}
		default:
			// Sitemap and any other directive: ignored, terminates the
			// current group's directive run the same as Allow/Disallow.
			newGroupPending = false
		}
	}
}

// compilePattern translates a robots.txt path pattern (supporting `*`
// wildcards and a trailing `$` anchor) into an anchored-at-start regexp.
func compilePattern(p string) *regexp.Regexp {
	var b strings.Builder
	b.WriteByte('^')
	anchored := strings.HasSuffix(p, "$")
	if anchored {
		p = p[:len(p)-1]
	}
	for _, part := range strings.Split(p, "*") {
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	pattern := strings.TrimSuffix(b.String(), ".*")
	if anchored {
		pattern += "$"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// An unparsable pattern should never block a fetch; fall back
		// to one that matches nothing.
		return regexp.MustCompile(`^\x00unmatched\x00$`)
	}
	return re
}
