// Package wordlist implements the Wordlist Prober (component F): loading
// `#`-commented path lists and probing each one not already known.
package wordlist

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lukisch/apiprober/internal/dedup"
	"github.com/lukisch/apiprober/internal/httpworker"
	"github.com/lukisch/apiprober/internal/robots"
)

// Result is one path found to exist by the probe loop.
type Result struct {
	Path     string
	Response httpworker.Response
}

// Load reads one wordlist file, stripping blank lines and `#`-comments,
// matching load_wordlist.
func Load(dir, name string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("open wordlist %s: %w", name, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// LoadAll loads and merges multiple wordlist files, deduping while
// preserving first-seen order, matching load_all_wordlists. If names is
// empty, every *.txt file in dir is loaded.
func LoadAll(dir string, names []string) ([]string, error) {
	if len(names) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read wordlist dir: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
				names = append(names, e.Name())
			}
		}
	}

	seen := map[string]struct{}{}
	var merged []string
	for _, name := range names {
		lines, err := Load(dir, name)
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			merged = append(merged, l)
		}
	}
	return merged, nil
}

// Probe issues a HEAD (retrying with GET on a 405) for every path not
// already in known, skipping any robots disallows, up to maxRequests
// total worker requests. A path counts as found when the response status
// is nonzero and not 404. onFound is called for each discovery, matching
// probe_wordlist's callback.
func Probe(ctx context.Context, w *httpworker.Worker, baseURL string, paths []string, policy *robots.Policy, known *dedup.Set, maxRequests int, onFound func(Result)) []Result {
	var results []Result
	for _, path := range paths {
		if known.Has(path) {
			continue
		}
		if maxRequests > 0 && int(w.RequestCount()) >= maxRequests {
			break
		}
		if policy != nil && !policy.IsAllowed(path) {
			continue
		}

		resp := w.Head(ctx, baseURL+path)
		if resp.StatusCode == http.StatusMethodNotAllowed {
			resp = w.Get(ctx, baseURL+path)
		}
		if resp.StatusCode <= 0 || resp.StatusCode == http.StatusNotFound {
			continue
		}

		result := Result{Path: path, Response: resp}
		results = append(results, result)
		known.Add(path)
		if onFound != nil {
			onFound(result)
		}
	}
	return results
}
