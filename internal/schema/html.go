package schema

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractHTMLLinks pulls candidate same-origin paths out of an HTML
// document: <a href>, <link href>, and <form action> targets. This is a
// SPEC_FULL addition the original JSON-only extractor has no equivalent
// for — HTML index/docs pages (Swagger UI, directory listings) often
// carry links worth following that never appear in a JSON body.
func ExtractHTMLLinks(body, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	add := func(href string) {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		if !isLinkString(href, baseURL) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		out = append(out, href)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})
	doc.Find("form[action]").Each(func(_ int, s *goquery.Selection) {
		if action, ok := s.Attr("action"); ok {
			add(action)
		}
	})
	return out
}
