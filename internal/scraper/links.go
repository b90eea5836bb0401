package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// scriptURLRe pulls quoted absolute and root-relative URLs out of
// inline script text, catching SPA route tables that never render as
// anchors.
var scriptURLRe = regexp.MustCompile(`["']((?:https?://|/)[^"'\s]+)["']`)

// MineLinks returns the absolute http(s) links found in html, resolved
// against base, fragments stripped, deduplicated in first-seen order.
// Anchors are mined first, then quoted URLs inside script text.
func MineLinks(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		link, ok := resolveLink(base, raw)
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	}

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("href", ""))
	})

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		for _, m := range scriptURLRe.FindAllStringSubmatch(sel.Text(), -1) {
			add(m[1])
		}
	})

	return links
}

// resolveLink normalizes one candidate href: relative references are
// resolved against base, fragments dropped, non-http(s) schemes
// rejected.
func resolveLink(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
