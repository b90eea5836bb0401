// Package crawler discovers candidate content pages by breadth-first
// traversal of a site's same-origin link graph. Pages are rendered in a
// real browser so links injected by client-side code are visible.
package crawler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	robotstxt "github.com/temoto/robotstxt"

	"quarry/internal/browser"
	"quarry/internal/classify"
	"quarry/internal/scraper"
)

// defaultMaxPages caps traversal when the caller passes 0.
const defaultMaxPages = 500

// Options controls a discovery run.
type Options struct {
	// MaxPages caps both the number of fetched pages and the size of
	// the discovered set. 0 means the default cap.
	MaxPages int
	// ProgressEvery is the number of newly discovered URLs between
	// progress reports. 0 means 10.
	ProgressEvery int
	// RespectRobots filters discovered links through the site's
	// robots.txt when it can be fetched. Off by default.
	RespectRobots bool
	UserAgent     string
	Logger        *slog.Logger
}

// ProgressFunc receives the full discovered set whenever enough new
// URLs have accumulated. Errors from the reporter are logged, not fatal.
type ProgressFunc func(ctx context.Context, discovered []string) error

// Discover walks the same-origin link graph from baseURL and returns
// every URL that looks like a content page, in first-seen order. The
// base URL is always part of the result, even when its fetch fails.
//
// Individual page failures are logged and skipped. A browser-pool
// failure aborts the walk and is returned alongside whatever was
// discovered so far.
func Discover(ctx context.Context, fetcher scraper.PageScraper, baseURL string, opts Options, report ProgressFunc) ([]string, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	progressEvery := opts.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = 10
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return []string{baseURL}, err
	}
	if base.Scheme == "" {
		base.Scheme = "https"
	}
	base.Fragment = ""
	seed := base.String()

	var robots *robotstxt.Group
	if opts.RespectRobots {
		robots = fetchRobotsGroup(ctx, base, opts.UserAgent)
	}

	discovered := []string{seed}
	inDiscovered := map[string]struct{}{seed: {}}
	visited := make(map[string]struct{})
	queue := []string{seed}
	lastReported := len(discovered)

	for len(queue) > 0 && len(visited) < maxPages {
		if err := ctx.Err(); err != nil {
			return discovered, err
		}

		u := queue[0]
		queue = queue[1:]
		if _, ok := visited[u]; ok {
			continue
		}
		visited[u] = struct{}{}

		res, err := fetcher.Scrape(ctx, u, scraper.ModeDiscovery)
		if err != nil {
			if errors.Is(err, browser.ErrUnavailable) {
				return discovered, err
			}
			log.Warn("discovery fetch failed", "url", u, "error", err)
			continue
		}

		// A page that turns out not to be HTML yields no links.
		if !classify.IsLikelyContentURL(u, res.ContentType) {
			continue
		}

		for _, link := range res.Links {
			// The discovered set is bounded by the same cap as page
			// visits, so one hub page cannot blow past the limit.
			if len(discovered) >= maxPages {
				break
			}
			candidate, ok := sameOriginCandidate(base, link)
			if !ok {
				continue
			}
			if _, seen := inDiscovered[candidate]; seen {
				continue
			}
			if _, seen := visited[candidate]; seen {
				continue
			}
			if !classify.IsLikelyContentURL(candidate, "") {
				continue
			}
			if robots != nil && !robots.Test(candidate) {
				continue
			}
			inDiscovered[candidate] = struct{}{}
			discovered = append(discovered, candidate)
			queue = append(queue, candidate)
		}

		if len(discovered)-lastReported >= progressEvery && report != nil {
			if err := report(ctx, snapshot(discovered)); err != nil {
				log.Warn("discovery progress report failed", "error", err)
			}
			lastReported = len(discovered)
		}
	}

	if report != nil && len(discovered) != lastReported {
		if err := report(ctx, snapshot(discovered)); err != nil {
			log.Warn("discovery progress report failed", "error", err)
		}
	}

	return discovered, nil
}

// sameOriginCandidate normalizes link and accepts it only when its host
// matches the crawl origin exactly.
func sameOriginCandidate(base *url.URL, link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	if !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func snapshot(urls []string) []string {
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}

// fetchRobotsGroup fetches /robots.txt for the crawl origin. Any
// failure disables robots filtering rather than blocking discovery.
func fetchRobotsGroup(ctx context.Context, base *url.URL, userAgent string) *robotstxt.Group {
	robotsURL := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	if userAgent == "" {
		userAgent = "*"
	}
	return data.FindGroup(userAgent)
}
