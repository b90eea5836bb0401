// Package scraper renders pages in a real browser and returns their
// HTML, a markdown rendition, and the outbound links found on the page.
package scraper

import "context"

// Mode selects the rendering profile for a scrape.
type Mode string

const (
	// ModeDiscovery uses the shorter navigation timeout and triggers
	// lazy-loading (scroll, load-more clicks) so link mining sees as
	// much of the page as possible.
	ModeDiscovery Mode = "discovery"
	// ModeIngest uses the longer navigation timeout and skips the
	// lazy-loading interactions.
	ModeIngest Mode = "ingest"
)

// Result is the rendered output of a single page.
type Result struct {
	// URL is the requested URL, not the post-redirect one.
	URL string
	// ContentType is the document content type as the browser reports
	// it, for example "text/html".
	ContentType string
	Title       string
	HTML        string
	// Markdown is a best-effort markdown rendition of the HTML. Empty
	// when conversion fails.
	Markdown string
	// Links are absolute http(s) URLs found in anchors and script text,
	// fragments stripped, in first-seen order.
	Links []string
}

// PageScraper renders a URL. Implementations must be safe for
// concurrent use.
type PageScraper interface {
	Scrape(ctx context.Context, rawURL string, mode Mode) (*Result, error)
}
