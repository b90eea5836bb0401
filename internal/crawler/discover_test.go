package crawler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"quarry/internal/browser"
	"quarry/internal/scraper"
)

// fakeFetcher serves canned pages keyed by URL. Unknown URLs fail like
// a navigation error would.
type fakeFetcher struct {
	pages   map[string]*scraper.Result
	err     map[string]error
	fetched []string
}

func (f *fakeFetcher) Scrape(ctx context.Context, rawURL string, mode scraper.Mode) (*scraper.Result, error) {
	f.fetched = append(f.fetched, rawURL)
	if err, ok := f.err[rawURL]; ok {
		return nil, err
	}
	if res, ok := f.pages[rawURL]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("navigate %s: connection refused", rawURL)
}

func page(url string, links ...string) *scraper.Result {
	return &scraper.Result{URL: url, ContentType: "text/html", Links: links}
}

func TestDiscoverWalksSameOriginGraph(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*scraper.Result{
		"https://site.test/": page("https://site.test/",
			"https://site.test/blog/a",
			"https://site.test/style.css",
			"https://other.test/external",
		),
		"https://site.test/blog/a": page("https://site.test/blog/a",
			"https://site.test/blog/b",
			"https://site.test/wp-admin/settings",
		),
		"https://site.test/blog/b": page("https://site.test/blog/b",
			"https://site.test/blog/a", // cycle
		),
	}}

	got, err := Discover(context.Background(), f, "https://site.test/", Options{}, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	want := []string{"https://site.test/", "https://site.test/blog/a", "https://site.test/blog/b"}
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("discovered = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("discovered = %v, want %v", got, want)
		}
	}
}

func TestDiscoverBaseURLSurvivesFetchFailure(t *testing.T) {
	f := &fakeFetcher{} // every fetch fails

	got, err := Discover(context.Background(), f, "https://site.test/", Options{}, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 || got[0] != "https://site.test/" {
		t.Fatalf("discovered = %v, want just the base url", got)
	}
}

func TestDiscoverPropagatesBrowserFailure(t *testing.T) {
	f := &fakeFetcher{err: map[string]error{
		"https://site.test/": fmt.Errorf("page: %w", browser.ErrUnavailable),
	}}

	got, err := Discover(context.Background(), f, "https://site.test/", Options{}, nil)
	if !errors.Is(err, browser.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(got) != 1 || got[0] != "https://site.test/" {
		t.Fatalf("discovered = %v, want just the base url", got)
	}
}

func TestDiscoverSkipsNonHTMLPages(t *testing.T) {
	f := &fakeFetcher{pages: map[string]*scraper.Result{
		"https://site.test/": {
			URL:         "https://site.test/",
			ContentType: "application/pdf",
			Links:       []string{"https://site.test/blog/a"},
		},
	}}

	got, err := Discover(context.Background(), f, "https://site.test/", Options{}, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("discovered = %v, want no links mined from a pdf", got)
	}
}

func TestDiscoverHonorsMaxPages(t *testing.T) {
	pages := make(map[string]*scraper.Result)
	var links []string
	for i := 0; i < 50; i++ {
		links = append(links, fmt.Sprintf("https://site.test/p/%d", i))
	}
	pages["https://site.test/"] = page("https://site.test/", links...)
	for _, l := range links {
		pages[l] = page(l)
	}
	f := &fakeFetcher{pages: pages}

	_, err := Discover(context.Background(), f, "https://site.test/", Options{MaxPages: 5}, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(f.fetched) > 5 {
		t.Fatalf("fetched %d pages, want at most 5", len(f.fetched))
	}
}

func TestDiscoverCapsDiscoveredSet(t *testing.T) {
	// One hub page linking far past the cap must not inflate the
	// discovered set beyond the page limit.
	var links []string
	for i := 0; i < 600; i++ {
		links = append(links, fmt.Sprintf("https://site.test/p/%d", i))
	}
	pages := map[string]*scraper.Result{
		"https://site.test/": page("https://site.test/", links...),
	}

	got, err := Discover(context.Background(), &fakeFetcher{pages: pages}, "https://site.test/", Options{}, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) > 500 {
		t.Fatalf("discovered %d urls, want at most the default cap of 500", len(got))
	}

	got, err = Discover(context.Background(), &fakeFetcher{pages: pages}, "https://site.test/", Options{MaxPages: 4}, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) > 4 {
		t.Fatalf("discovered %d urls, want at most 4", len(got))
	}
}

func TestDiscoverReportsProgress(t *testing.T) {
	pages := make(map[string]*scraper.Result)
	var links []string
	for i := 0; i < 25; i++ {
		links = append(links, fmt.Sprintf("https://site.test/p/%d", i))
	}
	pages["https://site.test/"] = page("https://site.test/", links...)
	for _, l := range links {
		pages[l] = page(l)
	}
	f := &fakeFetcher{pages: pages}

	var reports [][]string
	report := func(ctx context.Context, discovered []string) error {
		reports = append(reports, discovered)
		return nil
	}

	got, err := Discover(context.Background(), f, "https://site.test/", Options{ProgressEvery: 10}, report)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("expected at least one progress report")
	}
	final := reports[len(reports)-1]
	if len(final) != len(got) {
		t.Fatalf("final report has %d urls, discovery returned %d", len(final), len(got))
	}
	for i := 1; i < len(reports); i++ {
		if len(reports[i]) < len(reports[i-1]) {
			t.Fatalf("report %d shrank: %d -> %d", i, len(reports[i-1]), len(reports[i]))
		}
	}
}
