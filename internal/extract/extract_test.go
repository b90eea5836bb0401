package extract

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func extractOrFail(t *testing.T, html string) *Result {
	t.Helper()
	res, err := Extract(html, DefaultOptions())
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	return res
}

func TestExtractNavHeavyPage(t *testing.T) {
	article := strings.Repeat("Interesting prose about crawling the open web. ", 43) // ~2000 chars
	html := `<html><head><title>Crawl Notes</title></head><body>
		<nav><a href="/a">Home</a> <a href="/b">About</a> <a href="/c">Contact us</a></nav>
		<article>` + article + `</article>
	</body></html>`

	res := extractOrFail(t, html)

	if res.Title != "Crawl Notes" {
		t.Fatalf("title = %q, want %q", res.Title, "Crawl Notes")
	}
	if res.Outcome != OutcomeMain {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeMain)
	}
	if len(res.Content) < 1800 || len(res.Content) > 2500 {
		t.Fatalf("content length = %d, want roughly the article length (~2000)", len(res.Content))
	}
	if strings.Contains(res.Content, "Contact us") && !strings.Contains(article, "Contact us") {
		// Nav text may appear via structural augmentation but must not
		// dominate; the main candidate has to be the article.
		if !strings.HasPrefix(res.Content, "Interesting prose") {
			t.Fatalf("content does not start with the article text")
		}
	}
}

func TestExtractTitleFallbacks(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{"title tag", "<html><head><title>From Title</title></head><body><h1>From H1</h1></body></html>", "From Title"},
		{"h1 fallback", "<html><head></head><body><h1>From H1</h1></body></html>", "From H1"},
		{"og:title fallback", `<html><head><meta property="og:title" content="From OG"></head><body></body></html>`, "From OG"},
		{"untitled", "<html><head></head><body><p>no headings here at all, just text</p></body></html>", "Untitled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if res := extractOrFail(t, tc.html); res.Title != tc.want {
				t.Fatalf("title = %q, want %q", res.Title, tc.want)
			}
		})
	}
}

func TestExtractTitleTruncated(t *testing.T) {
	long := strings.Repeat("t", 400)
	res := extractOrFail(t, "<html><head><title>"+long+"</title></head><body></body></html>")
	if len(res.Title) != 200 {
		t.Fatalf("title length = %d, want 200", len(res.Title))
	}
}

func TestExtractDescription(t *testing.T) {
	html := `<html><head>
		<meta name="description" content="A page about things.">
		<meta property="og:description" content="OG description.">
	</head><body></body></html>`
	res := extractOrFail(t, html)
	if res.Description != "A page about things." {
		t.Fatalf("description = %q", res.Description)
	}

	ogOnly := `<html><head><meta property="og:description" content="OG description."></head><body></body></html>`
	res = extractOrFail(t, ogOnly)
	if res.Description != "OG description." {
		t.Fatalf("og description = %q", res.Description)
	}
}

func TestExtractStripsBoilerplate(t *testing.T) {
	html := `<html><head><title>t</title></head><body>
		<script>var tracked = true;</script>
		<div class="advertisement-slot">BUY NOW</div>
		<div class="ad">banner</div>
		<div style="display: none">invisible text</div>
		<div hidden>also invisible</div>
		<article>` + strings.Repeat("Real content sentences live here. ", 20) + `</article>
	</body></html>`

	res := extractOrFail(t, html)

	for _, gone := range []string{"tracked", "BUY NOW", "banner", "invisible text", "also invisible"} {
		if strings.Contains(res.Content, gone) {
			t.Fatalf("content still contains boilerplate %q", gone)
		}
	}
	if !strings.Contains(res.Content, "Real content sentences") {
		t.Fatal("content lost the article text")
	}
}

func TestExtractKeepsNavText(t *testing.T) {
	// Nav/header/footer are not stripped; their structure can matter.
	html := `<html><body>
		<nav><ul><li>Docs</li><li>Blog</li></ul></nav>
		<article>` + strings.Repeat("Body of the page with enough length to qualify as main. ", 10) + `</article>
	</body></html>`
	res := extractOrFail(t, html)
	if !strings.Contains(res.Content, "• Docs") {
		t.Fatal("expected nav list items in structural augmentation")
	}
}

func TestExtractStructuralAugmentation(t *testing.T) {
	html := `<html><body><article>` +
		strings.Repeat("Main prose that is clearly long enough to be selected as content. ", 10) +
		`</article>
		<h2>Section One</h2>
		<p>` + strings.Repeat("paragraph text ", 5) + `</p>
		<table><tr><th>Name</th><th>Value</th></tr><tr><td>a</td><td>1</td></tr></table>
	</body></html>`

	res := extractOrFail(t, html)

	if !strings.Contains(res.Content, "## Section One") {
		t.Fatal("missing heading rendering")
	}
	if !strings.Contains(res.Content, "| Name | Value |") {
		t.Fatal("missing table header row")
	}
	if !strings.Contains(res.Content, "| --- | --- |") {
		t.Fatal("missing table separator row")
	}
	if !strings.Contains(res.Content, "| a | 1 |") {
		t.Fatal("missing table data row")
	}
}

func TestExtractParagraphFallback(t *testing.T) {
	// No container crosses the main-content threshold, but paragraphs
	// sum to something useful.
	html := `<html><body>
		<p>` + strings.Repeat("First paragraph sentence. ", 8) + `</p>
		<p>` + strings.Repeat("Second paragraph sentence. ", 8) + `</p>
	</body></html>`
	res, err := Extract(html, Options{
		MinMainTextChars:    100000, // force the selector pass to fail
		MinTextHTMLRatio:    2,      // force the density scan to fail
		FallbackParaChars:   500,
		FallbackBodyChars:   100,
		MaxContentChars:     50000,
		MaxTitleChars:       200,
		MaxDescriptionChars: 500,
	})
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if res.Outcome != OutcomeParagraphs {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeParagraphs)
	}
	if !strings.Contains(res.Content, "First paragraph sentence.") {
		t.Fatal("paragraph fallback lost text")
	}
}

func TestExtractEmptyPage(t *testing.T) {
	res := extractOrFail(t, "<html><body></body></html>")
	if res.Outcome != OutcomeEmpty {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeEmpty)
	}
	if res.Content != "" {
		t.Fatalf("content = %q, want empty", res.Content)
	}
}

func TestExtractDeterministic(t *testing.T) {
	html := `<html><head><title>Stable</title></head><body>
		<article>` + strings.Repeat("Deterministic output is required for re-ingest comparisons. ", 12) + `</article>
		<ul><li>one</li><li>two</li></ul>
	</body></html>`

	first := extractOrFail(t, html)
	for i := 0; i < 5; i++ {
		again := extractOrFail(t, html)
		if *again != *first {
			t.Fatalf("extraction differs between runs:\n%+v\n%+v", first, again)
		}
	}
}

func TestExtractContentCap(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxContentChars = 120
	res, err := Extract("<html><body><article>"+strings.Repeat("words and more words. ", 50)+"</article></body></html>", opts)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(res.Content) > 120 {
		t.Fatalf("content length = %d, want <= 120", len(res.Content))
	}
}

func TestExtractCapKeepsRunesIntact(t *testing.T) {
	// 100 is not a multiple of the 3-byte rune width, so a byte-level
	// cut would split a rune at the cap.
	opts := DefaultOptions()
	opts.MaxContentChars = 100
	res, err := Extract("<html><body><article>"+strings.Repeat("日", 400)+"</article></body></html>", opts)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(res.Content) > 100 {
		t.Fatalf("content length = %d, want <= 100", len(res.Content))
	}
	if !utf8.ValidString(res.Content) {
		t.Fatalf("content is not valid UTF-8 after truncation: %q", res.Content)
	}
}

func TestTruncateOnRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	got := truncate(s, 5)
	if len(got) > 5 {
		t.Fatalf("truncate returned %d bytes, want <= 5", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if got != strings.Repeat("é", 2) {
		t.Fatalf("truncate = %q, want two runes", got)
	}
}
