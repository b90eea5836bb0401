// Package extract turns rendered HTML into the primary textual content
// of a page. It works on its own parse of the input, so callers can
// reuse the HTML for other purposes, and it never fetches anything.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Outcome tags which extraction path produced the content.
type Outcome string

const (
	// OutcomeMain means a main-content candidate was selected.
	OutcomeMain Outcome = "main"
	// OutcomeParagraphs means the candidate was too short and the
	// joined paragraphs+lists were used instead.
	OutcomeParagraphs Outcome = "paragraphs"
	// OutcomeBody means even the paragraphs were too short and the
	// full body text was used.
	OutcomeBody Outcome = "body"
	// OutcomeEmpty means nothing usable was found.
	OutcomeEmpty Outcome = "empty"
)

// Options name the heuristic thresholds of the extractor. They exist
// so deployments can tune them without a rebuild.
type Options struct {
	// MinMainTextChars is the minimum text length for a selector match
	// to qualify as the main content candidate.
	MinMainTextChars int
	// MinTextHTMLRatio filters nav-heavy containers in the fallback
	// candidate scan: text length / html length must exceed it.
	MinTextHTMLRatio float64
	// FallbackParaChars: below this candidate length, use paragraphs.
	FallbackParaChars int
	// FallbackBodyChars: below this paragraph length, use body text.
	FallbackBodyChars int
	// MaxContentChars caps the final content.
	MaxContentChars int
	// MaxTitleChars / MaxDescriptionChars cap the metadata fields.
	MaxTitleChars       int
	MaxDescriptionChars int
}

// DefaultOptions returns the tuned production thresholds.
func DefaultOptions() Options {
	return Options{
		MinMainTextChars:    200,
		MinTextHTMLRatio:    0.1,
		FallbackParaChars:   500,
		FallbackBodyChars:   100,
		MaxContentChars:     50000,
		MaxTitleChars:       200,
		MaxDescriptionChars: 500,
	}
}

// Result is the extracted page content.
type Result struct {
	Title       string
	Description string
	Content     string
	Outcome     Outcome
}

// mainSelectors are tried in order for the main content candidate.
var mainSelectors = []string{
	"main", "article", `[role="main"]`,
	".content", ".main-content", "#content", "#main",
	".post-content", ".entry-content", ".page-content",
	".article-body", ".post-body", ".text-content",
}

// candidateTags are scanned when no selector qualifies.
var candidateTags = "main, article, section, div"

// boilerplateClassTokens match whole class tokens; boilerplateClassSubstrings
// match anywhere in the class attribute.
var (
	boilerplateClassTokens     = map[string]struct{}{"ad": {}, "ads": {}}
	boilerplateClassSubstrings = []string{"advertisement", "cookie-banner", "popup", "modal"}
)

var (
	displayNoneRe = regexp.MustCompile(`(?i)display\s*:\s*none`)
	spaceRunRe    = regexp.MustCompile(`[ \t\x{00a0}]+`)
	newlineRunRe  = regexp.MustCompile(`\n{3,}`)
	spacedNewline = regexp.MustCompile(` *\n *`)
)

// minParagraphChars is the minimum text length for a <p> to count as a
// real paragraph rather than UI chrome.
const minParagraphChars = 30

// Extract parses html and returns title, description, and main content.
// Identical input always yields an identical result.
func Extract(html string, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	// Metadata comes from the head, which the boilerplate pass removes,
	// so read it first.
	title := pageTitle(doc, opts.MaxTitleChars)
	description := pageDescription(doc, opts.MaxDescriptionChars)

	stripBoilerplate(doc)

	candidate, outcome := mainContent(doc, opts)

	paragraphs := collectParagraphs(doc)
	lists := collectLists(doc)

	if len(candidate) < opts.FallbackParaChars {
		joined := joinBlocks(paragraphs, lists)
		if joined != "" {
			candidate = joined
			outcome = OutcomeParagraphs
		}
	}
	if len(candidate) < opts.FallbackBodyChars {
		candidate = normalizeInline(doc.Find("body").Text())
		outcome = OutcomeBody
	}

	var b strings.Builder
	b.WriteString(candidate)
	appendBlock(&b, collectHeadings(doc))
	appendBlock(&b, paragraphs)
	appendBlock(&b, lists)
	appendBlock(&b, collectTables(doc))

	content := truncate(cleanText(b.String()), opts.MaxContentChars)
	if strings.TrimSpace(content) == "" {
		outcome = OutcomeEmpty
	}

	return &Result{
		Title:       title,
		Description: description,
		Content:     content,
		Outcome:     outcome,
	}, nil
}

func pageTitle(doc *goquery.Document, maxChars int) string {
	candidates := []string{
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
		doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if t := normalizeInline(c); t != "" {
			return truncate(t, maxChars)
		}
	}
	return "Untitled"
}

func pageDescription(doc *goquery.Document, maxChars int) string {
	candidates := []string{
		doc.Find(`meta[name="description"]`).AttrOr("content", ""),
		doc.Find(`meta[property="og:description"]`).AttrOr("content", ""),
	}
	for _, c := range candidates {
		if d := normalizeInline(c); d != "" {
			return truncate(d, maxChars)
		}
	}
	return ""
}

// stripBoilerplate removes elements that never carry page content.
// Navigation, headers, and footers are deliberately kept: they often
// carry structure worth indexing.
func stripBoilerplate(doc *goquery.Document) {
	doc.Find("script, style, link, meta, noscript, iframe").Remove()
	doc.Find("[hidden]").Remove()
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		if style, ok := s.Attr("style"); ok && displayNoneRe.MatchString(style) {
			s.Remove()
		}
	})
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		if class, ok := s.Attr("class"); ok && isBoilerplateClass(class) {
			s.Remove()
		}
	})
}

func isBoilerplateClass(class string) bool {
	lower := strings.ToLower(class)
	for _, token := range strings.Fields(lower) {
		if _, ok := boilerplateClassTokens[token]; ok {
			return true
		}
	}
	for _, sub := range boilerplateClassSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// mainContent selects the main content candidate: first a pass over the
// known selectors, then a scan for the densest text container.
func mainContent(doc *goquery.Document, opts Options) (string, Outcome) {
	for _, sel := range mainSelectors {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := normalizeInline(s.Text())
			if len(text) > opts.MinMainTextChars {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, OutcomeMain
		}
	}

	// Densest-container scan with a text-to-markup ratio filter so
	// nav-heavy wrappers do not win on sheer size.
	var best string
	doc.Find(candidateTags).Each(func(_ int, s *goquery.Selection) {
		text := normalizeInline(s.Text())
		if len(text) <= len(best) {
			return
		}
		html, err := goquery.OuterHtml(s)
		if err != nil || len(html) == 0 {
			return
		}
		if float64(len(text))/float64(len(html)) > opts.MinTextHTMLRatio {
			best = text
		}
	})
	if best != "" {
		return best, OutcomeMain
	}
	return "", OutcomeParagraphs
}

func collectHeadings(doc *goquery.Document) string {
	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeInline(s.Text()); text != "" {
			lines = append(lines, "## "+text)
		}
	})
	return strings.Join(lines, "\n")
}

func collectParagraphs(doc *goquery.Document) string {
	var blocks []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeInline(s.Text()); len(text) > minParagraphChars {
			blocks = append(blocks, text)
		}
	})
	return strings.Join(blocks, "\n\n")
}

func collectLists(doc *goquery.Document) string {
	var blocks []string
	doc.Find("ul, ol").Each(func(_ int, s *goquery.Selection) {
		var items []string
		s.Find("li").Each(func(_ int, li *goquery.Selection) {
			if text := normalizeInline(li.Text()); text != "" {
				items = append(items, "• "+text)
			}
		})
		if len(items) > 0 {
			blocks = append(blocks, strings.Join(items, "\n"))
		}
	})
	return strings.Join(blocks, "\n\n")
}

func collectTables(doc *goquery.Document) string {
	var blocks []string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var rows []string
		hasHeader := table.Find("th").Length() > 0
		table.Find("tr").Each(func(i int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeInline(cell.Text()))
			})
			if len(cells) == 0 {
				return
			}
			rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
			if i == 0 && hasHeader {
				seps := make([]string, len(cells))
				for j := range seps {
					seps[j] = "---"
				}
				rows = append(rows, "| "+strings.Join(seps, " | ")+" |")
			}
		})
		if len(rows) > 0 {
			blocks = append(blocks, strings.Join(rows, "\n"))
		}
	})
	return strings.Join(blocks, "\n\n")
}

func joinBlocks(blocks ...string) string {
	var nonEmpty []string
	for _, b := range blocks {
		if b != "" {
			nonEmpty = append(nonEmpty, b)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

func appendBlock(b *strings.Builder, block string) {
	if block == "" {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(block)
}

// normalizeInline collapses all whitespace to single spaces; used for
// titles, cells, and candidate text where newlines carry no meaning.
func normalizeInline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText normalizes the final content: runs of spaces become one
// space, three or more newlines become exactly two, and tabs and
// non-breaking spaces become plain spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = spacedNewline.ReplaceAllString(s, "\n")
	s = newlineRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
