package scraper

import (
	"context"
	"fmt"
	"net/url"
	"time"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"quarry/internal/browser"
)

// Options holds the per-mode rendering knobs.
type Options struct {
	DiscoveryNavTimeout time.Duration
	IngestNavTimeout    time.Duration
	// SettleWait runs after load in both modes so late JS can finish
	// painting the DOM.
	SettleWait time.Duration
	// ClickWait runs after the load-more clicks in discovery mode.
	ClickWait time.Duration
	UserAgent string
}

// RodScraper renders pages through a shared browser pool.
type RodScraper struct {
	pool *browser.Pool
	opts Options
}

func NewRodScraper(pool *browser.Pool, opts Options) *RodScraper {
	if opts.DiscoveryNavTimeout <= 0 {
		opts.DiscoveryNavTimeout = 15 * time.Second
	}
	if opts.IngestNavTimeout <= 0 {
		opts.IngestNavTimeout = 20 * time.Second
	}
	return &RodScraper{pool: pool, opts: opts}
}

// loadMoreScript scrolls to the bottom and clicks anything that looks
// like a load-more control, returning the number of clicks.
const loadMoreScript = `() => {
	window.scrollTo(0, document.body.scrollHeight);
	const re = /load more|show more|next|meer|volgende/i;
	let clicked = 0;
	for (const el of document.querySelectorAll('button, a, [role="button"]')) {
		if (re.test((el.textContent || '').trim())) {
			try { el.click(); clicked++; } catch (e) {}
		}
	}
	return clicked;
}`

func (s *RodScraper) Scrape(ctx context.Context, rawURL string, mode Mode) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	page, release, err := s.pool.Page(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	navTimeout := s.opts.IngestNavTimeout
	if mode == ModeDiscovery {
		navTimeout = s.opts.DiscoveryNavTimeout
	}

	if s.opts.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.opts.UserAgent})
	}

	nav := page.Context(ctx).Timeout(navTimeout)
	if err := nav.Navigate(u.String()); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", u, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", u, err)
	}

	sleepCtx(ctx, s.opts.SettleWait)

	if mode == ModeDiscovery {
		if clicked := evalInt(page.Context(ctx), loadMoreScript); clicked > 0 {
			sleepCtx(ctx, s.opts.ClickWait)
		}
	}

	contentType := evalString(page.Context(ctx), `() => document.contentType`)
	title := evalString(page.Context(ctx), `() => document.title`)

	htmlStr, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read html %s: %w", u, err)
	}

	// Markdown is best effort; extraction works from the HTML.
	converter := htmlmd.NewConverter(u.Hostname(), true, nil)
	markdown, mdErr := converter.ConvertString(htmlStr)
	if mdErr != nil {
		markdown = ""
	}

	return &Result{
		URL:         u.String(),
		ContentType: contentType,
		Title:       title,
		HTML:        htmlStr,
		Markdown:    markdown,
		Links:       MineLinks(htmlStr, u),
	}, nil
}

func evalString(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil || res == nil {
		return ""
	}
	return res.Value.Str()
}

func evalInt(page *rod.Page, js string) int {
	res, err := page.Eval(js)
	if err != nil || res == nil {
		return 0
	}
	return res.Value.Int()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
