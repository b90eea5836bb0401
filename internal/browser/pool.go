// Package browser manages the shared headless browser and hands out
// fresh pages with resource interception installed. One browser process
// backs all tabs in the process; the pool caps concurrent tabs and
// relaunches the browser when it dies.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrUnavailable is returned when the browser cannot be launched or has
// died and relaunch attempts are exhausted.
var ErrUnavailable = errors.New("browser unavailable")

// blockedResourceTypes are aborted by the page request interceptor:
// only the DOM and scripts are fetched.
var blockedResourceTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeImage:      {},
	proto.NetworkResourceTypeFont:       {},
	proto.NetworkResourceTypeStylesheet: {},
	proto.NetworkResourceTypeMedia:      {},
}

// Options configures the pool.
type Options struct {
	// MaxPages caps concurrently open tabs across all callers.
	MaxPages int
	// ControlURL connects to an already-running browser when set.
	ControlURL string
	// LaunchRetries is how many relaunches to attempt when the browser
	// process is found dead.
	LaunchRetries int
	Logger        *slog.Logger
}

// Pool is safe for concurrent use. Launching is serialized so at most
// one browser start is ever in flight.
type Pool struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launched *launcher.Launcher
	closed   bool

	sem chan struct{}
}

// NewPool creates a pool. The browser is launched lazily on the first
// Page call.
func NewPool(opts Options) *Pool {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 5
	}
	if opts.LaunchRetries <= 0 {
		opts.LaunchRetries = 2
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		opts: opts,
		log:  log,
		sem:  make(chan struct{}, opts.MaxPages),
	}
}

// Page returns a fresh page with the resource interceptor installed.
// Callers exceeding the tab cap block until capacity frees up. The
// returned release func closes the page and must always be called; it
// never affects sibling pages.
func (p *Pool) Page(ctx context.Context) (*rod.Page, func(), error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	browser, err := p.ensureBrowser()
	if err != nil {
		<-p.sem
		return nil, nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		// The browser may have died between the liveness check and the
		// tab creation; retry once against a relaunched instance.
		p.markDead(browser)
		browser, err = p.ensureBrowser()
		if err == nil {
			page, err = browser.Page(proto.TargetCreateTarget{})
		}
		if err != nil {
			<-p.sem
			return nil, nil, fmt.Errorf("%w: create page: %v", ErrUnavailable, err)
		}
	}

	router := interceptResources(page)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if router != nil {
				_ = router.Stop()
			}
			_ = page.Close()
			<-p.sem
		})
	}
	return page, release, nil
}

// ensureBrowser returns a live browser, launching or relaunching as
// needed. The liveness probe is a cheap version call.
func (p *Pool) ensureBrowser() (*rod.Browser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrUnavailable
	}

	if p.browser != nil {
		if _, err := (proto.BrowserGetVersion{}).Call(p.browser); err == nil {
			return p.browser, nil
		}
		p.log.Warn("browser process died, relaunching")
		p.teardownLocked()
	}

	var lastErr error
	for attempt := 0; attempt <= p.opts.LaunchRetries; attempt++ {
		browser, l, err := p.launch()
		if err == nil {
			p.browser = browser
			p.launched = l
			return browser, nil
		}
		lastErr = err
		p.log.Warn("browser launch failed", "attempt", attempt+1, "error", err)
		time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// launch starts (or connects to) a browser. Flags suit a containerized
// environment: no sandbox, no GPU, no extensions.
func (p *Pool) launch() (*rod.Browser, *launcher.Launcher, error) {
	if p.opts.ControlURL != "" {
		browser := rod.New().ControlURL(p.opts.ControlURL)
		if err := browser.Connect(); err != nil {
			return nil, nil, err
		}
		return browser, nil, nil
	}

	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-extensions").
		Set("disable-dev-shm-usage")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, nil, err
	}
	return browser, l, nil
}

// markDead drops the given browser if it is still the pool's current
// one, so the next ensureBrowser relaunches.
func (p *Pool) markDead(b *rod.Browser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == b {
		p.teardownLocked()
	}
}

func (p *Pool) teardownLocked() {
	if p.browser != nil {
		_ = p.browser.Close()
		p.browser = nil
	}
	if p.launched != nil {
		p.launched.Kill()
		p.launched = nil
	}
}

// Shutdown closes the browser and all its pages. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.teardownLocked()
}

// interceptResources installs a hijack router that aborts requests for
// the blocked resource types before navigation happens.
func interceptResources(page *rod.Page) *rod.HijackRouter {
	router := page.HijackRequests()
	_ = router.Add("*", "", func(h *rod.Hijack) {
		if _, blocked := blockedResourceTypes[h.Request.Type()]; blocked {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
