package scrape

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	defaultRenderTimeout = 40 * time.Second
	scrollWaitInterval   = 700 * time.Millisecond
	maxScrollPasses      = 6
)

// RenderedFetcher is the second fetch tier: a real headless browser, used
// only when the static tier yields too few rows or misses required fields.
// Script-generated content is present in the returned markup.
//
// The browser is launched lazily on first use and shared across fetches;
// pages within one organization are always rendered sequentially, so a
// single browser is enough.
type RenderedFetcher struct {
	UserAgent string
	Timeout   time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

func NewRenderedFetcher() *RenderedFetcher {
	return &RenderedFetcher{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:   defaultRenderTimeout,
	}
}

func (f *RenderedFetcher) Name() string { return "rendered" }

// Fetch loads the page in the browser, waits for the requested locator,
// optionally runs a scroll pass to trigger lazy-loaded rows, and returns
// the rendered markup.
func (f *RenderedFetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, fmt.Errorf("browser start: %w", err)
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = f.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return nil, fmt.Errorf("apply stealth script: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.UserAgent}); err != nil {
		log.Printf("[rendered] set user agent failed: %v", err)
	}

	// Navigate in a goroutine so a wedged renderer cannot outlive the
	// request deadline.
	navErrCh := make(chan error, 1)
	go func() {
		navErrCh <- page.Navigate(req.URL)
	}()
	select {
	case err := <-navErrCh:
		if err != nil {
			return nil, fmt.Errorf("navigate: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("navigate timeout: %w", ctx.Err())
	}

	// WaitLoad failures are tolerated; the locator wait below is the
	// authoritative readiness signal.
	if err := page.Context(ctx).WaitLoad(); err != nil {
		log.Printf("[rendered] WaitLoad failed for %s, continuing: %v", req.URL, err)
	}

	if req.WaitLocator != "" {
		if _, err := page.Context(ctx).ElementX(req.WaitLocator); err != nil {
			return nil, fmt.Errorf("wait for locator %q: %w", req.WaitLocator, err)
		}
	}

	if req.Scroll {
		f.scrollPass(ctx, page)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("rendered markup: %w", err)
	}

	return &FetchResult{
		URL:       req.URL,
		HTML:      html,
		Rendered:  true,
		FetchedAt: time.Now(),
	}, nil
}

// scrollPass scrolls one viewport at a time until the document stops
// growing or the pass budget runs out.
func (f *RenderedFetcher) scrollPass(ctx context.Context, page *rod.Page) {
	lastHeight := -1
	for i := 0; i < maxScrollPasses; i++ {
		if ctx.Err() != nil {
			return
		}
		if _, err := page.Eval(`() => window.scrollBy(0, window.innerHeight)`); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(scrollWaitInterval):
		}

		res, err := page.Eval(`() => document.body.scrollHeight`)
		if err != nil {
			return
		}
		height := res.Value.Int()
		if height == lastHeight {
			return
		}
		lastHeight = height
	}
}

func (f *RenderedFetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	wsURL, err := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-dev-shm-usage", "true").
		Set("disable-gpu", "true").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	f.browser = browser
	log.Printf("[rendered] headless browser started")
	return browser, nil
}

// Close shuts down the shared browser if one was started.
func (f *RenderedFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
