package scrape

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// StaticFetcher is the first fetch tier: a plain HTTP session dressed up as
// a desktop browser. Many of the target sites are old government portals
// that refuse bot user agents, require a same-origin Referer, and serve
// EUC-KR or CP949 without a charset header. Hence the spoofed headers,
// charset detection, and relaxed TLS.
type StaticFetcher struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	DomainDelay time.Duration
	InsecureTLS bool
}

// NewStaticFetcher creates a StaticFetcher with defaults suited to the
// slow end of the target sites.
func NewStaticFetcher() *StaticFetcher {
	return &StaticFetcher{
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		DomainDelay: 500 * time.Millisecond,
		InsecureTLS: true,
	}
}

func (f *StaticFetcher) Name() string { return "static" }

// fetchOutcome carries the terminal state of one colly visit. Exactly one
// of result or err is set.
type fetchOutcome struct {
	result *FetchResult
	err    error
}

// Fetch retrieves one page. The returned HTML is already decoded to UTF-8
// by colly's charset detection.
func (f *StaticFetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// colly matches the domain allowlist against the hostname alone, so
	// the port must be stripped here or any ported URL is refused.
	c := f.buildCollector(ctx, parsed.Hostname())

	timeout := req.Timeout
	if timeout == 0 {
		timeout = f.Timeout
	}
	c.SetRequestTimeout(timeout)

	referer := req.Referer
	if referer == "" {
		referer = originOf(req.URL)
	}

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
		r.Headers.Set("Cache-Control", "no-cache")
		if referer != "" {
			r.Headers.Set("Referer", referer)
		}
	})

	// A failed Retry runs the error handler reentrantly, so one visit can
	// deliver several outcomes as the handlers unwind. The first one wins
	// and the rest are dropped; a send must never block a callback.
	outcome := make(chan fetchOutcome, 1)
	deliver := func(o fetchOutcome) {
		select {
		case outcome <- o:
		default:
		}
	}

	c.OnResponse(func(r *colly.Response) {
		deliver(fetchOutcome{result: &FetchResult{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
			FetchedAt:  time.Now(),
		}})
	})

	c.OnError(func(r *colly.Response, err error) {
		retries := 0
		if r.Request.Ctx.GetAny("retries") != nil {
			retries = r.Request.Ctx.GetAny("retries").(int)
		}
		if retries < f.MaxRetries && ctx.Err() == nil {
			r.Request.Ctx.Put("retries", retries+1)
			log.Printf("[%s] static fetch retry %d/%d for %s: %v", r.Request.URL.Host, retries+1, f.MaxRetries, r.Request.URL, err)
			time.Sleep(time.Duration(retries+1) * time.Second)
			if rerr := r.Request.Retry(); rerr == nil {
				return
			}
		}
		deliver(fetchOutcome{err: fmt.Errorf("fetch failed after %d retries: %w", retries, err)})
	})

	// The collector is synchronous: the callbacks have all run by the time
	// Visit returns. Visit still reports the first attempt's error when a
	// retry recovered, so the delivered outcome is authoritative.
	visitErr := c.Visit(req.URL)

	select {
	case o := <-outcome:
		if o.result != nil {
			return o.result, nil
		}
		return nil, o.err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit failed: %w", visitErr)
	}
	return nil, fmt.Errorf("no response received for %s", req.URL)
}

func (f *StaticFetcher) buildCollector(ctx context.Context, host string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.AllowedDomains(host),
		colly.AllowURLRevisit(),
		colly.DetectCharset(),
		colly.IgnoreRobotsTxt(),
		// Cancellation aborts the underlying HTTP request rather than
		// merely abandoning the wait.
		colly.StdlibContext(ctx),
	)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       f.DomainDelay,
		RandomDelay: f.DomainDelay / 2,
	})

	if f.InsecureTLS {
		// A fair share of the target hosts still run expired or self-signed
		// certificates.
		c.WithTransport(&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			Proxy:           http.ProxyFromEnvironment,
		})
	}

	return c
}
