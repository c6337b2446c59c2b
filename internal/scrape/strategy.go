package scrape

import (
	"context"
	"fmt"
	"time"
)

// FetchRequest describes one page fetch. WaitLocator and Scroll only apply
// to the rendered tier; the static tier ignores them, which keeps the two
// implementations interchangeable at every call site.
type FetchRequest struct {
	URL         string
	Referer     string
	WaitLocator string
	Scroll      bool
	Timeout     time.Duration
}

// FetchResult is the outcome of one page fetch, already charset-decoded.
type FetchResult struct {
	URL        string
	StatusCode int
	HTML       string
	Rendered   bool
	FetchedAt  time.Time
}

// PageFetcher is the single fetch contract shared by the static and
// rendered tiers. List and Detail scrapers depend only on this interface.
type PageFetcher interface {
	Name() string
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}

// minViableRows is the combined-row threshold below which a static list
// scrape is considered insufficient and retried with the rendered tier.
const minViableRows = 5

// needsFallback is the one shared policy deciding when the rendered tier
// takes over, for both list and detail scraping paths.
func needsFallback(rowCount int, err error) bool {
	return err != nil || rowCount < minViableRows
}

// FetcherFactory maps fetcher IDs to implementations so configuration can
// pin an organization to a specific tier.
type FetcherFactory struct {
	fetchers map[string]PageFetcher
}

func NewFetcherFactory() *FetcherFactory {
	return &FetcherFactory{fetchers: make(map[string]PageFetcher)}
}

func (f *FetcherFactory) Register(id string, fetcher PageFetcher) {
	f.fetchers[id] = fetcher
}

func (f *FetcherFactory) Get(id string) (PageFetcher, error) {
	fetcher, ok := f.fetchers[id]
	if !ok {
		return nil, fmt.Errorf("fetcher not found: %s", id)
	}
	return fetcher, nil
}

// GlobalFetcherFactory holds the default tier implementations.
var GlobalFetcherFactory = NewFetcherFactory()

func init() {
	GlobalFetcherFactory.Register("static", NewStaticFetcher())
	GlobalFetcherFactory.Register("rendered", NewRenderedFetcher())
}
