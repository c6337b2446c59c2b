package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testStaticFetcher() *StaticFetcher {
	f := NewStaticFetcher()
	f.MaxRetries = 1
	f.DomainDelay = 0
	f.Timeout = 5 * time.Second
	return f
}

func TestStaticFetcherFetchesHostWithPort(t *testing.T) {
	var gotLang, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.Header.Get("Accept-Language")
		gotReferer = r.Header.Get("Referer")
		fmt.Fprint(w, `<html><body><table><tr><td class="subject">입찰 공고</td></tr></table></body></html>`)
	}))
	defer srv.Close()

	f := testStaticFetcher()
	// httptest URLs always carry an explicit port, the same shape as the
	// non-standard ports several target portals run on.
	res, err := f.Fetch(context.Background(), FetchRequest{URL: srv.URL + "/list?page=1"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if !strings.Contains(res.HTML, "입찰 공고") {
		t.Errorf("HTML missing page body: %q", res.HTML)
	}
	if !strings.HasPrefix(gotLang, "ko-KR") {
		t.Errorf("Accept-Language = %q, want ko-KR first", gotLang)
	}
	if gotReferer != srv.URL {
		t.Errorf("Referer = %q, want the page origin %q", gotReferer, srv.URL)
	}
}

func TestStaticFetcherRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<html><body>ok</body></html>`)
	}))
	defer srv.Close()

	f := testStaticFetcher()
	res, err := f.Fetch(context.Background(), FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
	if !strings.Contains(res.HTML, "ok") {
		t.Errorf("HTML = %q, want retried body", res.HTML)
	}
}

func TestStaticFetcherExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testStaticFetcher()
	if _, err := f.Fetch(context.Background(), FetchRequest{URL: srv.URL}); err == nil {
		t.Fatal("Fetch() succeeded against an always-failing server")
	}
}

func TestStaticFetcherHonorsContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	f := testStaticFetcher()
	f.MaxRetries = 0
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, FetchRequest{URL: srv.URL})
	if err == nil {
		t.Fatal("Fetch() succeeded despite an expired context")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Fetch() blocked %v after cancellation", elapsed)
	}
}
