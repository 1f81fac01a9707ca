package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pevans/repocrawl/scraper"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: a fast configuration without politeness delays
func testConfig() *Config {
	config := DefaultConfig()
	config.Delay = 0
	config.Concurrency = 4
	config.RetryBackoff = time.Millisecond
	config.AutoThrottle.Enabled = false
	return config
}

// Test helper: collects records written by the crawler
type collector struct {
	mu      sync.Mutex
	records []scraper.FinalRecord
}

func (c *collector) Write(record scraper.FinalRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func (c *collector) byURL() map[string]scraper.FinalRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]scraper.FinalRecord, len(c.records))
	for _, r := range c.records {
		out[r.URL] = r
	}
	return out
}

func (c *collector) urls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	urls := make([]string, 0, len(c.records))
	for _, r := range c.records {
		urls = append(urls, r.URL)
	}
	sort.Strings(urls)
	return urls
}

type repoEntry struct {
	name  string
	about string
}

// Test helper: render a listing page with the given entries
func listingPage(entries []repoEntry, next string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="user-repositories-list"><ul>`)
	for _, e := range entries {
		fmt.Fprintf(&b, `<li><div class="col-10 col-lg-9 d-inline-block">
			<div class="d-inline-block mb-1"><h3><a href="/octo/%s">%s</a></h3></div>`, e.name, e.name)
		if e.about != "" {
			fmt.Fprintf(&b, `<div itemprop="description"><p>%s</p></div>`, e.about)
		}
		b.WriteString(`<relative-time datetime="2024-01-01T00:00:00Z">Jan 1</relative-time></div></li>`)
	}
	b.WriteString(`</ul></div>`)
	if next != "" {
		fmt.Fprintf(&b, `<a class="next_page" href="%s">Next</a>`, next)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// Test helper: render a repository page with languages and a commit count
func detailPage(commits string, languages ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	if commits != "" {
		fmt.Fprintf(&b, `<ul class="list-style-none"><li><a href="/x/commits/main"><strong>%s</strong></a></li></ul>`, commits)
	}
	b.WriteString(`<div class="Layout-sidebar"><div class="BorderGrid-row"><ul class="list-style-none">`)
	for i := 0; i+1 < len(languages); i += 2 {
		fmt.Fprintf(&b, `<li><a><span>%s</span><span>%s</span></a></li>`, languages[i], languages[i+1])
	}
	b.WriteString(`</ul></div></div></body></html>`)
	return b.String()
}

// Test helper: a two-page GitHub-like site
func newTestSite(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/octo", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, listingPage([]repoEntry{{name: "gamma"}, {name: "alpha"}}, ""))
			return
		}
		fmt.Fprint(w, listingPage([]repoEntry{
			{name: "alpha", about: "A cool tool"},
			{name: "beta"},
		}, "/octo?page=2&tab=repositories"))
	})
	mux.HandleFunc("/octo/alpha", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, detailPage("1,234", "Go", "90.0%", "Shell", "10.0%"))
	})
	mux.HandleFunc("/octo/beta", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, detailPage("7", "Python", "100.0%"))
	})
	mux.HandleFunc("/octo/gamma", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, detailPage(""))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

// TestRun_FollowsPaginationAndDetails verifies the full two-stage crawl
func TestRun_FollowsPaginationAndDetails(t *testing.T) {
	server, requests := newTestSite(t)
	log, _ := test.NewNullLogger()
	sink := &collector{}

	c := NewCrawler(testConfig(), nil, nil, scraper.DefaultSelectors(), log)
	stats, err := c.Run(context.Background(), server.URL+"/octo?tab=repositories", sink)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.ListingPages)
	assert.Equal(t, 3, stats.DetailPages)
	assert.Equal(t, 3, stats.Records)
	assert.Equal(t, 1, stats.Duplicates, "alpha appears on both pages")
	assert.Zero(t, stats.Failures)
	assert.Equal(t, int64(5), requests.Load())

	assert.Equal(t, []string{
		server.URL + "/octo/alpha",
		server.URL + "/octo/beta",
		server.URL + "/octo/gamma",
	}, sink.urls())

	records := sink.byURL()

	alpha := records[server.URL+"/octo/alpha"]
	require.NotNil(t, alpha.About)
	assert.Equal(t, "A cool tool", *alpha.About)
	require.NotNil(t, alpha.NumCommits)
	assert.Equal(t, 1234, *alpha.NumCommits)
	assert.Equal(t, scraper.Languages{
		{Name: "Go", Percent: "90.0%"},
		{Name: "Shell", Percent: "10.0%"},
	}, alpha.Languages)
	require.NotNil(t, alpha.LastUpdated)
	assert.Equal(t, "2024-01-01T00:00:00Z", *alpha.LastUpdated)

	beta := records[server.URL+"/octo/beta"]
	require.NotNil(t, beta.About)
	assert.Equal(t, "beta", *beta.About, "active repository is described by its name")

	gamma := records[server.URL+"/octo/gamma"]
	assert.Nil(t, gamma.About, "empty repository keeps no description")
	assert.Nil(t, gamma.Languages)
	assert.Nil(t, gamma.NumCommits)
}

// TestRun_MaxPages verifies pagination stops at the page limit
func TestRun_MaxPages(t *testing.T) {
	server, _ := newTestSite(t)
	log, _ := test.NewNullLogger()
	sink := &collector{}

	config := testConfig()
	config.MaxPages = 1
	c := NewCrawler(config, nil, nil, scraper.DefaultSelectors(), log)

	stats, err := c.Run(context.Background(), server.URL+"/octo", sink)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.ListingPages)
	assert.Equal(t, 2, stats.Records)
}

// TestRun_FetchFailureIsNotFatal verifies failed detail pages are counted
func TestRun_FetchFailureIsNotFatal(t *testing.T) {
	var brokenHits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/octo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage([]repoEntry{{name: "ok"}, {name: "gone"}, {name: "broken"}}, ""))
	})
	mux.HandleFunc("/octo/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage("3"))
	})
	mux.HandleFunc("/octo/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/octo/broken", func(w http.ResponseWriter, r *http.Request) {
		brokenHits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	log, _ := test.NewNullLogger()
	sink := &collector{}
	config := testConfig()
	config.Retries = 2

	c := NewCrawler(config, nil, nil, scraper.DefaultSelectors(), log)
	stats, err := c.Run(context.Background(), server.URL+"/octo", sink)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 2, stats.Failures)
	assert.Equal(t, int64(3), brokenHits.Load(), "500 is retried twice after the first attempt")
	assert.Equal(t, []string{server.URL + "/octo/ok"}, sink.urls())
}

// TestRun_RetriesTransientErrors verifies a page succeeds after a 503
func TestRun_RetriesTransientErrors(t *testing.T) {
	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/octo", func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, listingPage([]repoEntry{{name: "alpha"}}, ""))
	})
	mux.HandleFunc("/octo/alpha", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage("5"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	log, _ := test.NewNullLogger()
	sink := &collector{}

	c := NewCrawler(testConfig(), nil, nil, scraper.DefaultSelectors(), log)
	stats, err := c.Run(context.Background(), server.URL+"/octo", sink)

	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, 1, stats.Records)
	assert.Zero(t, stats.Failures)
}

// TestRun_SinkErrorStopsCrawl verifies a sink failure is returned
func TestRun_SinkErrorStopsCrawl(t *testing.T) {
	server, _ := newTestSite(t)
	log, _ := test.NewNullLogger()
	sinkErr := errors.New("disk full")

	c := NewCrawler(testConfig(), nil, nil, scraper.DefaultSelectors(), log)
	_, err := c.Run(context.Background(), server.URL+"/octo", SinkFunc(func(scraper.FinalRecord) error {
		return sinkErr
	}))

	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
}

// TestRun_Cancelled verifies a cancelled context ends the crawl
func TestRun_Cancelled(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/octo", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	defer close(release)

	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	c := NewCrawler(testConfig(), nil, nil, scraper.DefaultSelectors(), log)
	stats, err := c.Run(ctx, server.URL+"/octo", &collector{})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.Zero(t, stats.Records)
}

// TestRun_InvalidSeed verifies seed validation
func TestRun_InvalidSeed(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := NewCrawler(testConfig(), nil, nil, scraper.DefaultSelectors(), log)

	_, err := c.Run(context.Background(), "ftp://example.com/octo", &collector{})
	assert.Error(t, err)

	_, err = c.Run(context.Background(), "://nope", &collector{})
	assert.Error(t, err)
}

// TestRun_SharedVisitedSet verifies URLs already visited are not fetched
func TestRun_SharedVisitedSet(t *testing.T) {
	server, _ := newTestSite(t)
	log, _ := test.NewNullLogger()
	visited := NewMemoryVisited()
	_, err := visited.Visit(server.URL + "/octo/beta")
	require.NoError(t, err)

	sink := &collector{}
	c := NewCrawler(testConfig(), nil, visited, scraper.DefaultSelectors(), log)
	stats, err := c.Run(context.Background(), server.URL+"/octo", sink)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.NotContains(t, sink.urls(), server.URL+"/octo/beta")
	assert.Equal(t, 5, visited.Len())
}

// stubFetcher serves pre-parsed documents without HTTP.
type stubFetcher struct {
	pages map[string]string
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (*Page, error) {
	html, ok := s.pages[rawURL]
	if !ok {
		return &Page{StatusCode: http.StatusNotFound}, &StatusError{Code: http.StatusNotFound}
	}
	doc, err := goqueryDoc(html)
	if err != nil {
		return nil, err
	}
	u, _ := parseURL(rawURL)
	return &Page{URL: u, StatusCode: http.StatusOK, Doc: doc}, nil
}

// TestRun_CustomFetcher verifies the crawler works against any Fetcher
func TestRun_CustomFetcher(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://github.com/octo?tab=repositories": listingPage([]repoEntry{{name: "solo", about: "Only one"}}, ""),
		"https://github.com/octo/solo":             detailPage("12", "C", "100.0%"),
	}}
	log, _ := test.NewNullLogger()
	sink := &collector{}

	c := NewCrawler(testConfig(), fetcher, nil, scraper.DefaultSelectors(), log)
	stats, err := c.Run(context.Background(), "https://github.com/octo?tab=repositories", sink)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	require.Len(t, sink.records, 1)
	assert.Equal(t, "https://github.com/octo/solo", sink.records[0].URL)
	require.NotNil(t, sink.records[0].About)
	assert.Equal(t, "Only one", *sink.records[0].About)
}
