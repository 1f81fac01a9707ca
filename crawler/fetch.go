package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Page is a fetched and parsed HTML document.
type Page struct {
	// URL is the final URL after redirects; relative links resolve against it
	URL        *url.URL
	StatusCode int
	// Latency is the time until the response headers arrived
	Latency time.Duration
	Doc     *goquery.Document
}

// Fetcher retrieves a single page. Implementations return a non-nil Page
// alongside a *StatusError so that callers can still observe the latency.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.Code, http.StatusText(e.Code))
}

// retryStatuses are the response codes worth another attempt.
var retryStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	522, // connection timed out (Cloudflare)
	524, // a timeout occurred (Cloudflare)
}

// isRetryable reports whether a fetch error is transient. Per-request
// timeouts are transient; cancellation of the crawl is not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return slices.Contains(retryStatuses, statusErr.Code)
	}

	// Malformed URLs never succeed
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return false
	}

	return true
}

// HTTPFetcher fetches pages over HTTP and parses them with goquery.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout and
// User-Agent.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
	}
}

// Fetch retrieves rawURL and parses the response body as HTML.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	page := &Page{
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}

	if resp.StatusCode != http.StatusOK {
		return page, &StatusError{Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return page, fmt.Errorf("failed to parse HTML: %w", err)
	}
	page.Doc = doc

	return page, nil
}
