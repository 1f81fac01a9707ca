package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pevans/repocrawl/scraper"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RecordSink receives finished records. Write is called from several
// workers at once.
type RecordSink interface {
	Write(record scraper.FinalRecord) error
}

// SinkFunc adapts a function to a RecordSink.
type SinkFunc func(record scraper.FinalRecord) error

func (f SinkFunc) Write(record scraper.FinalRecord) error {
	return f(record)
}

// Stats summarises a crawl run.
type Stats struct {
	ListingPages int
	DetailPages  int
	Records      int
	Duplicates   int
	Failures     int
}

type counters struct {
	listingPages atomic.Int64
	detailPages  atomic.Int64
	records      atomic.Int64
	duplicates   atomic.Int64
	failures     atomic.Int64
}

func (c *counters) snapshot() *Stats {
	return &Stats{
		ListingPages: int(c.listingPages.Load()),
		DetailPages:  int(c.detailPages.Load()),
		Records:      int(c.records.Load()),
		Duplicates:   int(c.duplicates.Load()),
		Failures:     int(c.failures.Load()),
	}
}

// Crawler walks a repository listing, its pagination, and every repository
// page it links to.
type Crawler struct {
	config    *Config
	fetcher   Fetcher
	visited   VisitedSet
	throttle  *Throttle
	selectors scraper.Selectors
	log       logrus.FieldLogger
}

// NewCrawler creates a new crawler. A nil config uses DefaultConfig, a nil
// fetcher uses an HTTPFetcher, and a nil visited set keeps URLs in memory.
func NewCrawler(
	config *Config,
	fetcher Fetcher,
	visited VisitedSet,
	selectors scraper.Selectors,
	log logrus.FieldLogger,
) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.normalize()

	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg.Timeout, cfg.UserAgent)
	}
	if visited == nil {
		visited = NewMemoryVisited()
	}

	return &Crawler{
		config:    &cfg,
		fetcher:   fetcher,
		visited:   visited,
		throttle:  NewThrottle(&cfg),
		selectors: selectors,
		log:       log,
	}
}

// Run crawls starting at the seed listing page and writes every finished
// record to sink. Fetch failures are logged and counted; a sink error stops
// the crawl and is returned. Run returns ctx.Err() if ctx is cancelled.
func (c *Crawler) Run(ctx context.Context, seed string, sink RecordSink) (*Stats, error) {
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed URL: %w", err)
	}
	if seedURL.Scheme != "http" && seedURL.Scheme != "https" {
		return nil, fmt.Errorf("seed URL must use http or https scheme")
	}

	c.log.WithFields(logrus.Fields{
		"seed":        seed,
		"concurrency": c.config.Concurrency,
		"delay":       c.config.Delay,
	}).Info("Crawl starting")
	start := time.Now()

	var stats counters
	q := newTaskQueue()
	c.enqueue(q, Task{Kind: ListingTask, URL: seedURL.String(), Page: 1}, &stats)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, q.close)
	defer stop()

	for i := 0; i < c.config.Concurrency; i++ {
		g.Go(func() error {
			for {
				task, ok := q.pop()
				if !ok {
					return nil
				}
				err := c.process(gctx, q, task, sink, &stats)
				q.done()
				if err != nil {
					return err
				}
			}
		})
	}

	err = g.Wait()
	result := stats.snapshot()

	if err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		c.log.Info("Crawl cancelled")
		return result, err
	}

	c.log.WithFields(logrus.Fields{
		"records":  result.Records,
		"pages":    result.ListingPages,
		"failures": result.Failures,
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("Crawl finished")

	return result, nil
}

// enqueue queues task unless its URL has already been seen.
func (c *Crawler) enqueue(q *taskQueue, task Task, stats *counters) {
	isNew, err := c.visited.Visit(task.URL)
	if err != nil {
		c.log.WithField("url", task.URL).Warnf("Failed to record visited URL: %v", err)
		isNew = true
	}
	if !isNew {
		stats.duplicates.Add(1)
		c.log.WithField("url", task.URL).Debug("Skipping duplicate URL")
		return
	}
	q.push(task)
}

// process fetches one task's page and dispatches it to its handler.
func (c *Crawler) process(ctx context.Context, q *taskQueue, task Task, sink RecordSink, stats *counters) error {
	log := c.log.WithFields(logrus.Fields{"url": task.URL, "kind": task.Kind.String()})

	page, err := c.fetch(ctx, task.URL, log)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		stats.failures.Add(1)
		log.Errorf("Failed to fetch page: %v", err)
		return nil
	}

	switch task.Kind {
	case ListingTask:
		stats.listingPages.Add(1)
		result := scraper.ParseListing(page.Doc, page.URL, c.selectors.Listing, c.log.WithField("page", task.Page))

		for _, partial := range result.Records {
			partial := partial
			c.enqueue(q, Task{Kind: DetailTask, URL: partial.URL, Partial: &partial}, stats)
		}

		if result.NextPage == "" {
			return nil
		}
		if c.config.MaxPages > 0 && task.Page >= c.config.MaxPages {
			log.WithField("max_pages", c.config.MaxPages).Info("Reached page limit, not following pagination")
			return nil
		}
		c.enqueue(q, Task{Kind: ListingTask, URL: result.NextPage, Page: task.Page + 1}, stats)

	case DetailTask:
		stats.detailPages.Add(1)
		record := scraper.ParseDetail(page.Doc, *task.Partial, c.selectors.Detail, c.log)
		if err := sink.Write(record); err != nil {
			return fmt.Errorf("failed to write record %s: %w", record.URL, err)
		}
		stats.records.Add(1)
	}

	return nil
}

// fetch retrieves a page through the host throttle, retrying transient
// failures with exponential backoff.
func (c *Crawler) fetch(ctx context.Context, rawURL string, log logrus.FieldLogger) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	host := u.Host

	var page *Page
	attempt := func() error {
		release, err := c.throttle.Acquire(ctx, host)
		if err != nil {
			return backoff.Permanent(err)
		}
		p, err := c.fetcher.Fetch(ctx, rawURL)
		release()

		if p != nil {
			c.throttle.Observe(host, p.Latency, p.StatusCode)
		}
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if p == nil || p.Doc == nil {
			return backoff.Permanent(errors.New("fetcher returned no document"))
		}

		page = p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.config.RetryBackoff
	policy.MaxElapsedTime = 0
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.Retries)), ctx)

	notify := func(err error, wait time.Duration) {
		log.WithField("wait", wait).Warnf("Retrying fetch: %v", err)
	}

	if err := backoff.RetryNotify(attempt, retries, notify); err != nil {
		return nil, err
	}
	return page, nil
}
