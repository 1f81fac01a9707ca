package crawler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// hostSlot holds the politeness state for one host.
type hostSlot struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	mu    sync.Mutex
	delay time.Duration
}

// Throttle enforces per-host concurrency and request spacing, and adapts the
// spacing to observed latency when auto-throttling is enabled.
type Throttle struct {
	config *Config

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

// NewThrottle creates a throttle for the given configuration.
func NewThrottle(config *Config) *Throttle {
	return &Throttle{
		config: config,
		hosts:  make(map[string]*hostSlot),
	}
}

// slot returns the state for host, creating it on first use.
func (t *Throttle) slot(host string) *hostSlot {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.hosts[host]; ok {
		return s
	}

	delay := t.config.Delay
	if t.config.AutoThrottle.Enabled {
		delay = max(t.config.AutoThrottle.StartDelay, t.config.Delay)
	}

	s := &hostSlot{
		sem:     semaphore.NewWeighted(int64(t.config.ConcurrencyPerHost)),
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		delay:   delay,
	}
	t.hosts[host] = s
	return s
}

// Acquire blocks until a request to host may start. The returned function
// must be called once the request has finished.
func (t *Throttle) Acquire(ctx context.Context, host string) (func(), error) {
	s := t.slot(host)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		s.sem.Release(1)
		return nil, err
	}

	return func() { s.sem.Release(1) }, nil
}

// Observe feeds a response's latency and status back into the host's delay.
func (t *Throttle) Observe(host string, latency time.Duration, status int) {
	if !t.config.AutoThrottle.Enabled {
		return
	}

	s := t.slot(host)
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := nextDelay(s.delay, latency, status, t.config)
	if !changed {
		return
	}
	s.delay = next
	s.limiter.SetLimit(rate.Every(next))
}

// Delay returns the current delay for host.
func (t *Throttle) Delay(host string) time.Duration {
	s := t.slot(host)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// nextDelay moves the delay halfway towards latency/target, never below
// latency/target, and clamps it to [Delay, MaxDelay]. Error responses are
// not allowed to lower the delay.
func nextDelay(current, latency time.Duration, status int, config *Config) (time.Duration, bool) {
	target := time.Duration(float64(latency) / config.AutoThrottle.TargetConcurrency)

	next := max((current+target)/2, target)
	next = min(max(next, config.Delay), config.AutoThrottle.MaxDelay)

	if status != http.StatusOK && next <= current {
		return current, false
	}
	return next, next != current
}
