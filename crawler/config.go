package crawler

import "time"

// Config holds configuration for the crawl orchestrator.
type Config struct {
	// Minimum delay between two requests to the same host
	Delay time.Duration `yaml:"delay"`
	// Number of workers processing tasks in parallel
	Concurrency int `yaml:"concurrency"`
	// Maximum number of in-flight requests per host
	ConcurrencyPerHost int `yaml:"concurrency_per_host"`
	// Timeout per HTTP request
	Timeout time.Duration `yaml:"timeout"`
	// Number of retries for transient fetch failures
	Retries int `yaml:"retries"`
	// Initial wait before the first retry; doubles on each attempt
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	UserAgent    string        `yaml:"user_agent"`
	// Maximum number of listing pages to follow (0 means no limit)
	MaxPages     int                `yaml:"max_pages"`
	AutoThrottle AutoThrottleConfig `yaml:"autothrottle"`
}

// AutoThrottleConfig controls the adaptive per-host delay.
type AutoThrottleConfig struct {
	Enabled    bool          `yaml:"enabled"`
	StartDelay time.Duration `yaml:"start_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	// Average number of requests to keep in flight per host
	TargetConcurrency float64 `yaml:"target_concurrency"`
}

// DefaultConfig returns the default crawl configuration.
func DefaultConfig() *Config {
	return &Config{
		Delay:              1 * time.Second,
		Concurrency:        16,
		ConcurrencyPerHost: 8,
		Timeout:            30 * time.Second,
		Retries:            2,
		RetryBackoff:       1 * time.Second,
		UserAgent:          "repocrawl/1.0 (+https://github.com/pevans/repocrawl)",
		MaxPages:           0,
		AutoThrottle: AutoThrottleConfig{
			Enabled:           true,
			StartDelay:        1 * time.Second,
			MaxDelay:          60 * time.Second,
			TargetConcurrency: 1.0,
		},
	}
}

// normalize fills in zero values that would stall the crawl.
func (c *Config) normalize() {
	defaults := DefaultConfig()
	if c.Concurrency < 1 {
		c.Concurrency = defaults.Concurrency
	}
	if c.ConcurrencyPerHost < 1 {
		c.ConcurrencyPerHost = defaults.ConcurrencyPerHost
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}
	if c.AutoThrottle.TargetConcurrency <= 0 {
		c.AutoThrottle.TargetConcurrency = defaults.AutoThrottle.TargetConcurrency
	}
	if c.AutoThrottle.MaxDelay < c.Delay {
		c.AutoThrottle.MaxDelay = c.Delay
	}
}
