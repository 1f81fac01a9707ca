package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pevans/repocrawl/config"
	"github.com/pevans/repocrawl/crawler"
	"github.com/pevans/repocrawl/export"
	"github.com/pevans/repocrawl/store"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type crawlOptions struct {
	user           string
	output         string
	format         string
	state          string
	delay          time.Duration
	concurrency    int
	maxPages       int
	noAutoThrottle bool
}

var crawlOpts crawlOptions

var crawlCmd = &cobra.Command{
	Use:   "crawl [seed-url]",
	Short: "Crawl a repository listing and export the records",
	Long: `Crawl starts at a repository listing page, either given as seed-url
or built from --user, and exports one record per repository.

The export replaces the output file only when the crawl completes. An
interrupted crawl (Ctrl-C) leaves the previous export in place.`,
	Example: `  repocrawl crawl --user octocat
  repocrawl crawl "https://github.com/octocat?tab=repositories" -o repos.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCrawl,
}

func init() {
	registerCrawlFlags(crawlCmd.Flags(), &crawlOpts)
	rootCmd.AddCommand(crawlCmd)
}

func registerCrawlFlags(flags *pflag.FlagSet, opts *crawlOptions) {
	flags.StringVarP(&opts.user, "user", "u", "", "GitHub user whose repositories to crawl")
	flags.StringVarP(&opts.output, "output", "o", "", "Output file (default repositories.xml, or REPOCRAWL_OUTPUT)")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format: xml, json or yaml (default from the file extension)")
	flags.StringVar(&opts.state, "state", "", "SQLite database recording runs and visited URLs (or REPOCRAWL_STATE_DSN)")
	flags.DurationVar(&opts.delay, "delay", 0, "Minimum delay between requests to the same host")
	flags.IntVarP(&opts.concurrency, "concurrency", "c", 0, "Number of parallel workers")
	flags.IntVar(&opts.maxPages, "max-pages", 0, "Maximum number of listing pages to follow (0 means no limit)")
	flags.BoolVar(&opts.noAutoThrottle, "no-autothrottle", false, "Keep a fixed delay instead of adapting to response times")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	seed, err := seedURL(args, crawlOpts.user)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyCrawlFlags(cmd.Flags(), &crawlOpts, cfg)

	log := newLogger(cfg.Log)

	format, err := outputFormat(cfg.Output)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exporter, err := export.NewExporter(cfg.Output.Path, format)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}

	// A nil interface lets the crawler keep visited URLs in memory
	var visited crawler.VisitedSet
	var stateStore *store.StateStore
	var run *store.Run
	if cfg.State.DSN != "" {
		stateStore, err = store.NewStateStore(cfg.State.DSN)
		if err != nil {
			exporter.Abort()
			return fmt.Errorf("failed to open state store: %w", err)
		}
		defer stateStore.Close()

		run, err = stateStore.StartRun(seed)
		if err != nil {
			exporter.Abort()
			return fmt.Errorf("failed to start run: %w", err)
		}
		visited = stateStore.VisitedSet(run.RunID)
		log.WithField("run_id", run.RunID).Info("Recording run state")
	}

	c := crawler.NewCrawler(&cfg.Crawl, nil, visited, cfg.ResolvedSelectors(), log)
	started := time.Now()
	stats, crawlErr := c.Run(ctx, seed, exporter)

	if stateStore != nil && stats != nil {
		if err := stateStore.FinishRun(run.RunID, stats.Records, stats.Failures); err != nil {
			log.WithError(err).Warn("Could not record run outcome")
		}
	}

	if crawlErr != nil {
		exporter.Abort()
		if errors.Is(crawlErr, context.Canceled) {
			return fmt.Errorf("crawl interrupted, %s left unchanged", cfg.Output.Path)
		}
		return fmt.Errorf("crawl failed: %w", crawlErr)
	}

	if err := exporter.Close(); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	printSummary(stats, cfg.Output.Path, format, time.Since(started))
	return nil
}

// seedURL returns the listing page to start from. Exactly one of a seed
// argument or a user name must be given.
func seedURL(args []string, user string) (string, error) {
	user = strings.TrimSpace(user)

	switch {
	case len(args) > 0 && user != "":
		return "", fmt.Errorf("give either a seed URL or --user, not both")
	case len(args) > 0:
		return args[0], nil
	case user != "":
		return userListingURL(user), nil
	default:
		return "", fmt.Errorf("a seed URL or --user is required")
	}
}

// userListingURL builds the repositories tab of a GitHub profile.
func userListingURL(user string) string {
	u := url.URL{
		Scheme:   "https",
		Host:     "github.com",
		Path:     "/" + user,
		RawQuery: url.Values{"tab": {"repositories"}}.Encode(),
	}
	return u.String()
}

// applyCrawlFlags overrides config values with flags given on the command
// line.
func applyCrawlFlags(flags *pflag.FlagSet, opts *crawlOptions, cfg *config.FileConfig) {
	if flags.Changed("output") {
		cfg.Output.Path = opts.output
	}
	if flags.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if flags.Changed("state") {
		cfg.State.DSN = opts.state
	}
	if flags.Changed("delay") {
		cfg.Crawl.Delay = opts.delay
	}
	if flags.Changed("concurrency") {
		cfg.Crawl.Concurrency = opts.concurrency
	}
	if flags.Changed("max-pages") {
		cfg.Crawl.MaxPages = opts.maxPages
	}
	if opts.noAutoThrottle {
		cfg.Crawl.AutoThrottle.Enabled = false
	}
}

// outputFormat returns the configured format, or the one implied by the
// output path when none is set.
func outputFormat(output config.OutputConfig) (export.Format, error) {
	if output.Format == "" {
		return export.FormatForPath(output.Path), nil
	}
	return export.ParseFormat(output.Format)
}

func printSummary(stats *crawler.Stats, path string, format export.Format, elapsed time.Duration) {
	fmt.Println("Crawl completed:")
	fmt.Printf("  Listing pages: %d\n", stats.ListingPages)
	fmt.Printf("  Repository pages: %d\n", stats.DetailPages)
	fmt.Printf("  Records exported: %d\n", stats.Records)
	fmt.Printf("  Duplicates skipped: %d\n", stats.Duplicates)
	fmt.Printf("  Failed requests: %d\n", stats.Failures)
	fmt.Printf("  Duration: %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("✓ Wrote %s (%s)\n", path, format)
}
