package main

import (
	"os"
	"strings"

	"github.com/pevans/repocrawl/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "repocrawl",
	Short: "Crawl a GitHub user's repositories into a structured export",
	Long: `repocrawl walks a GitHub user's repository listing, follows its
pagination, visits every repository page and writes one record per
repository (URL, description, last update, languages and commit count)
to an XML, JSON or YAML file.

Configuration is read from ~/.repocrawl/config.yaml when present
(override with --config or REPOCRAWL_CONFIG).`,
}

// Execute runs the root command.
func Execute() error {
	// Errors are printed once by main
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.repocrawl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

// newLogger builds the process logger from the log section and the global
// flags.
func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	format := cfg.Format
	if logFormat != "" {
		format = logFormat
	}
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if err != nil && cfg.Level != "" {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
	}

	return log
}
