package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pevans/repocrawl/crawler"
	"github.com/pevans/repocrawl/scraper"
	"gopkg.in/yaml.v3"
)

// OutputConfig represents export settings from config file.
type OutputConfig struct {
	Path string `yaml:"path"`
	// Empty means infer from the path extension
	Format string `yaml:"format"`
}

// StateConfig represents the run state database. An empty DSN disables it.
type StateConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig represents logging settings from config file.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// FileConfig represents the structure of ~/.repocrawl/config.yaml.
type FileConfig struct {
	Crawl     crawler.Config     `yaml:"crawl"`
	Output    OutputConfig       `yaml:"output"`
	State     StateConfig        `yaml:"state"`
	Log       LogConfig          `yaml:"log"`
	Selectors *scraper.Selectors `yaml:"selectors"`
}

// Default returns the configuration used when no file is present.
func Default() *FileConfig {
	return &FileConfig{
		Crawl: *crawler.DefaultConfig(),
		Output: OutputConfig{
			Path: "repositories.xml",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// DefaultPath returns the config file location: REPOCRAWL_CONFIG if set,
// otherwise ~/.repocrawl/config.yaml.
func DefaultPath() (string, error) {
	if path := os.Getenv("REPOCRAWL_CONFIG"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".repocrawl", "config.yaml"), nil
}

// LoadConfigFile loads configuration from path, or from DefaultPath when path
// is empty. Values missing from the file keep their defaults. Returns nil if
// the file doesn't exist (not an error). Returns error if the file exists but
// cannot be parsed.
func LoadConfigFile(path string) (*FileConfig, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil // File doesn't exist -- not an error
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML on top of the defaults
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Load reads the config file if there is one and applies environment
// overrides.
func Load(path string) (*FileConfig, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides file values with REPOCRAWL_OUTPUT and
// REPOCRAWL_STATE_DSN.
func (c *FileConfig) ApplyEnv() {
	c.Output.Path = getEnv("REPOCRAWL_OUTPUT", c.Output.Path)
	c.State.DSN = getEnv("REPOCRAWL_STATE_DSN", c.State.DSN)
}

// ResolvedSelectors returns the default selectors with the file's overrides
// applied.
func (c *FileConfig) ResolvedSelectors() scraper.Selectors {
	return scraper.DefaultSelectors().Merge(c.Selectors)
}
