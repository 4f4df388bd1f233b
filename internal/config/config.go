package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hankw/whisperwatch/internal/device"
	"github.com/hankw/whisperwatch/internal/journal"
	"github.com/hankw/whisperwatch/internal/ocr"
	"github.com/hankw/whisperwatch/internal/presence"
	"github.com/hankw/whisperwatch/internal/vision"
	"github.com/hankw/whisperwatch/internal/watcher"
)

// Config represents the application configuration
type Config struct {
	Targets []presence.Target `toml:"targets"`
	Watcher watcher.Config    `toml:"watcher"`
	Scraper presence.Config   `toml:"scraper"`
	Device  device.Config     `toml:"device"`
	Vision  vision.Config     `toml:"vision"`
	OCR     OCRConfig         `toml:"ocr"`
	Journal JournalConfig     `toml:"journal"`
	Logging LoggingConfig     `toml:"logging"`
}

// OCRConfig groups recognition and verification settings
type OCRConfig struct {
	Recognizer ocr.RecognizerConfig `toml:"recognizer"`
	Verifier   ocr.VerifierConfig   `toml:"verifier"`
}

// JournalConfig groups journal database and write-behind settings
type JournalConfig struct {
	Database journal.DBConfig `toml:"database"`
	Recorder journal.Config   `toml:"recorder"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Watcher: watcher.DefaultConfig(),
		Scraper: presence.DefaultConfig(),
		Device:  device.DefaultConfig(),
		Vision:  vision.DefaultConfig(),
		OCR: OCRConfig{
			Recognizer: ocr.DefaultRecognizerConfig(),
			Verifier:   ocr.DefaultVerifierConfig(),
		},
		Journal: JournalConfig{
			Database: journal.DefaultDBConfig(),
			Recorder: journal.DefaultConfig(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// Parse TOML file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// If no config file specified, return defaults
	if configPath == "" {
		return config, nil
	}

	// Load from file if it exists
	fileConfig, err := LoadFromFile(configPath)
	if err != nil {
		return nil, err
	}

	return fileConfig, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Target validation
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, target := range c.Targets {
		if target.ID == "" {
			return fmt.Errorf("target with empty id (url %q)", target.URL)
		}
		if target.URL == "" {
			return fmt.Errorf("target %q has no url", target.ID)
		}
		if seen[target.ID] {
			return fmt.Errorf("duplicate target id %q", target.ID)
		}
		seen[target.ID] = true
	}

	// Watcher validation
	if c.Watcher.TickInterval <= 0 {
		return fmt.Errorf("watcher tick_interval must be positive")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher poll_interval must be positive")
	}
	if c.Watcher.PollJitter < 0 || c.Watcher.PollJitter >= c.Watcher.PollInterval {
		return fmt.Errorf("watcher poll_jitter must be in [0, poll_interval)")
	}
	if c.Watcher.SendInterval <= 0 {
		return fmt.Errorf("watcher send_interval must be positive")
	}
	if c.Watcher.PollWorkers <= 0 {
		return fmt.Errorf("watcher poll_workers must be positive")
	}

	// Scraper validation
	if err := c.Scraper.Validate(); err != nil {
		return fmt.Errorf("scraper: %w", err)
	}

	// Device validation
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}

	// Vision validation
	if err := c.Vision.Validate(); err != nil {
		return fmt.Errorf("vision: %w", err)
	}

	// OCR validation
	if len(c.OCR.Recognizer.Languages) == 0 {
		return fmt.Errorf("ocr at least one recognizer language must be specified")
	}
	if c.OCR.Verifier.Retries <= 0 {
		return fmt.Errorf("ocr verifier retries must be positive")
	}
	if c.OCR.Verifier.RetryDelay < 0 {
		return fmt.Errorf("ocr verifier retry_delay must not be negative")
	}

	// Journal validation
	if c.Journal.Database.Enabled {
		if c.Journal.Database.DSN == "" {
			return fmt.Errorf("journal database DSN must be specified")
		}
		if c.Journal.Recorder.FlushInterval <= 0 {
			return fmt.Errorf("journal flush_interval must be positive")
		}
		if c.Journal.Recorder.FlushThreshold <= 0 {
			return fmt.Errorf("journal flush_threshold must be positive")
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}
