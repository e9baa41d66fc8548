package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateIndexing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		return errors.New("paths.storage_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateMatching() error {
	switch c.Matching.Strategy {
	case "weighted", "basic":
	default:
		return fmt.Errorf("matching.strategy must be %q or %q, got %q", "weighted", "basic", c.Matching.Strategy)
	}
	if c.Matching.AutoLinkThreshold <= 0 || c.Matching.AutoLinkThreshold > 1 {
		return errors.New("matching.auto_link_threshold must be between 0 and 1")
	}
	if c.Matching.ReviewThreshold <= 0 || c.Matching.ReviewThreshold > 1 {
		return errors.New("matching.review_threshold must be between 0 and 1")
	}
	if c.Matching.ReviewThreshold > c.Matching.AutoLinkThreshold {
		return errors.New("matching.review_threshold must not exceed matching.auto_link_threshold")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if err := ensurePositiveMap(map[string]int{
		"processing.workers":             c.Processing.Workers,
		"processing.max_file_size_mib":   c.Processing.MaxFileSizeMiB,
		"processing.stale_reset_minutes": c.Processing.StaleResetMinutes,
	}); err != nil {
		return err
	}
	if len(c.Processing.AllowedExtensions) == 0 {
		return errors.New("processing.allowed_extensions must list at least one extension")
	}
	return nil
}

func (c *Config) validateIndexing() error {
	if !c.Indexing.Enabled {
		return nil
	}
	if c.Indexing.BaseURL == "" {
		return errors.New("indexing.base_url must be set when indexing.enabled is true (or set MEDINTAKE_INDEX_URL)")
	}
	if c.Indexing.RequestTimeout <= 0 {
		return errors.New("indexing.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q, got %q", "console", "json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
