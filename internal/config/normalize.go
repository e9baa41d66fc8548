package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMatching()
	c.normalizeProcessing()
	c.normalizeIndexing()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMatching() {
	c.Matching.Strategy = strings.ToLower(strings.TrimSpace(c.Matching.Strategy))
	if c.Matching.Strategy == "" {
		c.Matching.Strategy = defaultMatchStrategy
	}
	if c.Matching.MaxCandidates <= 0 {
		c.Matching.MaxCandidates = defaultMaxCandidates
	}
}

func (c *Config) normalizeProcessing() {
	if len(c.Processing.AllowedExtensions) == 0 {
		c.Processing.AllowedExtensions = defaultAllowedExtensions()
	}
	normalized := make([]string, 0, len(c.Processing.AllowedExtensions))
	for _, ext := range c.Processing.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.Processing.AllowedExtensions = normalized
	if c.Processing.StaleResetMinutes <= 0 {
		c.Processing.StaleResetMinutes = defaultStaleResetMinutes
	}
}

func (c *Config) normalizeIndexing() {
	c.Indexing.BaseURL = strings.TrimRight(strings.TrimSpace(c.Indexing.BaseURL), "/")
	if c.Indexing.BaseURL == "" {
		if value, ok := os.LookupEnv("MEDINTAKE_INDEX_URL"); ok {
			c.Indexing.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Indexing.Collection = strings.TrimSpace(c.Indexing.Collection)
	if c.Indexing.Collection == "" {
		c.Indexing.Collection = defaultIndexCollection
	}
	if c.Indexing.RequestTimeout <= 0 {
		c.Indexing.RequestTimeout = defaultIndexTimeout
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MEDINTAKE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
