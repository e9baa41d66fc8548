package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	StorageDir string `toml:"storage_dir"`
	LogDir     string `toml:"log_dir"`
}

// Matching contains thresholds and strategy selection for patient identity
// matching.
type Matching struct {
	Strategy          string  `toml:"strategy"`
	AutoLinkThreshold float64 `toml:"auto_link_threshold"`
	ReviewThreshold   float64 `toml:"review_threshold"`
	MaxCandidates     int     `toml:"max_candidates"`
}

// Processing contains batch pipeline settings.
type Processing struct {
	Workers           int      `toml:"workers"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	MaxFileSizeMiB    int      `toml:"max_file_size_mib"`
	StaleResetMinutes int      `toml:"stale_reset_minutes"`
}

// Indexing contains configuration for the external content index service.
type Indexing struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Collection     string `toml:"collection"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Sessions       bool   `toml:"sessions"`
	Review         bool   `toml:"review"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for medintake.
//
// Configuration sections by subsystem:
//   - Paths: registry, blob storage, and log directories
//   - Matching: identity match thresholds and strategy
//   - Processing: worker count and upload constraints
//   - Indexing: external content index service
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Matching      Matching      `toml:"matching"`
	Processing    Processing    `toml:"processing"`
	Indexing      Indexing      `toml:"indexing"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/medintake/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("medintake.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StorageDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SessionLogDir returns the directory holding per-session processing logs.
func (c *Config) SessionLogDir() string {
	return filepath.Join(c.Paths.LogDir, "sessions")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
