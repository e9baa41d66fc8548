package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"medintake/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "medintake", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Matching.Strategy != "weighted" {
		t.Fatalf("unexpected default strategy: %q", cfg.Matching.Strategy)
	}
	if cfg.Matching.AutoLinkThreshold != 0.95 {
		t.Fatalf("unexpected auto link threshold: %v", cfg.Matching.AutoLinkThreshold)
	}
	if cfg.Matching.ReviewThreshold != 0.8 {
		t.Fatalf("unexpected review threshold: %v", cfg.Matching.ReviewThreshold)
	}
	if cfg.Processing.Workers != 5 {
		t.Fatalf("unexpected default workers: %d", cfg.Processing.Workers)
	}
	if cfg.Indexing.Enabled {
		t.Fatal("expected indexing disabled by default")
	}
	if cfg.Notifications.NtfyTopic != "" {
		t.Fatalf("expected empty ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.StorageDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "medintake.toml")

	type payload struct {
		Matching struct {
			Strategy          string  `toml:"strategy"`
			AutoLinkThreshold float64 `toml:"auto_link_threshold"`
			ReviewThreshold   float64 `toml:"review_threshold"`
		} `toml:"matching"`
		Processing struct {
			Workers           int      `toml:"workers"`
			AllowedExtensions []string `toml:"allowed_extensions"`
		} `toml:"processing"`
	}
	custom := payload{}
	custom.Matching.Strategy = "basic"
	custom.Matching.AutoLinkThreshold = 0.9
	custom.Matching.ReviewThreshold = 0.7
	custom.Processing.Workers = 2
	custom.Processing.AllowedExtensions = []string{"PDF", ".txt"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Matching.Strategy != "basic" {
		t.Fatalf("expected strategy override, got %q", cfg.Matching.Strategy)
	}
	if cfg.Matching.AutoLinkThreshold != 0.9 || cfg.Matching.ReviewThreshold != 0.7 {
		t.Fatalf("expected threshold overrides, got %v/%v", cfg.Matching.AutoLinkThreshold, cfg.Matching.ReviewThreshold)
	}
	if cfg.Processing.Workers != 2 {
		t.Fatalf("expected workers override, got %d", cfg.Processing.Workers)
	}
	want := []string{".pdf", ".txt"}
	if len(cfg.Processing.AllowedExtensions) != len(want) {
		t.Fatalf("unexpected extensions: %v", cfg.Processing.AllowedExtensions)
	}
	for i, ext := range want {
		if cfg.Processing.AllowedExtensions[i] != ext {
			t.Fatalf("expected extension %q at %d, got %v", ext, i, cfg.Processing.AllowedExtensions)
		}
	}
}

func TestEnvFallbacksApplyWhenFileOmitsValues(t *testing.T) {
	t.Setenv("MEDINTAKE_NTFY_TOPIC", "env-topic")
	t.Setenv("MEDINTAKE_INDEX_URL", "http://env-index:6333/")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "env-topic" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Indexing.BaseURL != "http://env-index:6333" {
		t.Fatalf("expected trimmed index url from env, got %q", cfg.Indexing.BaseURL)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "auto_link_threshold") {
		t.Fatalf("sample config missing matching section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Matching.AutoLinkThreshold != 0.95 {
		t.Fatalf("sample auto link threshold mismatch: %v", cfg.Matching.AutoLinkThreshold)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		keyword string
	}{
		{
			name:    "bad strategy",
			mutate:  func(c *config.Config) { c.Matching.Strategy = "phonetic" },
			keyword: "strategy",
		},
		{
			name:    "auto threshold out of range",
			mutate:  func(c *config.Config) { c.Matching.AutoLinkThreshold = 1.5 },
			keyword: "auto_link_threshold",
		},
		{
			name:    "review above auto",
			mutate:  func(c *config.Config) { c.Matching.ReviewThreshold = 0.99 },
			keyword: "review_threshold",
		},
		{
			name:    "zero workers",
			mutate:  func(c *config.Config) { c.Processing.Workers = 0 },
			keyword: "workers",
		},
		{
			name:    "indexing enabled without url",
			mutate:  func(c *config.Config) { c.Indexing.Enabled = true },
			keyword: "base_url",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Logging.Format = "xml" },
			keyword: "format",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.keyword) {
				t.Fatalf("expected error mentioning %q, got %v", tc.keyword, err)
			}
		})
	}
}
