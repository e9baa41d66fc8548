package testsupport

import (
	"path/filepath"
	"testing"

	"medintake/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.StorageDir = filepath.Join(base, "storage")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Processing.Workers = 2
	cfgVal.Indexing.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers overrides the processing worker count on the test config.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.Workers = count
	}
}

// WithThresholds overrides the matching thresholds on the test config.
func WithThresholds(autoLink, review float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matching.AutoLinkThreshold = autoLink
		b.cfg.Matching.ReviewThreshold = review
	}
}

// WithStrategy overrides the matching strategy on the test config.
func WithStrategy(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matching.Strategy = name
	}
}

// WithIndexing points the test config at a document index endpoint.
func WithIndexing(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Indexing.Enabled = true
		b.cfg.Indexing.BaseURL = baseURL
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
