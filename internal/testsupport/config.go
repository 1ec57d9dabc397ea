package testsupport

import (
	"path/filepath"
	"testing"

	"courseopt/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in a fresh temp directory with the
// native encoder selected so tests never depend on ImageMagick.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(base, "source-courses")
	cfg.Paths.OptimizedDir = filepath.Join(base, "optimized-courses")
	cfg.Paths.TmpDir = filepath.Join(base, "tmp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Imaging.Encoder = config.EncoderNative
	cfg.History.Path = filepath.Join(base, "logs", "history.db")
	cfg.Logging.RetentionDays = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithWorkers sets the inter-course worker count.
func WithWorkers(n int) ConfigOption {
	return func(c *config.Config) { c.Workflow.Workers = n }
}

// WithManifestPolicy selects lenient or strict manifest handling.
func WithManifestPolicy(policy string) ConfigOption {
	return func(c *config.Config) { c.Manifest.Policy = policy }
}

// WithHistory enables or disables the run history store.
func WithHistory(enabled bool) ConfigOption {
	return func(c *config.Config) { c.History.Enabled = enabled }
}
