package testsupport

import (
	"path/filepath"
	"testing"

	"snapsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.PhotosDir = filepath.Join(base, "photos")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Upload.Endpoint = "127.0.0.1:0"
	cfg.Upload.Bucket = "test-bucket"
	cfg.Upload.AccessKey = "test"
	cfg.Upload.SecretKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithDedupPolicy overrides the deduplication policy on the test config.
func WithDedupPolicy(policy string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Dedup.Policy = policy
	}
}

// WithMaxRetries overrides the retry budget on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxRetries = n
	}
}

// WithRateLimit overrides the sliding window parameters on the test config.
func WithRateLimit(max, windowSeconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.RateLimit.MaxUploadsPerWindow = max
		cfg.RateLimit.WindowSeconds = windowSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
