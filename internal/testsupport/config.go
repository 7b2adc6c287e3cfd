package testsupport

import (
	"testing"

	"beacon/internal/config"
)

// ConfigOption customizes a generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with a unique temp repository root per
// test and free-port-friendly defaults, then applies any options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DBPath = t.TempDir()
	cfg.Port = 0
	cfg.Redis.Socket = ""

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithFilters sets discovery address filters on the test config.
func WithFilters(filters ...string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Filters = filters
	}
}

// WithLogServer enables the log aggregator writing into a temp folder.
func WithLogServer(t testing.TB) ConfigOption {
	return func(cfg *config.Config) {
		cfg.LogServer.Port = FreePort(t)
		cfg.LogServer.OutputFolder = t.TempDir()
	}
}
