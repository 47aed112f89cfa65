package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"forge/internal/config"
)

// ConfigOption customizes a config produced by NewConfig.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and a registry base URL that fails fast instead of reaching the network,
// then applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.DB.Path = filepath.Join(base, "forge.db")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Downloads.Dir = filepath.Join(base, "models")
	cfgVal.Images.Dir = filepath.Join(base, "images")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Downloads.RegistryBaseURL = "http://127.0.0.1:1"

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithModels sets the configured model descriptors on the test config.
func WithModels(models ...config.ModelConfig) ConfigOption {
	return func(b *configBuilder) { b.cfg.Models = models }
}

// WithRegistryBaseURL overrides the download registry's base URL, e.g. to
// point at an httptest.Server stub.
func WithRegistryBaseURL(url string) ConfigOption {
	return func(b *configBuilder) { b.cfg.Downloads.RegistryBaseURL = url }
}

// WithPortRange overrides the registry's allocatable port range.
func WithPortRange(start, end int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Registry.PortRangeStart = start
		b.cfg.Registry.PortRangeEnd = end
	}
}

// WithStubbedModelBinary writes a stub executable that exits 0 and prepends
// its directory to PATH, returning the resolved absolute path so callers
// can assign it to a ModelConfig's Command field.
func WithStubbedModelBinary(name string) (ConfigOption, func(t testing.TB) string) {
	var resolved string
	opt := func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			b.t.Fatalf("write stub %s: %v", name, err)
		}
		resolved = target

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() { _ = os.Setenv("PATH", oldPath) })
	}
	return opt, func(t testing.TB) string {
		t.Helper()
		return resolved
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.DB.Path)
}
