package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"forge/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
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

	wantDB := filepath.Join(tempHome, ".local", "share", "forge", "forge.db")
	if cfg.DB.Path != wantDB {
		t.Fatalf("unexpected db path: got %q want %q", cfg.DB.Path, wantDB)
	}
	if cfg.Server.Bind != "127.0.0.1:8390" {
		t.Fatalf("unexpected server bind: %q", cfg.Server.Bind)
	}
	if cfg.Queue.PollIntervalMs != config.Default().Queue.PollIntervalMs {
		t.Fatalf("unexpected poll interval: %d", cfg.Queue.PollIntervalMs)
	}
	if cfg.Downloads.MaxConcurrentJobs != 1 {
		t.Fatalf("unexpected max concurrent downloads: %d", cfg.Downloads.MaxConcurrentJobs)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Logging.Dir, cfg.Downloads.Dir} {
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
	configPath := filepath.Join(tempDir, "forge.toml")

	type payload struct {
		Server struct {
			Bind string `toml:"bind"`
		} `toml:"server"`
		Queue struct {
			PollIntervalMs int `toml:"poll_interval_ms"`
		} `toml:"queue"`
		Downloads struct {
			MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
		} `toml:"downloads"`
	}
	custom := payload{}
	custom.Server.Bind = "127.0.0.1:9999"
	custom.Queue.PollIntervalMs = 250
	custom.Downloads.MaxConcurrentJobs = 3
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
	if cfg.Server.Bind != "127.0.0.1:9999" {
		t.Fatalf("expected bind override, got %q", cfg.Server.Bind)
	}
	if cfg.Queue.PollIntervalMs != 250 {
		t.Fatalf("expected poll interval 250, got %d", cfg.Queue.PollIntervalMs)
	}
	if cfg.Downloads.MaxConcurrentJobs != 3 {
		t.Fatalf("expected max concurrent downloads 3, got %d", cfg.Downloads.MaxConcurrentJobs)
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
	if !strings.Contains(string(contents), "sdxl-base") {
		t.Fatalf("sample config missing placeholder model: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if len(cfg.Models) == 0 {
		t.Fatal("expected sample config to declare at least one model")
	}
}

func TestModelByID(t *testing.T) {
	cfg := config.Default()
	cfg.Models = []config.ModelConfig{{ID: "sdxl-base"}}

	m, ok := cfg.ModelByID("sdxl-base")
	if !ok || m.ID != "sdxl-base" {
		t.Fatalf("expected to find sdxl-base model, got %+v ok=%v", m, ok)
	}
	if _, ok := cfg.ModelByID("missing"); ok {
		t.Fatal("expected missing model to not be found")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.HeartbeatTimeoutMs = cfg.Queue.HeartbeatIntervalMs
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when heartbeat timeout <= interval")
	}

	cfg = config.Default()
	cfg.Downloads.MaxConcurrentJobs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive max_concurrent_jobs")
	}

	cfg = config.Default()
	cfg.Models = []config.ModelConfig{{ID: "a", Command: "run", ExecMode: "bogus", LoadMode: "on_demand", StartupTimeoutMs: 1000}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid exec_mode")
	}

	cfg = config.Default()
	cfg.Models = []config.ModelConfig{{ID: "a", Command: "run", ExecMode: "server", LoadMode: "on_demand", StartupTimeoutMs: 1000}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when server exec_mode is missing api_url")
	}

	cfg = config.Default()
	cfg.Models = []config.ModelConfig{
		{ID: "a", Command: "run", ExecMode: "cli", LoadMode: "on_demand", StartupTimeoutMs: 1000},
		{ID: "a", Command: "run", ExecMode: "cli", LoadMode: "on_demand", StartupTimeoutMs: 1000},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate model id")
	}
}
