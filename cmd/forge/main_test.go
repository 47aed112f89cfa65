package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"forge/internal/config"
	"forge/internal/daemon"
	"forge/internal/testsupport"
)

// freeBindAddr reserves an ephemeral TCP port and returns its address,
// closing the reservation immediately so the daemon can bind it.
func freeBindAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func setupTestDaemon(t *testing.T) (*daemon.Daemon, string) {
	t.Helper()
	bind := freeBindAddr(t)
	cfg := testsupport.NewConfig(t,
		testsupport.WithModels(config.ModelConfig{
			ID:       "sd-base",
			Name:     "Stable Diffusion Base",
			Command:  "echo",
			LoadMode: "on_demand",
			ExecMode: "cli",
		}),
	)
	cfg.Server.Bind = bind

	d, err := daemon.New(cfg, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return d, cfg.Server.Bind
}

func runCLI(t *testing.T, bind string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--bind", bind}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestCLIJobsLifecycle(t *testing.T) {
	_, bind := setupTestDaemon(t)

	out, err := runCLI(t, bind, "jobs", "generate", "--model", "sd-base", "--prompt", "a watercolor fox")
	if err != nil {
		t.Fatalf("jobs generate: %v", err)
	}
	if !strings.Contains(out, "Job submitted:") {
		t.Fatalf("unexpected generate output: %q", out)
	}
	id := strings.TrimSpace(strings.TrimPrefix(out, "Job submitted:"))

	out, err = runCLI(t, bind, "jobs", "show", id)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	if !strings.Contains(out, id) {
		t.Fatalf("expected job id in show output, got %q", out)
	}

	out, err = runCLI(t, bind, "jobs", "cancel", id)
	if err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	if !strings.Contains(out, "cancelled") {
		t.Fatalf("unexpected cancel output: %q", out)
	}
}

func TestCLIJobsEditUploadsImage(t *testing.T) {
	_, bind := setupTestDaemon(t)

	imagePath := filepath.Join(t.TempDir(), "source.png")
	if err := os.WriteFile(imagePath, []byte("source-bytes"), 0o644); err != nil {
		t.Fatalf("write source image: %v", err)
	}

	out, err := runCLI(t, bind, "jobs", "edit", "--model", "sd-base", "--prompt", "make it blue", "--image", imagePath)
	if err != nil {
		t.Fatalf("jobs edit: %v", err)
	}
	if !strings.Contains(out, "Job submitted:") {
		t.Fatalf("unexpected edit output: %q", out)
	}
	id := strings.TrimSpace(strings.TrimPrefix(out, "Job submitted:"))

	out, err = runCLI(t, bind, "jobs", "show", id)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	if !strings.Contains(out, "edit") {
		t.Fatalf("expected edit job type in show output, got %q", out)
	}
}

func TestCLIJobsList(t *testing.T) {
	_, bind := setupTestDaemon(t)
	for i := 0; i < 2; i++ {
		if _, err := runCLI(t, bind, "jobs", "generate", "--model", "sd-base", "--prompt", "p"); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	out, err := runCLI(t, bind, "jobs", "list")
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	if !strings.Contains(out, "sd-base") {
		t.Fatalf("expected listed job, got %q", out)
	}
}

func TestCLIModelsList(t *testing.T) {
	_, bind := setupTestDaemon(t)
	out, err := runCLI(t, bind, "models", "list")
	if err != nil {
		t.Fatalf("models list: %v", err)
	}
	if !strings.Contains(out, "sd-base") {
		t.Fatalf("expected model in output, got %q", out)
	}
}

func TestCLIModelsStatus(t *testing.T) {
	_, bind := setupTestDaemon(t)
	out, err := runCLI(t, bind, "models", "status", "sd-base")
	if err != nil {
		t.Fatalf("models status: %v", err)
	}
	if !strings.Contains(out, "stopped") {
		t.Fatalf("expected stopped status, got %q", out)
	}
}

func TestCLIDaemonStatusReachable(t *testing.T) {
	_, bind := setupTestDaemon(t)
	out, err := runCLI(t, bind, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	if !strings.Contains(out, "running") {
		t.Fatalf("expected running status, got %q", out)
	}
}

func TestCLIDaemonStatusUnreachable(t *testing.T) {
	out, err := runCLI(t, "127.0.0.1:1", "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("expected not-running status, got %q", out)
	}
}

func TestCLIStatus(t *testing.T) {
	_, bind := setupTestDaemon(t)

	downloadsDir := t.TempDir()
	logDir := t.TempDir()
	configPath := t.TempDir() + "/forge.toml"
	configBody := fmt.Sprintf(`
[server]
bind = "127.0.0.1:0"

[db]
path = "%s/forge.db"

[queue]
poll_interval_ms = 500
error_retry_interval_ms = 1000
heartbeat_interval_ms = 1000
heartbeat_timeout_ms = 5000

[downloads]
registry_base_url = "http://127.0.0.1:1"
dir = "%s"
max_concurrent_jobs = 1
request_timeout_seconds = 30

[logging]
dir = "%s"
`, t.TempDir(), downloadsDir, logDir)
	if err := os.WriteFile(configPath, []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--bind", bind, "--config", configPath, "status"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("status: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Daemon") || !strings.Contains(out, "running at "+bind) {
		t.Fatalf("unexpected status output: %q", out)
	}
	if !strings.Contains(out, "Downloads directory") {
		t.Fatalf("expected downloads directory check, got %q", out)
	}
}

func TestCLIConfigInit(t *testing.T) {
	out, err := runCLI(t, "", "config", "init", "--path", t.TempDir()+"/forge.toml")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected config init output: %q", out)
	}
}

func TestCLIConfigValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := t.TempDir() + "/forge.toml"
	if err := config.CreateSample(configPath); err != nil {
		t.Fatalf("create sample config: %v", err)
	}
	out, err := runCLI(t, "", "--config", configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Fatalf("unexpected config validate output: %q", out)
	}
}
