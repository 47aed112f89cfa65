package modelmgr

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"forge/internal/config"
	"forge/internal/models"
	"forge/internal/registry"
)

// TestMain intercepts re-exec of the test binary as a fake engine process.
// Spawned "models" in tests run os.Args[0] itself with
// GO_WANT_HELPER_PROCESS=1 set, so the child runs helperMain instead of the
// real test suite. This mirrors the re-exec idiom used throughout the
// standard library's own os/exec tests.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		helperMain()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func helperMain() {
	args := os.Args
	idx := -1
	for i, a := range args {
		if a == "--" {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(args) {
		os.Exit(2)
	}
	rest := args[idx+1:]
	switch rest[0] {
	case "serve-ok":
		port := rest[1]
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		_ = http.ListenAndServe("127.0.0.1:"+port, mux)
	case "exit-fail":
		os.Exit(1)
	case "hang":
		time.Sleep(time.Hour)
	}
}

func helperEnv(t *testing.T) func() {
	t.Helper()
	if err := os.Setenv("GO_WANT_HELPER_PROCESS", "1"); err != nil {
		t.Fatalf("setenv: %v", err)
	}
	return func() { _ = os.Unsetenv("GO_WANT_HELPER_PROCESS") }
}

func testConfig(descs ...config.ModelConfig) *config.Config {
	cfg := config.Default()
	cfg.Models = descs
	cfg.Registry.PortRangeStart = 29000
	cfg.Registry.PortRangeEnd = 29050
	cfg.Registry.StopGraceMs = 200
	return &cfg
}

func newManager(cfg *config.Config, reg *registry.Registry) *Manager {
	return New(cfg, models.New(cfg), reg, nil)
}

func TestGetAllDefault(t *testing.T) {
	cfg := testConfig(
		config.ModelConfig{ID: "m1", Command: "x", ExecMode: "server"},
		config.ModelConfig{ID: "m2", Command: "y", ExecMode: "server", LoadMode: "preload"},
	)
	mgr := newManager(cfg, registry.New())

	if _, ok := mgr.Get("missing"); ok {
		t.Fatal("expected missing model to be absent")
	}
	if len(mgr.All()) != 2 {
		t.Fatalf("expected 2 models, got %d", len(mgr.All()))
	}
	def, ok := mgr.Default()
	if !ok || def.ID != "m2" {
		t.Fatalf("expected preload model as default, got %+v", def)
	}
}

func TestStartUnknownModel(t *testing.T) {
	mgr := newManager(testConfig(), registry.New())
	_, err := mgr.Start(context.Background(), "nope")
	if !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartCLIModelReturnsStubWithoutRegistering(t *testing.T) {
	cfg := testConfig(config.ModelConfig{ID: "cli1", Command: "true", ExecMode: "cli"})
	reg := registry.New()
	mgr := newManager(cfg, reg)

	record, err := mgr.Start(context.Background(), "cli1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if record.ExecMode != registry.ExecCLI {
		t.Fatalf("expected cli exec mode, got %s", record.ExecMode)
	}
	if _, ok := reg.Get("cli1"); ok {
		t.Fatal("expected cli-mode start not to register a record")
	}
}

func TestStartServerModelBecomesRunning(t *testing.T) {
	cleanup := helperEnv(t)
	defer cleanup()

	cfg := testConfig(config.ModelConfig{
		ID:               "srv1",
		Command:          os.Args[0],
		Args:             []string{"--", "serve-ok", "{port}"},
		APIURL:           "http://127.0.0.1:{port}",
		ExecMode:         "server",
		StartupTimeoutMs: 3000,
	})
	reg := registry.New()
	mgr := newManager(cfg, reg)

	record, err := mgr.Start(context.Background(), "srv1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if record.Status != registry.StatusRunning {
		t.Fatalf("expected running status, got %s", record.Status)
	}
	if !mgr.registry.IsRunning("srv1") {
		t.Fatal("expected registry to report model running")
	}

	url, err := mgr.EnsureRunning(context.Background(), "srv1")
	if err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	if url == "" {
		t.Fatal("expected non-empty api url")
	}

	if err := mgr.Stop(context.Background(), "srv1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, ok := reg.Get("srv1"); ok {
		t.Fatal("expected record removed after stop")
	}
}

func TestStartServerModelExitsEarly(t *testing.T) {
	cleanup := helperEnv(t)
	defer cleanup()

	cfg := testConfig(config.ModelConfig{
		ID:               "fail1",
		Command:          os.Args[0],
		Args:             []string{"--", "exit-fail"},
		APIURL:           "http://127.0.0.1:{port}",
		ExecMode:         "server",
		StartupTimeoutMs: 2000,
	})
	mgr := newManager(cfg, registry.New())

	_, err := mgr.Start(context.Background(), "fail1")
	if err == nil {
		t.Fatal("expected start failure for a process that exits before ready")
	}
	if !IsStartFailure(err) {
		t.Fatalf("expected ErrStartFailure, got %v", err)
	}
}

func TestStartServerModelTimesOut(t *testing.T) {
	cleanup := helperEnv(t)
	defer cleanup()

	cfg := testConfig(config.ModelConfig{
		ID:               "hang1",
		Command:          os.Args[0],
		Args:             []string{"--", "hang"},
		APIURL:           "http://127.0.0.1:{port}",
		ExecMode:         "server",
		StartupTimeoutMs: 300,
	})
	reg := registry.New()
	mgr := newManager(cfg, reg)

	_, err := mgr.Start(context.Background(), "hang1")
	if !IsStartupTimeout(err) {
		t.Fatalf("expected ErrStartupTimeout, got %v", err)
	}
	if _, ok := reg.Get("hang1"); ok {
		t.Fatal("expected no record left behind after startup timeout")
	}
}

func TestStartAlreadyRunning(t *testing.T) {
	cleanup := helperEnv(t)
	defer cleanup()

	cfg := testConfig(config.ModelConfig{
		ID:               "srv2",
		Command:          os.Args[0],
		Args:             []string{"--", "serve-ok", "{port}"},
		APIURL:           "http://127.0.0.1:{port}",
		ExecMode:         "server",
		StartupTimeoutMs: 3000,
	})
	mgr := newManager(cfg, registry.New())

	if _, err := mgr.Start(context.Background(), "srv2"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer func() { _ = mgr.Stop(context.Background(), "srv2") }()

	if _, err := mgr.Start(context.Background(), "srv2"); !IsAlreadyRunning(err) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStatusUnregisteredModelReportsStopped(t *testing.T) {
	cfg := testConfig(config.ModelConfig{ID: "m1", Command: "x", ExecMode: "server"})
	mgr := newManager(cfg, registry.New())

	status, err := mgr.Status("m1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != registry.StatusStopped {
		t.Fatalf("expected stopped status, got %s", status.State)
	}
}

func TestEnsureRunningCLIModelReturnsEmptyURL(t *testing.T) {
	cfg := testConfig(config.ModelConfig{ID: "cli1", Command: "true", ExecMode: "cli"})
	mgr := newManager(cfg, registry.New())

	url, err := mgr.EnsureRunning(context.Background(), "cli1")
	if err != nil {
		t.Fatalf("ensure running: %v", err)
	}
	if url != "" {
		t.Fatalf("expected empty url for cli model, got %q", url)
	}
}

func TestSubstitutePort(t *testing.T) {
	got := substitutePort("http://127.0.0.1:{port}/v1", 9123)
	want := fmt.Sprintf("http://127.0.0.1:%d/v1", 9123)
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
