package models

import (
	"context"
	"testing"

	"forge/internal/config"
	"forge/internal/queue"
)

func testStore(t *testing.T) *queue.Store {
	t.Helper()
	cfg := config.Default()
	cfg.DB.Path = t.TempDir() + "/forge.db"
	store, err := queue.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegistryByIDAllDefault(t *testing.T) {
	cfg := config.Default()
	cfg.Models = []config.ModelConfig{
		{ID: "m1", Command: "x", ExecMode: "server", LoadMode: "on_demand"},
		{ID: "m2", Command: "y", ExecMode: "server", LoadMode: "preload"},
	}
	r := New(&cfg)

	if _, ok := r.ByID("missing"); ok {
		t.Fatal("expected missing model to be absent")
	}
	if len(r.All()) != 2 {
		t.Fatalf("expected 2 models, got %d", len(r.All()))
	}
	def, ok := r.Default()
	if !ok || def.ID != "m2" {
		t.Fatalf("expected preload model as default, got %+v", def)
	}
	preloaded := r.Preloaded()
	if len(preloaded) != 1 || preloaded[0].ID != "m2" {
		t.Fatalf("expected only m2 preloaded, got %+v", preloaded)
	}
}

func TestRegistryMirrorRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.Models = []config.ModelConfig{
		{
			ID: "m1", Name: "Model One", Command: "sdcli", Args: []string{"--flag"},
			APIURL: "http://127.0.0.1:9000", LoadMode: "on_demand", ExecMode: "server",
			Port: 9000, StartupTimeoutMs: 5000,
			GenerationParams: config.GenerationParams{SampleSteps: 20, CFGScale: 7.5},
			RegistryRepo:      "org/model",
			RegistryFiles:     []string{"model.safetensors"},
			Capabilities:      []string{"text-to-image"},
		},
	}
	r := New(&cfg)
	store := testStore(t)

	if err := r.Mirror(context.Background(), store); err != nil {
		t.Fatalf("mirror: %v", err)
	}

	mirrored, err := store.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(mirrored) != 1 {
		t.Fatalf("expected 1 mirrored model, got %d", len(mirrored))
	}
	got := mirrored[0]
	if got.ID != "m1" || got.Command != "sdcli" || got.GenerationParams.SampleSteps != 20 {
		t.Fatalf("unexpected mirrored model: %+v", got)
	}
	if len(got.RegistryFiles) != 1 || got.RegistryFiles[0] != "model.safetensors" {
		t.Fatalf("expected registry files to round trip, got %+v", got.RegistryFiles)
	}
}
