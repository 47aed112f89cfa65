package models

import (
	"context"
	"fmt"

	"forge/internal/config"
	"forge/internal/queue"
)

// Registry is the read-only, in-memory view of the models configured for
// this daemon instance.
type Registry struct {
	models []config.ModelConfig
	byID   map[string]config.ModelConfig
}

// New builds a Registry from a config's model descriptors.
func New(cfg *config.Config) *Registry {
	r := &Registry{
		models: cfg.Models,
		byID:   make(map[string]config.ModelConfig, len(cfg.Models)),
	}
	for _, m := range cfg.Models {
		r.byID[m.ID] = m
	}
	return r
}

// ByID returns the descriptor for id, if configured.
func (r *Registry) ByID(id string) (config.ModelConfig, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// All returns every configured descriptor.
func (r *Registry) All() []config.ModelConfig {
	return r.models
}

// Default returns the descriptor treated as the default model: the first
// configured with load_mode "preload", else the first configured model.
func (r *Registry) Default() (config.ModelConfig, bool) {
	for _, m := range r.models {
		if m.LoadMode == "preload" {
			return m, true
		}
	}
	if len(r.models) > 0 {
		return r.models[0], true
	}
	return config.ModelConfig{}, false
}

// Preloaded returns every descriptor configured with load_mode "preload",
// the set the daemon starts eagerly at boot.
func (r *Registry) Preloaded() []config.ModelConfig {
	var out []config.ModelConfig
	for _, m := range r.models {
		if m.LoadMode == "preload" {
			out = append(out, m)
		}
	}
	return out
}

// Mirror upserts every configured descriptor into the job store's models
// table, giving other processes cross-process visibility into the
// effective model set (spec: "models mirrored from config for
// cross-process visibility").
func (r *Registry) Mirror(ctx context.Context, store *queue.Store) error {
	for _, m := range r.models {
		if err := store.UpsertModel(ctx, m); err != nil {
			return fmt.Errorf("mirror model %q: %w", m.ID, err)
		}
	}
	return nil
}
