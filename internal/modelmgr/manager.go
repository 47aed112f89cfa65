package modelmgr

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"forge/internal/config"
	"forge/internal/models"
	"forge/internal/registry"
)

const portPlaceholder = "{port}"

const defaultStartupTimeout = 90 * time.Second

// Status is the runtime view of a model returned by Manager.Status.
type Status struct {
	ModelID  string
	State    registry.Status
	PID      int
	Port     int
	UptimeMs int64
}

// Manager resolves model descriptors through a models.Registry and drives
// their process lifecycle through a registry.Registry. It still reads
// internal/config directly for process-registry settings (port range,
// stop grace period) that are not part of a model descriptor.
type Manager struct {
	descriptors *models.Registry
	portRange   config.Registry
	registry    *registry.Registry
	logger      *slog.Logger
	httpClient  *http.Client

	startMu sync.Mutex
}

// New constructs a Manager bound to descriptors and reg. cfg supplies
// process-registry settings (port range, stop grace period).
func New(cfg *config.Config, descriptors *models.Registry, reg *registry.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		descriptors: descriptors,
		portRange:   cfg.Registry,
		registry:    reg,
		logger:      logger,
		httpClient:  &http.Client{Timeout: 0},
	}
}

// Get returns the descriptor for model_id, if configured.
func (m *Manager) Get(modelID string) (config.ModelConfig, bool) {
	return m.descriptors.ByID(modelID)
}

// All returns every configured model descriptor.
func (m *Manager) All() []config.ModelConfig {
	return m.descriptors.All()
}

// Default returns the descriptor treated as the default model.
func (m *Manager) Default() (config.ModelConfig, bool) {
	return m.descriptors.Default()
}

// Running returns the ids of every model with a non-terminal process record.
func (m *Manager) Running() []string {
	var ids []string
	for _, record := range m.registry.All() {
		if record.Status == registry.StatusRunning || record.Status == registry.StatusStarting {
			ids = append(ids, record.ModelID)
		}
	}
	return ids
}

// Status reports the current runtime state of modelID.
func (m *Manager) Status(modelID string) (Status, error) {
	if _, ok := m.descriptors.ByID(modelID); !ok {
		return Status{}, ErrNotFound{ModelID: modelID}
	}
	record, ok := m.registry.Get(modelID)
	if !ok {
		return Status{ModelID: modelID, State: registry.StatusStopped}, nil
	}
	return Status{
		ModelID:  modelID,
		State:    record.Status,
		PID:      record.PID(),
		Port:     record.Port,
		UptimeMs: record.UptimeMs(),
	}, nil
}

// Stop kills and unregisters the model's process, if any. It is a no-op for
// cli-mode models, which are never registered.
func (m *Manager) Stop(ctx context.Context, modelID string) error {
	if _, ok := m.registry.Get(modelID); !ok {
		return nil
	}
	grace := time.Duration(m.portRange.StopGraceMs) * time.Millisecond
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return m.registry.Kill(ctx, modelID, grace)
}

func startupTimeout(model config.ModelConfig) time.Duration {
	if model.StartupTimeoutMs > 0 {
		return time.Duration(model.StartupTimeoutMs) * time.Millisecond
	}
	return defaultStartupTimeout
}

func substitutePort(s string, port int) string {
	if !strings.Contains(s, portPlaceholder) {
		return s
	}
	return strings.ReplaceAll(s, portPlaceholder, strconv.Itoa(port))
}
