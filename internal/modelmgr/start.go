package modelmgr

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"forge/internal/config"
	"forge/internal/registry"
)

const stderrTailBytes = 4096

// Start spawns modelID's engine and, for server mode, blocks until it
// answers its health endpoint or the startup timeout elapses. For cli mode
// it returns a stub record without touching the registry: one-shot
// invocations are per-job and are never registered.
func (m *Manager) Start(ctx context.Context, modelID string) (*registry.ProcessRecord, error) {
	model, ok := m.descriptors.ByID(modelID)
	if !ok {
		return nil, ErrNotFound{ModelID: modelID}
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	if existing, ok := m.registry.Get(modelID); ok {
		if existing.Status == registry.StatusStarting || existing.Status == registry.StatusRunning {
			return nil, ErrAlreadyRunning{ModelID: modelID}
		}
		// Redesigned behavior: always fully terminate a stale record before
		// spawning its replacement, rather than replacing it in place.
		_ = m.registry.Kill(ctx, modelID, time.Second)
	}

	if model.ExecMode != "server" {
		return &registry.ProcessRecord{
			ModelID:  modelID,
			ExecMode: registry.ExecCLI,
			Status:   registry.StatusStopped,
		}, nil
	}

	return m.startServer(ctx, model)
}

func (m *Manager) startServer(parent context.Context, model config.ModelConfig) (*registry.ProcessRecord, error) {
	port, err := m.registry.AllocatePort(model.Port, m.portRange.PortRangeStart, m.portRange.PortRangeEnd)
	if err != nil {
		return nil, ErrStartFailure{ModelID: model.ID, Err: err}
	}

	args := make([]string, len(model.Args))
	for i, arg := range model.Args {
		args[i] = substitutePort(arg, port)
	}
	apiURL := substitutePort(model.APIURL, port)

	spawnCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(spawnCtx, model.Command, args...)
	tail := newTailBuffer(stderrTailBytes)
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, ErrStartFailure{ModelID: model.ID, Err: fmt.Errorf("spawn %s: %w", model.Command, err)}
	}

	proc := newCmdProcess(cmd)
	m.logger.Info("model starting",
		"model_id", model.ID, "pid", proc.PID(), "port", port, "api_url", apiURL)

	record, err := m.registry.Register(model.ID, proc, port, registry.ExecServer, cancel)
	if err != nil {
		cancel()
		_ = proc.Kill()
		return nil, ErrStartFailure{ModelID: model.ID, Err: err}
	}

	timeout := startupTimeout(model)
	if err := m.waitReady(parent, model.ID, proc, apiURL, timeout); err != nil {
		tailText := tail.String()
		_ = m.registry.Kill(context.Background(), model.ID, time.Second)
		if IsStartupTimeout(err) {
			return nil, err
		}
		return nil, ErrStartFailure{ModelID: model.ID, Err: fmt.Errorf("%w (stderr: %s)", err, tailText)}
	}

	m.registry.Heartbeat(model.ID)
	m.logger.Info("model running", "model_id", model.ID, "pid", proc.PID(), "port", port)
	return record, nil
}
