package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"forge/internal/config"
	"forge/internal/downloads"
	"forge/internal/events"
	"forge/internal/httpapi"
	"forge/internal/modelmgr"
	"forge/internal/models"
	"forge/internal/preflight"
	"forge/internal/processor"
	"forge/internal/queue"
	"forge/internal/registry"
)

// Daemon wires the job processor, model process manager, download
// coordinator, event bus, and HTTP API into a single lifecycle and
// enforces single-instance execution with a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store       *queue.Store
	descriptors *models.Registry
	procReg     *registry.Registry
	engines     *modelmgr.Manager
	bus         *events.Bus
	downloads   *downloads.Coordinator
	processor   *processor.Processor
	api         *httpapi.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon from configuration, opening the job store and
// assembling every subsystem. The returned daemon is not yet started.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	descriptors := models.New(cfg)
	procReg := registry.New()
	engines := modelmgr.New(cfg, descriptors, procReg, logger)
	bus := events.New(256)

	dl := downloads.New(
		store,
		bus,
		cfg.Downloads.RegistryBaseURL,
		cfg.Downloads.Dir,
		cfg.Downloads.MaxConcurrentJobs,
		time.Duration(cfg.Downloads.RequestTimeoutS)*time.Second,
		logger,
	)

	heartbeatTimeout := time.Duration(cfg.Queue.HeartbeatTimeoutMs) * time.Millisecond
	proc := processor.New(
		store,
		descriptors,
		engines,
		bus,
		cfg.Images.Dir,
		time.Duration(cfg.Queue.PollIntervalMs)*time.Millisecond,
		time.Duration(cfg.Queue.ErrorRetryIntervalMs)*time.Millisecond,
		heartbeatTimeout,
		logger,
	)

	api := httpapi.New(cfg.Server.Bind, httpapi.Deps{
		Store:       store,
		Descriptors: descriptors,
		Engines:     engines,
		Downloads:   dl,
		Bus:         bus,
		ImagesDir:   cfg.Images.Dir,
		Logger:      logger,
	})

	lockPath := filepath.Join(cfg.Logging.Dir, "forged.lock")
	return &Daemon{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		descriptors: descriptors,
		procReg:     procReg,
		engines:     engines,
		bus:         bus,
		downloads:   dl,
		processor:   proc,
		api:         api,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}, nil
}

// Start acquires the single-instance lock and launches the job processor
// and HTTP API. It returns once both are up; they continue running in
// background goroutines tied to ctx.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another forged instance is already running")
	}

	for _, result := range preflight.RunAll(ctx, d.cfg) {
		if result.Passed {
			d.logger.Debug("preflight check passed", "check", result.Name, "detail", result.Detail)
			continue
		}
		d.logger.Warn("preflight check failed", "check", result.Name, "detail", result.Detail)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.processor.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		d.cancel = nil
		return fmt.Errorf("start processor: %w", err)
	}
	if err := d.api.Start(runCtx); err != nil {
		d.processor.Stop()
		cancel()
		_ = d.lock.Unlock()
		d.cancel = nil
		return fmt.Errorf("start http api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("forge daemon started", "bind", d.cfg.Server.Bind, "lock", d.lockPath)
	return nil
}

// Stop stops the HTTP API and job processor, terminates any running model
// engines, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.Stop()
	d.processor.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	for _, modelID := range d.engines.Running() {
		if err := d.engines.Stop(stopCtx, modelID); err != nil {
			d.logger.Warn("failed to stop model during shutdown", "model", modelID, "error", err)
		}
	}
	stopCancel()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", "error", err)
	}
	d.running.Store(false)
	d.logger.Info("forge daemon stopped")
}

// Close stops the daemon if running and closes the underlying job store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status summarizes whether the daemon is running and where its
// persistent state lives, for CLI `status` reporting.
type Status struct {
	Running       bool
	QueueDBPath   string
	LockFilePath  string
	RunningModels []string
}

// CurrentStatus returns a snapshot of daemon runtime state.
func (d *Daemon) CurrentStatus() Status {
	return Status{
		Running:       d.running.Load(),
		QueueDBPath:   d.store.Path(),
		LockFilePath:  d.lockPath,
		RunningModels: d.engines.Running(),
	}
}

// Store exposes the daemon's job store.
func (d *Daemon) Store() *queue.Store {
	return d.store
}

// Downloads exposes the daemon's download coordinator.
func (d *Daemon) Downloads() *downloads.Coordinator {
	return d.downloads
}

// Engines exposes the daemon's model process manager.
func (d *Daemon) Engines() *modelmgr.Manager {
	return d.engines
}

// Bus exposes the daemon's event bus.
func (d *Daemon) Bus() *events.Bus {
	return d.bus
}
