package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"forge/internal/events"
	"forge/internal/modelmgr"
	"forge/internal/models"
	"forge/internal/queue"
)

// Processor drives the single-worker job loop: claim, resolve, dispatch,
// persist, publish. Only one job is in flight at a time within a process.
type Processor struct {
	store       *queue.Store
	descriptors *models.Registry
	engines     *modelmgr.Manager
	bus         *events.Bus
	dispatcher  dispatcher
	logger      *slog.Logger
	imagesDir   string

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	reclaimTimeout     time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Processor behavior, primarily for tests.
type Option func(*Processor)

// WithExecutor overrides the cli-mode dispatch executor.
func WithExecutor(exec Executor) Option {
	return func(p *Processor) { p.dispatcher.exec = exec }
}

// WithHTTPClient overrides the server-mode dispatch HTTP client.
func WithHTTPClient(client httpDoer) Option {
	return func(p *Processor) { p.dispatcher.client = client }
}

// New constructs a Processor bound to store for persistence, descriptors
// for model lookup, engines for process lifecycle, and bus for progress
// and lifecycle event fan-out.
func New(store *queue.Store, descriptors *models.Registry, engines *modelmgr.Manager, bus *events.Bus, imagesDir string, pollInterval, errorRetryInterval, reclaimTimeout time.Duration, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 1500 * time.Millisecond
	}
	if errorRetryInterval <= 0 {
		errorRetryInterval = 5 * time.Second
	}
	p := &Processor{
		store:              store,
		descriptors:        descriptors,
		engines:            engines,
		bus:                bus,
		logger:             logger,
		imagesDir:          imagesDir,
		pollInterval:       pollInterval,
		errorRetryInterval: errorRetryInterval,
		reclaimTimeout:     reclaimTimeout,
	}
	p.dispatcher = newDispatcher()
	return p
}

// Apply applies Options after construction; used by tests to inject fakes.
func (p *Processor) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(p)
	}
}

// Start begins the background worker loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.run(runCtx)
	return nil
}

// Stop terminates the worker loop and waits for the in-flight job, if any,
// to finish its current step.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.reclaimTimeout > 0 {
			if _, err := p.store.ReclaimStaleProcessing(ctx, time.Now().Add(-p.reclaimTimeout)); err != nil {
				p.logger.Warn("reclaim stale processing jobs failed", "error", err)
			}
		}

		job, err := p.store.ClaimNextPending(ctx)
		if err != nil {
			p.handleClaimError(ctx, err)
			continue
		}
		if job == nil {
			p.waitForWorkOrShutdown(ctx)
			continue
		}

		p.processJob(ctx, job)
	}
}

func (p *Processor) handleClaimError(ctx context.Context, err error) {
	p.logger.Error("failed to claim next pending job", "error", err)
	select {
	case <-ctx.Done():
	case <-time.After(p.errorRetryInterval):
	}
}

func (p *Processor) waitForWorkOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}
