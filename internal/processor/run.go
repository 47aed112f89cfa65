package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"forge/internal/events"
	"forge/internal/modelmgr"
	"forge/internal/queue"
	"forge/internal/registry"
)

const progressClaimed = 0.1
const progressModelReady = 0.3
const progressDispatched = 0.7
const progressPersisted = 0.9
const progressDone = 1.0

func (p *Processor) processJob(ctx context.Context, job *queue.Job) {
	logger := p.logger.With("job_id", job.ID, "model_id", job.ModelID)

	if err := p.dispatchJob(ctx, job); err != nil {
		status := queue.FailureStatus(err)
		logger.Error("job dispatch failed", "error", err, "status", status)
		if setErr := p.store.SetStatus(ctx, job.ID, status, err.Error()); setErr != nil {
			logger.Error("failed to record job failure", "error", setErr)
		}
		p.bus.Publish(events.TopicQueue, "job_"+string(status), job.ID)
		return
	}

	p.bus.Publish(events.TopicQueue, "job_completed", job.ID)
}

func (p *Processor) dispatchJob(ctx context.Context, job *queue.Job) error {
	model, ok := p.descriptors.ByID(job.ModelID)
	if !ok {
		return UnknownModel{ModelID: job.ModelID}
	}

	if err := p.store.SetProgress(ctx, job.ID, progressClaimed); err != nil {
		return err
	}
	p.bus.Publish(events.TopicQueue, "job_progress", job.ID)

	loadStart := time.Now()
	apiURL, err := p.engines.EnsureRunning(ctx, job.ModelID)
	if err != nil {
		return classifyEnsureRunningError(job.ModelID, err)
	}
	loadElapsed := time.Since(loadStart).Milliseconds()

	if err := p.store.MarkStarted(ctx, job.ID, loadElapsed); err != nil {
		return err
	}
	if err := p.store.SetProgress(ctx, job.ID, progressModelReady); err != nil {
		return err
	}
	p.bus.Publish(events.TopicQueue, "job_progress", job.ID)

	params := resolveParams(job, model)

	var images []dispatchedImage
	if model.ExecMode == "server" {
		images, err = p.dispatcher.dispatchHTTP(ctx, job, apiURL, params)
	} else {
		images, err = p.dispatcher.dispatchCLI(ctx, job, model, params, p.imagesDir)
	}
	if err != nil {
		return err
	}

	if err := p.store.SetProgress(ctx, job.ID, progressDispatched); err != nil {
		return err
	}
	p.bus.Publish(events.TopicQueue, "job_progress", job.ID)

	if err := os.MkdirAll(p.imagesDir, 0o755); err != nil {
		return fmt.Errorf("create image storage dir: %w", err)
	}
	for _, img := range images {
		path := filepath.Join(p.imagesDir, fmt.Sprintf("%s-%d.png", job.ID, img.Index))
		if err := os.WriteFile(path, img.Data, 0o644); err != nil {
			return fmt.Errorf("persist image %d: %w", img.Index, err)
		}
		width, height := decodeImageDimensions(img.MIME, img.Data)
		record := queue.GeneratedImage{
			JobID:         job.ID,
			Index:         img.Index,
			MIME:          img.MIME,
			Width:         width,
			Height:        height,
			RevisedPrompt: img.RevisedPrompt,
			FilePath:      path,
		}
		if _, err := p.store.AppendImage(ctx, record); err != nil {
			return fmt.Errorf("record image %d: %w", img.Index, err)
		}
		p.bus.Publish(events.TopicGenerations, "image_created", record)
	}

	if err := p.store.SetProgress(ctx, job.ID, progressPersisted); err != nil {
		return err
	}
	p.bus.Publish(events.TopicQueue, "job_progress", job.ID)

	generationElapsed := time.Since(loadStart).Milliseconds() - loadElapsed
	if generationElapsed < 0 {
		generationElapsed = 0
	}
	if err := p.store.MarkCompleted(ctx, job.ID, generationElapsed); err != nil {
		return err
	}
	return p.store.SetProgress(ctx, job.ID, progressDone)
}

// decodeImageDimensions reads a PNG header to recover width/height for
// persistence. Engines only ever return image/png; dimensions are left
// at 0 for anything else or on a decode failure.
func decodeImageDimensions(mime string, data []byte) (width, height int) {
	if mime != "image/png" {
		return 0, 0
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func classifyEnsureRunningError(modelID string, err error) error {
	var portErr registry.ErrPortExhausted
	switch {
	case modelmgr.IsNotFound(err):
		return UnknownModel{ModelID: modelID}
	case modelmgr.IsStartupTimeout(err):
		return StartupTimeout{ModelID: modelID, Err: err}
	case errors.As(err, &portErr):
		return PortExhausted{ModelID: modelID, Err: err}
	default:
		return ModelStartFailure{ModelID: modelID, Err: err}
	}
}
