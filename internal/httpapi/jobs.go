package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"forge/internal/events"
	"forge/internal/queue"
	"forge/pkg/types"
)

const maxJobBodyBytes = 32 << 20 // source images can be several MB

type handlers struct {
	deps   Deps
	logger *slog.Logger
}

// jobRequest is the JSON shape accepted by POST /jobs/{action}, either as
// a bare JSON body or as the "payload" field of a multipart request that
// also carries "image"/"mask" file parts.
type jobRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Width          int      `json:"width"`
	Height         int      `json:"height"`
	Seed           *int64   `json:"seed"`
	N              int      `json:"n"`
	Quality        string   `json:"quality"`
	Style          string   `json:"style"`
	Strength       *float64 `json:"strength"`
	CFGScale       *float64 `json:"cfg_scale"`
	SampleSteps    *int     `json:"sample_steps"`
	SamplingMethod string   `json:"sampling_method"`
	ClipSkip       *int     `json:"clip_skip"`
}

var jobActions = map[string]queue.Type{
	"generate":  queue.TypeGenerate,
	"edit":      queue.TypeEdit,
	"variation": queue.TypeVariation,
	"upscale":   queue.TypeUpscale,
}

func (h *handlers) createJob(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	jobType, ok := jobActions[action]
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown job action %q", action))
		return
	}

	var req jobRequest
	var sourcePath, maskPath string

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		var err error
		req, sourcePath, maskPath, err = h.parseMultipartJob(r)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxJobBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	if strings.TrimSpace(req.Model) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "model and prompt are required")
		return
	}
	if (jobType == queue.TypeEdit || jobType == queue.TypeVariation) && sourcePath == "" {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("%s jobs require a source image", action))
		return
	}

	job := queue.Job{
		Type:            jobType,
		ModelID:         req.Model,
		Prompt:          req.Prompt,
		NegativePrompt:  req.NegativePrompt,
		Width:           req.Width,
		Height:          req.Height,
		Seed:            req.Seed,
		N:               req.N,
		Quality:         req.Quality,
		Style:           req.Style,
		SourceImagePath: sourcePath,
		MaskPath:        maskPath,
		Strength:        req.Strength,
		CFGScale:        req.CFGScale,
		SampleSteps:     req.SampleSteps,
		SamplingMethod:  req.SamplingMethod,
		ClipSkip:        req.ClipSkip,
	}

	created, err := h.deps.Store.Enqueue(r.Context(), job)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.deps.Bus.Publish(events.TopicQueue, "job_created", created.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": created.ID, "status": created.Status})
}

// parseMultipartJob reads the "payload" form field as JSON and saves any
// "image"/"mask" file parts under the configured image storage directory,
// returning paths the job record points at.
func (h *handlers) parseMultipartJob(r *http.Request) (jobRequest, string, string, error) {
	var req jobRequest
	if err := r.ParseMultipartForm(maxJobBodyBytes); err != nil {
		return req, "", "", fmt.Errorf("parse multipart form: %w", err)
	}
	if payload := r.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return req, "", "", fmt.Errorf("invalid payload field: %w", err)
		}
	} else {
		req.Model = r.FormValue("model")
		req.Prompt = r.FormValue("prompt")
		req.NegativePrompt = r.FormValue("negative_prompt")
	}

	sourcePath, err := h.saveUploadedFile(r, "image")
	if err != nil {
		return req, "", "", err
	}
	maskPath, err := h.saveUploadedFile(r, "mask")
	if err != nil {
		return req, "", "", err
	}
	return req, sourcePath, maskPath, nil
}

func (h *handlers) saveUploadedFile(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if err == http.ErrMissingFile {
			return "", nil
		}
		return "", fmt.Errorf("read %s upload: %w", field, err)
	}
	defer file.Close()

	uploadsDir := filepath.Join(h.deps.ImagesDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	dest := filepath.Join(uploadsDir, uuid.NewString()+filepath.Ext(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("save %s upload: %w", field, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		return "", fmt.Errorf("write %s upload: %w", field, err)
	}
	return dest, nil
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := queue.Filter{
		Limit:  parseIntDefault(query.Get("limit"), 50),
		Offset: parseIntDefault(query.Get("offset"), 0),
	}
	for _, s := range query["status"] {
		if s = strings.TrimSpace(s); s != "" {
			filter.Statuses = append(filter.Statuses, queue.Status(s))
		}
	}

	jobs, total, err := h.deps.Store.List(r.Context(), filter)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	list := types.JobList{
		Pagination: types.Pagination{
			Total:   total,
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			HasMore: filter.Offset+len(jobs) < total,
		},
	}
	for _, j := range jobs {
		list.Jobs = append(list.Jobs, jobToWire(j))
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := h.deps.Store.Get(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeJSONError(w, http.StatusNotFound, "job not found")
		return
	}
	images, err := h.deps.Store.ImagesForJob(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	job.Images = images
	writeJSON(w, http.StatusOK, jobToWire(job))
}

func (h *handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled, err := h.deps.Store.Cancel(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !cancelled {
		writeJSONError(w, http.StatusConflict, "job is not pending and cannot be cancelled")
		return
	}
	h.deps.Bus.Publish(events.TopicQueue, "job_cancelled", id)
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": string(queue.StatusCancelled)})
}

func (h *handlers) listGenerationImages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	images, err := h.deps.Store.ImagesForJob(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]types.GeneratedImage, 0, len(images))
	for _, img := range images {
		out = append(out, imageToWire(img))
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": out})
}

func (h *handlers) getImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := h.deps.Store.GetImage(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSONError(w, http.StatusNotFound, "image not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	f, err := os.Open(img.FilePath)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "image file missing")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", img.MIME)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Error("failed to stream image", "image_id", id, "error", err)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}
