package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"forge/internal/events"
)

type startDownloadRequest struct {
	Repo  string   `json:"repo"`
	Files []string `json:"files"`
}

func (h *handlers) startDownload(w http.ResponseWriter, r *http.Request) {
	var req startDownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Repo) == "" || len(req.Files) == 0 {
		writeJSONError(w, http.StatusBadRequest, "repo and files are required")
		return
	}

	id, err := h.deps.Downloads.Start(r.Context(), req.Repo, req.Files)
	if err != nil {
		writeJSONError(w, statusForDownloadError(err), err.Error())
		return
	}
	h.deps.Bus.Publish(events.TopicDownloads, "download_requested", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"download_id": id})
}

func (h *handlers) getDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.deps.Downloads.Status(r.Context(), id)
	if err != nil {
		writeJSONError(w, statusForDownloadError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, downloadToWire(rec))
}

func (h *handlers) cancelDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.deps.Downloads.Cancel(id) {
		writeJSONError(w, http.StatusNotFound, "download not found or already finished")
		return
	}
	h.deps.Bus.Publish(events.TopicDownloads, "download_cancel_requested", id)
	writeJSON(w, http.StatusOK, map[string]string{"download_id": id, "status": "cancelling"})
}
