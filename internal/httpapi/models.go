package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"forge/internal/events"
)

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	models := h.deps.Descriptors.All()
	out := make([]any, 0, len(models))
	for _, m := range models {
		out = append(out, modelToWire(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

func (h *handlers) getModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	model, ok := h.deps.Descriptors.ByID(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, modelToWire(model))
}

func (h *handlers) getModelStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.deps.Engines.Status(id)
	if err != nil {
		writeJSONError(w, statusForModelError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, modelStatusToWire(status))
}

func (h *handlers) listRunningModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"model_ids": h.deps.Engines.Running()})
}

func (h *handlers) startModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.deps.Engines.Start(r.Context(), id)
	if err != nil {
		writeJSONError(w, statusForModelError(err), err.Error())
		return
	}
	h.deps.Bus.Publish(events.TopicModels, "model_started", id)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"model_id": id,
		"status":   record.Status,
		"port":     record.Port,
	})
}

func (h *handlers) stopModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Engines.Stop(r.Context(), id); err != nil {
		writeJSONError(w, statusForModelError(err), err.Error())
		return
	}
	h.deps.Bus.Publish(events.TopicModels, "model_stopped", id)
	writeJSON(w, http.StatusOK, map[string]string{"model_id": id, "status": "stopped"})
}
