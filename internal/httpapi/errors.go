package httpapi

import (
	"encoding/json"
	"net/http"

	"forge/internal/downloads"
	"forge/internal/modelmgr"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusForModelError maps modelmgr's typed sentinel errors to HTTP
// status codes.
func statusForModelError(err error) int {
	switch {
	case modelmgr.IsNotFound(err):
		return http.StatusNotFound
	case modelmgr.IsAlreadyRunning(err):
		return http.StatusConflict
	case modelmgr.IsStartupTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func statusForDownloadError(err error) int {
	switch {
	case downloads.IsNotFound(err):
		return http.StatusNotFound
	case downloads.IsNetworkFailure(err):
		return http.StatusBadGateway
	case downloads.IsCancelled(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
