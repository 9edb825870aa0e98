package handler

import (
	"encoding/json"
	"net/http"
)

// ----- Handler: GET /navigation/health -----

// handleHealth returns a minimal JSON health status payload.
func (handler *NavigationHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if handler.ready != nil && !handler.ready() {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)

	type resp struct {
		Status string `json:"status"`
	}
	_ = json.NewEncoder(w).Encode(resp{Status: status})
}
