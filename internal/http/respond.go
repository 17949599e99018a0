package httpx

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends the common error envelope without detail items.
func writeError(w http.ResponseWriter, status int, kind string) {
	writeJSON(w, status, map[string]any{"error": kind})
}

// writeErrorDetails sends the error envelope with per-field detail items.
func writeErrorDetails(w http.ResponseWriter, status int, kind string, details any) {
	writeJSON(w, status, map[string]any{"error": kind, "details": details})
}
