package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/edgexpo/voicegateway/internal/gateway"
)

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  message,
		"detail": detail,
	})
}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError logs err and writes the status and public message it
// maps to
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	status := gateway.StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "error", err)
	} else {
		logger.Warn(msg, "error", err)
	}
	writeError(w, status, gateway.PublicMessage(err), gateway.PublicDetail(err))
}
