// Package handlers implements the HTTP facade over the camwatch core:
// registration, sessions, camera and settings management, the image
// gallery, notification linking and the admin surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"camwatch/internal/core"
	"camwatch/internal/logger"
)

// errorBody is the machine-readable error payload of every failed
// facade operation.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeJSON encodes payload with the given status.
func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("Error encoding JSON response: %v", err)
	}
}

// writeError maps a core error to its HTTP status and structured body.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	kind := "internal"
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, core.ErrAuth):
		kind, status = "auth", http.StatusUnauthorized
	case errors.Is(err, core.ErrForbidden):
		kind, status = "forbidden", http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		kind, status = "not_found", http.StatusNotFound
	case errors.Is(err, core.ErrExists):
		kind, status = "conflict", http.StatusConflict
	case errors.Is(err, core.ErrPersistence):
		kind, status = "persistence", http.StatusInternalServerError
	}

	writeJSON(w, log, status, errorResponse{Error: errorBody{Kind: kind, Message: err.Error()}})
}

// writeBadRequest reports a malformed or incomplete request.
func writeBadRequest(w http.ResponseWriter, log *logger.Logger, message string) {
	writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: errorBody{Kind: "bad_request", Message: message}})
}

// decodeJSON parses the request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// statusOK is the minimal success payload for mutating operations.
var statusOK = map[string]string{"status": "success"}
