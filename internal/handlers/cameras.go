package handlers

import (
	"net/http"

	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"
)

type cameraRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// AddCameraHandler registers a camera source and starts its worker.
func AddCameraHandler(st *store.Store, sup Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		var req cameraRequest
		if err := decodeJSON(r, &req); err != nil || req.Name == "" || req.Source == "" {
			writeBadRequest(w, log, "camera name and source are required")
			return
		}

		if err := st.AddCamera(username, req.Name, req.Source); err != nil {
			writeError(w, log, err)
			return
		}

		// Adding or replacing a camera is the explicit user action that
		// makes a previously failed camera eligible to run again.
		sup.ClearFailure(username, req.Name)
		sup.Reconcile(username)

		log.Info("Added camera %s for %s", req.Name, username)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}

// DeleteCameraHandler removes a camera; its worker stops within one
// reconcile cycle.
func DeleteCameraHandler(st *store.Store, sup Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		var req cameraRequest
		if err := decodeJSON(r, &req); err != nil || req.Name == "" {
			writeBadRequest(w, log, "camera name is required")
			return
		}

		if err := st.RemoveCamera(username, req.Name); err != nil {
			writeError(w, log, err)
			return
		}
		sup.Reconcile(username)

		log.Info("Deleted camera %s for %s", req.Name, username)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}

// ListCamerasHandler returns the user's camera map.
func ListCamerasHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		cameras, err := st.Cameras(username)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]interface{}{"cameras": cameras})
	}
}

// UpdateSettingsHandler replaces the per-class detection settings and
// reconciles the workers so they pick the change up.
func UpdateSettingsHandler(st *store.Store, sup Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		var req struct {
			DetectionSettings map[string]store.DetectionSetting `json:"detection_settings"`
		}
		if err := decodeJSON(r, &req); err != nil || req.DetectionSettings == nil {
			writeBadRequest(w, log, "detection_settings is required")
			return
		}

		if err := st.UpdateDetectionSettings(username, req.DetectionSettings); err != nil {
			writeError(w, log, err)
			return
		}
		sup.Reconcile(username)

		log.Info("Detection settings updated for %s", username)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}
