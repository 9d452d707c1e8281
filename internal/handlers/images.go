package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"

	"github.com/go-chi/chi/v5"
)

// ListImagesHandler returns the durable image index, filtered to files
// that still exist on disk.
func ListImagesHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		index, err := st.Images(username)
		if err != nil {
			writeError(w, log, err)
			return
		}

		filtered := make(store.ImageIndex, len(index))
		for camera, images := range index {
			filtered[camera] = make(map[string]string, len(images))
			for path, ts := range images {
				if _, err := os.Stat(path); err == nil {
					filtered[camera][path] = ts
				}
			}
		}

		writeJSON(w, log, http.StatusOK, map[string]interface{}{"images": filtered})
	}
}

// NewImagesHandler drains and returns the images captured since the
// previous poll.
func NewImagesHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())
		writeJSON(w, log, http.StatusOK, map[string]interface{}{
			"new_images": st.DrainNewImages(username),
		})
	}
}

// DeleteImageHandler removes one image from the index and from disk.
func DeleteImageHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		var req struct {
			ImagePath string `json:"image_path"`
		}
		if err := decodeJSON(r, &req); err != nil || req.ImagePath == "" {
			writeBadRequest(w, log, "image_path is required")
			return
		}

		path := filepath.ToSlash(req.ImagePath)
		if err := st.DeleteImage(username, path); err != nil {
			writeError(w, log, err)
			return
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warning("Failed to remove image file %s: %v", path, err)
		}

		log.Info("Deleted image %s for %s", path, username)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}

// ServeImageHandler serves a stored snapshot. The first path element is
// the owning username; only the owner or an admin may fetch it.
func ServeImageHandler(cfg *config.Config, st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())

		rel := filepath.ToSlash(filepath.Clean(chi.URLParam(r, "*")))
		if rel == "." || strings.HasPrefix(rel, "..") {
			writeBadRequest(w, log, "invalid image path")
			return
		}

		owner := strings.SplitN(rel, "/", 2)[0]
		if owner != username {
			role, err := st.Role(username)
			if err != nil || role != store.RoleAdmin {
				log.Warning("User %s denied access to image of %s", username, owner)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}

		full := filepath.Join(cfg.CaptureDirectory, rel)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, full)
	}
}
