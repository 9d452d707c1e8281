package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"camwatch/internal/config"
	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"

	"github.com/go-chi/chi/v5"
)

// adminUser is the admin-facing view of a profile; password hashes are
// not exposed.
type adminUser struct {
	Username          string                            `json:"username"`
	Role              store.Role                        `json:"role"`
	Cameras           map[string]string                 `json:"cameras"`
	DetectionSettings map[string]store.DetectionSetting `json:"detection_settings"`
	AuthCodes         map[string]store.ChatBinding      `json:"auth_codes"`
}

func toAdminUser(u store.User) adminUser {
	return adminUser{
		Username:          u.Username,
		Role:              u.Role,
		Cameras:           u.Cameras,
		DetectionSettings: u.DetectionSettings,
		AuthCodes:         u.AuthCodes,
	}
}

// ListUsersHandler returns every profile.
func ListUsersHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users := st.Users()
		out := make(map[string]adminUser, len(users))
		for name, u := range users {
			out[name] = toAdminUser(u)
		}
		writeJSON(w, log, http.StatusOK, map[string]interface{}{"users": out})
	}
}

// GetUserHandler returns one profile.
func GetUserHandler(st *store.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := st.User(chi.URLParam(r, "username"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]interface{}{"user": toAdminUser(user)})
	}
}

// UpdateUserHandler overwrites the mutable fields of a profile and
// reconciles the user's workers.
func UpdateUserHandler(st *store.Store, sup Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "username")

		var req struct {
			Cameras           map[string]string                 `json:"cameras"`
			DetectionSettings map[string]store.DetectionSetting `json:"detection_settings"`
			Role              store.Role                        `json:"role"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, log, "malformed request body")
			return
		}

		if err := st.UpdateUser(target, req.Cameras, req.DetectionSettings, req.Role); err != nil {
			writeError(w, log, err)
			return
		}
		sup.Reconcile(target)

		log.Info("Admin updated user %s", target)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}

// DeleteUserHandler removes a user, their workers, their image index and
// their snapshot files. Admins cannot delete themselves.
func DeleteUserHandler(st *store.Store, sup Reconciler, cfg *config.Config, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin := middleware.Username(r.Context())
		target := chi.URLParam(r, "username")

		if target == admin {
			writeJSON(w, log, http.StatusForbidden, errorResponse{Error: errorBody{
				Kind:    "forbidden",
				Message: "cannot delete your own account",
			}})
			return
		}

		sup.StopAll(target)

		paths, err := st.DeleteUser(target)
		if err != nil {
			writeError(w, log, err)
			return
		}
		for _, path := range paths {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warning("Failed to remove image file %s: %v", path, err)
			}
		}
		userDir := filepath.Join(cfg.CaptureDirectory, target)
		if err := os.RemoveAll(userDir); err != nil {
			log.Warning("Failed to remove capture directory %s: %v", userDir, err)
		}

		log.Info("Admin %s deleted user %s", admin, target)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}

// ClearLogsHandler truncates one of the level log files.
func ClearLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level := chi.URLParam(r, "level")
		if log.LogFilePath(level) == "" {
			http.NotFound(w, r)
			return
		}
		log.CleanLogs(level + ".log")
		log.Info("Admin %s cleared the %s log", middleware.Username(r.Context()), level)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}

// LogsHandler serves one of the level log files.
func LogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := log.LogFilePath(chi.URLParam(r, "level"))
		if path == "" {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, path)
	}
}
