package handlers

import (
	"net/http"

	"camwatch/internal/auth"
	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"
)

// Reconciler is the supervisor surface the facade needs; camera and
// session changes trigger it.
type Reconciler interface {
	Reconcile(username string)
	StopAll(username string)
	ClearFailure(username, camera string)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// sessionResponse is returned by register and login.
type sessionResponse struct {
	Token             string                            `json:"token"`
	Role              store.Role                        `json:"role"`
	DetectionSettings map[string]store.DetectionSetting `json:"detection_settings"`
	AuthCodes         map[string]store.ChatBinding      `json:"auth_codes"`
}

// RegisterHandler creates a new account and opens its first session.
func RegisterHandler(st *store.Store, sessions *auth.SessionManager, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
			writeBadRequest(w, log, "username and password are required")
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			log.Error("Failed to hash password: %v", err)
			writeError(w, log, err)
			return
		}

		if err := st.CreateUser(req.Username, hash, store.RoleUser); err != nil {
			writeError(w, log, err)
			return
		}

		token := sessions.CreateSession(req.Username)
		log.Info("Registered user %s", req.Username)

		writeJSON(w, log, http.StatusCreated, sessionResponse{
			Token:             token,
			Role:              store.RoleUser,
			DetectionSettings: map[string]store.DetectionSetting{},
			AuthCodes:         map[string]store.ChatBinding{},
		})
	}
}

// LoginHandler checks credentials, opens a session and reconciles the
// user's camera workers.
func LoginHandler(st *store.Store, sessions *auth.SessionManager, sup Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := decodeJSON(r, &req); err != nil || req.Username == "" || req.Password == "" {
			writeBadRequest(w, log, "username and password are required")
			return
		}

		user, err := st.User(req.Username)
		if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			log.Warning("Failed login attempt for %s", req.Username)
			writeJSON(w, log, http.StatusUnauthorized, errorResponse{Error: errorBody{
				Kind:    "auth",
				Message: "invalid username or password",
			}})
			return
		}

		token := sessions.CreateSession(req.Username)
		sup.Reconcile(req.Username)
		log.Info("User %s logged in", req.Username)

		writeJSON(w, log, http.StatusOK, sessionResponse{
			Token:             token,
			Role:              user.Role,
			DetectionSettings: user.DetectionSettings,
			AuthCodes:         user.AuthCodes,
		})
	}
}

// LogoutHandler invalidates the session and stops the user's workers.
func LogoutHandler(sessions *auth.SessionManager, sup Reconciler, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())
		sessions.Invalidate(middleware.Token(r))
		sup.StopAll(username)
		log.Info("User %s logged out", username)
		writeJSON(w, log, http.StatusOK, statusOK)
	}
}
