package routes

import (
	"net/http"

	"camwatch/internal/auth"
	"camwatch/internal/config"
	"camwatch/internal/handlers"
	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"
	"camwatch/internal/ws"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes registers the facade endpoints: credentials, camera and
// settings management, the image gallery, notification linking, live
// streaming and the admin surface.
func SetupRoutes(st *store.Store, sessions *auth.SessionManager, sup handlers.Reconciler, hub *ws.Hub, cfg *config.Config, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Server is running"))
	})

	// Credential endpoints, rate limited per client address.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.LoginRatePerMin, log))
		r.Post("/api/register", handlers.RegisterHandler(st, sessions, log))
		r.Post("/api/login", handlers.LoginHandler(st, sessions, sup, log))
	})

	// Relay-side linking handshake; the auth code is the credential.
	r.Post("/api/chat_id", handlers.LinkChatHandler(st, log))

	// Session-gated user endpoints.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(sessions, log))

		r.Post("/api/logout", handlers.LogoutHandler(sessions, sup, log))

		r.Get("/api/cameras", handlers.ListCamerasHandler(st, log))
		r.Post("/api/cameras/add", handlers.AddCameraHandler(st, sup, log))
		r.Post("/api/cameras/delete", handlers.DeleteCameraHandler(st, sup, log))
		r.Post("/api/settings", handlers.UpdateSettingsHandler(st, sup, log))

		r.Get("/api/images", handlers.ListImagesHandler(st, log))
		r.Get("/api/images/new", handlers.NewImagesHandler(st, log))
		r.Post("/api/images/delete", handlers.DeleteImageHandler(st, log))

		r.Post("/api/auth_code", handlers.BindAuthCodeHandler(st, log))

		r.Get("/api/stream", handlers.StreamHandler(st, hub, log))
		r.Get("/captures/*", handlers.ServeImageHandler(cfg, st, log))
	})

	// Admin endpoints.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Admin(sessions, log))

		r.Get("/api/admin/users", handlers.ListUsersHandler(st, log))
		r.Get("/api/admin/user/{username}", handlers.GetUserHandler(st, log))
		r.Post("/api/admin/user/{username}", handlers.UpdateUserHandler(st, sup, log))
		r.Post("/api/admin/user/{username}/delete", handlers.DeleteUserHandler(st, sup, cfg, log))
		r.Get("/api/admin/logs/{level}", handlers.LogsHandler(log))
		r.Post("/api/admin/logs/{level}/clean", handlers.ClearLogsHandler(log))
	})

	return r
}
