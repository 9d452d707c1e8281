package handlers

import (
	"net/http"
	"time"

	"camwatch/internal/logger"
	"camwatch/internal/middleware"
	"camwatch/internal/store"
	"camwatch/internal/ws"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamHandler upgrades a viewer connection and subscribes it to the
// live frames of one of the user's cameras.
func StreamHandler(st *store.Store, hub *ws.Hub, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := middleware.Username(r.Context())
		camera := r.URL.Query().Get("camera")

		cameras, err := st.Cameras(username)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if _, ok := cameras[camera]; !ok {
			writeBadRequest(w, log, "unknown camera")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("WebSocket upgrade error: %v", err)
			return
		}
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})

		topic := ws.Topic(username, camera)
		hub.Register(topic, conn)
		defer hub.Unregister(topic, conn)

		log.Info("Viewer connected to %s", topic)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Info("Viewer disconnected from %s: %v", topic, err)
				break
			}
		}
	}
}
