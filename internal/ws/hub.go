// Package ws fans live camera frames out to connected viewers.
package ws

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"camwatch/internal/logger"

	"github.com/gorilla/websocket"
)

// Hub tracks viewer connections per (user, camera) topic and broadcasts
// frames published by the camera workers.
type Hub struct {
	mu      sync.RWMutex
	viewers map[string]map[*websocket.Conn]bool
	logger  *logger.Logger
}

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		viewers: make(map[string]map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// Topic builds the hub topic for one camera of one user.
func Topic(username, camera string) string {
	return username + "/" + camera
}

// Register adds a viewer connection to a topic.
func (h *Hub) Register(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.viewers[topic] == nil {
		h.viewers[topic] = make(map[*websocket.Conn]bool)
	}
	h.viewers[topic][conn] = true
	h.logger.Info("Viewer connected to %s. Total: %d", topic, len(h.viewers[topic]))
}

// Unregister removes and closes a viewer connection.
func (h *Hub) Unregister(topic string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if viewers, ok := h.viewers[topic]; ok {
		if _, ok := viewers[conn]; ok {
			delete(viewers, conn)
			conn.Close()
		}
		if len(viewers) == 0 {
			delete(h.viewers, topic)
		}
	}
}

// Broadcast sends one frame to every viewer of the topic. Connections
// that fail to accept the write are dropped.
func (h *Hub) Broadcast(topic string, frame []byte) {
	payload, err := json.Marshal(map[string]string{
		"camera": topic,
		"image":  base64.StdEncoding.EncodeToString(frame),
	})
	if err != nil {
		h.logger.Error("Failed to encode frame payload: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.viewers[topic] {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Error("Error sending frame to viewer: %v", err)
			delete(h.viewers[topic], conn)
			conn.Close()
		}
	}
}

// ViewerCount reports the number of viewers on a topic.
func (h *Hub) ViewerCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers[topic])
}
