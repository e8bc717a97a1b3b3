package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikeyg42/sentinel/internal/watcher"
	"github.com/mikeyg42/sentinel/internal/watchlog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendBuffer = 8
)

// Event is one push to connected status clients.
type Event struct {
	Type      string                   `json:"type"` // status, detection, session_started, session_ended
	Status    *watcher.Status          `json:"status,omitempty"`
	Detection *watcher.DetectionResult `json:"detection,omitempty"`
	Session   *watcher.SessionInfo     `json:"session,omitempty"`
}

// Hub fans status events out to WebSocket clients. It implements the
// controller's listener interface; pushes never block the tick because each
// client has a bounded send queue and slow clients are dropped.
type Hub struct {
	status   func() watcher.Status
	upgrader websocket.Upgrader
	log      watchlog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates the hub. status supplies the snapshot pushed to every new
// client; origins bounds who may connect.
func NewHub(status func() watcher.Status, origins []string) *Hub {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return &Hub{
		status: status,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		log:     watchlog.L().Named("hub"),
		clients: make(map[*wsClient]struct{}),
	}
}

// HandleUpgrade turns an HTTP request into a status subscription.
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", watchlog.Error(err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	// Seed the snapshot before the client is visible to broadcast, so
	// nothing can race this send against a queue-full disconnect.
	snapshot := h.status()
	if data, err := json.Marshal(Event{Type: "status", Status: &snapshot}); err == nil {
		client.send <- data
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	client.conn.Close()
}

// readPump discards client messages; it exists to process control frames
// and notice disconnects.
func (h *Hub) readPump(client *wsClient) {
	defer h.drop(client)
	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Client is not keeping up; disconnect it.
			delete(h.clients, client)
			close(client.send)
			client.conn.Close()
		}
	}
	h.mu.Unlock()
}

// DetectionChanged implements watcher.Listener.
func (h *Hub) DetectionChanged(result watcher.DetectionResult) {
	h.broadcast(Event{Type: "detection", Detection: &result})
}

// SessionStarted implements watcher.Listener.
func (h *Hub) SessionStarted(info watcher.SessionInfo) {
	h.broadcast(Event{Type: "session_started", Session: &info})
}

// SessionEnded implements watcher.Listener.
func (h *Hub) SessionEnded(info watcher.SessionInfo) {
	h.broadcast(Event{Type: "session_ended", Session: &info})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
		client.conn.Close()
	}
	h.mu.Unlock()
}
