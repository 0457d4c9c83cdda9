package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"care-alert/internal/middleware"
	"care-alert/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams alert lifecycle events to connected caregiver
// dashboards. It satisfies services.Broadcaster.
type WebSocketHandler struct {
	clients   map[string]*Client
	mu        sync.RWMutex
	broadcast chan []byte
	logger    *zap.Logger
}

type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	caregiverEmail string
}

type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewWebSocketHandler(logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		clients:   make(map[string]*Client),
		broadcast: make(chan []byte, 256),
		logger:    logger,
	}
}

func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	caregiverEmail := middleware.CaregiverEmail(c)
	if caregiverEmail == "" {
		caregiverEmail = fmt.Sprintf("anon-%s", uuid.New().String()[:8])
	}

	client := &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		caregiverEmail: caregiverEmail,
	}
	h.addClient(client)

	h.logger.Info("websocket client connected", zap.String("caregiver", caregiverEmail))

	go client.writePump()
	go client.readPump(h)
}

// addClient registers the connection, closing out a previous connection for
// the same caregiver so a reconnect cleanly supersedes it.
func (h *WebSocketHandler) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[client.caregiverEmail]; ok {
		close(old.send)
	}
	h.clients[client.caregiverEmail] = client
}

// removeClient drops the client only if it is still the registered connection
// for its caregiver. A stale pump exiting after a reconnect must not tear down
// the replacement.
func (h *WebSocketHandler) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.caregiverEmail]; ok && current == client {
		close(client.send)
		delete(h.clients, client.caregiverEmail)
		h.logger.Info("websocket client disconnected", zap.String("caregiver", client.caregiverEmail))
	}
}

func (h *WebSocketHandler) Broadcast(message WebSocketMessage) {
	data, _ := json.Marshal(message)
	h.broadcast <- data
}

func (h *WebSocketHandler) SendToCaregiver(caregiverEmail string, message WebSocketMessage) {
	h.mu.RLock()
	client, ok := h.clients[caregiverEmail]
	h.mu.RUnlock()

	if ok {
		data, _ := json.Marshal(message)
		select {
		case client.send <- data:
		default:
			h.removeClient(client)
		}
	}
}

// HandleBroadcast fans queued messages out to every connected client. Clients
// with a full send buffer are collected under the read lock and evicted after
// it is released; evicting inline would re-enter the mutex and wedge the loop,
// and a wedged loop would back up into every caller of Broadcast.
func (h *WebSocketHandler) HandleBroadcast() {
	for {
		message := <-h.broadcast

		var stale []*Client
		h.mu.RLock()
		for _, client := range h.clients {
			select {
			case client.send <- message:
			default:
				stale = append(stale, client)
			}
		}
		h.mu.RUnlock()

		for _, client := range stale {
			h.removeClient(client)
		}
	}
}

func (c *Client) readPump(h *WebSocketHandler) {
	defer func() {
		h.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) SendAlertEvent(event *services.AlertEvent) {
	h.Broadcast(WebSocketMessage{
		Type:    "alert",
		Payload: event,
	})
}
