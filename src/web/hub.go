package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"drawing-assistant-go/src/core/utils"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// event is one push message to the browser UI.
type event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans pipeline events out to every connected UI client over websocket.
// It implements the pipeline's Notifier.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*hubClient
	upgrader websocket.Upgrader
	logger   *utils.TaggedLogger
}

func NewHub(logger *utils.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*hubClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The assistant runs on a trusted local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.WithTag("web"),
	}
}

// HandleConnection upgrades an incoming request and keeps the client
// registered until it disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn(fmt.Sprintf("websocket upgrade failed: %v", err))
		return
	}

	client := &hubClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info(fmt.Sprintf("client %s connected (%d active)", client.id, count))

	go h.writeLoop(client)
	h.readLoop(client)
}

// readLoop drains inbound frames. Clients send nothing we act on; the loop
// exists to notice disconnects.
func (h *Hub) readLoop(client *hubClient) {
	defer h.drop(client)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	for message := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Debug(fmt.Sprintf("write to client %s failed: %v", client.id, err))
			return
		}
	}
}

func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	client.conn.Close()
	h.logger.Info(fmt.Sprintf("client %s disconnected (%d active)", client.id, count))
}

func (h *Hub) broadcast(name string, data interface{}) {
	message, err := json.Marshal(event{Event: name, Data: data})
	if err != nil {
		h.logger.Error(fmt.Sprintf("encoding %s event failed: %v", name, err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer; drop the event rather than block the
			// pipeline.
			h.logger.Warn(fmt.Sprintf("client %s send buffer full, dropping %s", client.id, name))
		}
	}
}

// NotifyAssistance pushes analyzed critique text with its capture timestamp.
func (h *Hub) NotifyAssistance(text string, timestamp int64) {
	h.broadcast("assistance_response", gin.H{
		"text":      text,
		"timestamp": timestamp,
	})
}

// NotifyReference pushes the web-relative path of a generated reference image.
func (h *Hub) NotifyReference(imagePath string) {
	h.broadcast("reference_image_ready", gin.H{
		"image_path": imagePath,
	})
}

// ClientCount reports how many UI clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.drop(client)
	}
}
