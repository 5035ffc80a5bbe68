package web

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	cfg := &configs.Config{}
	cfg.Log.LogLevel = "info"
	cfg.Log.LogDir = t.TempDir()
	cfg.Log.LogFile = "test.log"
	logger, err := utils.NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/ws", hub.HandleConnection)

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the hub to register the client.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.ClientCount() == 0 {
		t.Fatal("client never registered")
	}
	return conn
}

func TestHubBroadcastsAssistance(t *testing.T) {
	hub := NewHub(newTestLogger(t))
	conn := dialHub(t, hub)

	hub.NotifyAssistance("work on the shading", 1234)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}

	var got struct {
		Event string `json:"event"`
		Data  struct {
			Text      string `json:"text"`
			Timestamp int64  `json:"timestamp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &got); err != nil {
		t.Fatalf("decoding broadcast: %v", err)
	}
	if got.Event != "assistance_response" {
		t.Errorf("event = %q, want assistance_response", got.Event)
	}
	if got.Data.Text != "work on the shading" || got.Data.Timestamp != 1234 {
		t.Errorf("data = %+v", got.Data)
	}
}

func TestHubBroadcastsReference(t *testing.T) {
	hub := NewHub(newTestLogger(t))
	conn := dialHub(t, hub)

	hub.NotifyReference("generated_images/reference_1.png")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}

	var got struct {
		Event string `json:"event"`
		Data  struct {
			ImagePath string `json:"image_path"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &got); err != nil {
		t.Fatalf("decoding broadcast: %v", err)
	}
	if got.Event != "reference_image_ready" {
		t.Errorf("event = %q, want reference_image_ready", got.Event)
	}
	if got.Data.ImagePath != "generated_images/reference_1.png" {
		t.Errorf("image_path = %q", got.Data.ImagePath)
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub(newTestLogger(t))
	conn := dialHub(t, hub)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after disconnect, want 0", n)
	}

	// Broadcasting to an empty hub is a no-op, not a panic.
	hub.NotifyAssistance("nobody listening", 1)
}

func TestHubClose(t *testing.T) {
	hub := NewHub(newTestLogger(t))
	dialHub(t, hub)

	hub.Close()
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after Close, want 0", n)
	}
}
