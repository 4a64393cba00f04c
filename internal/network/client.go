package network

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/railtwin/traincontrol/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// CommandSelectRegion switches the controlled region.
const CommandSelectRegion = "SELECT_REGION"

// Command is an inbound message from a dashboard.
type Command struct {
	Type   string `json:"type"`
	Region string `json:"region,omitempty"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	windowStart time.Time
	windowCount int
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.tuning.ClientSendBuffer),
	}
}

// Register adds the client to the hub and queues the current state for it.
func (c *Client) Register() {
	if payload, err := json.Marshal(Envelope{Type: MessageSnapshot, Data: c.hub.controller.Snapshot()}); err == nil {
		c.send <- payload
	}
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump pumps commands from the websocket connection to the controller.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error: " + err.Error())
				metrics.Get().RecordWSError()
			}
			break
		}
		metrics.Get().RecordWSMessage(true)

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.logger.Error("Failed to parse command from WebSocket. err: " + err.Error())
			continue
		}
		c.handleCommand(cmd, time.Now())
	}
}

func (c *Client) handleCommand(cmd Command, now time.Time) {
	if !c.allow(now) {
		c.hub.logger.Warn("Rate limit exceeded for dashboard command " + cmd.Type)
		return
	}

	switch cmd.Type {
	case CommandSelectRegion:
		if !c.hub.controller.SelectRegion(cmd.Region) {
			c.hub.logger.Warn("Ignoring switch to unknown region " + cmd.Region)
		}
	default:
		c.hub.logger.Warn("Unknown dashboard command: " + cmd.Type)
	}
}

// allow applies the per-client inbound rate limit over one-second windows.
func (c *Client) allow(now time.Time) bool {
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	return c.windowCount <= c.hub.tuning.MaxMessagesPerSecond
}

// WritePump pumps messages from the hub to the websocket connection.
// Each envelope is written as its own text frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.Get().RecordWSError()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Dashboards are served from a separate dev origin
	},
}

// ServeWs upgrades the request and attaches a new client to the hub.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if h.ClientCount() >= h.tuning.MaxClients {
		http.Error(w, "Too many dashboards connected", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection: " + err.Error())
		metrics.Get().RecordWSError()
		return
	}

	client := NewClient(h, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
