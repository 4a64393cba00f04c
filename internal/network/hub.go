package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/railtwin/traincontrol/internal/engine"
	"github.com/railtwin/traincontrol/internal/events"
	"github.com/railtwin/traincontrol/internal/platform/logger"
	"github.com/railtwin/traincontrol/internal/platform/metrics"
	"github.com/railtwin/traincontrol/internal/platform/optimization"
)

// Message types sent to dashboards.
const (
	MessageSnapshot = "snapshot"
	MessageEvent    = "event"
)

// DefaultPollInterval is how often the event log is scanned for new events.
const DefaultPollInterval = 200 * time.Millisecond

// Envelope wraps every message pushed to a dashboard.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Controller is the part of the engine the hub drives.
type Controller interface {
	Snapshot() engine.Snapshot
	SelectRegion(name string) bool
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
	logger     *logger.Logger
	controller Controller
	tuning     *optimization.Tuning
	done       chan struct{} // Closed when Run returns
}

// NewHub initializes a new WebSocket Hub. A nil tuning uses the default preset.
func NewHub(controller Controller, tuning *optimization.Tuning, log *logger.Logger) *Hub {
	if tuning == nil {
		tuning = optimization.DefaultTuning()
	}
	return &Hub{
		broadcast:  make(chan []byte, tuning.BroadcastChannelBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     log,
		controller: controller,
		tuning:     tuning,
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket Hub shutting down.")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
				metrics.Get().RecordWSConnection(-1)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.Get().RecordWSConnection(1)
			h.logger.Info("New WebSocket client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.Get().RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					metrics.Get().RecordWSMessage(false)
				default:
					// Slow consumer: it misses this frame and catches up on the next snapshot.
					metrics.Get().RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastSnapshot pushes the live state to every client.
func (h *Hub) BroadcastSnapshot(snap engine.Snapshot) {
	h.enqueue(Envelope{Type: MessageSnapshot, Data: snap})
}

// BroadcastEvent serializes an event and queues it for all clients.
func (h *Hub) BroadcastEvent(event events.Event) {
	h.enqueue(Envelope{Type: MessageEvent, Data: event})
}

// enqueue never blocks the caller: the engine calls it from the tick goroutine.
// When the queue is full the message is dropped and counted as an error.
func (h *Hub) enqueue(env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to serialize " + env.Type + " for WebSocket broadcast: " + err.Error())
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		metrics.Get().RecordWSError()
		h.logger.Warn("Broadcast queue full, dropping " + env.Type)
	}
}

// StartEventPoller spawns a goroutine that polls the EventLog and pushes
// events appended from now on to the Hub. Tick events are skipped; every tick
// already produces a snapshot.
func (h *Hub) StartEventPoller(ctx context.Context, eventLog *events.EventLog, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	_, offset := eventLog.Since(0)
	go func() {
		pollInterval := time.NewTicker(interval)
		defer pollInterval.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-pollInterval.C:
				var fresh []events.Event
				fresh, offset = eventLog.Since(offset)
				for _, event := range fresh {
					if event.Type == events.EventTypeTrainTick {
						continue
					}
					h.BroadcastEvent(event)
				}
			}
		}
	}()
}
