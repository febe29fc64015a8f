// -----------------------------------------------------------------------
// WebSocket bridge - fans session and job events out to local clients
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/common"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"github.com/ternarybob/leadwatch/internal/monitor"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Local bridge only
	},
}

// bridgedEvents are forwarded to clients, subject to the allowed_events whitelist
var bridgedEvents = []interfaces.EventType{
	interfaces.EventCredentialsUpdated,
	interfaces.EventLoginRequired,
	interfaces.EventJobSnapshot,
	interfaces.EventJobsReloaded,
	interfaces.EventStatusChanged,
}

// WSMessage is the envelope of every websocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]*sync.Mutex // Per-connection write lock
	mu                sync.RWMutex
	eventService      interfaces.EventService
	statusService     StatusProvider
	snapshotThrottler *rate.Limiter   // Nil = job_snapshot messages are not throttled
	allowedEvents     map[string]bool // Whitelist of events to broadcast (empty = allow all)
	unsubscribe       []func()
}

func NewWebSocketHandler(eventService interfaces.EventService, statusService StatusProvider, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:        logger,
		clients:       make(map[*websocket.Conn]*sync.Mutex),
		eventService:  eventService,
		statusService: statusService,
		allowedEvents: make(map[string]bool),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		if interval := common.ParseDuration(config.SnapshotThrottle, 0); interval > 0 {
			h.snapshotThrottler = rate.NewLimiter(rate.Every(interval), 1)
			logger.Debug().
				Str("event_type", string(interfaces.EventJobSnapshot)).
				Str("interval", interval.String()).
				Msg("Throttler initialized for job snapshots")
		}
	}

	return h
}

// HandleWebSocket upgrades the connection, sends the current status and
// keeps the client registered until it disconnects
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	mutex.Lock() // Hold writes until the status message is out
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	h.sendStatus(r.Context(), conn)
	mutex.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// sendStatus writes the status message; the caller holds the connection's write lock
func (h *WebSocketHandler) sendStatus(ctx context.Context, conn *websocket.Conn) {
	if h.statusService == nil {
		return
	}
	data, err := json.Marshal(WSMessage{Type: "status", Payload: h.statusService.GetStatus(ctx)})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal initial status")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send initial status")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every connected client
func (h *WebSocketHandler) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// SubscribeToEvents forwards bridged events to clients
func (h *WebSocketHandler) SubscribeToEvents() error {
	if h.eventService == nil {
		return nil
	}

	for _, eventType := range bridgedEvents {
		if len(h.allowedEvents) > 0 && !h.allowedEvents[string(eventType)] {
			continue
		}
		unsubscribe, err := h.eventService.Subscribe(eventType, h.forward)
		if err != nil {
			h.Close()
			return err
		}
		h.mu.Lock()
		h.unsubscribe = append(h.unsubscribe, unsubscribe)
		h.mu.Unlock()
	}
	return nil
}

func (h *WebSocketHandler) forward(ctx context.Context, event interfaces.Event) error {
	if event.Type == interfaces.EventJobSnapshot && h.snapshotThrottler != nil {
		// Only in-progress snapshots are throttled; the final one always goes out
		if snap, ok := event.Payload.(monitor.Snapshot); ok && snap.State.Active() && !snap.Loading {
			if !h.snapshotThrottler.Allow() {
				return nil
			}
		}
	}

	h.Broadcast(WSMessage{Type: string(event.Type), Payload: event.Payload})
	return nil
}

// Close drops event subscriptions and disconnects all clients
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	for conn, mutex := range clients {
		mutex.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
}
