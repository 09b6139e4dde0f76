package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only listen.
	maxMessageSize = 512

	// Outbound messages buffered per client before it is dropped
	sendBuffer = 64
)

// Event types sent on /ws
const (
	EventSnapshot   = "snapshot"
	EventTransition = "transition"
)

// Event is one message on the websocket stream. A client receives a
// snapshot of all supervised states on connect, then one transition per
// presence change.
type Event struct {
	Type    string         `json:"type"`
	Time    time.Time      `json:"time"`
	Device  string         `json:"device,omitempty"`
	Present bool           `json:"present"`
	States  []DeviceStatus `json:"states,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active websocket clients and broadcasts
// presence events to them.
type Hub struct {
	logger   *zap.Logger
	snapshot func() Event

	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	// quit is closed by Close, done when run has exited
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	count int
}

// wsClient is a middleman between the websocket connection and the hub.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func newHub(snapshot func() Event, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Hub{
		logger:     logger,
		snapshot:   snapshot,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		for client := range h.clients {
			close(client.send)
			delete(h.clients, client)
		}
		h.setCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.quit:
			return
		case client := <-h.register:
			// The snapshot is queued from the loop so no broadcast can
			// fall between it and the registration.
			h.sendSnapshot(client)
			h.clients[client] = true
			h.setCount(len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setCount(len(h.clients))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Too slow, drop the client rather than block the hub
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

// sendSnapshot queues the current states for a client that is about to
// be registered. Its send channel is still empty.
func (h *Hub) sendSnapshot(client *wsClient) {
	if h.snapshot == nil {
		return
	}
	message, err := json.Marshal(h.snapshot())
	if err != nil {
		h.logger.Error("Failed to encode websocket snapshot", zap.Error(err))
		return
	}
	client.send <- message
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Clients returns the number of connected websocket clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Close disconnects every client and stops the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
}

// Broadcast queues ev for every client. It never blocks; when the queue
// is full the event is dropped.
func (h *Hub) Broadcast(ev Event) {
	message, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode websocket event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Websocket hub busy, dropping event", zap.String("type", ev.Type))
	}
}

// PublishTransition matches presence.ChangeFunc
func (h *Hub) PublishTransition(device string, _, to bool) {
	h.Broadcast(Event{
		Type:    EventTransition,
		Time:    time.Now().UTC(),
		Device:  device,
		Present: to,
	})
}

// ServeHTTP upgrades the request and registers the client. The hub
// sends the snapshot on registration.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}
	logging.LogConnection(r.RemoteAddr, "websocket_connected")

	go client.writePump()
	go client.readPump(r.RemoteAddr)
}

// readPump discards client messages and detects disconnects.
func (c *wsClient) readPump(remoteAddr string) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends queued events and pings. It is the only writer on the
// connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// snapshotEvent lists the supervised states for a new client
func (s *Server) snapshotEvent() Event {
	return Event{
		Type:   EventSnapshot,
		Time:   time.Now().UTC(),
		States: sortedStates(s.store.All()),
	}
}
