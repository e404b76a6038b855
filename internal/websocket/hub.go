package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Priya8975/minutes-live-sync/internal/auth"
	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/Priya8975/minutes-live-sync/internal/livebus"
	"github.com/Priya8975/minutes-live-sync/internal/metrics"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// MaxFrameBytes caps a single emit frame. The REST emit route uses the same
// limit for its body.
const MaxFrameBytes = 4096

// LiveEvent is the frame pushed to browser tabs for every bus event.
type LiveEvent struct {
	Topic     domain.Topic   `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Remote    bool           `json:"remote"`
}

// emitRequest is the frame a tab sends to announce a change.
type emitRequest struct {
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

// Limiter throttles emits per caller.
type Limiter interface {
	Allow(ctx context.Context, actor string) bool
}

type outbound struct {
	data    []byte
	exclude *client
}

// Hub attaches WebSocket clients to the live bus. Each connected tab receives
// every event on the fixed topics and may emit on them; a tab never gets its
// own emit echoed back.
type Hub struct {
	bus     *livebus.Bus
	limiter Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics

	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	actor string
}

type senderKey struct{}

// NewHub creates a hub bound to bus. limiter may be nil.
func NewHub(bus *livebus.Bus, limiter Limiter, logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		bus:        bus,
		limiter:    limiter,
		logger:     logger,
		metrics:    m,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run subscribes the hub to the bus and drives client bookkeeping until ctx
// is cancelled. Should be called as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	var unsubscribers []func()
	for _, topic := range domain.Topics {
		unsubscribers = append(unsubscribers, h.bus.Subscribe(topic, h.forward))
	}
	defer func() {
		for _, unsubscribe := range unsubscribers {
			unsubscribe()
		}
		close(h.done)
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.SetWebSocketClients(count)
			h.logger.Debug("websocket client connected", "actor", c.actor, "total_clients", count)

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			var slow []*client
			h.mu.RLock()
			for c := range h.clients {
				if c == msg.exclude {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()

			// Client buffer full, drop it
			for _, c := range slow {
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetWebSocketClients(count)
	h.logger.Debug("websocket client disconnected", "actor", c.actor, "total_clients", count)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.metrics.SetWebSocketClients(0)
}

// forward is the bus handler that relays events to connected tabs.
func (h *Hub) forward(ctx context.Context, ev livebus.Event) {
	sender, _ := ctx.Value(senderKey{}).(*client)
	h.Broadcast(LiveEvent{
		Topic:     ev.Topic,
		Payload:   ev.Payload,
		Timestamp: ev.Timestamp,
		Remote:    ev.Remote,
	}, sender)
}

// Broadcast queues an event for every connected client except exclude,
// which may be nil.
func (h *Hub) Broadcast(event LiveEvent, exclude *client) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "error", err)
		return
	}

	select {
	case h.broadcast <- outbound{data: data, exclude: exclude}:
	default:
		h.logger.Warn("websocket broadcast channel full, dropping event", "topic", event.Topic)
	}
}

// HandleWebSocket upgrades HTTP connections to WebSocket and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		actor: auth.ActorFromContext(r.Context(), remoteHost(r)),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// emit publishes a tab's emit request on the bus on behalf of c.
func (h *Hub) emit(c *client, req emitRequest) {
	topic, ok := domain.ParseTopic(req.Topic)
	if !ok {
		h.logger.Debug("ignoring emit on unknown topic", "topic", req.Topic, "actor", c.actor)
		return
	}

	ctx := context.WithValue(context.Background(), senderKey{}, c)
	if h.limiter != nil && !h.limiter.Allow(ctx, c.actor) {
		h.logger.Debug("websocket emit rate limited", "actor", c.actor)
		return
	}

	h.bus.Emit(ctx, topic, req.Payload)
}

// readPump reads emit frames from the tab and handles pings/disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var req emitRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Debug("ignoring malformed websocket frame", "actor", c.actor, "error", err)
			continue
		}
		c.hub.emit(c, req)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
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

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// ClientCount returns the number of connected WebSocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
