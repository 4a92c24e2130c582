package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/learnhub/learnhub/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10

	defaultBufferSize = 16
)

// Message represents a JSON payload delivered to connected devices.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type controlMessage struct {
	Action string `json:"action"`
}

type outbound struct {
	message Message
	// terminal closes the socket once the message has been written.
	terminal bool
}

// Hub tracks the devices connected on each user's session and pushes
// termination notices when that session ends elsewhere.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*connection]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a realtime hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
		log: logger.WithModule("realtime"),
	}
}

// Serve upgrades the HTTP connection to a WebSocket and registers it against the
// user's session fingerprint. It blocks until the connection closes.
func (h *Hub) Serve(userID, sessionRef string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(h, conn, userID, sessionRef)
	h.register(client)
	client.enqueue(outbound{message: Message{
		Stream: StreamSession,
		Event:  EventConnected,
		Data:   map[string]any{"session_ref": sessionRef},
	}})

	go client.writeLoop()
	client.readLoop()
}

// TerminateSession notifies and disconnects every device of the user attached to the
// given session. Devices on a different session of the same user are left alone.
func (h *Hub) TerminateSession(userID, sessionRef, reason string) {
	if userID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		if sessionRef != "" && client.sessionRef != sessionRef {
			continue
		}
		client.enqueue(terminationNotice(client.sessionRef, reason))
	}
}

// TerminateAll notifies and disconnects every connected device.
func (h *Hub) TerminateAll(reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.enqueue(terminationNotice(client.sessionRef, reason))
		}
	}
}

// ConnectionCount returns the number of registered devices.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) register(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*connection]struct{})
	}
	h.clients[client.userID][client] = struct{}{}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[client.userID]
	if clients == nil {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
}

func terminationNotice(sessionRef, reason string) outbound {
	return outbound{
		message: Message{
			Stream: StreamSession,
			Event:  EventSessionTerminated,
			Data: map[string]any{
				"session_ref": sessionRef,
				"reason":      reason,
			},
		},
		terminal: true,
	}
}

type connection struct {
	hub        *Hub
	socket     *websocket.Conn
	userID     string
	sessionRef string
	send       chan outbound

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn, userID, sessionRef string) *connection {
	return &connection{
		hub:        hub,
		socket:     conn,
		userID:     userID,
		sessionRef: sessionRef,
		send:       make(chan outbound, defaultBufferSize),
	}
}

func (c *connection) enqueue(item outbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	select {
	case c.send <- item:
	default:
		c.hub.log.Warn("dropping slow client", zap.String("user_id", c.userID))
		c.closed = true
		close(c.send)
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(ctrl.Action), "ping") {
			c.enqueue(outbound{message: Message{Stream: StreamSession, Event: EventPong}})
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case item, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(item.message); err != nil {
				return
			}
			if item.terminal {
				_ = c.socket.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(CloseSessionTerminated, item.message.Event))
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			close(c.send)
		}
		c.mu.Unlock()
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
