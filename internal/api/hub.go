package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

const (
	maxConnsPerKey = 10
	writeWait      = 5 * time.Second
	sendBuffer     = 64

	// allShips subscribes a connection to every ship.
	allShips = "*"
)

var eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ship_notification_ws_events_dropped_total",
	Help: "Status events dropped because a subscriber's send buffer was full.",
})

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// subscriber is one websocket connection with its own writer goroutine.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans status events out to websocket subscribers keyed by ship code.
// Publish only enqueues; socket writes happen on each subscriber's writer.
type Hub struct {
	connections map[string]map[*subscriber]bool // ship code -> set of subscribers
	mutex       sync.Mutex
	logger      *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{connections: make(map[string]map[*subscriber]bool), logger: logger}
}

// ServeWS upgrades the request and subscribes it to ?ship_code=, or to every
// ship when the parameter is absent.
func (h *Hub) ServeWS(c *gin.Context) {
	key := c.DefaultQuery("ship_code", allShips)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	sub := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.AddConnection(key, sub) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	go h.writeLoop(key, sub)
	defer func() {
		h.RemoveConnection(key, sub)
		conn.Close()
	}()

	// the feed is one-way; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop drains sub.send until RemoveConnection closes it.
func (h *Hub) writeLoop(key string, sub *subscriber) {
	for message := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Errorf("Failed to send WebSocket message for %s: %v", key, err)
			// unblocks the read loop in ServeWS, which unregisters sub
			sub.conn.Close()
			for range sub.send {
			}
			return
		}
	}
}

// AddConnection registers sub under key. It reports false when key is at capacity.
func (h *Hub) AddConnection(key string, sub *subscriber) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[key]; !exists {
		h.connections[key] = make(map[*subscriber]bool)
	}
	if len(h.connections[key]) >= maxConnsPerKey {
		h.logger.Warnf("Max connections reached for %s", key)
		return false
	}
	h.connections[key][sub] = true
	h.logger.Infof("Added WebSocket connection for %s (total: %d)", key, len(h.connections[key]))
	return true
}

func (h *Hub) RemoveConnection(key string, sub *subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.connections[key]
	if !exists || !conns[sub] {
		return
	}
	delete(conns, sub)
	close(sub.send)
	if len(conns) == 0 {
		delete(h.connections, key)
	}
	h.logger.Infof("Removed WebSocket connection for %s (remaining: %d)", key, len(conns))
}

// Count returns the number of subscribers under key.
func (h *Hub) Count(key string) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[key])
}

// Publish queues evt for the ship's subscribers and the all-ships feed. A
// subscriber whose buffer is full misses the event.
func (h *Hub) Publish(evt models.StatusEvent) {
	message, err := json.Marshal(evt)
	if err != nil {
		h.logger.Errorf("Failed to encode status event: %v", err)
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.enqueueLocked(evt.ShipCode, message)
	h.enqueueLocked(allShips, message)
}

func (h *Hub) enqueueLocked(key string, message []byte) {
	for sub := range h.connections[key] {
		select {
		case sub.send <- message:
		default:
			eventsDropped.Inc()
			h.logger.Warnf("WebSocket subscriber for %s is behind, dropping event", key)
		}
	}
}
