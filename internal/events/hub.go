package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Control actions exchanged with websocket subscribers
const (
	ActionSubscribe    = "SUBSCRIBE"
	ActionUnsubscribe  = "UNSUBSCRIBE"
	ActionHeartbeat    = "HEARTBEAT"
	ActionSubscribed   = "SUBSCRIBED"
	ActionUnsubscribed = "UNSUBSCRIBED"
	ActionError        = "ERROR"
)

// AllEvents subscribes to every event type
const AllEvents = "*"

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
)

// ControlMessage is a subscriber request or the hub's reply to it
type ControlMessage struct {
	Action    string `json:"action"`
	EventType string `json:"event_type,omitempty"`
	Message   string `json:"message,omitempty"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte

	mu    sync.Mutex
	types map[string]bool
}

func (c *hubClient) wants(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.types[AllEvents] || c.types[eventType]
}

func (c *hubClient) set(eventType string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.types[eventType] = true
	} else {
		delete(c.types, eventType)
	}
}

// Hub streams envelopes to websocket subscribers by event type
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

func (h *Hub) Name() string {
	return "websocket"
}

// Clients reports the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the subscriber until it disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &hubClient{
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		types: make(map[string]bool),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *hubClient) {
	defer h.remove(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, ControlMessage{Action: ActionError, Message: "invalid message"})
			continue
		}

		switch msg.Action {
		case ActionSubscribe:
			if msg.EventType == "" {
				h.reply(c, ControlMessage{Action: ActionError, Message: "event_type required"})
				continue
			}
			c.set(msg.EventType, true)
			h.reply(c, ControlMessage{Action: ActionSubscribed, EventType: msg.EventType})
		case ActionUnsubscribe:
			c.set(msg.EventType, false)
			h.reply(c, ControlMessage{Action: ActionUnsubscribed, EventType: msg.EventType})
		case ActionHeartbeat:
			h.reply(c, ControlMessage{Action: ActionHeartbeat})
		default:
			h.reply(c, ControlMessage{Action: ActionError, Message: "unknown action " + msg.Action})
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("websocket write failed", "error", err)
			c.conn.Close()
			// drain so remove never blocks behind a dead writer
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.conn.Close()
}

func (h *Hub) reply(c *hubClient, msg ControlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("websocket subscriber lagging, dropping reply")
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Publish sends each envelope to the subscribers of its type. Slow subscribers
// miss messages rather than stall the publisher.
func (h *Hub) Publish(ctx context.Context, envs []Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range envs {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		for c := range h.clients {
			if !c.wants(e.EventType) {
				continue
			}
			select {
			case c.send <- data:
			default:
				h.logger.Warn("websocket subscriber lagging, dropping event", "event_id", e.EventID)
			}
		}
	}
	return nil
}

// Close disconnects every subscriber
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}
