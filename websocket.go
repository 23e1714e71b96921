package wyvern

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/exchange"
	"github.com/HappyFeet07/WyvernV3Fork/internal/events"
	"github.com/HappyFeet07/WyvernV3Fork/registry"
	"github.com/gorilla/websocket"
)

const (
	// DefaultWSEndpoint is the event stream of a local wyvernd
	DefaultWSEndpoint = "ws://localhost:8080/ws"

	// Heartbeat interval
	HeartbeatInterval = 30 * time.Second

	// Reconnect settings
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// WSEventHandler is called for every event envelope received
type WSEventHandler func(env events.Envelope)

// WSControlHandler is called for subscription acknowledgements, heartbeats and errors from the server
type WSControlHandler func(msg events.ControlMessage)

// WSErrorHandler is a callback function for handling WebSocket errors
type WSErrorHandler func(err error)

// WSConfig holds configuration for the WebSocket client
type WSConfig struct {
	Endpoint             string
	HeartbeatInterval    time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	OnEvent              WSEventHandler
	OnControl            WSControlHandler
	OnError              WSErrorHandler
	OnConnect            func()
	OnDisconnect         func()
}

// WSClient streams protocol events from a wyvernd hub
type WSClient struct {
	config           WSConfig
	conn             *websocket.Conn
	mu               sync.RWMutex
	writeMu          sync.Mutex
	isConnected      bool
	subscriptions    map[string]struct{}
	subMu            sync.RWMutex
	parent           context.Context
	stopped          bool
	cancel           context.CancelFunc
	heartbeatTicker  *time.Ticker
	reconnectAttempt int
}

// NewWSClient creates a new WebSocket client
func NewWSClient(config WSConfig) *WSClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultWSEndpoint
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = HeartbeatInterval
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.MaxReconnectAttempts == 0 {
		config.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}

	return &WSClient{
		config:        config,
		subscriptions: make(map[string]struct{}),
	}
}

// Connect establishes a WebSocket connection. The client reconnects on its own
// until ctx ends or Disconnect is called.
func (ws *WSClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	ws.parent = ctx
	ws.stopped = false
	ws.mu.Unlock()
	return ws.connect(ctx)
}

func (ws *WSClient) connect(parent context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.isConnected {
		return nil
	}

	ctx, cancel := context.WithCancel(parent)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ws.config.Endpoint, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	ws.conn = conn
	ws.cancel = cancel
	ws.isConnected = true
	ws.reconnectAttempt = 0

	ws.startHeartbeat(ctx)
	go ws.readLoop(ctx, conn)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if ws.config.OnConnect != nil {
		go ws.config.OnConnect()
	}
	return nil
}

// Disconnect closes the WebSocket connection and stops reconnecting
func (ws *WSClient) Disconnect() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.stopped = true
	if !ws.isConnected {
		return nil
	}
	ws.isConnected = false

	if ws.cancel != nil {
		ws.cancel()
	}
	if ws.heartbeatTicker != nil {
		ws.heartbeatTicker.Stop()
	}

	var err error
	if ws.conn != nil {
		ws.writeMu.Lock()
		ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.writeMu.Unlock()
		err = ws.conn.Close()
		ws.conn = nil
	}

	if ws.config.OnDisconnect != nil {
		go ws.config.OnDisconnect()
	}
	return err
}

// IsConnected returns the current connection status
func (ws *WSClient) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.isConnected
}

// Subscribe asks for events of eventType; events.AllEvents asks for everything
func (ws *WSClient) Subscribe(eventType string) error {
	if err := ws.sendMessage(events.ControlMessage{Action: events.ActionSubscribe, EventType: eventType}); err != nil {
		return err
	}
	ws.subMu.Lock()
	ws.subscriptions[eventType] = struct{}{}
	ws.subMu.Unlock()
	return nil
}

// Unsubscribe stops events of eventType
func (ws *WSClient) Unsubscribe(eventType string) error {
	if err := ws.sendMessage(events.ControlMessage{Action: events.ActionUnsubscribe, EventType: eventType}); err != nil {
		return err
	}
	ws.subMu.Lock()
	delete(ws.subscriptions, eventType)
	ws.subMu.Unlock()
	return nil
}

// SubscribeOrdersMatched subscribes to settled matches
func (ws *WSClient) SubscribeOrdersMatched() error {
	return ws.Subscribe(exchange.EventOrdersMatched)
}

// SubscribeOrderApproved subscribes to order pre-approvals
func (ws *WSClient) SubscribeOrderApproved() error {
	return ws.Subscribe(exchange.EventOrderApproved)
}

// SubscribeOrderFillChanged subscribes to fill rewrites and cancellations
func (ws *WSClient) SubscribeOrderFillChanged() error {
	return ws.Subscribe(exchange.EventOrderFillChanged)
}

// SubscribeProxyRegistered subscribes to new proxies
func (ws *WSClient) SubscribeProxyRegistered() error {
	return ws.Subscribe(registry.EventProxyRegistered)
}

// sendMessage sends a message over the WebSocket connection
func (ws *WSClient) sendMessage(msg any) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if !ws.isConnected || ws.conn == nil {
		return fmt.Errorf("WebSocket not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// startHeartbeat starts the heartbeat ticker; called with mu held
func (ws *WSClient) startHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(ws.config.HeartbeatInterval)
	ws.heartbeatTicker = ticker

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := ws.sendMessage(events.ControlMessage{Action: events.ActionHeartbeat}); err != nil {
					ws.reportError(fmt.Errorf("heartbeat failed: %w", err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// readLoop continuously reads messages from the WebSocket
func (ws *WSClient) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				ws.markClosed(conn)
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.reportError(fmt.Errorf("read error: %w", err))
			}
			ws.handleDisconnect()
			return
		}
		ws.dispatch(data)
	}
}

func (ws *WSClient) dispatch(data []byte) {
	var peek struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		ws.reportError(fmt.Errorf("decode message: %w", err))
		return
	}

	if peek.Action != "" {
		var msg events.ControlMessage
		if err := json.Unmarshal(data, &msg); err == nil && ws.config.OnControl != nil {
			ws.config.OnControl(msg)
		}
		return
	}

	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ws.reportError(fmt.Errorf("decode event: %w", err))
		return
	}
	if ws.config.OnEvent != nil {
		ws.config.OnEvent(env)
	}
}

func (ws *WSClient) reportError(err error) {
	if ws.config.OnError != nil {
		ws.config.OnError(err)
	}
}

// handleDisconnect handles an unexpected disconnection and attempts reconnection
func (ws *WSClient) handleDisconnect() {
	ws.mu.Lock()
	wasConnected := ws.isConnected
	ws.isConnected = false
	if ws.heartbeatTicker != nil {
		ws.heartbeatTicker.Stop()
	}
	if ws.cancel != nil {
		ws.cancel()
	}
	if ws.conn != nil {
		ws.conn.Close()
		ws.conn = nil
	}
	ws.mu.Unlock()

	if wasConnected && ws.config.OnDisconnect != nil {
		ws.config.OnDisconnect()
	}

	go ws.attemptReconnect()
}

// attemptReconnect attempts to reconnect to the WebSocket
func (ws *WSClient) attemptReconnect() {
	for {
		ws.mu.Lock()
		parent, stopped := ws.parent, ws.stopped
		if stopped || ws.reconnectAttempt >= ws.config.MaxReconnectAttempts {
			ws.mu.Unlock()
			break
		}
		ws.reconnectAttempt++
		attempt := ws.reconnectAttempt
		ws.mu.Unlock()

		select {
		case <-parent.Done():
			return
		case <-time.After(ws.config.ReconnectInterval):
		}

		if ws.isStopped() {
			return
		}
		if err := ws.connect(parent); err != nil {
			ws.reportError(fmt.Errorf("reconnect attempt %d failed: %w", attempt, err))
			continue
		}

		ws.resubscribe()
		return
	}

	if !ws.isStopped() {
		ws.reportError(fmt.Errorf("max reconnect attempts (%d) reached", ws.config.MaxReconnectAttempts))
	}
}

// markClosed records that conn ended because its context did
func (ws *WSClient) markClosed(conn *websocket.Conn) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.conn == conn {
		ws.isConnected = false
		ws.conn = nil
		if ws.heartbeatTicker != nil {
			ws.heartbeatTicker.Stop()
		}
	}
}

func (ws *WSClient) isStopped() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.stopped
}

// resubscribe resubscribes to all tracked subscriptions
func (ws *WSClient) resubscribe() {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for eventType := range ws.subscriptions {
		msg := events.ControlMessage{Action: events.ActionSubscribe, EventType: eventType}
		if err := ws.sendMessage(msg); err != nil {
			ws.reportError(fmt.Errorf("resubscribe failed: %w", err))
		}
	}
}

// GetSubscriptions returns a list of current subscriptions
func (ws *WSClient) GetSubscriptions() []string {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	subs := make([]string, 0, len(ws.subscriptions))
	for eventType := range ws.subscriptions {
		subs = append(subs, eventType)
	}
	return subs
}
