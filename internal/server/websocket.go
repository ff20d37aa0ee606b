package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-manual/internal/config"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/protocol"
)

// Dispatcher applies a command and returns the reply to send back
type Dispatcher func(*protocol.Message) (*protocol.Message, error)

// wsClient serializes writes to one connection
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections: it pushes state events to every
// client and applies the commands clients send
type WSHub struct {
	state    *placement.State
	cfg      config.StreamConfig
	dispatch Dispatcher
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	cancel  context.CancelFunc
	closed  bool

	running atomic.Bool
	done    chan struct{}
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(state *placement.State, cfg config.StreamConfig, dispatch Dispatcher, logger *slog.Logger) *WSHub {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSHub{
		state:    state,
		cfg:      cfg,
		dispatch: dispatch,
		logger:   logger,
		clients:  make(map[*wsClient]struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the broadcast loop (blocking, use goroutine).
// A hub that was already closed returns immediately.
func (h *WSHub) Run(ctx context.Context) {
	h.mu.Lock()
	if h.closed || h.cancel != nil {
		h.mu.Unlock()
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()
	defer close(h.done)

	events := h.state.Subscribe(h.cfg.BufferSize)
	defer h.state.Unsubscribe(events)

	// A nil channel never fires, which disables the periodic state
	var tick <-chan time.Time
	if h.cfg.StateInterval > 0 {
		ticker := time.NewTicker(h.cfg.StateInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	h.running.Store(true)
	defer h.running.Store(false)

	h.logger.Info("websocket hub started",
		"state_interval", h.cfg.StateInterval,
	)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopped")
			return
		case ev, ok := <-events:
			if !ok {
				h.logger.Info("websocket hub stopped: state closed")
				return
			}
			h.broadcast(protocol.TypeEvent, ev)

			if ev.Kind == placement.EventUnlocked {
				h.logger.Debug("link released, notifying clients",
					"clients", h.ClientCount(),
				)
			}
		case <-tick:
			h.broadcast(protocol.TypeState, h.state.View())
		}
	}
}

// Running reports whether the broadcast loop is active
func (h *WSHub) Running() bool {
	return h.running.Load()
}

func (h *WSHub) broadcast(msgType protocol.MessageType, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if err := client.write(data); err != nil {
			// Will be cleaned up when connection closes
			h.logger.Debug("websocket write error",
				"client", client.id,
				"error", err,
			)
		}
	}
}

// UpgradeHandler returns the WebSocket upgrade handler
func (h *WSHub) UpgradeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return websocket.New(h.handleConnection)(c)
		}

		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error":   "WebSocket upgrade required",
			"message": "Connect via WebSocket to send commands and receive state events",
		})
	}
}

func (h *WSHub) handleConnection(c *websocket.Conn) {
	client := &wsClient{
		id:   uuid.NewString(),
		conn: c,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("websocket client connected",
		"client", client.id,
		"remote_addr", c.RemoteAddr().String(),
		"clients", clientCount,
	)

	defer func() {
		h.mu.Lock()
		delete(h.clients, client)
		clientCount := len(h.clients)
		h.mu.Unlock()

		h.logger.Info("websocket client disconnected",
			"client", client.id,
			"clients", clientCount,
		)
	}()

	// New clients start from the current state
	h.send(client, protocol.TypeState, h.state.View())

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			// Connection closed
			break
		}

		h.handleCommand(client, msg)
	}
}

func (h *WSHub) handleCommand(client *wsClient, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.send(client, protocol.TypeError, protocol.ErrorData{Message: err.Error()})
		return
	}

	reply, err := h.dispatch(msg)
	if err != nil {
		h.logger.Debug("websocket command rejected",
			"client", client.id,
			"type", msg.Type,
			"error", err,
		)
		h.send(client, protocol.TypeError, protocol.ErrorData{Message: err.Error()})
		return
	}

	out, err := reply.Bytes()
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}
	if err := client.write(out); err != nil {
		h.logger.Debug("websocket write error", "client", client.id, "error", err)
	}
}

func (h *WSHub) send(client *wsClient, msgType protocol.MessageType, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		h.logger.Warn("websocket marshal error", "error", err)
		return
	}
	if err := client.write(data); err != nil {
		h.logger.Debug("websocket write error", "client", client.id, "error", err)
	}
}

// ClientCount returns the number of connected WebSocket clients
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close shuts down the WebSocket hub
func (h *WSHub) Close() {
	h.mu.Lock()
	h.closed = true
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-h.done
	}

	// Close all client connections
	h.mu.Lock()
	for client := range h.clients {
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
}
