package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/protocol"
)

// WatcherConfig holds event stream configuration
type WatcherConfig struct {
	URL              string        // Stream URL (e.g., "ws://127.0.0.1:9010/api/stream")
	ReconnectBackoff time.Duration // Initial reconnect delay
	MaxBackoff       time.Duration // Maximum reconnect delay
	PingInterval     time.Duration // Ping interval for keepalive
	WriteTimeout     time.Duration // Write timeout
}

// DefaultWatcherConfig returns sensible defaults
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		URL:              "ws://127.0.0.1:9010/api/stream",
		ReconnectBackoff: 500 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		PingInterval:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Watcher follows the daemon's event stream and reconnects when it drops
type Watcher struct {
	cfg    WatcherConfig
	logger *slog.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc

	// Callbacks for incoming messages
	onState func(placement.View)
	onEvent func(placement.Event)
	onError func(protocol.ErrorData)

	// Stats
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	reconnects       atomic.Uint64
}

// NewWatcher creates a new stream watcher
func NewWatcher(cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		cfg:    cfg,
		logger: logger,
	}
}

// OnState sets the callback for full state messages
func (w *Watcher) OnState(callback func(placement.View)) {
	w.mu.Lock()
	w.onState = callback
	w.mu.Unlock()
}

// OnEvent sets the callback for store events
func (w *Watcher) OnEvent(callback func(placement.Event)) {
	w.mu.Lock()
	w.onEvent = callback
	w.mu.Unlock()
}

// OnError sets the callback for rejected commands
func (w *Watcher) OnError(callback func(protocol.ErrorData)) {
	w.mu.Lock()
	w.onError = callback
	w.mu.Unlock()
}

// Connect starts following the stream in the background
func (w *Watcher) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.connectionLoop(ctx)
	return nil
}

// connectionLoop manages connection with auto-reconnect
func (w *Watcher) connectionLoop(ctx context.Context) {
	backoff := w.cfg.ReconnectBackoff

	for {
		select {
		case <-ctx.Done():
			w.closeConnection()
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			w.logger.Warn("stream connection failed",
				"error", err,
				"retry_in", backoff,
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}

			// Exponential backoff
			backoff *= 2
			if backoff > w.cfg.MaxBackoff {
				backoff = w.cfg.MaxBackoff
			}
			w.reconnects.Add(1)
			continue
		}

		backoff = w.cfg.ReconnectBackoff

		w.readLoop(ctx)
	}
}

func (w *Watcher) connect(ctx context.Context) error {
	w.logger.Debug("connecting to stream", "url", w.cfg.URL)

	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	w.logger.Info("connected to stream", "url", w.cfg.URL)

	if w.cfg.PingInterval > 0 {
		go w.pingLoop(ctx, conn)
	}

	return nil
}

// pingLoop keeps one connection alive until it is replaced or closed
func (w *Watcher) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			current := w.conn
			w.mu.Unlock()

			if current != conn {
				return
			}

			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				w.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (w *Watcher) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			w.logger.Warn("stream read error", "error", err)
			w.closeConnection()
			return
		}

		w.messagesReceived.Add(1)
		w.handleMessage(data)
	}
}

func (w *Watcher) handleMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		w.logger.Warn("parse message error", "error", err)
		return
	}

	w.mu.Lock()
	stateCb := w.onState
	eventCb := w.onEvent
	errorCb := w.onError
	w.mu.Unlock()

	switch msg.Type {
	case protocol.TypeState:
		if stateCb != nil {
			var view placement.View
			if err := msg.ParseData(&view); err == nil {
				stateCb(view)
			}
		}

	case protocol.TypeEvent:
		if eventCb != nil {
			var event placement.Event
			if err := msg.ParseData(&event); err == nil {
				eventCb(event)
			}
		}

	case protocol.TypeError:
		if errorCb != nil {
			var errData protocol.ErrorData
			if err := msg.ParseData(&errData); err == nil {
				errorCb(errData)
			}
		}

	case protocol.TypePing:
		pong := &protocol.Message{Type: protocol.TypePong, Timestamp: time.Now().UnixMilli()}
		w.Send(pong)
	}
}

// Send writes a command on the stream. The reply arrives through the callbacks.
func (w *Watcher) Send(msg *protocol.Message) error {
	w.mu.Lock()
	conn := w.conn
	connected := w.connected
	w.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := msg.Bytes()
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	w.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	err = conn.WriteMessage(websocket.TextMessage, data)
	w.writeMu.Unlock()

	if err != nil {
		w.logger.Warn("send error", "error", err)
		w.closeConnection()
		return fmt.Errorf("write: %w", err)
	}

	w.messagesSent.Add(1)
	return nil
}

func (w *Watcher) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.connected = false
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

// Close stops following the stream
func (w *Watcher) Close() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.closeConnection()
	return nil
}

// IsConnected returns connection status
func (w *Watcher) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// WatcherStats contains watcher statistics
type WatcherStats struct {
	Connected        bool   `json:"connected"`
	MessagesSent     uint64 `json:"messages_sent"`
	MessagesReceived uint64 `json:"messages_received"`
	Reconnects       uint64 `json:"reconnects"`
}

// GetStats returns watcher statistics
func (w *Watcher) GetStats() WatcherStats {
	w.mu.Lock()
	connected := w.connected
	w.mu.Unlock()

	return WatcherStats{
		Connected:        connected,
		MessagesSent:     w.messagesSent.Load(),
		MessagesReceived: w.messagesReceived.Load(),
		Reconnects:       w.reconnects.Load(),
	}
}
