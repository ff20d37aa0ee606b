package control

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-manual/internal/config"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/plugin"
	"github.com/teslashibe/go-manual/internal/protocol"
	"github.com/teslashibe/go-manual/internal/server"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDefaultWatcherConfig(t *testing.T) {
	cfg := DefaultWatcherConfig()

	if cfg.ReconnectBackoff <= 0 {
		t.Error("ReconnectBackoff should be positive")
	}
	if cfg.MaxBackoff < cfg.ReconnectBackoff {
		t.Error("MaxBackoff should not be below ReconnectBackoff")
	}
	if !strings.HasPrefix(cfg.URL, "ws://") {
		t.Errorf("URL should be a ws:// URL, got %s", cfg.URL)
	}
}

func TestWatcherSendNotConnected(t *testing.T) {
	watcher := NewWatcher(DefaultWatcherConfig(), nil)

	if watcher.IsConnected() {
		t.Error("Watcher should not be connected initially")
	}

	msg, _ := protocol.NewMessage(protocol.TypeGetState, nil)
	if err := watcher.Send(msg); err == nil {
		t.Error("Send should return error when not connected")
	}
}

func TestWatcherCallbacks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		state, _ := protocol.NewMessage(protocol.TypeState, placement.View{Identity: "amy"})
		event, _ := protocol.NewMessage(protocol.TypeEvent, placement.Event{Kind: placement.EventUnlocked})
		rejected, _ := protocol.NewMessage(protocol.TypeError, protocol.ErrorData{Message: "nope"})

		for _, msg := range []*protocol.Message{state, event, rejected} {
			data, _ := msg.Bytes()
			conn.WriteMessage(websocket.TextMessage, data)
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := DefaultWatcherConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	watcher := NewWatcher(cfg, nil)

	var gotState, gotUnlock, gotError atomic.Bool
	watcher.OnState(func(v placement.View) {
		if v.Identity == "amy" {
			gotState.Store(true)
		}
	})
	watcher.OnEvent(func(e placement.Event) {
		if e.Kind == placement.EventUnlocked {
			gotUnlock.Store(true)
		}
	})
	watcher.OnError(func(e protocol.ErrorData) {
		if e.Message == "nope" {
			gotError.Store(true)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer watcher.Close()

	waitFor(t, "callbacks", func() bool {
		return gotState.Load() && gotUnlock.Load() && gotError.Load()
	})

	if watcher.GetStats().MessagesReceived < 3 {
		t.Errorf("MessagesReceived = %d, want at least 3", watcher.GetStats().MessagesReceived)
	}
}

func TestWatcherReconnect(t *testing.T) {
	var connectionCount atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connectionCount.Add(1)

		time.Sleep(50 * time.Millisecond)
		conn.Close()
	}))
	defer srv.Close()

	cfg := DefaultWatcherConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.ReconnectBackoff = 50 * time.Millisecond
	cfg.MaxBackoff = 100 * time.Millisecond

	watcher := NewWatcher(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	watcher.Connect(ctx)
	defer watcher.Close()

	waitFor(t, "reconnect", func() bool { return connectionCount.Load() >= 2 })
}

func TestWatcherCloseDisconnects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cfg := DefaultWatcherConfig()
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	watcher := NewWatcher(cfg, nil)
	watcher.Connect(context.Background())

	waitFor(t, "connection", watcher.IsConnected)

	watcher.Close()

	if watcher.IsConnected() {
		t.Error("Watcher should not be connected after Close()")
	}
}

// startDaemon runs a real go-manual server on a loopback port
func startDaemon(t *testing.T) (*placement.State, string) {
	t.Helper()

	state := placement.New(nil)
	srv := server.New(config.Default(), plugin.New(state), nil, "test")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.WSHub().Run(ctx)
	go srv.Serve(ln)

	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
		state.Close()
	})

	waitFor(t, "hub", srv.WSHub().Running)

	return state, ln.Addr().String()
}

func TestEndToEnd(t *testing.T) {
	state, addr := startDaemon(t)

	cfg := DefaultConfig()
	cfg.BaseURL = "http://" + addr
	client := NewClient(cfg, nil)

	wcfg := DefaultWatcherConfig()
	wcfg.URL = "ws://" + addr + "/api/stream"
	watcher := NewWatcher(wcfg, nil)

	var unlocked atomic.Bool
	var lastContext atomic.Value
	watcher.OnEvent(func(e placement.Event) {
		lastContext.Store(e.View.Context)
		if e.Kind == placement.EventUnlocked {
			unlocked.Store(true)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher.Connect(ctx)
	defer watcher.Close()
	waitFor(t, "watcher connection", watcher.IsConnected)

	// Fetch is refused until the user allows linking
	if _, ok, err := client.Fetch(ctx); err != nil || ok {
		t.Fatalf("Fetch() = ok %v, err %v; want refusal", ok, err)
	}

	if _, err := client.SetContext(ctx, "lobby"); err != nil {
		t.Fatalf("SetContext() error = %v", err)
	}
	waitFor(t, "context event", func() bool {
		v, _ := lastContext.Load().(string)
		return v == "lobby"
	})

	if _, err := client.SetLinked(ctx, true); err != nil {
		t.Fatalf("SetLinked() error = %v", err)
	}
	if _, err := client.SetGroundPoint(ctx, 3, 4); err != nil {
		t.Fatalf("SetGroundPoint() error = %v", err)
	}

	snap, ok, err := client.Fetch(ctx)
	if err != nil || !ok {
		t.Fatalf("Fetch() = ok %v, err %v; want success", ok, err)
	}
	if snap.AvatarPosition[0] != 3 || snap.AvatarPosition[2] != -4 {
		t.Errorf("AvatarPosition = %v, want (3, 0, -4)", snap.AvatarPosition)
	}
	if snap.Context != "lobby" {
		t.Errorf("Context = %q, want lobby", snap.Context)
	}

	if err := client.Unlock(ctx); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	waitFor(t, "unlocked event", unlocked.Load)

	if state.TryLock() {
		t.Error("store should refuse linking after unlock")
	}

	stats, err := client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Fetches != 1 || stats.Refusals != 1 || stats.Unlocks != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
