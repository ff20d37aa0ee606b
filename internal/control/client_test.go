package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-manual/internal/health"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/plugin"
	"github.com/teslashibe/go-manual/internal/protocol"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL == "" {
		t.Error("BaseURL should not be empty")
	}
	if cfg.Timeout <= 0 {
		t.Error("Timeout should be positive")
	}
	if cfg.RateLimitHz <= 0 {
		t.Error("RateLimitHz should be positive")
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(DefaultConfig(), nil)

	if client == nil {
		t.Fatal("NewClient returned nil")
	}

	stats := client.GetStats()
	if stats.CommandsSent != 0 {
		t.Error("CommandsSent should be 0 initially")
	}
}

// commandServer answers /api/command with a state reply and records the command
func commandServer(t *testing.T, received *protocol.Message, count *atomic.Int32) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/command" || r.Method != "POST" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		count.Add(1)
		json.NewDecoder(r.Body).Decode(received)

		reply, _ := protocol.NewMessage(protocol.TypeState, placement.View{
			Position: [3]float32{1, 2, 3},
			Context:  "ctx",
			Active:   true,
		})
		json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSetPosition(t *testing.T) {
	var received protocol.Message
	var count atomic.Int32
	server := commandServer(t, &received, &count)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	view, err := client.SetPosition(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}

	if received.Type != protocol.TypeSetPosition {
		t.Errorf("Type = %s, want set_position", received.Type)
	}

	pos, err := received.GetPositionData()
	if err != nil {
		t.Fatalf("GetPositionData() error = %v", err)
	}
	if pos.X == nil || *pos.X != 1 || pos.Z == nil || *pos.Z != 3 {
		t.Errorf("unexpected coordinates %+v", pos)
	}

	if view.Position[1] != 2 {
		t.Errorf("Position = %v, want y=2", view.Position)
	}

	if client.GetStats().CommandsSent != 1 {
		t.Errorf("CommandsSent = %d, want 1", client.GetStats().CommandsSent)
	}
}

func TestCommandPayloads(t *testing.T) {
	var received protocol.Message
	var count atomic.Int32
	server := commandServer(t, &received, &count)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		call     func() error
		wantType protocol.MessageType
		wantData string
	}{
		{
			name:     "ground point",
			call:     func() error { _, err := client.SetGroundPoint(ctx, 4, 5); return err },
			wantType: protocol.TypeSetGroundPoint,
			wantData: `{"x":4,"y":5}`,
		},
		{
			name:     "signed azimuth",
			call:     func() error { _, err := client.SetAzimuth(ctx, -90, true); return err },
			wantType: protocol.TypeSetAzimuth,
			wantData: `{"value":-90,"signed":true}`,
		},
		{
			name:     "dial elevation",
			call:     func() error { _, err := client.SetElevation(ctx, 60, false); return err },
			wantType: protocol.TypeSetElevation,
			wantData: `{"value":60}`,
		},
		{
			name:     "context",
			call:     func() error { _, err := client.SetContext(ctx, "room"); return err },
			wantType: protocol.TypeSetContext,
			wantData: `{"value":"room"}`,
		},
		{
			name:     "identity",
			call:     func() error { _, err := client.SetIdentity(ctx, "bob"); return err },
			wantType: protocol.TypeSetIdentity,
			wantData: `{"value":"bob"}`,
		},
		{
			name:     "linked",
			call:     func() error { _, err := client.SetLinked(ctx, true); return err },
			wantType: protocol.TypeSetLinked,
			wantData: `{"value":true}`,
		},
		{
			name:     "active",
			call:     func() error { _, err := client.SetActive(ctx, false); return err },
			wantType: protocol.TypeSetActive,
			wantData: `{"value":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err != nil {
				t.Fatalf("call error = %v", err)
			}
			if received.Type != tt.wantType {
				t.Errorf("Type = %s, want %s", received.Type, tt.wantType)
			}
			if string(received.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", received.Data, tt.wantData)
			}
		})
	}
}

func TestMoveToRateLimit(t *testing.T) {
	var received protocol.Message
	var count atomic.Int32
	server := commandServer(t, &received, &count)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.RateLimitHz = 10 // 10 Hz = 100ms between moves

	client := NewClient(cfg, nil)

	for i := 0; i < 5; i++ {
		client.MoveTo(context.Background(), float64(i), 0, 0)
	}

	if count.Load() != 1 {
		t.Errorf("Expected 1 request due to rate limiting, got %d", count.Load())
	}
	if client.GetStats().MovesSkipped != 4 {
		t.Errorf("MovesSkipped = %d, want 4", client.GetStats().MovesSkipped)
	}
}

func TestSendRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unknown command \"fly\""}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	msg, _ := protocol.NewMessage("fly", nil)
	_, err := client.Send(context.Background(), msg)
	if err == nil {
		t.Fatal("Send should return error for 400 response")
	}
	if want := `unexpected status 400: unknown command "fly"`; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	if client.GetStats().CommandErrors != 1 {
		t.Errorf("CommandErrors = %d, want 1", client.GetStats().CommandErrors)
	}
}

func TestFetch(t *testing.T) {
	var linkable atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/plugin/fetch" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !linkable.Load() {
			w.Write([]byte(`{"ok":false}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok": true,
			"snapshot": placement.Snapshot{
				AvatarPosition: [3]float32{7, 8, 9},
				Identity:       "zed",
			},
		})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	snap, ok, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if ok || snap != nil {
		t.Error("Fetch should report a refusal while not linkable")
	}

	linkable.Store(true)
	snap, ok, err = client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !ok {
		t.Fatal("Fetch should succeed while linkable")
	}
	if snap.AvatarPosition[0] != 7 || snap.Identity != "zed" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestLockUnlock(t *testing.T) {
	var unlocked atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/plugin/lock" && r.Method == "POST":
			w.Write([]byte(`{"linked":true}`))
		case r.URL.Path == "/api/plugin/unlock" && r.Method == "POST":
			unlocked.Store(true)
			w.Write([]byte(`{"linked":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	linked, err := client.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !linked {
		t.Error("Lock should report linked")
	}

	if err := client.Unlock(context.Background()); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if !unlocked.Load() {
		t.Error("unlock endpoint should have been called")
	}
}

func TestInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(plugin.Info{ShortName: plugin.ShortName})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	info, err := client.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.ShortName != plugin.ShortName {
		t.Errorf("ShortName = %q, want %q", info.ShortName, plugin.ShortName)
	}
}

func TestIsHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"ok","version":"test"}`))
		} else {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	if !client.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return true when daemon is reachable")
	}
}

func TestIsHealthyFalse(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://localhost:12345" // Non-existent

	client := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if client.IsHealthy(ctx) {
		t.Error("IsHealthy should return false when daemon is unreachable")
	}
}

func TestHealthDegraded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","version":"test","components":{"event_stream":{"healthy":false,"message":"hub not running"}}}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, nil)

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", status.Status)
	}
	if status.Components[health.ComponentStream].Message != "hub not running" {
		t.Errorf("stream message = %q", status.Components[health.ComponentStream].Message)
	}

	if client.IsHealthy(context.Background()) {
		t.Error("IsHealthy should return false when the daemon is degraded")
	}
}
