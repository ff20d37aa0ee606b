// Package control provides clients for driving a go-manual daemon from a
// presentation layer: an HTTP client for commands and queries, and a
// WebSocket watcher for the event stream.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-manual/internal/health"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/plugin"
	"github.com/teslashibe/go-manual/internal/protocol"
)

// Config holds control client configuration
type Config struct {
	BaseURL     string        // Daemon base URL (e.g., "http://127.0.0.1:9010")
	Timeout     time.Duration // HTTP request timeout
	RateLimitHz int           // Max MoveTo calls per second (0 = unlimited)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://127.0.0.1:9010",
		Timeout:     2 * time.Second,
		RateLimitHz: 30,
	}
}

// Client is the HTTP client for the go-manual daemon
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	// Rate limiting for continuous position drags
	mu          sync.Mutex
	lastMoveAt  time.Time
	minInterval time.Duration

	// Stats
	commandsSent  atomic.Uint64
	commandErrors atomic.Uint64
	movesSkipped  atomic.Uint64
}

// NewClient creates a new control client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var minInterval time.Duration
	if cfg.RateLimitHz > 0 {
		minInterval = time.Second / time.Duration(cfg.RateLimitHz)
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		minInterval: minInterval,
	}
}

// Send posts one command and returns the daemon's reply
func (c *Client) Send(ctx context.Context, msg *protocol.Message) (*protocol.Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	url := c.cfg.BaseURL + "/api/command"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.commandErrors.Add(1)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.commandErrors.Add(1)
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.commandErrors.Add(1)
		return nil, statusError(resp.StatusCode, body)
	}

	reply, err := protocol.ParseMessage(body)
	if err != nil {
		c.commandErrors.Add(1)
		return nil, err
	}

	c.commandsSent.Add(1)
	c.logger.Debug("command sent", "type", msg.Type, "reply", reply.Type)
	return reply, nil
}

// command sends an edit and decodes the resulting state
func (c *Client) command(ctx context.Context, msgType protocol.MessageType, data interface{}) (*placement.View, error) {
	msg, err := protocol.NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}

	reply, err := c.Send(ctx, msg)
	if err != nil {
		return nil, err
	}

	var view placement.View
	if err := reply.ParseData(&view); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &view, nil
}

// SetPosition moves the avatar and camera to x, y, z
func (c *Client) SetPosition(ctx context.Context, x, y, z float64) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetPosition, protocol.PositionData{X: &x, Y: &y, Z: &z})
}

// SetCoordinates changes only the coordinates that are non-nil
func (c *Client) SetCoordinates(ctx context.Context, pos protocol.PositionData) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetPosition, pos)
}

// MoveTo is SetPosition throttled to RateLimitHz. Calls inside the interval
// are dropped and report false.
func (c *Client) MoveTo(ctx context.Context, x, y, z float64) (bool, error) {
	if c.minInterval > 0 {
		c.mu.Lock()
		if time.Since(c.lastMoveAt) < c.minInterval {
			c.mu.Unlock()
			c.movesSkipped.Add(1)
			return false, nil
		}
		c.lastMoveAt = time.Now()
		c.mu.Unlock()
	}

	if _, err := c.SetPosition(ctx, x, y, z); err != nil {
		return false, err
	}
	return true, nil
}

// SetGroundPoint places the avatar at a point picked on the top-down map
func (c *Client) SetGroundPoint(ctx context.Context, x, y float64) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetGroundPoint, protocol.NewGroundPointData(x, y))
}

// SetAzimuth sets the heading, signed (-180..180) or wrapped (0..360)
func (c *Client) SetAzimuth(ctx context.Context, degrees int, signed bool) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetAzimuth, protocol.NewAngleData(degrees, signed))
}

// SetElevation sets the pitch, signed (-90..90) or as a dial value (0..180)
func (c *Client) SetElevation(ctx context.Context, degrees int, signed bool) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetElevation, protocol.NewAngleData(degrees, signed))
}

// SetContext sets the context string
func (c *Client) SetContext(ctx context.Context, value string) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetContext, protocol.NewTextData(value))
}

// SetIdentity sets the identity string
func (c *Client) SetIdentity(ctx context.Context, value string) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetIdentity, protocol.NewTextData(value))
}

// SetLinked grants or withdraws link consent
func (c *Client) SetLinked(ctx context.Context, linked bool) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetLinked, protocol.NewFlagData(linked))
}

// SetActive toggles between real positions and the origin
func (c *Client) SetActive(ctx context.Context, active bool) (*placement.View, error) {
	return c.command(ctx, protocol.TypeSetActive, protocol.NewFlagData(active))
}

// Reset restores the defaults
func (c *Client) Reset(ctx context.Context) (*placement.View, error) {
	return c.command(ctx, protocol.TypeReset, nil)
}

// State fetches the editable state
func (c *Client) State(ctx context.Context) (*placement.View, error) {
	var view placement.View
	if err := c.getJSON(ctx, "/api/state", &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Stats fetches the daemon's store statistics
func (c *Client) Stats(ctx context.Context) (*placement.Stats, error) {
	var stats placement.Stats
	if err := c.getJSON(ctx, "/api/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Info fetches the plugin's names
func (c *Client) Info(ctx context.Context) (*plugin.Info, error) {
	var info plugin.Info
	if err := c.getJSON(ctx, "/api/plugin", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Health fetches the daemon's health status. A degraded daemon answers 503
// with the same body, which is decoded rather than treated as an error.
func (c *Client) Health(ctx context.Context) (*health.Status, error) {
	var status health.Status
	if err := c.doJSON(ctx, "GET", "/health", &status, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &status, nil
}

// Fetch polls the host boundary the way a host would.
// ok is false when the daemon refuses because linking is not allowed.
func (c *Client) Fetch(ctx context.Context) (snap *placement.Snapshot, ok bool, err error) {
	var result struct {
		OK       bool               `json:"ok"`
		Snapshot placement.Snapshot `json:"snapshot"`
	}
	if err := c.getJSON(ctx, "/api/plugin/fetch", &result); err != nil {
		return nil, false, err
	}
	if !result.OK {
		return nil, false, nil
	}
	return &result.Snapshot, true, nil
}

// Lock asks whether a host may link right now
func (c *Client) Lock(ctx context.Context) (bool, error) {
	var result struct {
		Linked bool `json:"linked"`
	}
	if err := c.postJSON(ctx, "/api/plugin/lock", &result); err != nil {
		return false, err
	}
	return result.Linked, nil
}

// Unlock releases the host link
func (c *Client) Unlock(ctx context.Context) error {
	var result struct {
		Linked bool `json:"linked"`
	}
	return c.postJSON(ctx, "/api/plugin/unlock", &result)
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	return c.doJSON(ctx, "GET", path, v)
}

func (c *Client) postJSON(ctx context.Context, path string, v interface{}) error {
	return c.doJSON(ctx, "POST", path, v)
}

// doJSON decodes 200 replies, and also replies with any of the accept codes
func (c *Client) doJSON(ctx context.Context, method, path string, v interface{}, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && !slices.Contains(accept, resp.StatusCode) {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError prefers the daemon's {"error": ...} message over the raw body
func statusError(code int, body []byte) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("unexpected status %d: %s", code, apiErr.Error)
	}
	return fmt.Errorf("unexpected status %d: %s", code, string(body))
}

// ClientStats contains client statistics
type ClientStats struct {
	CommandsSent  uint64 `json:"commands_sent"`
	CommandErrors uint64 `json:"command_errors"`
	MovesSkipped  uint64 `json:"moves_skipped"`
}

// GetStats returns client statistics
func (c *Client) GetStats() ClientStats {
	return ClientStats{
		CommandsSent:  c.commandsSent.Load(),
		CommandErrors: c.commandErrors.Load(),
		MovesSkipped:  c.movesSkipped.Load(),
	}
}

// IsHealthy checks that the daemon is reachable and reports no unhealthy components
func (c *Client) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	status, err := c.Health(ctx)
	if err != nil {
		c.logger.Debug("health check failed", "error", err)
		return false
	}
	return status.Status == "ok"
}
