// Package server provides the HTTP server for go-manual: the host polling
// boundary, the command interface for the presentation layer and the event stream
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-manual/internal/config"
	"github.com/teslashibe/go-manual/internal/health"
	"github.com/teslashibe/go-manual/internal/placement"
	"github.com/teslashibe/go-manual/internal/plugin"
	"github.com/teslashibe/go-manual/internal/protocol"
)

// Server is the HTTP server for go-manual
type Server struct {
	app     *fiber.App
	cfg     *config.Config
	plugin  *plugin.Plugin
	state   *placement.State
	logger  *slog.Logger
	wsHub   *WSHub
	health  *health.Checker
	version string
}

// New creates a new HTTP server
func New(cfg *config.Config, p *plugin.Plugin, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-manual",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(LoggingMiddleware(logger))

	s := &Server{
		app:     app,
		cfg:     cfg,
		plugin:  p,
		state:   p.State(),
		logger:  logger,
		health:  health.NewChecker(version),
		version: version,
	}
	s.wsHub = NewWSHub(s.state, cfg.Stream, s.dispatch, logger)

	// Register routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	// Health check
	s.app.Get("/health", s.healthHandler)

	// Metrics endpoint
	s.app.Get("/metrics", s.metricsHandler)

	api := s.app.Group("/api")

	// Host boundary
	host := api.Group("/plugin")
	host.Get("/", s.infoHandler)
	host.Post("/lock", s.lockHandler)
	host.Post("/unlock", s.unlockHandler)
	host.Get("/fetch", s.fetchHandler)

	// Presentation layer
	api.Get("/state", s.stateHandler)
	api.Post("/command", s.commandHandler)
	api.Get("/stream", s.wsHub.UpgradeHandler())

	// Config endpoint
	api.Get("/config", s.configHandler)

	// Stats endpoint
	api.Get("/stats", s.statsHandler)
}

// healthHandler returns daemon health
func (s *Server) healthHandler(c *fiber.Ctx) error {
	stats := s.state.Stats()

	s.health.SetComponent(health.ComponentStore, true,
		fmt.Sprintf("%d mutations", stats.Mutations))

	link := "unlinked"
	if stats.Linkable {
		link = "linkable"
	}
	s.health.SetComponent(health.ComponentHost, true, link)

	if s.wsHub.Running() {
		s.health.SetComponent(health.ComponentStream, true,
			fmt.Sprintf("%d clients", s.wsHub.ClientCount()))
	} else {
		s.health.SetComponent(health.ComponentStream, false, "hub not running")
	}

	status := s.health.GetStatus()
	if unhealthy := s.health.Unhealthy(); len(unhealthy) > 0 {
		s.logger.Debug("health check degraded", "unhealthy", unhealthy)
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

// infoHandler returns the plugin's names
func (s *Server) infoHandler(c *fiber.Ctx) error {
	return c.JSON(s.plugin.Info())
}

// lockHandler reports whether the host may link
func (s *Server) lockHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"linked": s.plugin.TryLock(),
	})
}

// unlockHandler releases the host link
func (s *Server) unlockHandler(c *fiber.Ctx) error {
	s.plugin.Unlock()
	return c.JSON(fiber.Map{
		"linked": false,
	})
}

// fetchHandler returns positional data, or ok=false while linking is not allowed.
// A refusal is a normal answer, not an error.
func (s *Server) fetchHandler(c *fiber.Ctx) error {
	var snap placement.Snapshot
	if !s.plugin.Fetch(&snap) {
		return c.JSON(fiber.Map{
			"ok": false,
		})
	}

	return c.JSON(fiber.Map{
		"ok":       true,
		"snapshot": snap,
	})
}

// stateHandler returns the editable state
func (s *Server) stateHandler(c *fiber.Ctx) error {
	return c.JSON(s.state.View())
}

// commandHandler applies one protocol command and returns the reply
func (s *Server) commandHandler(c *fiber.Ctx) error {
	msg, err := protocol.ParseMessage(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	reply, err := s.dispatch(msg)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(reply)
}

// configHandler returns current configuration
func (s *Server) configHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"server": fiber.Map{
			"host":             s.cfg.Server.Host,
			"port":             s.cfg.Server.Port,
			"read_timeout_ms":  s.cfg.Server.ReadTimeout.Milliseconds(),
			"write_timeout_ms": s.cfg.Server.WriteTimeout.Milliseconds(),
		},
		"stream": fiber.Map{
			"state_interval_ms": s.cfg.Stream.StateInterval.Milliseconds(),
			"buffer_size":       s.cfg.Stream.BufferSize,
		},
	})
}

// statsHandler returns store statistics
func (s *Server) statsHandler(c *fiber.Ctx) error {
	return c.JSON(s.state.Stats())
}

// metricsHandler returns Prometheus-format metrics
func (s *Server) metricsHandler(c *fiber.Ctx) error {
	stats := s.state.Stats()

	metrics := fmt.Sprintf(`# HELP go_manual_fetches_total Successful host fetches
# TYPE go_manual_fetches_total counter
go_manual_fetches_total %d

# HELP go_manual_fetch_refusals_total Host fetches refused because linking is not allowed
# TYPE go_manual_fetch_refusals_total counter
go_manual_fetch_refusals_total %d

# HELP go_manual_unlocks_total Host unlock requests
# TYPE go_manual_unlocks_total counter
go_manual_unlocks_total %d

# HELP go_manual_mutations_total State edits
# TYPE go_manual_mutations_total counter
go_manual_mutations_total %d

# HELP go_manual_linkable Link consent (1=linkable, 0=not)
# TYPE go_manual_linkable gauge
go_manual_linkable %d

# HELP go_manual_active Activity (1=real position, 0=origin)
# TYPE go_manual_active gauge
go_manual_active %d

# HELP go_manual_uptime_seconds Server uptime in seconds
# TYPE go_manual_uptime_seconds gauge
go_manual_uptime_seconds %d

# HELP go_manual_websocket_clients Current WebSocket client count
# TYPE go_manual_websocket_clients gauge
go_manual_websocket_clients %d
`,
		stats.Fetches,
		stats.Refusals,
		stats.Unlocks,
		stats.Mutations,
		boolToInt(stats.Linkable),
		boolToInt(stats.Active),
		int64(s.health.Uptime().Seconds()),
		s.wsHub.ClientCount(),
	)

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(metrics)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Start starts the HTTP server on the configured address
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		"addr", s.cfg.Server.Addr(),
	)

	return s.app.Listen(s.cfg.Server.Addr())
}

// Serve starts the HTTP server on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server",
		"addr", ln.Addr().String(),
	)

	return s.app.Listener(ln)
}

// WSHub returns the WebSocket hub for external control
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close WebSocket hub
	s.wsHub.Close()

	// Shutdown Fiber, bounded by the context
	return s.app.ShutdownWithContext(ctx)
}
