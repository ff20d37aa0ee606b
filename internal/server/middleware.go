package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// quietPaths are polled on a cadence and would flood the log
var quietPaths = map[string]bool{
	"/metrics":          true,
	"/health":           true,
	"/api/plugin/fetch": true,
	"/api/plugin/lock":  true,
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		path := c.Path()
		if quietPaths[path] {
			return err
		}

		logger.Info("http request",
			"method", c.Method(),
			"path", path,
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)

		return err
	}
}
