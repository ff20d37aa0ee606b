// Package health tracks the health of go-manual's components
package health

import (
	"sort"
	"sync"
	"time"
)

// Component names reported by the daemon
const (
	ComponentStore  = "placement_store"
	ComponentStream = "event_stream"
	ComponentHost   = "host_link"
)

// Status represents overall daemon health
type Status struct {
	Status        string           `json:"status"` // ok, degraded
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
}

// Check represents a component health check
type Check struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Checker tracks health of daemon components
type Checker struct {
	mu         sync.RWMutex
	version    string
	startTime  time.Time
	components map[string]Check
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		version:    version,
		startTime:  time.Now(),
		components: make(map[string]Check),
	}
}

// SetComponent updates a component's health status
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = Check{
		Healthy:   healthy,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// Uptime returns the time since the checker was created
func (c *Checker) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// GetStatus returns the overall health status
func (c *Checker) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "ok"
	components := make(map[string]Check, len(c.components))
	for name, check := range c.components {
		if !check.Healthy {
			status = "degraded"
		}
		components[name] = check
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(c.Uptime().Seconds()),
		Components:    components,
	}
}

// Unhealthy returns the sorted names of unhealthy components
func (c *Checker) Unhealthy() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for name, check := range c.components {
		if !check.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
