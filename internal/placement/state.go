// Package placement holds the manually placed avatar and camera state and
// gates what the positional audio host may read from it
package placement

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/teslashibe/go-manual/internal/orientation"
)

// State is the position store behind the plugin.
//
// The camera always mirrors the avatar: position writes update both, and
// front/top are recomputed for both from the current azimuth/elevation.
type State struct {
	logger *slog.Logger

	// editMu serializes edits through notification, so subscribers see
	// events in the order the edits were applied
	editMu sync.Mutex

	mu          sync.RWMutex
	avatarPos   mgl32.Vec3
	avatarFront mgl32.Vec3
	avatarTop   mgl32.Vec3
	cameraPos   mgl32.Vec3
	cameraFront mgl32.Vec3
	cameraTop   mgl32.Vec3
	context     string
	identity    string

	// Azimuth in the 0..360 convention, elevation in the dial convention.
	// Both display conventions are derived from these.
	azimuth   int
	elevation int

	linkable bool
	active   bool

	// Metrics
	fetches   atomic.Int64
	refusals  atomic.Int64
	unlocks   atomic.Int64
	mutations atomic.Int64

	// Subscribers for change events
	subsMu sync.RWMutex
	subs   map[chan Event]struct{}
}

// New creates a store in its default state: origin, facing forward, active, not linkable
func New(logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}

	s := &State{
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
	s.resetLocked()

	return s
}

// SetX sets the X coordinate of the avatar and the camera
func (s *State) SetX(x float64) {
	s.mutate(EventChanged, func() {
		s.avatarPos[0] = float32(x)
		s.cameraPos[0] = float32(x)
	})
}

// SetY sets the Y coordinate of the avatar and the camera
func (s *State) SetY(y float64) {
	s.mutate(EventChanged, func() {
		s.avatarPos[1] = float32(y)
		s.cameraPos[1] = float32(y)
	})
}

// SetZ sets the Z coordinate of the avatar and the camera
func (s *State) SetZ(z float64) {
	s.mutate(EventChanged, func() {
		s.avatarPos[2] = float32(z)
		s.cameraPos[2] = float32(z)
	})
}

// SetPosition sets all three coordinates at once
func (s *State) SetPosition(x, y, z float64) {
	s.mutate(EventChanged, func() {
		s.avatarPos = mgl32.Vec3{float32(x), float32(y), float32(z)}
		s.cameraPos = s.avatarPos
	})
}

// SetCoordinates changes the coordinates that are non-nil in one edit,
// so a fetch never sees a partially applied move
func (s *State) SetCoordinates(x, y, z *float64) {
	s.mutate(EventChanged, func() {
		if x != nil {
			s.avatarPos[0] = float32(*x)
		}
		if y != nil {
			s.avatarPos[1] = float32(*y)
		}
		if z != nil {
			s.avatarPos[2] = float32(*z)
		}
		s.cameraPos = s.avatarPos
	})
}

// SetGroundPoint places the avatar at a point picked on a top-down map.
// Map y grows towards the viewer, so it maps to -Z. Height is unchanged.
func (s *State) SetGroundPoint(x, y float64) {
	s.mutate(EventChanged, func() {
		s.avatarPos[0] = float32(x)
		s.avatarPos[2] = float32(-y)
		s.cameraPos = s.avatarPos
	})
}

// SetContext sets the context string verbatim
func (s *State) SetContext(context string) {
	s.mutate(EventChanged, func() {
		s.context = context
	})
}

// SetIdentity sets the identity string verbatim
func (s *State) SetIdentity(identity string) {
	s.mutate(EventChanged, func() {
		s.identity = identity
	})
}

// SetLinkable sets whether the host may read positional data
func (s *State) SetLinkable(linkable bool) {
	s.mutate(EventChanged, func() {
		s.linkable = linkable
	})
	s.logger.Info("link consent changed", "linkable", linkable)
}

// SetActive sets whether fetches report the real position or the origin
func (s *State) SetActive(active bool) {
	s.mutate(EventChanged, func() {
		s.active = active
	})
	s.logger.Info("activity changed", "active", active)
}

// SetWrappedAzimuth sets the azimuth in the 0..360 convention
func (s *State) SetWrappedAzimuth(azimuth int) {
	s.mutate(EventChanged, func() {
		s.azimuth = azimuth
		s.updateBasis()
	})
}

// SetSignedAzimuth sets the azimuth in the -180..180 convention
func (s *State) SetSignedAzimuth(azimuth int) {
	s.SetWrappedAzimuth(orientation.WrappedAzimuth(azimuth))
}

// SetWrappedElevation sets the elevation in the dial convention
// (0 = straight up, 90 = horizon, 180 = straight down)
func (s *State) SetWrappedElevation(elevation int) {
	s.mutate(EventChanged, func() {
		s.elevation = elevation
		s.updateBasis()
	})
}

// SetSignedElevation sets the elevation in degrees above the horizon.
// It goes through the dial conversion, so negative values snap; see
// orientation.WrappedElevation.
func (s *State) SetSignedElevation(elevation int) {
	s.SetWrappedElevation(orientation.WrappedElevation(elevation))
}

// Reset restores the default state
func (s *State) Reset() {
	s.mutate(EventReset, s.resetLocked)
	s.logger.Info("state reset")
}

// View returns the complete editable state
func (s *State) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewLocked()
}

// Stats returns store statistics
func (s *State) Stats() Stats {
	s.mu.RLock()
	linkable, active := s.linkable, s.active
	s.mu.RUnlock()

	s.subsMu.RLock()
	subscribers := len(s.subs)
	s.subsMu.RUnlock()

	return Stats{
		Fetches:         s.fetches.Load(),
		Refusals:        s.refusals.Load(),
		Unlocks:         s.unlocks.Load(),
		Mutations:       s.mutations.Load(),
		SubscriberCount: subscribers,
		Linkable:        linkable,
		Active:          active,
	}
}

// mutate applies fn under the write lock and notifies subscribers.
// Readers only wait for fn; other edits wait until the event is delivered.
func (s *State) mutate(kind EventKind, fn func()) {
	s.editMu.Lock()
	defer s.editMu.Unlock()

	s.mu.Lock()
	fn()
	view := s.viewLocked()
	s.mu.Unlock()

	s.mutations.Add(1)
	s.notifySubscribers(Event{Kind: kind, View: view})

	s.logger.Debug("state mutated",
		"kind", kind,
		"x", view.Position[0],
		"y", view.Position[1],
		"z", view.Position[2],
		"azimuth", view.Azimuth.Wrapped,
		"elevation", view.Elevation.Signed,
	)
}

func (s *State) resetLocked() {
	s.linkable = false
	s.active = true
	s.avatarPos = mgl32.Vec3{}
	s.cameraPos = mgl32.Vec3{}
	s.context = ""
	s.identity = ""
	s.azimuth = 0
	s.elevation = orientation.WrappedElevation(0)
	s.updateBasis()
}

func (s *State) updateBasis() {
	s.avatarFront, s.avatarTop = orientation.Basis(s.azimuth, orientation.SignedElevation(s.elevation))
	s.cameraFront = s.avatarFront
	s.cameraTop = s.avatarTop
}

func (s *State) viewLocked() View {
	return View{
		Position: s.avatarPos,
		Front:    s.avatarFront,
		Top:      s.avatarTop,
		Azimuth: Angle{
			Wrapped: s.azimuth,
			Signed:  orientation.SignedAzimuth(s.azimuth),
		},
		Elevation: Angle{
			Wrapped: s.elevation,
			Signed:  orientation.SignedElevation(s.elevation),
		},
		Context:  s.context,
		Identity: s.identity,
		Linkable: s.linkable,
		Active:   s.active,
	}
}
