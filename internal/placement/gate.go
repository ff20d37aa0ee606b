package placement

import "github.com/go-gl/mathgl/mgl32"

// Fetch copies the state out for the host.
//
// It refuses (ok == false) while the user has not consented to linking. When
// linked but inactive, positions are reported at the origin and everything
// else passes through unchanged.
func (s *State) Fetch() (snap Snapshot, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.linkable {
		s.refusals.Add(1)
		return Snapshot{}, false
	}
	s.fetches.Add(1)

	snap = Snapshot{
		AvatarPosition: s.avatarPos,
		AvatarFront:    s.avatarFront,
		AvatarTop:      s.avatarTop,
		CameraPosition: s.cameraPos,
		CameraFront:    s.cameraFront,
		CameraTop:      s.cameraTop,
		Context:        s.context,
		Identity:       s.identity,
	}

	if !s.active {
		snap.AvatarPosition = mgl32.Vec3{}
		snap.CameraPosition = mgl32.Vec3{}
	}

	return snap, true
}

// TryLock reports whether the host may link to this source
func (s *State) TryLock() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linkable
}

// Unlock withdraws link consent. Subscribers receive an EventUnlocked so
// any toggle mirroring the flag can be cleared. Active is preserved.
func (s *State) Unlock() {
	s.unlocks.Add(1)
	s.mutate(EventUnlocked, func() {
		s.linkable = false
	})
	s.logger.Info("host link released")
}
