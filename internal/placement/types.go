package placement

import "github.com/go-gl/mathgl/mgl32"

// Snapshot is the positional data handed to the host on a successful fetch
type Snapshot struct {
	AvatarPosition mgl32.Vec3 `json:"avatar_position"`
	AvatarFront    mgl32.Vec3 `json:"avatar_front"`
	AvatarTop      mgl32.Vec3 `json:"avatar_top"`

	CameraPosition mgl32.Vec3 `json:"camera_position"`
	CameraFront    mgl32.Vec3 `json:"camera_front"`
	CameraTop      mgl32.Vec3 `json:"camera_top"`

	Context  string `json:"context"`  // Groups users into one audio space
	Identity string `json:"identity"` // Distinguishes users within a context
}

// Angle holds both display conventions of one angle
type Angle struct {
	Wrapped int `json:"wrapped"` // Azimuth 0..360, elevation dial 0 (up)..180 (down)
	Signed  int `json:"signed"`  // Azimuth -180..180, elevation -90..90
}

// View is the complete editable state, as a presentation layer sees it
type View struct {
	Position mgl32.Vec3 `json:"position"`
	Front    mgl32.Vec3 `json:"front"`
	Top      mgl32.Vec3 `json:"top"`

	Azimuth   Angle `json:"azimuth"`
	Elevation Angle `json:"elevation"`

	Context  string `json:"context"`
	Identity string `json:"identity"`

	Linkable bool `json:"linkable"`
	Active   bool `json:"active"`
}

// EventKind identifies why an Event was emitted
type EventKind string

const (
	EventChanged  EventKind = "changed"  // Any user edit
	EventUnlocked EventKind = "unlocked" // Host released the link; UI toggles must follow
	EventReset    EventKind = "reset"    // Everything restored to defaults
)

// Event carries the state right after a change
type Event struct {
	Kind EventKind `json:"kind"`
	View View      `json:"view"`
}

// Stats contains store statistics
type Stats struct {
	Fetches         int64 `json:"fetches"`
	Refusals        int64 `json:"refusals"`
	Unlocks         int64 `json:"unlocks"`
	Mutations       int64 `json:"mutations"`
	SubscriberCount int   `json:"subscriber_count"`
	Linkable        bool  `json:"linkable"`
	Active          bool  `json:"active"`
}
