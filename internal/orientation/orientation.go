// Package orientation converts user-facing azimuth/elevation angles into
// the front/top basis vectors a positional audio host expects
package orientation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Basis returns the front and top vectors for an azimuth/elevation pair in degrees.
//
// Azimuth 0, elevation 0 faces +Z on the horizon with +Y up:
//
//	front = ( cos(e)*sin(a), sin(e), cos(e)*cos(a) )
//	top   = ( -sin(e)*sin(a), cos(e), -sin(e)*cos(a) )
//
// Inputs are not validated or clamped.
func Basis(azimuth, elevation int) (front, top mgl32.Vec3) {
	azim := Radians(azimuth)
	elev := Radians(elevation)

	sinA, cosA := math.Sincos(azim)
	sinE, cosE := math.Sincos(elev)

	front = mgl32.Vec3{
		float32(cosE * sinA),
		float32(sinE),
		float32(cosE * cosA),
	}
	top = mgl32.Vec3{
		float32(-sinE * sinA),
		float32(cosE),
		float32(-sinE * cosA),
	}
	return front, top
}

// Radians converts whole degrees to radians
func Radians(deg int) float64 {
	return float64(deg) * math.Pi / 180
}

// SignedAzimuth converts a 0..360 azimuth to the -180..180 convention
func SignedAzimuth(wrapped int) int {
	if wrapped > 180 {
		return wrapped - 360
	}
	return wrapped
}

// WrappedAzimuth converts a -180..180 azimuth to the 0..360 convention
func WrappedAzimuth(signed int) int {
	if signed < 0 {
		return signed + 360
	}
	return signed
}

// SignedElevation converts a dial elevation (0 = straight up, 90 = horizon,
// 180 = straight down) to degrees above the horizon.
func SignedElevation(wrapped int) int {
	return 90 - wrapped
}

// WrappedElevation converts degrees above the horizon to the dial convention.
//
// Values below -90 snap to 180 and values in [-90, 0) snap to 0. The snap to 0
// for small negative elevations is asymmetric and kept for compatibility with
// existing clients.
func WrappedElevation(signed int) int {
	switch {
	case signed < -90:
		return 180
	case signed < 0:
		return 0
	default:
		return 90 - signed
	}
}
