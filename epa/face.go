package epa

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Face is a triangular face of the polytope EPA expands: 3 vertices, an
// outward-pointing normal, and the distance from the origin to the face
// plane (the current penetration-depth lower bound along that normal).
type Face struct {
	Points   [3]mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

// compareVec3 compares two vectors lexicographically (x, then y, then z):
// -1 if a < b, 0 if equal, +1 if a > b. Used for edge normalization and
// exact point deduplication during polytope expansion.
func compareVec3(a, b mgl64.Vec3) int {
	if a[0] != b[0] {
		if a[0] < b[0] {
			return -1
		}
		return 1
	}
	if a[1] != b[1] {
		if a[1] < b[1] {
			return -1
		}
		return 1
	}
	if a[2] != b[2] {
		if a[2] < b[2] {
			return -1
		}
		return 1
	}
	return 0
}

func vec3Equal(a, b mgl64.Vec3) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}
