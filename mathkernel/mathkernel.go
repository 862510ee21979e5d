// Package mathkernel adds the handful of double-precision helpers the XPBD
// solver needs on top of github.com/go-gl/mathgl/mgl64: degree-based
// axis-angle construction, quaternion basis-axis extraction, and the
// numerical tolerances shared across the collision and solver packages.
package mathkernel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon values shared by the gjk and constraint packages so a single
// tuning pass touches one file.
const (
	// EpsilonZeroVector is the squared-length threshold below which a
	// vector is treated as the zero vector (degenerate direction).
	EpsilonZeroVector = 1e-16

	// EpsilonConstraint is the magnitude below which a positional
	// constraint's error is considered satisfied and skipped.
	EpsilonConstraint = 1e-9
)

// Material compliance presets (seconds^2/kg per meter of displacement).
// Lower is stiffer.
const (
	ComplianceConcrete = 0.04e-9
	ComplianceWood     = 0.16e-9
	ComplianceLeather  = 14e-8
	ComplianceTendon   = 0.2e-7
	ComplianceRubber   = 1e-6
	ComplianceMuscle   = 0.2e-3
	ComplianceFat      = 1e-3
)

// QuatFromAxisAngleDeg builds a unit quaternion representing a right-handed
// rotation of angleDegrees around axis. The angle is specified in degrees
// and converted to radians internally.
func QuatFromAxisAngleDeg(axis mgl64.Vec3, angleDegrees float64) mgl64.Quat {
	radians := angleDegrees * math.Pi / 180.0
	return mgl64.QuatRotate(radians, axis.Normalize()).Normalize()
}

// Right returns the world-space +X basis vector rotated by q.
func Right(q mgl64.Quat) mgl64.Vec3 {
	return q.Rotate(mgl64.Vec3{1, 0, 0})
}

// Up returns the world-space +Y basis vector rotated by q.
func Up(q mgl64.Quat) mgl64.Vec3 {
	return q.Rotate(mgl64.Vec3{0, 1, 0})
}

// Forward returns the world-space +Z basis vector rotated by q.
func Forward(q mgl64.Quat) mgl64.Vec3 {
	return q.Rotate(mgl64.Vec3{0, 0, 1})
}

// RotationMatrix returns the 3x3 rotation matrix of q.
func RotationMatrix(q mgl64.Quat) mgl64.Mat3 {
	return q.Mat4().Mat3()
}

// IsFinite reports whether every component of v is finite (not NaN/Inf),
// used by the solver's degenerate-state recovery path.
func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// QuatIsFinite reports whether every component of q is finite.
func QuatIsFinite(q mgl64.Quat) bool {
	if math.IsNaN(q.W) || math.IsInf(q.W, 0) {
		return false
	}
	return IsFinite(q.V)
}
