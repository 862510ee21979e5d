package constraint

import (
	"math"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/forgephysics/xpbd/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// Hinge is a revolute joint: e1 and e2 rotate freely about a shared axis,
// with their attachment points pinned together and an optional angular
// limit about that axis. AxisLocal is the hinge axis in each body's local
// frame; SwingLocal is the in-plane reference vector used to measure the
// swing angle when Limited.
type Hinge struct {
	E1, E2 int

	R1Local, R2Local         mgl64.Vec3
	AxisLocal1, AxisLocal2   mgl64.Vec3
	SwingLocal1, SwingLocal2 mgl64.Vec3

	Compliance float64

	Limited            bool
	MinAngle, MaxAngle float64 // radians, about the hinge axis

	LambdaAlign float64
	LambdaLimit float64
	LambdaPos   float64
}

func (j *Hinge) ResetLambda() {
	j.LambdaAlign = 0
	j.LambdaLimit = 0
	j.LambdaPos = 0
}

// SolvePosition runs the three-stage hinge projection: axis alignment,
// then the optional angle limit, then the positional pin.
func (j *Hinge) SolvePosition(reg *registry.Registry, h float64) {
	b1, b2, ok := resolvePair(reg, j.E1, j.E2)
	if !ok {
		return
	}

	r1Mat := mathkernel.RotationMatrix(b1.WorldRotation)
	r2Mat := mathkernel.RotationMatrix(b2.WorldRotation)

	axis1 := r1Mat.Mul3x1(j.AxisLocal1)
	axis2 := r2Mat.Mul3x1(j.AxisLocal2)

	j.solveAxisAlignment(b1, b2, axis1, axis2, h)

	if j.Limited {
		// Recompute after alignment corrected orientation.
		r1Mat = mathkernel.RotationMatrix(b1.WorldRotation)
		r2Mat = mathkernel.RotationMatrix(b2.WorldRotation)
		axis1 = r1Mat.Mul3x1(j.AxisLocal1)
		swing1 := r1Mat.Mul3x1(j.SwingLocal1)
		swing2 := r2Mat.Mul3x1(j.SwingLocal2)
		j.solveSwingLimit(b1, b2, axis1, swing1, swing2, h)
	}

	j.solvePosition(b1, b2, h)
}

// solveAxisAlignment projects the rotation delta between the two hinge
// axes, treating (axis2 x axis1) as the orientation-constraint axis and
// its length as the small-angle constraint value c. As in
// MutualOrientation, the axis points the way e1 leads e2, so the
// correction turns axis1 and axis2 toward each other.
func (j *Hinge) solveAxisAlignment(b1, b2 *body.RigidBody, axis1, axis2 mgl64.Vec3, h float64) {
	correction := axis2.Cross(axis1)
	c := correction.Len()
	if c < mathkernel.EpsilonConstraint {
		return
	}
	n := correction.Mul(1.0 / c)

	w := generalizedInverseMassAngular(b1, b2, n)
	if w == 0 {
		return
	}

	dLambda := deltaLambda(c, j.Compliance, j.LambdaAlign, w, h)
	j.LambdaAlign += dLambda
	applyOrientationCorrection(b1, b2, n, dLambda)
}

// solveSwingLimit measures the signed angle between swing1 and swing2 about
// axis, using a sign-corrected asin of the triple product to avoid the
// domain ambiguity of asin alone, then projects any excursion outside
// [MinAngle, MaxAngle] back to the nearest boundary. phi is how far swing2
// leads swing1 about axis, so the correction is applied along -axis (the
// direction in which e1 leads e2, as in MutualOrientation).
func (j *Hinge) solveSwingLimit(b1, b2 *body.RigidBody, axis, swing1, swing2 mgl64.Vec3, h float64) {
	n1 := swing1.Sub(axis.Mul(swing1.Dot(axis)))
	n2 := swing2.Sub(axis.Mul(swing2.Dot(axis)))
	if n1.Len() < mathkernel.EpsilonConstraint || n2.Len() < mathkernel.EpsilonConstraint {
		return
	}
	n1 = n1.Normalize()
	n2 = n2.Normalize()

	sinPhi := clampUnit(axis.Dot(n1.Cross(n2)))
	phi := math.Asin(sinPhi)
	if n1.Dot(n2) < 0 {
		phi = math.Pi - phi
	}
	if phi > math.Pi {
		phi -= 2 * math.Pi
	} else if phi < -math.Pi {
		phi += 2 * math.Pi
	}

	var c float64
	switch {
	case phi < j.MinAngle:
		c = phi - j.MinAngle
	case phi > j.MaxAngle:
		c = phi - j.MaxAngle
	default:
		return
	}

	w := generalizedInverseMassAngular(b1, b2, axis)
	if w == 0 {
		return
	}

	dLambda := deltaLambda(c, 0, j.LambdaLimit, w, h)
	j.LambdaLimit += dLambda
	applyOrientationCorrection(b1, b2, axis.Mul(-1), dLambda)
}

func (j *Hinge) solvePosition(b1, b2 *body.RigidBody, h float64) {
	r1 := mathkernel.RotationMatrix(b1.WorldRotation).Mul3x1(j.R1Local)
	r2 := mathkernel.RotationMatrix(b2.WorldRotation).Mul3x1(j.R2Local)

	p1 := b1.WorldPosition.Add(r1)
	p2 := b2.WorldPosition.Add(r2)

	delta := p1.Sub(p2)
	c := delta.Len()
	if c < mathkernel.EpsilonConstraint {
		return
	}
	n := delta.Mul(1.0 / c)

	w := generalizedInverseMass(b1, b2, r1, r2, n)
	if w == 0 {
		return
	}

	dLambda := deltaLambda(c, 0, j.LambdaPos, w, h)
	j.LambdaPos += dLambda
	applyPositionalCorrection(b1, b2, r1, r2, n, dLambda)
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
