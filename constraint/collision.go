package constraint

import (
	"log/slog"
	"math"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/errs"
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/forgephysics/xpbd/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// wakeNormalVelocity is the contact-speed threshold above which a sleeping
// body hit by a collision is re-activated. Resting contacts stay below it
// (their residual normal speed is on the order of one gravity substep), so
// a settled stack doesn't wake itself.
const wakeNormalVelocity = 0.1

// Collision is the ephemeral per-contact-point constraint generated once
// per outer Simulate call from the contact manifold and discarded at the
// end of that call. One Collision exists per contact point.
type Collision struct {
	E1, E2 int

	// R1Local/R2Local are the contact point on each body's surface,
	// expressed in that body's local frame at stub-creation time.
	R1Local, R2Local mgl64.Vec3

	// NormalLocalOnE1 is the contact normal in e1's local frame at
	// stub-creation time; re-expressed in world space each substep via
	// e1's current rotation.
	NormalLocalOnE1 mgl64.Vec3

	LambdaN, LambdaT float64

	// PreContactNormalVelocity is v_n^pre, captured once before any solve,
	// used by the restitution pass.
	PreContactNormalVelocity float64

	StaticFriction  float64
	DynamicFriction float64
	Restitution     float64
}

func (c *Collision) ResetLambda() {
	c.LambdaN = 0
	c.LambdaT = 0
}

// worldPoints returns the current world-space attachment vectors, contact
// points, and normal given the bodies' current rotations.
func (c *Collision) worldPoints(b1, b2 *body.RigidBody) (r1, r2, p1, p2, n mgl64.Vec3) {
	r1 = mathkernel.RotationMatrix(b1.WorldRotation).Mul3x1(c.R1Local)
	r2 = mathkernel.RotationMatrix(b2.WorldRotation).Mul3x1(c.R2Local)
	p1 = b1.WorldPosition.Add(r1)
	p2 = b2.WorldPosition.Add(r2)
	n = mathkernel.RotationMatrix(b1.WorldRotation).Mul3x1(c.NormalLocalOnE1)
	return r1, r2, p1, p2, n
}

// SolvePosition runs the hard positional contact projection followed by a
// static-friction projection gated by the Coulomb bound expressed at the
// position level.
func (c *Collision) SolvePosition(reg *registry.Registry, h float64) {
	b1, ok1 := reg.Get(c.E1)
	b2, ok2 := reg.Get(c.E2)
	if !ok1 || !ok2 {
		slog.Warn("constraint: collision references missing entity, skipping",
			"error", errs.ErrInvalidConstraint, "e1", c.E1, "e2", c.E2)
		return
	}

	r1, r2, p1, p2, n := c.worldPoints(b1, b2)

	d := p1.Sub(p2).Dot(n)
	if d <= 0 {
		return
	}

	w := generalizedInverseMass(b1, b2, r1, r2, n)
	if w > 0 {
		dLambda := deltaLambda(d, 0, c.LambdaN, w, h)
		c.LambdaN += dLambda
		applyPositionalCorrection(b1, b2, r1, r2, n, dLambda)
	}

	// Static friction: tangential displacement since the substep began,
	// measured against each body's saved pre-substep pose.
	r1, r2, p1, p2, n = c.worldPoints(b1, b2)
	p1Til := prevWorldPoint(b1, c.R1Local)
	p2Til := prevWorldPoint(b2, c.R2Local)

	deltaP := p1.Sub(p1Til).Sub(p2.Sub(p2Til))
	tangential := deltaP.Sub(n.Mul(deltaP.Dot(n)))
	magnitude := tangential.Len()

	if magnitude > mathkernel.EpsilonConstraint && magnitude < c.StaticFriction*math.Abs(c.LambdaN) {
		t := tangential.Mul(1.0 / magnitude)
		wt := generalizedInverseMass(b1, b2, r1, r2, t)
		if wt > 0 {
			dLambda := deltaLambda(magnitude, 0, c.LambdaT, wt, h)
			c.LambdaT += dLambda
			applyPositionalCorrection(b1, b2, r1, r2, t, dLambda)
		}
	}
}

// prevWorldPoint is the contact point under the body's pre-substep pose.
// A fixed or sleeping body skipped the predictor, so its current pose is
// its previous pose.
func prevWorldPoint(b *body.RigidBody, rLocal mgl64.Vec3) mgl64.Vec3 {
	if b.IsFixed() || !b.Active {
		return b.WorldPosition.Add(mathkernel.RotationMatrix(b.WorldRotation).Mul3x1(rLocal))
	}
	return b.PrevPosition.Add(mathkernel.RotationMatrix(b.PrevRotation).Mul3x1(rLocal))
}

// SolveVelocity applies restitution (thresholded to suppress jitter at
// rest) plus dynamic Coulomb friction directly to the bodies' velocities,
// after the positional solve has committed. A sleeping body struck above
// the wake threshold is re-activated before the impulse is distributed.
func (c *Collision) SolveVelocity(reg *registry.Registry, h float64, gravityMagnitude float64) {
	b1, ok1 := reg.Get(c.E1)
	b2, ok2 := reg.Get(c.E2)
	if !ok1 || !ok2 {
		return
	}

	r1, r2, _, _, n := c.worldPoints(b1, b2)

	v1 := b1.LinearVelocity.Add(b1.AngularVelocity.Cross(r1))
	v2 := b2.LinearVelocity.Add(b2.AngularVelocity.Cross(r2))
	v := v1.Sub(v2)

	vn := v.Dot(n)

	if math.Abs(vn) > wakeNormalVelocity {
		if !b1.IsFixed() && !b1.Active {
			b1.Activate()
		}
		if !b2.IsFixed() && !b2.Active {
			b2.Activate()
		}
	}

	restitution := c.Restitution
	if math.Abs(c.PreContactNormalVelocity) < 2*gravityMagnitude*h {
		restitution = 0
	}
	vnTarget := -restitution * c.PreContactNormalVelocity

	w := generalizedInverseMass(b1, b2, r1, r2, n)
	if w > 0 {
		dvn := vnTarget - vn
		applyVelocityImpulse(b1, b2, r1, r2, n, dvn/w)
	}

	vt := v.Sub(n.Mul(vn))
	vtLen := vt.Len()
	if vtLen > mathkernel.EpsilonConstraint {
		t := vt.Mul(1.0 / vtLen)
		wt := generalizedInverseMass(b1, b2, r1, r2, t)
		if wt > 0 {
			maxFriction := c.DynamicFriction * math.Abs(c.LambdaN) / h
			frictionMagnitude := math.Min(maxFriction, vtLen)
			applyVelocityImpulse(b1, b2, r1, r2, t, -frictionMagnitude/wt)
		}
	}
}

// applyVelocityImpulse distributes a velocity-level impulse of magnitude
// impulse along n between the two bodies at attachment points r1, r2.
func applyVelocityImpulse(b1, b2 *body.RigidBody, r1, r2, n mgl64.Vec3, impulse float64) {
	j := n.Mul(impulse)

	if !immobile(b1) {
		b1.LinearVelocity = b1.LinearVelocity.Add(j.Mul(b1.InverseMass))
		b1.AngularVelocity = b1.AngularVelocity.Add(b1.WorldInverseInertia().Mul3x1(r1.Cross(j)))
	}
	if !immobile(b2) {
		b2.LinearVelocity = b2.LinearVelocity.Sub(j.Mul(b2.InverseMass))
		b2.AngularVelocity = b2.AngularVelocity.Sub(b2.WorldInverseInertia().Mul3x1(r2.Cross(j)))
	}
}
