// Package constraint implements the constraint variants and the shared
// XPBD projection math: generalized inverse mass, compliant Lagrange
// accumulation, and the position/rotation impulse application used by
// every constraint kind.
package constraint

import (
	"log/slog"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/errs"
	"github.com/forgephysics/xpbd/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// Constraint is a user-provided bilateral constraint: positional, mutual
// orientation, or hinge. Collision constraints are generated internally
// by the solver each outer call and are not part of this interface, since
// their stubs carry solver-private bookkeeping the driver manages
// directly (see Collision in collision.go).
type Constraint interface {
	// ResetLambda zeros the Lagrange accumulator(s), done at the start of
	// every substep.
	ResetLambda()
	// SolvePosition runs one projection iteration. It silently skips
	// (logging at warn level) if either referenced entity no longer
	// resolves in reg.
	SolvePosition(reg *registry.Registry, h float64)
}

// resolvePair looks up both bodies for a two-entity constraint, logging
// and reporting ok=false if either is missing.
func resolvePair(reg *registry.Registry, e1, e2 int) (b1, b2 *body.RigidBody, ok bool) {
	b1, ok1 := reg.Get(e1)
	b2, ok2 := reg.Get(e2)
	if !ok1 || !ok2 {
		slog.Warn("constraint: referenced entity does not exist, skipping",
			"error", errs.ErrInvalidConstraint, "e1", e1, "e2", e2, "e1_ok", ok1, "e2_ok", ok2)
		return nil, nil, false
	}
	return b1, b2, true
}

// immobile reports whether the solver must leave the body's pose alone:
// fixed bodies always, sleeping bodies until something re-activates them.
// A sleeping body participates in constraints as kinematic at rest — zero
// generalized inverse mass, no corrections applied.
func immobile(b *body.RigidBody) bool {
	return b.IsFixed() || !b.Active
}

// generalizedInverseMass computes w = w1 + w2 for a positional correction
// along unit direction n applied at world attachment points r1, r2 (each
// relative to its body's center of mass): wk = mk^-1 + (rk x n)·Ik^-1·(rk x n).
func generalizedInverseMass(b1, b2 *body.RigidBody, r1, r2, n mgl64.Vec3) float64 {
	w := 0.0
	if !immobile(b1) {
		rn := r1.Cross(n)
		w += b1.InverseMass + rn.Dot(b1.WorldInverseInertia().Mul3x1(rn))
	}
	if !immobile(b2) {
		rn := r2.Cross(n)
		w += b2.InverseMass + rn.Dot(b2.WorldInverseInertia().Mul3x1(rn))
	}
	return w
}

// generalizedInverseMassAngular is the purely-rotational variant used by
// orientation constraints: wk = n^rot · Ik^-1 · n^rot, no r x n cross.
func generalizedInverseMassAngular(b1, b2 *body.RigidBody, n mgl64.Vec3) float64 {
	w := 0.0
	if !immobile(b1) {
		w += n.Dot(b1.WorldInverseInertia().Mul3x1(n))
	}
	if !immobile(b2) {
		w += n.Dot(b2.WorldInverseInertia().Mul3x1(n))
	}
	return w
}

// deltaLambda is the compliant XPBD update: alphaTilde = alpha/h^2,
// deltaLambda = (-c - alphaTilde*lambda) / (w + alphaTilde).
func deltaLambda(c, compliance, lambda, w, h float64) float64 {
	alphaTilde := compliance / (h * h)
	return (-c - alphaTilde*lambda) / (w + alphaTilde)
}

// applyPositionalCorrection distributes an impulse of magnitude deltaLambda
// along n between the two bodies at attachment points r1, r2: translation
// by (deltaLambda/mk)*n on each non-fixed body, plus the matching rotation
// update via the quaternion derivative q += 0.5*(Ik^-1*(rk x deltaLambda*n), 0) ⊗ q.
func applyPositionalCorrection(b1, b2 *body.RigidBody, r1, r2, n mgl64.Vec3, dLambda float64) {
	impulse := n.Mul(dLambda)

	if !immobile(b1) {
		b1.WorldPosition = b1.WorldPosition.Add(impulse.Mul(b1.InverseMass))
		applyRotationCorrection(b1, r1.Cross(impulse))
	}
	if !immobile(b2) {
		b2.WorldPosition = b2.WorldPosition.Sub(impulse.Mul(b2.InverseMass))
		applyRotationCorrection(b2, r2.Cross(impulse.Mul(-1)))
	}
}

// applyOrientationCorrection applies a purely-rotational impulse (no
// translation) of magnitude deltaLambda along axis n to both bodies, used
// by the mutual-orientation constraint and the hinge's axis-alignment and
// limit stages.
func applyOrientationCorrection(b1, b2 *body.RigidBody, n mgl64.Vec3, dLambda float64) {
	if !immobile(b1) {
		applyRotationCorrection(b1, n.Mul(dLambda))
	}
	if !immobile(b2) {
		applyRotationCorrection(b2, n.Mul(-dLambda))
	}
}

// applyRotationCorrection updates b's orientation by the angular impulse
// rotImpulse (in world space): q += 0.5*(Ik^-1*rotImpulse, 0) ⊗ q, renormalized.
func applyRotationCorrection(b *body.RigidBody, rotImpulse mgl64.Vec3) {
	angular := b.WorldInverseInertia().Mul3x1(rotImpulse)
	dq := mgl64.Quat{W: 0, V: angular}.Mul(b.WorldRotation).Scale(0.5)
	b.WorldRotation = b.WorldRotation.Add(dq).Normalize()
}
