// Package body implements the simulated rigid-body entity: pose, velocity,
// mass/inertia properties, the per-frame force accumulator, and the
// XPBD predictor/velocity-commit integration steps.
package body

import (
	"math"

	"github.com/forgephysics/xpbd/collider"
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/go-gl/mathgl/mgl64"
)

// Force is one entry of an entity's accumulated force list: a force applied
// at a world point, or a pure torque. Two variants rather than a boolean
// flag, since a pure torque must never contribute a translational component.
type Force interface {
	contribution(bodyPosition mgl64.Vec3) (force, torque mgl64.Vec3)
}

// ForceAtPoint applies Force at ApplicationPoint (world space), contributing
// both a translational force and the torque (p - x) x F about the body's
// center of mass.
type ForceAtPoint struct {
	ApplicationPoint mgl64.Vec3
	Force            mgl64.Vec3
}

func (f ForceAtPoint) contribution(bodyPosition mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	torque := f.ApplicationPoint.Sub(bodyPosition).Cross(f.Force)
	return f.Force, torque
}

// PureTorque contributes only angular effect, no translational force.
type PureTorque struct {
	Torque mgl64.Vec3
}

func (t PureTorque) contribution(mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	return mgl64.Vec3{}, t.Torque
}

// RigidBody is one simulated entity. A fixed body has InverseMass == 0 and
// a zero InverseInertiaLocal; the solver never mutates its pose.
type RigidBody struct {
	ID int

	WorldPosition mgl64.Vec3
	WorldRotation mgl64.Quat

	LinearVelocity  mgl64.Vec3
	AngularVelocity mgl64.Vec3

	InverseMass float64

	// InertiaLocal/InverseInertiaLocal are the body-frame inertia tensor and
	// its inverse, cached from the collider mass properties at creation.
	// InertiaLocal is kept alongside the inverse so the predictor's
	// gyroscopic term (omega x I*omega) doesn't need a matrix inverse every
	// step.
	InertiaLocal        mgl64.Mat3
	InverseInertiaLocal mgl64.Mat3

	Colliders []*collider.Hull

	StaticFriction  float64
	DynamicFriction float64
	Restitution     float64

	Forces []Force

	Active             bool
	InactiveFrameCount int

	// PrevPosition/PrevRotation are the substep-begin scratch values,
	// written by Integrate and read back by CommitVelocity.
	PrevPosition mgl64.Vec3
	PrevRotation mgl64.Quat

	// DebugTag is a correlation tag assigned at registry insertion, carried
	// through to log fields so a body can be traced across a log stream
	// independent of its integer ID.
	DebugTag string
}

// New constructs an active dynamic rigid body at the given pose.
func New(id int, position mgl64.Vec3, rotation mgl64.Quat, inverseMass float64, inertiaLocal, inverseInertiaLocal mgl64.Mat3, colliders []*collider.Hull) *RigidBody {
	q := rotation.Normalize()
	return &RigidBody{
		ID:                  id,
		WorldPosition:       position,
		WorldRotation:       q,
		PrevPosition:        position,
		PrevRotation:        q,
		InverseMass:         inverseMass,
		InertiaLocal:        inertiaLocal,
		InverseInertiaLocal: inverseInertiaLocal,
		Colliders:           colliders,
		Active:              true,
	}
}

// NewFixed constructs a fixed (infinite-mass) body: zero inverse mass and
// zero inverse inertia, active but never integrated.
func NewFixed(id int, position mgl64.Vec3, rotation mgl64.Quat, colliders []*collider.Hull) *RigidBody {
	q := rotation.Normalize()
	return &RigidBody{
		ID:            id,
		WorldPosition: position,
		WorldRotation: q,
		PrevPosition:  position,
		PrevRotation:  q,
		Colliders:     colliders,
		Active:        true,
	}
}

// IsFixed reports whether the body has infinite mass.
func (b *RigidBody) IsFixed() bool {
	return b.InverseMass == 0
}

// WorldInverseInertia returns R . InverseInertiaLocal . R^T.
func (b *RigidBody) WorldInverseInertia() mgl64.Mat3 {
	if b.IsFixed() {
		return mgl64.Mat3{}
	}
	r := mathkernel.RotationMatrix(b.WorldRotation)
	return r.Mul3(b.InverseInertiaLocal).Mul3(r.Transpose())
}

// WorldInertia returns R . InertiaLocal . R^T.
func (b *RigidBody) WorldInertia() mgl64.Mat3 {
	if b.IsFixed() {
		return mgl64.Mat3{}
	}
	r := mathkernel.RotationMatrix(b.WorldRotation)
	return r.Mul3(b.InertiaLocal).Mul3(r.Transpose())
}

// AddForce appends a point-applied force to the accumulator and wakes the
// body. A sleeping body otherwise only resumes via an explicit wake or a
// waking collision impulse, but a freshly applied force is always a
// deliberate driver action, so it wakes the body unconditionally.
func (b *RigidBody) AddForce(applicationPoint, force mgl64.Vec3) {
	if b.IsFixed() {
		return
	}
	b.Forces = append(b.Forces, ForceAtPoint{ApplicationPoint: applicationPoint, Force: force})
	b.Activate()
}

// AddTorque appends a pure torque to the accumulator and wakes the body.
func (b *RigidBody) AddTorque(torque mgl64.Vec3) {
	if b.IsFixed() {
		return
	}
	b.Forces = append(b.Forces, PureTorque{Torque: torque})
	b.Activate()
}

// ClearForces empties the accumulator. Called once per substep after
// Integrate consumes it, since the predictor runs every substep.
func (b *RigidBody) ClearForces() {
	b.Forces = b.Forces[:0]
}

func (b *RigidBody) sumForcesAndTorques() (force, torque mgl64.Vec3) {
	for _, f := range b.Forces {
		df, dt := f.contribution(b.WorldPosition)
		force = force.Add(df)
		torque = torque.Add(dt)
	}
	return force, torque
}

// Integrate is the predictor step: it saves the pre-substep pose,
// accumulates gravity and the force list, and advances position/rotation
// by a semi-implicit Euler step of size h. Fixed and inactive bodies are
// left untouched.
func (b *RigidBody) Integrate(h float64, gravity mgl64.Vec3) {
	b.PrevPosition = b.WorldPosition
	b.PrevRotation = b.WorldRotation
	if b.IsFixed() || !b.Active {
		return
	}

	extForce, extTorque := b.sumForcesAndTorques()

	b.LinearVelocity = b.LinearVelocity.Add(gravity.Mul(h)).Add(extForce.Mul(h * b.InverseMass))
	b.WorldPosition = b.WorldPosition.Add(b.LinearVelocity.Mul(h))

	invInertia := b.WorldInverseInertia()
	inertia := b.WorldInertia()
	gyroscopic := b.AngularVelocity.Cross(inertia.Mul3x1(b.AngularVelocity))
	angularAccel := invInertia.Mul3x1(extTorque.Sub(gyroscopic))
	b.AngularVelocity = b.AngularVelocity.Add(angularAccel.Mul(h))

	omega := mgl64.Quat{W: 0, V: b.AngularVelocity}
	qDot := omega.Mul(b.WorldRotation).Scale(0.5)
	b.WorldRotation = b.WorldRotation.Add(qDot.Scale(h)).Normalize()

	b.ClearForces()
}

// CommitVelocity recomputes velocity from the position/rotation delta left
// by the positional solve, rather than carrying the predictor's velocity
// forward — this keeps the constraint corrections consistent with the
// velocity-level pass that follows.
func (b *RigidBody) CommitVelocity(h float64) {
	if b.IsFixed() || !b.Active {
		return
	}

	b.LinearVelocity = b.WorldPosition.Sub(b.PrevPosition).Mul(1.0 / h)

	qDelta := b.WorldRotation.Mul(b.PrevRotation.Conjugate()).Normalize()
	if qDelta.W >= 0 {
		b.AngularVelocity = qDelta.V.Mul(2.0 / h)
	} else {
		b.AngularVelocity = qDelta.V.Mul(-2.0 / h)
	}
}

// Rollback restores the pre-substep pose and deactivates the body. Used to
// recover from non-finite state that survives a full substep.
func (b *RigidBody) Rollback() {
	b.WorldPosition = b.PrevPosition
	b.WorldRotation = b.PrevRotation
	b.LinearVelocity = mgl64.Vec3{}
	b.AngularVelocity = mgl64.Vec3{}
	b.Active = false
}

// IsFinite reports whether the body's pose and velocities are all finite.
// Checked at the end of every substep to catch solver degeneracy.
func (b *RigidBody) IsFinite() bool {
	return mathkernel.IsFinite(b.WorldPosition) &&
		mathkernel.QuatIsFinite(b.WorldRotation) &&
		mathkernel.IsFinite(b.LinearVelocity) &&
		mathkernel.IsFinite(b.AngularVelocity)
}

// UpdateColliders refreshes every collider's cached world-space geometry
// from the current pose. Called once per outer Simulate call before
// narrow-phase detection.
func (b *RigidBody) UpdateColliders() {
	for _, h := range b.Colliders {
		h.Update(b.WorldPosition, b.WorldRotation)
	}
}

// UpdateSleepState applies the frame-counted sleeping heuristic. A body
// that is already asleep is left alone — it only resumes via Activate or a
// waking collision impulse.
func (b *RigidBody) UpdateSleepState(linearEps, angularEps float64, framesThreshold int) {
	if b.IsFixed() || !b.Active {
		return
	}

	if b.LinearVelocity.Len() < linearEps && b.AngularVelocity.Len() < angularEps {
		b.InactiveFrameCount++
		if b.InactiveFrameCount >= framesThreshold {
			b.Active = false
			b.LinearVelocity = mgl64.Vec3{}
			b.AngularVelocity = mgl64.Vec3{}
		}
	} else {
		b.InactiveFrameCount = 0
	}
}

// Activate wakes the body and resets its inactivity counter.
func (b *RigidBody) Activate() {
	b.Active = true
	b.InactiveFrameCount = 0
}

// WorldAABB returns the union of all of the body's collider AABBs, for the
// broad phase. Panics if the body has no colliders, matching the
// assumption that every simulated entity carries at least one hull.
func (b *RigidBody) WorldAABB() (min, max mgl64.Vec3) {
	min, max = b.Colliders[0].WorldAABB()
	for _, h := range b.Colliders[1:] {
		hMin, hMax := h.WorldAABB()
		for axis := 0; axis < 3; axis++ {
			min[axis] = math.Min(min[axis], hMin[axis])
			max[axis] = math.Max(max[axis], hMax[axis])
		}
	}
	return min, max
}
