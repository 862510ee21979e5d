package xpbd

import (
	"math"
	"testing"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/collider"
	"github.com/forgephysics/xpbd/constraint"
	"github.com/forgephysics/xpbd/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// The tests in this file are end-to-end scenarios: whole-World simulations
// checked against coarse-grained expected behavior, rather than unit
// assertions on a single projection. Tolerances are kept loose, since the
// exact settling trajectory depends on substep count and solver iteration
// order, which are free to vary between otherwise-correct implementations.

func boxBody(t *testing.T, reg *registry.Registry, position, halfExtents mgl64.Vec3, mass float64) *body.RigidBody {
	t.Helper()
	hull, err := collider.NewBox(halfExtents)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	inertia := collider.BoxInertia(mass, halfExtents)
	b := body.New(0, position, mgl64.QuatIdent(), 1.0/mass, inertia, inertia.Inv(), []*collider.Hull{hull})
	reg.Create(b)
	return b
}

func fixedBoxBody(t *testing.T, reg *registry.Registry, position, halfExtents mgl64.Vec3) *body.RigidBody {
	t.Helper()
	hull, err := collider.NewBox(halfExtents)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	b := body.NewFixed(0, position, mgl64.QuatIdent(), []*collider.Hull{hull})
	reg.CreateFixed(b)
	return b
}

// Scenario 1: free fall onto a fixed floor, settling to rest.
func TestScenario_FreeFallSettlesOnFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Substeps = 1
	cfg.PosIters = 20
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	floorTop := -2.0
	fixedBoxBody(t, w.Registry, mgl64.Vec3{0, floorTop - 0.5, 0}, mgl64.Vec3{50, 0.5, 50})
	cube := boxBody(t, w.Registry, mgl64.Vec3{0, 10, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)
	cube.Restitution = 0.0
	cube.StaticFriction = 0.5
	cube.DynamicFriction = 0.4

	const dt = 1.0 / 60.0
	restY := floorTop + 0.5

	for step := 0; step < int(4.0/dt); step++ {
		w.Simulate(dt)
	}

	if math.Abs(cube.WorldPosition.Y()-restY) > 0.1 {
		t.Errorf("expected cube to settle at y=%.3f, got %.3f", restY, cube.WorldPosition.Y())
	}
	if cube.LinearVelocity.Len() > 0.05 {
		t.Errorf("expected |v| < 0.05 after settling, got %v", cube.LinearVelocity.Len())
	}
	if !quatIsUnit(cube.WorldRotation) {
		t.Error("expected world rotation to remain unit-norm")
	}
}

// Scenario 1 (fixed-body invariant): a fixed floor never moves under
// repeated Simulate calls, regardless of what lands on it.
func TestScenario_FixedBodyNeverMoves(t *testing.T) {
	cfg := DefaultConfig()
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	floorPos := mgl64.Vec3{0, -2.5, 0}
	floor := fixedBoxBody(t, w.Registry, floorPos, mgl64.Vec3{50, 0.5, 50})
	boxBody(t, w.Registry, mgl64.Vec3{0, 2, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)

	for step := 0; step < 120; step++ {
		w.Simulate(1.0 / 60.0)
	}

	if floor.WorldPosition != floorPos {
		t.Errorf("expected fixed floor to stay at %v, got %v", floorPos, floor.WorldPosition)
	}
	if floor.WorldRotation != mgl64.QuatIdent() {
		t.Errorf("expected fixed floor rotation unchanged, got %v", floor.WorldRotation)
	}
}

// Scenario 2: an unlimited hinge pendulum swings under gravity without
// diverging: the arm's center stays near armLen from the pivot, its state
// stays finite, and it swings to both sides.
func TestScenario_PendulumSwingsWithoutDiverging(t *testing.T) {
	cfg := DefaultConfig()
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	pivot := fixedBoxBody(t, w.Registry, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.2, 0.2, 0.2})
	armLen := 2.0
	// arm's center starts at (armLen/2, 0, 0), half an arm length from the
	// pin at the pivot, so the attachment points coincide at t=0 — no
	// artificial first-frame snap correction.
	arm := boxBody(t, w.Registry, mgl64.Vec3{armLen / 2, 0, 0}, mgl64.Vec3{0.2, 0.2, armLen / 2}, 1.0)

	hinge := &constraint.Hinge{
		E1: pivot.ID, E2: arm.ID,
		R1Local: mgl64.Vec3{0, 0, 0}, R2Local: mgl64.Vec3{-armLen / 2, 0, 0},
		AxisLocal1: mgl64.Vec3{0, 0, 1}, AxisLocal2: mgl64.Vec3{0, 0, 1},
		SwingLocal1: mgl64.Vec3{1, 0, 0}, SwingLocal2: mgl64.Vec3{1, 0, 0},
	}
	w.AddConstraint(hinge)

	const dt = 1.0 / 60.0
	maxDistFromPivot := 0.0
	sawPositiveVy := false
	sawNegativeVy := false

	for step := 0; step < int(5.0/dt); step++ {
		w.Simulate(dt)

		tip := arm.WorldPosition.Add(arm.WorldRotation.Rotate(mgl64.Vec3{armLen / 2, 0, 0}))
		d := tip.Sub(pivot.WorldPosition).Len()
		if d > maxDistFromPivot {
			maxDistFromPivot = d
		}

		if arm.AngularVelocity.Z() > 0.01 {
			sawPositiveVy = true
		}
		if arm.AngularVelocity.Z() < -0.01 {
			sawNegativeVy = true
		}

		if !arm.IsFinite() {
			t.Fatalf("arm state became non-finite at step %d", step)
		}
	}

	if maxDistFromPivot > armLen+0.1 {
		t.Errorf("expected hinge to keep the arm's radius near %.2f, got max %.3f", armLen, maxDistFromPivot)
	}
	if !sawPositiveVy || !sawNegativeVy {
		t.Error("expected the pendulum to swing both directions (oscillate) under gravity")
	}
}

// Scenario 3: a limited hinge saturates at its configured angle bounds
// rather than spinning through them.
func TestScenario_HingeLimitSaturates(t *testing.T) {
	cfg := DefaultConfig()
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	pivot := fixedBoxBody(t, w.Registry, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.2, 0.2, 0.2})
	armLen := 2.0
	arm := boxBody(t, w.Registry, mgl64.Vec3{armLen / 2, 0, 0}, mgl64.Vec3{0.2, 0.2, armLen / 2}, 1.0)

	limit := 0.9 * math.Pi
	hinge := &constraint.Hinge{
		E1: pivot.ID, E2: arm.ID,
		R1Local: mgl64.Vec3{0, 0, 0}, R2Local: mgl64.Vec3{-armLen / 2, 0, 0},
		AxisLocal1: mgl64.Vec3{0, 0, 1}, AxisLocal2: mgl64.Vec3{0, 0, 1},
		SwingLocal1: mgl64.Vec3{1, 0, 0}, SwingLocal2: mgl64.Vec3{1, 0, 0},
		Limited:  true,
		MinAngle: -limit, MaxAngle: limit,
	}
	w.AddConstraint(hinge)

	const dt = 1.0 / 60.0
	axis := mgl64.Vec3{0, 0, 1}
	n1 := mgl64.Vec3{1, 0, 0}

	for step := 0; step < int(6.0/dt); step++ {
		w.Simulate(dt)

		n2 := arm.WorldRotation.Rotate(mgl64.Vec3{1, 0, 0})
		n2 = n2.Sub(axis.Mul(n2.Dot(axis)))
		if n2.Len() < 1e-9 {
			continue
		}
		n2 = n2.Normalize()

		sinPhi := n1.Cross(n2).Dot(axis)
		if sinPhi > 1 {
			sinPhi = 1
		} else if sinPhi < -1 {
			sinPhi = -1
		}
		phi := math.Asin(sinPhi)
		if n1.Dot(n2) < 0 {
			phi = math.Pi - phi
		}
		if phi > math.Pi {
			phi -= 2 * math.Pi
		}

		if phi > limit+0.05 || phi < -limit-0.05 {
			t.Fatalf("swing angle %.4f exceeded limit +-%.4f at step %d", phi, limit, step)
		}
	}
}

// Scenario 4: two unit cubes resting on a floor, one atop the other, settle
// with their centers separated by roughly one cube height and both at rest.
func TestScenario_StackedCubesSettle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Substeps = 4
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	fixedBoxBody(t, w.Registry, mgl64.Vec3{0, -2.5, 0}, mgl64.Vec3{50, 0.5, 50})

	bottom := boxBody(t, w.Registry, mgl64.Vec3{0, -1.4, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)
	bottom.StaticFriction, bottom.DynamicFriction = 0.6, 0.5

	top := boxBody(t, w.Registry, mgl64.Vec3{0, -0.3, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)
	top.StaticFriction, top.DynamicFriction = 0.6, 0.5

	const dt = 1.0 / 60.0
	for step := 0; step < int(3.0/dt); step++ {
		w.Simulate(dt)
	}

	sep := top.WorldPosition.Y() - bottom.WorldPosition.Y()
	if math.Abs(sep-1.0) > 0.1 {
		t.Errorf("expected stacked cubes separated by ~1.0, got %.4f", sep)
	}
	if bottom.LinearVelocity.Len() > 0.05 || top.LinearVelocity.Len() > 0.05 {
		t.Errorf("expected both cubes at rest, got bottom=%v top=%v",
			bottom.LinearVelocity.Len(), top.LinearVelocity.Len())
	}
}

// Scenario 5: a cube thrown at a restitutive floor bounces back to roughly
// e^2 times its initial drop height.
func TestScenario_ObliqueImpactBounces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Substeps = 4
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	floorTop := -0.5
	fixedBoxBody(t, w.Registry, mgl64.Vec3{0, floorTop - 0.5, 0}, mgl64.Vec3{50, 0.5, 50})

	const restitution = 0.5
	start := 3.0
	cube := boxBody(t, w.Registry, mgl64.Vec3{0, start, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)
	cube.LinearVelocity = mgl64.Vec3{0, -5, 0}
	cube.Restitution = restitution

	restY := floorTop + 0.5
	dropHeight := start - restY

	const dt = 1.0 / 60.0
	wasFalling := false
	peakAfterBounce := math.Inf(-1)
	bounced := false

	for step := 0; step < int(3.0/dt); step++ {
		w.Simulate(dt)

		if cube.LinearVelocity.Y() < -0.1 {
			wasFalling = true
		}
		if wasFalling && cube.LinearVelocity.Y() > 0.1 {
			bounced = true
		}
		if bounced {
			if cube.WorldPosition.Y() > peakAfterBounce {
				peakAfterBounce = cube.WorldPosition.Y()
			}
			if cube.LinearVelocity.Y() < 0 {
				break // past the peak of the first bounce
			}
		}
	}

	if !bounced {
		t.Fatal("expected the cube to bounce off the floor")
	}

	expectedPeak := restY + restitution*restitution*dropHeight
	if math.Abs(peakAfterBounce-expectedPeak) > 0.3*dropHeight {
		t.Errorf("expected bounce peak near %.3f (e^2*h), got %.3f", expectedPeak, peakAfterBounce)
	}
}

// Scenario 6: a cube hanging from a fixed point via a compliant positional
// constraint oscillates around its rest offset rather than diverging or
// snapping rigidly in place.
func TestScenario_CompliantSpringOscillates(t *testing.T) {
	cfg := DefaultConfig()
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	anchor := fixedBoxBody(t, w.Registry, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.2, 0.2, 0.2})
	cube := boxBody(t, w.Registry, mgl64.Vec3{0, -3, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)

	// c = |p1 - p2 - d_world|: with the cube as E1 and the fixed anchor as
	// E2, d_world=(0,-3,0) drives the cube to rest 3 units below the anchor.
	spring := &constraint.Positional{
		E1: cube.ID, E2: anchor.ID,
		DistanceLocal: mgl64.Vec3{0, -3, 0},
		Compliance:    1e-3,
	}
	w.AddConstraint(spring)

	const dt = 1.0 / 60.0
	minY, maxY := math.Inf(1), math.Inf(-1)
	sawUpward, sawDownward := false, false

	for step := 0; step < int(4.0/dt); step++ {
		w.Simulate(dt)

		y := cube.WorldPosition.Y()
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
		if cube.LinearVelocity.Y() > 0.01 {
			sawUpward = true
		}
		if cube.LinearVelocity.Y() < -0.01 {
			sawDownward = true
		}

		if !cube.IsFinite() {
			t.Fatalf("cube state became non-finite at step %d", step)
		}
	}

	if !sawUpward || !sawDownward {
		t.Error("expected the spring to oscillate (velocity changing sign)")
	}
	if maxY-minY > 4.0 {
		t.Errorf("expected a bounded oscillation around y=-3, got swing of %.3f (min=%.3f max=%.3f)", maxY-minY, minY, maxY)
	}
	if maxY > -1.5 {
		t.Errorf("expected the cube to stay well below the anchor, got max y=%.3f", maxY)
	}
}

func quatIsUnit(q mgl64.Quat) bool {
	n := q.W*q.W + q.V.Dot(q.V)
	return math.Abs(n-1) < 1e-6
}

// Simulate with dt=0 must leave every pose and velocity untouched; only
// the Lagrange accumulators are reset.
func TestSimulate_ZeroDtIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	anchor := fixedBoxBody(t, w.Registry, mgl64.Vec3{0, 8, 0}, mgl64.Vec3{0.2, 0.2, 0.2})
	cube := boxBody(t, w.Registry, mgl64.Vec3{0, 5, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)
	cube.LinearVelocity = mgl64.Vec3{1, 2, 3}

	spring := &constraint.Positional{E1: cube.ID, E2: anchor.ID, Compliance: 1e-3, Lambda: 42}
	w.AddConstraint(spring)

	pos, rot, vel := cube.WorldPosition, cube.WorldRotation, cube.LinearVelocity
	w.Simulate(0)

	if cube.WorldPosition != pos || cube.WorldRotation != rot || cube.LinearVelocity != vel {
		t.Error("expected zero-dt simulate to leave body state untouched")
	}
	if spring.Lambda != 0 {
		t.Errorf("expected Lagrange accumulator reset, got %v", spring.Lambda)
	}
}

// A free body under zero force keeps its kinetic energy over a second of
// simulation (drift well under 1%).
func TestSimulate_FreeBodyConservesEnergy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Substeps = 1
	w := New(mgl64.Vec3{}, cfg)

	cube := boxBody(t, w.Registry, mgl64.Vec3{}, mgl64.Vec3{0.5, 0.5, 0.5}, 2.0)
	cube.LinearVelocity = mgl64.Vec3{1, 0.5, -0.25}

	mass := 1.0 / cube.InverseMass
	initial := 0.5 * mass * cube.LinearVelocity.LenSqr()

	for step := 0; step < 60; step++ {
		w.Simulate(1.0 / 60.0)
	}

	final := 0.5 * mass * cube.LinearVelocity.LenSqr()
	if math.Abs(final-initial) > 0.01*initial {
		t.Errorf("expected kinetic energy drift <= 1%%, initial=%v final=%v", initial, final)
	}
}

// A sleeping body is woken by a fast incoming collision.
func TestSimulate_ImpactWakesSleepingBody(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SleepFrames = 5
	w := New(mgl64.Vec3{0, -10, 0}, cfg)

	fixedBoxBody(t, w.Registry, mgl64.Vec3{0, -1, 0}, mgl64.Vec3{50, 0.5, 50})
	resting := boxBody(t, w.Registry, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)

	const dt = 1.0 / 60.0
	for step := 0; step < 120; step++ {
		w.Simulate(dt)
	}
	if resting.Active {
		t.Fatal("expected the resting cube to fall asleep")
	}

	// Drop a second cube onto it at speed.
	impactor := boxBody(t, w.Registry, mgl64.Vec3{0, 2, 0}, mgl64.Vec3{0.5, 0.5, 0.5}, 1.0)
	impactor.LinearVelocity = mgl64.Vec3{0, -6, 0}

	woke := false
	for step := 0; step < 60; step++ {
		w.Simulate(dt)
		if resting.Active {
			woke = true
			break
		}
	}
	if !woke {
		t.Error("expected the impact to wake the sleeping cube")
	}
}
