package xpbd

import (
	"log/slog"
	"math"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/constraint"
	"github.com/forgephysics/xpbd/epa"
	"github.com/forgephysics/xpbd/gjk"
	"github.com/forgephysics/xpbd/manifold"
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/go-gl/mathgl/mgl64"
)

// narrowPhase runs GJK/EPA/manifold clipping over every collider-hull pair
// of every candidate body pair, and builds the ephemeral collision
// constraint stubs: local-frame attachment points and normal, plus the
// pre-solve contact-point relative velocity along the normal, captured once
// before any predictor or solve touches this call's velocities.
func narrowPhase(pairs []bodyPair, gjkMaxIter, epaMaxIter int, epaTolerance float64) []*constraint.Collision {
	stubs := make([]*constraint.Collision, 0)

	for _, pair := range pairs {
		for _, hullA := range pair.a.Colliders {
			for _, hullB := range pair.b.Colliders {
				intersecting, simplex, err := gjk.GJK(hullA, hullB, gjkMaxIter)
				if err != nil {
					slog.Warn("xpbd: gjk did not converge, skipping pair", "error", err)
					continue
				}
				if !intersecting {
					continue
				}

				result, err := epa.ResolveWithLimits(hullA, hullB, simplex, epaMaxIter, epaTolerance)
				if err != nil {
					slog.Warn("xpbd: epa did not converge, skipping contact", "error", err)
					continue
				}

				points := manifold.Generate(hullA, hullB, result.Normal, result.Depth)
				for _, cp := range points {
					stubs = append(stubs, buildCollisionStub(pair.a, pair.b, cp, result.Normal))
				}
			}
		}
	}

	return stubs
}

func buildCollisionStub(a, b *body.RigidBody, cp manifold.ContactPoint, normalWorld mgl64.Vec3) *constraint.Collision {
	r1Local := worldToLocal(a, cp.PositionOnA)
	r2Local := worldToLocal(b, cp.PositionOnB)
	normalLocal := mathkernel.RotationMatrix(a.WorldRotation).Transpose().Mul3x1(normalWorld)

	r1World := cp.PositionOnA.Sub(a.WorldPosition)
	r2World := cp.PositionOnB.Sub(b.WorldPosition)
	v1 := a.LinearVelocity.Add(a.AngularVelocity.Cross(r1World))
	v2 := b.LinearVelocity.Add(b.AngularVelocity.Cross(r2World))
	preNormalVel := v1.Sub(v2).Dot(normalWorld)

	return &constraint.Collision{
		E1:                       a.ID,
		E2:                       b.ID,
		R1Local:                  r1Local,
		R2Local:                  r2Local,
		NormalLocalOnE1:          normalLocal,
		PreContactNormalVelocity: preNormalVel,
		StaticFriction:           math.Min(a.StaticFriction, b.StaticFriction),
		DynamicFriction:          math.Min(a.DynamicFriction, b.DynamicFriction),
		Restitution:              math.Min(a.Restitution, b.Restitution),
	}
}

func worldToLocal(b *body.RigidBody, worldPoint mgl64.Vec3) mgl64.Vec3 {
	return mathkernel.RotationMatrix(b.WorldRotation).Transpose().Mul3x1(worldPoint.Sub(b.WorldPosition))
}
