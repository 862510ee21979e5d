package constraint

import (
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/forgephysics/xpbd/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// Positional pins a point on e1 to a point on e2, offset by DistanceLocal
// (expressed in e1's local frame). Zero compliance makes it a hard
// attachment; non-zero compliance gives a spring.
type Positional struct {
	E1, E2        int
	R1Local       mgl64.Vec3
	R2Local       mgl64.Vec3
	DistanceLocal mgl64.Vec3
	Compliance    float64
	Lambda        float64
}

func (p *Positional) ResetLambda() {
	p.Lambda = 0
}

func (p *Positional) SolvePosition(reg *registry.Registry, h float64) {
	b1, b2, ok := resolvePair(reg, p.E1, p.E2)
	if !ok {
		return
	}

	r1 := mathkernel.RotationMatrix(b1.WorldRotation).Mul3x1(p.R1Local)
	r2 := mathkernel.RotationMatrix(b2.WorldRotation).Mul3x1(p.R2Local)

	p1 := b1.WorldPosition.Add(r1)
	p2 := b2.WorldPosition.Add(r2)
	dWorld := mathkernel.RotationMatrix(b1.WorldRotation).Mul3x1(p.DistanceLocal)

	delta := p1.Sub(p2).Sub(dWorld)
	c := delta.Len()
	if c < mathkernel.EpsilonConstraint {
		return
	}
	n := delta.Mul(1.0 / c)

	w := generalizedInverseMass(b1, b2, r1, r2, n)
	if w == 0 {
		return
	}

	dLambda := deltaLambda(c, p.Compliance, p.Lambda, w, h)
	p.Lambda += dLambda

	applyPositionalCorrection(b1, b2, r1, r2, n, dLambda)
}
