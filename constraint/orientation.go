package constraint

import (
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/forgephysics/xpbd/registry"
)

// MutualOrientation drives rotation(e2) == rotation(e1).
type MutualOrientation struct {
	E1, E2     int
	Compliance float64
	Lambda     float64
}

func (m *MutualOrientation) ResetLambda() {
	m.Lambda = 0
}

func (m *MutualOrientation) SolvePosition(reg *registry.Registry, h float64) {
	b1, b2, ok := resolvePair(reg, m.E1, m.E2)
	if !ok {
		return
	}

	dq := b1.WorldRotation.Mul(b2.WorldRotation.Conjugate())
	if dq.V.Len() < mathkernel.EpsilonConstraint {
		return
	}

	n := dq.V.Normalize()
	c := 2 * dq.V.Len()
	if dq.W < 0 {
		c = -c
		n = n.Mul(-1)
	}

	w := generalizedInverseMassAngular(b1, b2, n)
	if w == 0 {
		return
	}

	dLambda := deltaLambda(c, m.Compliance, m.Lambda, w, h)
	m.Lambda += dLambda

	applyOrientationCorrection(b1, b2, n, dLambda)
}
