package xpbd

import (
	"github.com/forgephysics/xpbd/body"
	"github.com/go-gl/mathgl/mgl64"
)

// bodyPair is a candidate colliding pair from the broad phase, in
// insertion order so downstream results stay reproducible.
type bodyPair struct {
	a, b *body.RigidBody
}

// broadPhase is an all-pairs AABB overlap test: O(n^2), suitable at the
// scene sizes this engine targets. A pair is worth testing only when at
// least one member can still move — both-fixed, both-asleep, and
// fixed-versus-asleep pairs are skipped.
func broadPhase(bodies []*body.RigidBody) []bodyPair {
	pairs := make([]bodyPair, 0)

	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			a, b := bodies[i], bodies[j]

			if (a.IsFixed() || !a.Active) && (b.IsFixed() || !b.Active) {
				continue
			}

			aMin, aMax := a.WorldAABB()
			bMin, bMax := b.WorldAABB()
			if aabbOverlap(aMin, aMax, bMin, bMax) {
				pairs = append(pairs, bodyPair{a: a, b: b})
			}
		}
	}

	return pairs
}

func aabbOverlap(aMin, aMax, bMin, bMax mgl64.Vec3) bool {
	return aMin[0] <= bMax[0] && aMax[0] >= bMin[0] &&
		aMin[1] <= bMax[1] && aMax[1] >= bMin[1] &&
		aMin[2] <= bMax[2] && aMax[2] >= bMin[2]
}
