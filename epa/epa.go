// Package epa implements the Expanding Polytope Algorithm: given two
// overlapping convex hulls and the terminal tetrahedron GJK left behind,
// it expands a polytope toward the origin of the Minkowski difference to
// recover the minimum translation vector — contact normal and penetration
// depth. Manifold construction from that normal/depth lives one layer up,
// in the manifold package.
//
// References:
//   - Van den Bergen: "Proximity Queries and Penetration Depth Computation
//     on 3D Game Objects" (2001)
package epa

import (
	"fmt"
	"math"

	"github.com/forgephysics/xpbd/collider"
	"github.com/forgephysics/xpbd/errs"
	"github.com/forgephysics/xpbd/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxIterations limits polytope expansion.
	MaxIterations = 32

	// ConvergenceTolerance: EPA stops once a new support point improves the
	// closest-face distance by less than this.
	ConvergenceTolerance = 1e-3

	// minFaceDistance is the minimum trusted face distance; faces closer to
	// or behind the origin are discarded as degenerate.
	minFaceDistance = 1e-4

	// degeneratePenetrationEstimate is the fallback depth reported when GJK
	// handed over fewer than 2 simplex points (a touching/near-degenerate
	// contact EPA can't properly expand).
	degeneratePenetrationEstimate = 0.01
)

// Result is the minimum translation vector EPA recovers: Normal points
// from hull a toward hull b (the separation direction), Depth is always
// non-negative.
type Result struct {
	Normal mgl64.Vec3
	Depth  float64
}

// Resolve computes the penetration depth and contact normal for two
// overlapping hulls, given the tetrahedron GJK produced, using the
// package defaults for iteration cap and convergence tolerance. On
// exceeding the cap without converging it returns errs.ErrEPANoConvergence;
// the caller treats that as "no contact this frame", not a fatal error.
func Resolve(a, b *collider.Hull, simplex gjk.Simplex) (Result, error) {
	return ResolveWithLimits(a, b, simplex, MaxIterations, ConvergenceTolerance)
}

// ResolveWithLimits is Resolve with caller-supplied iteration cap and
// convergence tolerance, for callers that want to override the package
// defaults.
func ResolveWithLimits(a, b *collider.Hull, simplex gjk.Simplex, maxIterations int, tolerance float64) (Result, error) {
	if simplex.Count < 4 {
		return degenerateResult(a, b, simplex), nil
	}

	builder := polytopeBuilderPool.Get().(*PolytopeBuilder)
	builder.Reset()
	defer polytopeBuilderPool.Put(builder)

	if err := builder.BuildInitialFaces(&simplex); err != nil {
		return Result{}, fmt.Errorf("epa: %w", err)
	}

	for i := 0; i < maxIterations; i++ {
		if len(builder.Faces()) == 0 {
			break
		}

		closestIdx := builder.FindClosestFaceIndex()
		closest := builder.Faces()[closestIdx]

		if closest.Distance < minFaceDistance {
			builder.RemoveFaceAt(closestIdx)
			continue
		}

		support := gjk.MinkowskiSupport(a, b, closest.Normal)
		distance := support.Dot(closest.Normal)

		if distance-closest.Distance < tolerance {
			return Result{Normal: closest.Normal, Depth: closest.Distance}, nil
		}

		builder.AddPointAndRebuildFaces(support, closestIdx)
	}

	return Result{}, fmt.Errorf("%w: epa exceeded %d iterations", errs.ErrEPANoConvergence, maxIterations)
}

// degenerateResult estimates a normal/depth when GJK's terminal simplex
// has fewer than 4 points — rare, but a valid separating axis still needs
// to come out of it rather than failing the contact outright.
func degenerateResult(a, b *collider.Hull, simplex gjk.Simplex) Result {
	if simplex.Count >= 2 {
		p0, p1 := simplex.Points[0], simplex.Points[1]
		d0 := math.Sqrt(p0.Dot(p0))
		d1 := math.Sqrt(p1.Dot(p1))

		if d0 < d1 {
			return Result{Normal: p0.Normalize(), Depth: d0}
		}
		return Result{Normal: p1.Normalize(), Depth: d1}
	}

	normal := centroid(b).Sub(centroid(a))
	length := normal.Len()
	if length < normalSnapThreshold {
		normal = mgl64.Vec3{0, 1, 0}
	} else {
		normal = normal.Mul(1.0 / length)
	}

	return Result{Normal: normal, Depth: degeneratePenetrationEstimate}
}

func centroid(h *collider.Hull) mgl64.Vec3 {
	sum := mgl64.Vec3{}
	for _, v := range h.VerticesWorld {
		sum = sum.Add(v)
	}
	return sum.Mul(1.0 / float64(len(h.VerticesWorld)))
}
