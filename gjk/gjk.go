// Package gjk implements the Gilbert-Johnson-Keerthi (GJK) algorithm for
// collision detection between convex hulls.
//
// GJK detects whether two convex shapes overlap by testing if their
// Minkowski difference contains the origin. The algorithm builds a simplex
// incrementally, converging toward the origin in typically 3-6 iterations.
//
// The support query is a linear scan over a collider.Hull's cached
// world-space vertex list, rather than an analytic per-shape formula, so
// the same code handles any convex hull. Simplex reduction works by
// locating the closest point of the current simplex to the origin: each
// refinement step classifies the origin against the simplex's Voronoi
// regions, keeps the vertices of the winning feature, and re-aims the
// search from that feature's closest point.
//
// References:
//   - Gilbert, Johnson, Keerthi: "A Fast Procedure for Computing the Distance
//     Between Complex Objects in Three-Dimensional Space" (1988)
//   - Ericson: "Real-Time Collision Detection" (2005), ch. 5.1.5
package gjk

import (
	"math"

	"github.com/forgephysics/xpbd/collider"
	"github.com/forgephysics/xpbd/errs"
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultMaxIterations is the GJK iteration safety cap. Exceeding it
// without resolving is treated as no contact, the same as a confirmed
// separation.
const DefaultMaxIterations = 64

// Simplex represents a set of 1-4 points in the Minkowski difference space.
// The simplex evolves during GJK iterations; the most recent support point
// always sits at Points[Count-1]. Size progression: 1 point -> 2 (line) ->
// 3 (triangle) -> 4 (tetrahedron).
type Simplex struct {
	Points [4]mgl64.Vec3
	Count  int
}

// set replaces the simplex contents, the most recent support point last.
func (s *Simplex) set(points ...mgl64.Vec3) {
	s.Count = copy(s.Points[:], points)
}

// Support returns the hull's world-space vertex furthest along direction —
// the fundamental query GJK needs from any convex shape.
func Support(h *collider.Hull, direction mgl64.Vec3) mgl64.Vec3 {
	best := h.VerticesWorld[0]
	bestDot := best.Dot(direction)
	for _, v := range h.VerticesWorld[1:] {
		d := v.Dot(direction)
		if d > bestDot {
			bestDot = d
			best = v
		}
	}
	return best
}

// MinkowskiSupport computes a support point in the Minkowski difference
// (A - B): furthestPoint(A, direction) - furthestPoint(B, -direction).
func MinkowskiSupport(a, b *collider.Hull, direction mgl64.Vec3) mgl64.Vec3 {
	supportA := Support(a, direction)
	supportB := Support(b, direction.Mul(-1))
	return supportA.Sub(supportB)
}

func centroid(h *collider.Hull) mgl64.Vec3 {
	sum := mgl64.Vec3{}
	for _, v := range h.VerticesWorld {
		sum = sum.Add(v)
	}
	return sum.Mul(1.0 / float64(len(h.VerticesWorld)))
}

// GJK performs collision detection between two convex hulls a and b.
//
// Algorithm overview:
//  1. Start with an initial search direction (centroid of B minus centroid of A)
//  2. Get the first support point in the Minkowski difference
//  3. Iteratively refine the simplex toward the origin
//  4. If the origin is contained -> collision
//  5. If the origin cannot be reached -> no collision
//
// maxIter caps the iteration count (DefaultMaxIterations if <= 0). On
// intersection the simplex is a tetrahedron enclosing the origin, ready
// for EPA to expand — except when the hulls touch exactly at a support
// point, where a smaller simplex comes back and EPA's degenerate path
// takes over. Hitting the iteration cap without resolving returns no
// intersection plus errs.ErrGJKNoConvergence, which callers treat the
// same as a confirmed separation.
func GJK(a, b *collider.Hull, maxIter int) (bool, Simplex, error) {
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var simplex Simplex

	direction := centroid(b).Sub(centroid(a))
	if direction.LenSqr() < mathkernel.EpsilonZeroVector {
		direction = mgl64.Vec3{1, 0, 0}
	}

	simplex.Points[0] = MinkowskiSupport(a, b, direction)
	simplex.Count = 1

	direction = simplex.Points[0].Mul(-1)

	if direction.LenSqr() < mathkernel.EpsilonZeroVector {
		return true, simplex, nil // shapes touching exactly at a point
	}

	for i := 0; i < maxIter; i++ {
		newPoint := MinkowskiSupport(a, b, direction)

		// Early exit: the new point doesn't pass the origin in the search
		// direction, so the origin cannot be reached — no collision.
		if newPoint.Dot(direction) <= 0 {
			return false, simplex, nil
		}

		simplex.Points[simplex.Count] = newPoint
		simplex.Count++

		if refineSimplex(&simplex, &direction) {
			return true, simplex, nil
		}
	}

	return false, simplex, errs.ErrGJKNoConvergence
}

// refineSimplex reduces the simplex to the feature nearest the origin and
// re-aims the search direction at the origin from that feature. Reports
// true when the origin is enclosed or coincides with a kept vertex.
func refineSimplex(s *Simplex, direction *mgl64.Vec3) bool {
	switch s.Count {
	case 2:
		return refineSegment(s, direction)
	case 3:
		return refineTriangle(s, direction)
	case 4:
		return refineTetrahedron(s, direction)
	}
	return false
}

// aimAtOrigin points the search direction from the feature's closest point
// at the origin, reporting true when the two coincide.
func aimAtOrigin(closest mgl64.Vec3, direction *mgl64.Vec3) bool {
	if closest.LenSqr() < mathkernel.EpsilonZeroVector {
		return true
	}
	*direction = closest.Mul(-1)
	return false
}

// refineSegment projects the origin onto the segment's supporting line and
// keeps whichever feature — an endpoint or the segment interior — the
// projection parameter lands on.
func refineSegment(s *Simplex, direction *mgl64.Vec3) bool {
	tail := s.Points[0]
	head := s.Points[1] // most recent support

	span := tail.Sub(head)
	spanLen2 := span.LenSqr()
	if spanLen2 < mathkernel.EpsilonZeroVector {
		// Coincident supports; fall back to a single point.
		s.set(head)
		return aimAtOrigin(head, direction)
	}

	t := -head.Dot(span) / spanLen2
	switch {
	case t <= 0:
		s.set(head)
		return aimAtOrigin(head, direction)
	case t >= 1:
		s.set(tail)
		return aimAtOrigin(tail, direction)
	}

	closest := head.Add(span.Mul(t))
	if closest.LenSqr() < mathkernel.EpsilonZeroVector {
		// The origin sits exactly on the segment interior. Don't stop at
		// a 2-point simplex EPA can't expand — step off the line so the
		// next support grows a triangle.
		*direction = perpendicularTo(span)
		return false
	}
	*direction = closest.Mul(-1)
	return false
}

// perpendicularTo returns an arbitrary vector orthogonal to v.
func perpendicularTo(v mgl64.Vec3) mgl64.Vec3 {
	axis := mgl64.Vec3{1, 0, 0}
	if math.Abs(v.X()) > math.Abs(v.Y()) {
		axis = mgl64.Vec3{0, 1, 0}
	}
	return v.Cross(axis)
}

// refineTriangle classifies the origin against the triangle's seven
// Voronoi regions — three vertices, three edges, the face — using the
// projection products of the closest-point-on-triangle test (Ericson
// 5.1.5), keeps the vertices of the winning region, and aims the search
// at the origin from its closest point.
func refineTriangle(s *Simplex, direction *mgl64.Vec3) bool {
	a := s.Points[2] // most recent support
	b := s.Points[1]
	c := s.Points[0]

	ab := b.Sub(a)
	ac := c.Sub(a)

	if ab.Cross(ac).LenSqr() < mathkernel.EpsilonZeroVector {
		// Collinear triangle; retry as a segment on the newest edge.
		s.set(b, a)
		return refineSegment(s, direction)
	}

	ao := a.Mul(-1)
	d1 := ab.Dot(ao)
	d2 := ac.Dot(ao)
	if d1 <= 0 && d2 <= 0 {
		s.set(a)
		return aimAtOrigin(a, direction)
	}

	bo := b.Mul(-1)
	d3 := ab.Dot(bo)
	d4 := ac.Dot(bo)
	if d3 >= 0 && d4 <= d3 {
		s.set(b)
		return aimAtOrigin(b, direction)
	}

	if vc := d1*d4 - d3*d2; vc <= 0 && d1 >= 0 && d3 <= 0 {
		t := d1 / (d1 - d3)
		if closest := a.Add(ab.Mul(t)); closest.LenSqr() >= mathkernel.EpsilonZeroVector {
			s.set(b, a)
			*direction = closest.Mul(-1)
			return false
		}
		return aimOffPlane(ab.Cross(ac), ao, direction)
	}

	co := c.Mul(-1)
	d5 := ab.Dot(co)
	d6 := ac.Dot(co)
	if d6 >= 0 && d5 <= d6 {
		s.set(c)
		return aimAtOrigin(c, direction)
	}

	if vb := d5*d2 - d1*d6; vb <= 0 && d2 >= 0 && d6 <= 0 {
		t := d2 / (d2 - d6)
		if closest := a.Add(ac.Mul(t)); closest.LenSqr() >= mathkernel.EpsilonZeroVector {
			s.set(c, a)
			*direction = closest.Mul(-1)
			return false
		}
		return aimOffPlane(ab.Cross(ac), ao, direction)
	}

	if va := d3*d6 - d5*d4; va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		t := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		if closest := b.Add(c.Sub(b).Mul(t)); closest.LenSqr() >= mathkernel.EpsilonZeroVector {
			s.set(c, b)
			*direction = closest.Mul(-1)
			return false
		}
		return aimOffPlane(ab.Cross(ac), ao, direction)
	}

	// The origin projects inside the face: keep all three points and
	// search along the face normal on the origin's side.
	return aimOffPlane(ab.Cross(ac), ao, direction)
}

// aimOffPlane sends the search along the triangle normal on the origin's
// side. An origin lying exactly in the plane (or on a triangle edge) keeps
// searching too rather than declaring enclosure — the tetrahedron step is
// the one that decides, so EPA always receives a volume to expand.
func aimOffPlane(n, ao mgl64.Vec3, direction *mgl64.Vec3) bool {
	if n.Dot(ao) < 0 {
		n = n.Mul(-1)
	}
	*direction = n
	return false
}

// refineTetrahedron walks the three faces that contain the newest vertex
// (the face opposite it faced away from the new support by construction),
// orienting each face plane away from its opposite vertex. The first
// plane the origin is beyond demotes the simplex to that face's triangle;
// if no plane separates, the origin is enclosed.
func refineTetrahedron(s *Simplex, direction *mgl64.Vec3) bool {
	a := s.Points[3] // most recent support
	b := s.Points[2]
	c := s.Points[1]
	d := s.Points[0]

	faces := [3][3]mgl64.Vec3{
		{a, b, c},
		{a, c, d},
		{a, d, b},
	}
	opposite := [3]mgl64.Vec3{d, b, c}

	for i, f := range faces {
		n := f[1].Sub(f[0]).Cross(f[2].Sub(f[0]))
		if n.LenSqr() < mathkernel.EpsilonZeroVector {
			// Flat tetrahedron; re-run the degenerate face as a triangle.
			s.set(f[2], f[1], f[0])
			return refineTriangle(s, direction)
		}
		if n.Dot(opposite[i].Sub(f[0])) > 0 {
			n = n.Mul(-1)
		}
		if n.Dot(f[0].Mul(-1)) > 0 {
			s.set(f[2], f[1], f[0])
			return refineTriangle(s, direction)
		}
	}

	return true
}
