// Package manifold builds a stable contact manifold (up to 4 points) from
// two overlapping convex hulls and the separating normal/depth EPA
// recovered. Face contacts clip the incident face's polygon against the
// reference face's side planes with Sutherland-Hodgman and keep the points
// behind the reference plane; edge contacts, where the best separating
// feature on both hulls is an edge, use the closest points between the two
// edge lines instead.
package manifold

import (
	"math"

	"github.com/forgephysics/xpbd/collider"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// MaxContactPoints caps a manifold for solver stability (Erin Catto, GDC 2007).
	MaxContactPoints = 4

	epsilonColinear = 1e-6
	epsilonDistance = 1e-6
	epsilonParallel = 1e-10
	epsilonFeature  = 1e-6
)

// ContactPoint is one point of the manifold: the contact position on each
// hull's surface in world space, and the penetration measured along the
// manifold's shared normal. PositionOnA - PositionOnB equals
// normal * Penetration when the hulls overlap.
type ContactPoint struct {
	PositionOnA mgl64.Vec3
	PositionOnB mgl64.Vec3
	Penetration float64
}

// Generate builds the contact manifold between hull a and hull b given the
// EPA normal (pointing from a toward b) and penetration depth.
func Generate(a, b *collider.Hull, normal mgl64.Vec3, depth float64) []ContactPoint {
	invNormal := normal.Mul(-1)

	support1 := supportIndex(a, normal)
	support2 := supportIndex(b, invNormal)

	face1 := faceMostAligned(a, support1, normal)
	face2 := faceMostAligned(b, support2, invNormal)

	faceDot1 := a.Faces[face1].NormalWorld.Dot(normal)
	faceDot2 := b.Faces[face2].NormalWorld.Dot(invNormal)

	if cp, edgeDot, ok := edgeContact(a, b, support1, support2, normal); ok &&
		edgeDot > faceDot1+epsilonFeature && edgeDot > faceDot2+epsilonFeature {
		return []ContactPoint{cp}
	}

	points := faceContact(a, b, face1, face2, faceDot1 > faceDot2)
	if len(points) == 0 {
		deepest := deepestSupport(b, invNormal)
		points = []ContactPoint{{
			PositionOnA: deepest.Add(normal.Mul(depth)),
			PositionOnB: deepest,
			Penetration: depth,
		}}
	}

	if len(points) > MaxContactPoints {
		points = reduceByDepthAndArea(points)
	}

	return points
}

// faceContact clips the incident face's polygon against the side planes of
// the reference face, keeps the clipped points behind the reference plane,
// and pairs each survivor with its projection onto the reference plane.
func faceContact(a, b *collider.Hull, face1, face2 int, aIsReference bool) []ContactPoint {
	var reference, incident []mgl64.Vec3
	var refNormal mgl64.Vec3
	if aIsReference {
		reference = a.FaceWorldVertices(face1)
		incident = b.FaceWorldVertices(face2)
		refNormal = a.Faces[face1].NormalWorld
	} else {
		reference = b.FaceWorldVertices(face2)
		incident = a.FaceWorldVertices(face1)
		refNormal = b.Faces[face2].NormalWorld
	}
	if len(reference) < 3 || len(incident) < 3 {
		return nil
	}

	clipped := clipAgainstSidePlanes(incident, reference, refNormal)

	refOrigin := reference[0]
	points := make([]ContactPoint, 0, len(clipped))
	for _, p := range clipped {
		// Signed height of the incident point above the reference plane;
		// points at or below the plane are the penetrating contacts.
		height := p.Sub(refOrigin).Dot(refNormal)
		if height > epsilonDistance {
			continue
		}
		onPlane := p.Sub(refNormal.Mul(height))
		pen := math.Max(-height, 0)

		if aIsReference {
			points = append(points, ContactPoint{
				PositionOnA: onPlane,
				PositionOnB: p,
				Penetration: pen,
			})
		} else {
			points = append(points, ContactPoint{
				PositionOnA: p,
				PositionOnB: onPlane,
				Penetration: pen,
			})
		}
	}
	return points
}

// edgeContact finds the pair of edges (one adjacent to each hull's support
// vertex) whose cross-product direction best matches the contact normal,
// and reports the closest points between the two edge lines. The returned
// dot lets the caller compare the edge feature against the face features.
func edgeContact(a, b *collider.Hull, support1, support2 int, normal mgl64.Vec3) (ContactPoint, float64, bool) {
	p1 := a.VerticesWorld[support1]
	p2 := b.VerticesWorld[support2]

	bestDot := math.Inf(-1)
	var bestD1, bestD2 mgl64.Vec3
	found := false

	for _, e1 := range a.Edges {
		n1, ok := edgeNeighbor(e1, support1)
		if !ok {
			continue
		}
		d1 := a.VerticesWorld[n1].Sub(p1)
		for _, e2 := range b.Edges {
			n2, ok := edgeNeighbor(e2, support2)
			if !ok {
				continue
			}
			d2 := b.VerticesWorld[n2].Sub(p2)

			cross := d1.Cross(d2)
			length := cross.Len()
			if length < epsilonColinear {
				continue
			}
			cross = cross.Mul(1.0 / length)

			if d := cross.Dot(normal); d > bestDot {
				bestDot, bestD1, bestD2, found = d, d1, d2, true
			}
			if d := cross.Mul(-1).Dot(normal); d > bestDot {
				bestDot, bestD1, bestD2, found = d, d1, d2, true
			}
		}
	}
	if !found {
		return ContactPoint{}, 0, false
	}

	l1, l2, ok := closestPointsOnLines(p1, bestD1, p2, bestD2)
	if !ok {
		return ContactPoint{}, 0, false
	}

	return ContactPoint{
		PositionOnA: l1,
		PositionOnB: l2,
		Penetration: math.Max(l1.Sub(l2).Dot(normal), 0),
	}, bestDot, true
}

func edgeNeighbor(e collider.Edge, vertex int) (int, bool) {
	switch vertex {
	case e.A:
		return e.B, true
	case e.B:
		return e.A, true
	}
	return 0, false
}

// closestPointsOnLines solves the 2x2 system for the closest points l1, l2
// between the lines p1 + s*d1 and p2 + t*d2. Reports ok=false when the
// lines are parallel.
func closestPointsOnLines(p1, d1, p2, d2 mgl64.Vec3) (l1, l2 mgl64.Vec3, ok bool) {
	a := d1.Dot(d1)
	bb := d1.Dot(d2)
	c := d2.Dot(d2)
	r := p1.Sub(p2)
	d := d1.Dot(r)
	e := d2.Dot(r)

	denom := a*c - bb*bb
	if math.Abs(denom) < epsilonParallel {
		return mgl64.Vec3{}, mgl64.Vec3{}, false
	}

	s := (bb*e - c*d) / denom
	t := (a*e - bb*d) / denom

	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t)), true
}

// clipAgainstSidePlanes runs Sutherland-Hodgman over the incident polygon
// against each side plane of the reference polygon. Side planes stand on
// the reference edges, perpendicular to the reference face, facing inward.
func clipAgainstSidePlanes(incident, reference []mgl64.Vec3, refNormal mgl64.Vec3) []mgl64.Vec3 {
	center := centerOf(reference)
	current := append([]mgl64.Vec3(nil), incident...)

	for i := range reference {
		v1 := reference[i]
		v2 := reference[(i+1)%len(reference)]

		edge := v2.Sub(v1)
		sideNormal := edge.Cross(refNormal)
		length := sideNormal.Len()
		if length < epsilonColinear {
			continue
		}

		sideNormal = sideNormal.Mul(1.0 / length)
		if center.Sub(v1).Dot(sideNormal) < 0 {
			sideNormal = sideNormal.Mul(-1)
		}

		current = clipPolygonAgainstPlane(current, v1, sideNormal)
		if len(current) == 0 {
			break
		}
	}

	return current
}

// clipPolygonAgainstPlane is the Sutherland-Hodgman inner loop: keep points
// on the positive side of (planePoint, planeNormal), inserting the edge
// crossing wherever the polygon enters or exits the half-space.
func clipPolygonAgainstPlane(input []mgl64.Vec3, planePoint, planeNormal mgl64.Vec3) []mgl64.Vec3 {
	if len(input) == 0 {
		return nil
	}

	output := make([]mgl64.Vec3, 0, len(input)+1)

	for i := range input {
		current := input[i]
		next := input[(i+1)%len(input)]

		currentDist := current.Sub(planePoint).Dot(planeNormal)
		nextDist := next.Sub(planePoint).Dot(planeNormal)

		if currentDist >= -epsilonDistance {
			output = append(output, current)
			if nextDist < -epsilonDistance {
				output = append(output, lineIntersectPlane(current, next, planePoint, planeNormal))
			}
		} else if nextDist >= -epsilonDistance {
			output = append(output, lineIntersectPlane(current, next, planePoint, planeNormal))
		}
	}

	return output
}

// reduceByDepthAndArea keeps the deepest point, then greedily the three
// points that maximize the enclosed contact area, bounding manifold size
// without losing the contact polygon's extent.
func reduceByDepthAndArea(points []ContactPoint) []ContactPoint {
	deepest := 0
	for i, p := range points {
		if p.Penetration > points[deepest].Penetration {
			deepest = i
		}
	}

	used := map[int]bool{deepest: true}
	p0 := points[deepest].PositionOnB

	// Farthest from the deepest point.
	second := pickBest(points, used, func(q ContactPoint) float64 {
		return q.PositionOnB.Sub(p0).LenSqr()
	})
	used[second] = true
	p1 := points[second].PositionOnB

	// Largest triangle with the first two.
	third := pickBest(points, used, func(q ContactPoint) float64 {
		return p1.Sub(p0).Cross(q.PositionOnB.Sub(p0)).Len()
	})
	used[third] = true
	p2 := points[third].PositionOnB

	// Largest area added to any edge of that triangle.
	fourth := pickBest(points, used, func(q ContactPoint) float64 {
		qp := q.PositionOnB
		area := p1.Sub(p0).Cross(qp.Sub(p0)).Len()
		if a := p2.Sub(p1).Cross(qp.Sub(p1)).Len(); a > area {
			area = a
		}
		if a := p0.Sub(p2).Cross(qp.Sub(p2)).Len(); a > area {
			area = a
		}
		return area
	})

	return []ContactPoint{points[deepest], points[second], points[third], points[fourth]}
}

// pickBest returns the index of the unused point maximizing score, the
// lowest index winning ties so reduction stays deterministic.
func pickBest(points []ContactPoint, used map[int]bool, score func(ContactPoint) float64) int {
	best, bestScore := -1, math.Inf(-1)
	for i, p := range points {
		if used[i] {
			continue
		}
		if s := score(p); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func supportIndex(h *collider.Hull, direction mgl64.Vec3) int {
	best := 0
	bestDot := h.VerticesWorld[0].Dot(direction)
	for i, v := range h.VerticesWorld[1:] {
		if d := v.Dot(direction); d > bestDot {
			bestDot = d
			best = i + 1
		}
	}
	return best
}

// faceMostAligned returns the face adjacent to the support vertex whose
// outward world normal best matches direction.
func faceMostAligned(h *collider.Hull, supportIdx int, direction mgl64.Vec3) int {
	best := 0
	bestDot := math.Inf(-1)
	for fi, f := range h.Faces {
		adjacent := false
		for _, vi := range f.Indices {
			if vi == supportIdx {
				adjacent = true
				break
			}
		}
		if !adjacent {
			continue
		}
		if d := f.NormalWorld.Dot(direction); d > bestDot {
			bestDot = d
			best = fi
		}
	}
	return best
}

func deepestSupport(h *collider.Hull, direction mgl64.Vec3) mgl64.Vec3 {
	return h.VerticesWorld[supportIndex(h, direction)]
}

func centerOf(points []mgl64.Vec3) mgl64.Vec3 {
	sum := mgl64.Vec3{}
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1.0 / float64(len(points)))
}

func lineIntersectPlane(p1, p2, planePoint, planeNormal mgl64.Vec3) mgl64.Vec3 {
	dir := p2.Sub(p1)
	dist := p1.Sub(planePoint).Dot(planeNormal)
	denom := dir.Dot(planeNormal)

	if math.Abs(denom) < epsilonParallel {
		return p1
	}

	t := -dist / denom
	t = math.Max(0, math.Min(1, t))
	return p1.Add(dir.Mul(t))
}
