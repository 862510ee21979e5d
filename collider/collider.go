// Package collider implements the convex-hull collision shape: a hull is a
// set of local-space vertices, planar faces (outward normal + ordered
// polygon indices), and edges, with a cached world-space transform
// refreshed once per frame by Update.
package collider

import (
	"fmt"
	"math"

	"github.com/forgephysics/xpbd/errs"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	planarityTolerance = 1e-4
	weldTolerance      = 1e-9
)

// Face is a planar polygon of the hull: an outward unit normal (local and
// cached world space) and the ordered vertex indices that bound it.
type Face struct {
	NormalLocal mgl64.Vec3
	NormalWorld mgl64.Vec3
	Indices     []int
}

// Edge references two hull vertices by index.
type Edge struct {
	A, B int
}

// Hull is a convex collider in body-local coordinates with a cached
// world-space copy refreshed by Update.
type Hull struct {
	VerticesLocal []mgl64.Vec3
	VerticesWorld []mgl64.Vec3
	Faces         []Face
	Edges         []Edge
}

// NewHull builds a convex hull from a deduplicated vertex list, per-face
// vertex index polygons, and one outward normal per face — the shape a
// mesh-ingestion step would produce from parsed OBJ-like data. It
// validates structural invariants: at least 4 vertices, no duplicate
// indices within a face, and every face vertex coplanar with its stated
// normal.
func NewHull(vertices []mgl64.Vec3, faces [][]int, faceNormals []mgl64.Vec3) (*Hull, error) {
	if len(vertices) < 4 {
		return nil, fmt.Errorf("%w: hull has %d vertices, need at least 4", errs.ErrInvalidGeometry, len(vertices))
	}
	if len(faces) != len(faceNormals) {
		return nil, fmt.Errorf("%w: %d faces but %d normals", errs.ErrInvalidGeometry, len(faces), len(faceNormals))
	}

	uniqueVerts, remap := weldVertices(vertices)

	h := &Hull{
		VerticesLocal: uniqueVerts,
		VerticesWorld: make([]mgl64.Vec3, len(uniqueVerts)),
	}
	copy(h.VerticesWorld, uniqueVerts)

	edgeSeen := make(map[[2]int]bool)

	for fi, indices := range faces {
		if len(indices) < 3 {
			return nil, fmt.Errorf("%w: face %d has fewer than 3 vertices", errs.ErrInvalidGeometry, fi)
		}

		remapped := make([]int, len(indices))
		seen := make(map[int]bool, len(indices))
		for i, vi := range indices {
			if vi < 0 || vi >= len(remap) {
				return nil, fmt.Errorf("%w: face %d references out-of-range vertex %d", errs.ErrInvalidGeometry, fi, vi)
			}
			mapped := remap[vi]
			if seen[mapped] {
				return nil, fmt.Errorf("%w: face %d has a duplicate vertex index", errs.ErrInvalidGeometry, fi)
			}
			seen[mapped] = true
			remapped[i] = mapped
		}

		normal := faceNormals[fi].Normalize()
		origin := h.VerticesLocal[remapped[0]]
		for _, vi := range remapped[1:] {
			d := h.VerticesLocal[vi].Sub(origin).Dot(normal)
			if math.Abs(d) > planarityTolerance {
				return nil, fmt.Errorf("%w: face %d is not planar (deviation %.6g)", errs.ErrInvalidGeometry, fi, d)
			}
		}

		h.Faces = append(h.Faces, Face{NormalLocal: normal, NormalWorld: normal, Indices: remapped})

		for i := range remapped {
			a, b := remapped[i], remapped[(i+1)%len(remapped)]
			key := [2]int{a, b}
			if a > b {
				key = [2]int{b, a}
			}
			if !edgeSeen[key] {
				edgeSeen[key] = true
				h.Edges = append(h.Edges, Edge{A: key[0], B: key[1]})
			}
		}
	}

	return h, nil
}

// NewBox builds an axis-aligned box hull from its half-extents: 8 corner
// vertices, 6 quad faces with their outward normals.
func NewBox(halfExtents mgl64.Vec3) (*Hull, error) {
	hx, hy, hz := halfExtents.X(), halfExtents.Y(), halfExtents.Z()

	vertices := []mgl64.Vec3{
		{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {-hx, hy, -hz},
		{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz},
	}

	faces := [][]int{
		{0, 3, 2, 1}, // -Z
		{4, 5, 6, 7}, // +Z
		{0, 1, 5, 4}, // -Y
		{3, 7, 6, 2}, // +Y
		{0, 4, 7, 3}, // -X
		{1, 2, 6, 5}, // +X
	}
	normals := []mgl64.Vec3{
		{0, 0, -1}, {0, 0, 1},
		{0, -1, 0}, {0, 1, 0},
		{-1, 0, 0}, {1, 0, 0},
	}

	return NewHull(vertices, faces, normals)
}

// BoxInertia returns the body-local inertia tensor of a uniform-density box
// of the given half-extents and mass.
func BoxInertia(mass float64, halfExtents mgl64.Vec3) mgl64.Mat3 {
	x, y, z := halfExtents.X()*2, halfExtents.Y()*2, halfExtents.Z()*2
	factor := mass / 12.0
	return mgl64.Mat3{
		factor * (y*y + z*z), 0, 0,
		0, factor * (x*x + z*z), 0,
		0, 0, factor * (x*x + y*y),
	}
}

// weldVertices merges vertices whose squared distance is below weldTolerance and
// returns the deduplicated list plus a remap from original index to
// deduplicated index.
func weldVertices(vertices []mgl64.Vec3) ([]mgl64.Vec3, []int) {
	unique := make([]mgl64.Vec3, 0, len(vertices))
	remap := make([]int, len(vertices))

	for i, v := range vertices {
		found := -1
		for j, u := range unique {
			if v.Sub(u).LenSqr() < weldTolerance {
				found = j
				break
			}
		}
		if found == -1 {
			unique = append(unique, v)
			found = len(unique) - 1
		}
		remap[i] = found
	}

	return unique, remap
}

// Update refreshes the cached world-space vertices and face normals given
// the owning entity's current world transform, in O(V+F).
func (h *Hull) Update(worldPosition mgl64.Vec3, worldRotation mgl64.Quat) {
	for i, v := range h.VerticesLocal {
		h.VerticesWorld[i] = worldPosition.Add(worldRotation.Rotate(v))
	}
	for i := range h.Faces {
		h.Faces[i].NormalWorld = worldRotation.Rotate(h.Faces[i].NormalLocal)
	}
}

// WorldAABB returns the axis-aligned bounding box of the cached world-space
// vertices, used by the broad phase.
func (h *Hull) WorldAABB() (min, max mgl64.Vec3) {
	min, max = h.VerticesWorld[0], h.VerticesWorld[0]
	for _, v := range h.VerticesWorld[1:] {
		for axis := 0; axis < 3; axis++ {
			if v[axis] < min[axis] {
				min[axis] = v[axis]
			}
			if v[axis] > max[axis] {
				max[axis] = v[axis]
			}
		}
	}
	return min, max
}

// SupportLocal returns the local-space vertex that is furthest along
// direction (also expressed in local space) — the fundamental GJK/EPA
// support query.
func (h *Hull) SupportLocal(direction mgl64.Vec3) mgl64.Vec3 {
	best := h.VerticesLocal[0]
	bestDot := best.Dot(direction)
	for _, v := range h.VerticesLocal[1:] {
		d := v.Dot(direction)
		if d > bestDot {
			bestDot = d
			best = v
		}
	}
	return best
}

// ReferenceFace returns the index of the face whose outward world normal
// is most anti-parallel to normal.
func (h *Hull) ReferenceFace(normal mgl64.Vec3) int {
	best := 0
	bestDot := math.Inf(1)
	for i, f := range h.Faces {
		d := normal.Dot(f.NormalWorld)
		if d < bestDot {
			bestDot = d
			best = i
		}
	}
	return best
}

// IncidentFace returns the index of the face whose outward world normal
// is most aligned with normal.
func (h *Hull) IncidentFace(normal mgl64.Vec3) int {
	best := 0
	bestDot := math.Inf(-1)
	for i, f := range h.Faces {
		d := normal.Dot(f.NormalWorld)
		if d > bestDot {
			bestDot = d
			best = i
		}
	}
	return best
}

// FaceWorldVertices returns the world-space polygon vertices of face i, in
// winding order.
func (h *Hull) FaceWorldVertices(i int) []mgl64.Vec3 {
	face := h.Faces[i]
	pts := make([]mgl64.Vec3, len(face.Indices))
	for k, vi := range face.Indices {
		pts[k] = h.VerticesWorld[vi]
	}
	return pts
}
