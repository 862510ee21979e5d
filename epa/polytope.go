package epa

import (
	"fmt"
	"math"
	"sync"

	"github.com/forgephysics/xpbd/gjk"
	"github.com/go-gl/mathgl/mgl64"
)

const polytopeInitialCapacity = 16

// normalSnapThreshold clamps near-zero normal components to exactly zero,
// preventing floating-point jitter on axis-aligned contacts.
const normalSnapThreshold = 1e-8

// PolytopeBuilder holds the dynamic buffers EPA's polytope expansion needs.
// Pooled via polytopeBuilderPool to keep the steady-state hot path free of
// per-call allocation.
type PolytopeBuilder struct {
	faces          []Face
	uniquePoints   []mgl64.Vec3
	edges          []edgeEntry
	visibleIndices []int
}

// edgeEntry is an edge with an occurrence count for boundary detection: an
// edge shared by exactly one visible face (count == 1) bounds the visible
// region and gets a new face to the inserted support point.
type edgeEntry struct {
	A, B  mgl64.Vec3
	Count int
}

var polytopeBuilderPool = sync.Pool{
	New: func() interface{} {
		return &PolytopeBuilder{
			faces:          make([]Face, 0, polytopeInitialCapacity),
			uniquePoints:   make([]mgl64.Vec3, 0, polytopeInitialCapacity),
			edges:          make([]edgeEntry, 0, polytopeInitialCapacity),
			visibleIndices: make([]int, 0, polytopeInitialCapacity),
		}
	},
}

// Reset clears the builder's slices for reuse from the pool.
func (b *PolytopeBuilder) Reset() {
	b.faces = b.faces[:0]
	b.uniquePoints = b.uniquePoints[:0]
	b.edges = b.edges[:0]
	b.visibleIndices = b.visibleIndices[:0]
}

// BuildInitialFaces turns GJK's terminal tetrahedron simplex into the
// starting polytope: 4 outward-facing triangles, one opposite each vertex.
func (b *PolytopeBuilder) BuildInitialFaces(simplex *gjk.Simplex) error {
	if simplex.Count != 4 {
		return fmt.Errorf("epa: invalid simplex count %d, expected 4", simplex.Count)
	}

	p0, p1, p2, p3 := simplex.Points[0], simplex.Points[1], simplex.Points[2], simplex.Points[3]

	candidates := [4]Face{
		b.createFaceOutward(p0, p1, p2, p3),
		b.createFaceOutward(p0, p2, p3, p1),
		b.createFaceOutward(p0, p3, p1, p2),
		b.createFaceOutward(p1, p3, p2, p0),
	}

	for i := range candidates {
		if candidates[i].Distance >= minFaceDistance {
			b.faces = append(b.faces, candidates[i])
		}
	}

	if len(b.faces) < 3 {
		b.faces = b.faces[:0]
		b.faces = append(b.faces, candidates[:]...)
	}

	return nil
}

// createFaceOutward builds a triangle's Face, orienting its normal away
// from oppositePoint and ensuring a positive distance-to-origin.
func (b *PolytopeBuilder) createFaceOutward(p0, p1, p2, oppositePoint mgl64.Vec3) Face {
	var face Face
	face.Points = [3]mgl64.Vec3{p0, p1, p2}

	edge1 := p1.Sub(p0)
	edge2 := p2.Sub(p0)
	normal := edge1.Cross(edge2)

	length := math.Sqrt(normal.Dot(normal))
	if length < 1e-8 {
		face.Normal = mgl64.Vec3{0, 1, 0}
		face.Distance = minFaceDistance
		return face
	}
	normal = normal.Mul(1.0 / length)

	if normal.Dot(oppositePoint.Sub(p0)) > 0 {
		normal = normal.Mul(-1)
	}

	distance := p0.Dot(normal)
	if distance < 0 {
		normal = normal.Mul(-1)
		distance = -distance
	}
	if distance < minFaceDistance {
		distance = minFaceDistance
	}

	face.Normal = snapNormalToAxis(normal)
	face.Distance = distance
	return face
}

// snapNormalToAxis zeroes components below normalSnapThreshold and
// renormalizes, stabilizing axis-aligned contact normals.
func snapNormalToAxis(normal mgl64.Vec3) mgl64.Vec3 {
	x, y, z := normal[0], normal[1], normal[2]
	if math.Abs(x) < normalSnapThreshold {
		x = 0
	}
	if math.Abs(y) < normalSnapThreshold {
		y = 0
	}
	if math.Abs(z) < normalSnapThreshold {
		z = 0
	}

	clamped := mgl64.Vec3{x, y, z}
	length := math.Sqrt(clamped.Dot(clamped))
	if length < 1e-8 {
		return mgl64.Vec3{0, 1, 0}
	}
	return clamped.Mul(1.0 / length)
}

// FindClosestFaceIndex returns the index of the face nearest the origin,
// or -1 if the polytope is empty.
func (b *PolytopeBuilder) FindClosestFaceIndex() int {
	if len(b.faces) == 0 {
		return -1
	}
	closest := 0
	minDist := b.faces[0].Distance
	for i := 1; i < len(b.faces); i++ {
		if b.faces[i].Distance < minDist {
			closest = i
			minDist = b.faces[i].Distance
		}
	}
	return closest
}

// Faces exposes the current polytope faces (read-only use by the caller).
func (b *PolytopeBuilder) Faces() []Face {
	return b.faces
}

// RemoveFaceAt drops the face at index i, used when it's found to be too
// close to or behind the origin to trust.
func (b *PolytopeBuilder) RemoveFaceAt(i int) {
	b.faces = append(b.faces[:i], b.faces[i+1:]...)
}

func (b *PolytopeBuilder) calculateCentroid() mgl64.Vec3 {
	b.uniquePoints = b.uniquePoints[:0]

	for i := range b.faces {
		for j := 0; j < 3; j++ {
			point := b.faces[i].Points[j]
			idx := b.findPointInsertionIndex(point)
			if idx < len(b.uniquePoints) && vec3Equal(b.uniquePoints[idx], point) {
				continue
			}
			b.uniquePoints = append(b.uniquePoints, mgl64.Vec3{})
			copy(b.uniquePoints[idx+1:], b.uniquePoints[idx:])
			b.uniquePoints[idx] = point
		}
	}

	if len(b.uniquePoints) == 0 {
		return mgl64.Vec3{}
	}

	sum := mgl64.Vec3{}
	for _, p := range b.uniquePoints {
		sum = sum.Add(p)
	}
	return sum.Mul(1.0 / float64(len(b.uniquePoints)))
}

func (b *PolytopeBuilder) findPointInsertionIndex(point mgl64.Vec3) int {
	left, right := 0, len(b.uniquePoints)
	for left < right {
		mid := (left + right) / 2
		if compareVec3(b.uniquePoints[mid], point) < 0 {
			left = mid + 1
		} else {
			right = mid
		}
	}
	return left
}

func (b *PolytopeBuilder) findVisibleFaces(support mgl64.Vec3) {
	b.visibleIndices = b.visibleIndices[:0]
	for i := range b.faces {
		toSupport := support.Sub(b.faces[i].Points[0])
		if toSupport.Dot(b.faces[i].Normal) > 0 {
			b.visibleIndices = append(b.visibleIndices, i)
		}
	}
}

func (b *PolytopeBuilder) findBoundaryEdges() {
	b.edges = b.edges[:0]

	for _, faceIdx := range b.visibleIndices {
		face := &b.faces[faceIdx]
		triEdges := [3][2]mgl64.Vec3{
			{face.Points[0], face.Points[1]},
			{face.Points[1], face.Points[2]},
			{face.Points[2], face.Points[0]},
		}
		for _, e := range triEdges {
			a, bEnd := e[0], e[1]
			if compareVec3(a, bEnd) > 0 {
				a, bEnd = bEnd, a
			}
			if idx := b.findEdgeIndex(a, bEnd); idx >= 0 {
				b.edges[idx].Count++
			} else {
				b.edges = append(b.edges, edgeEntry{A: a, B: bEnd, Count: 1})
			}
		}
	}
}

func (b *PolytopeBuilder) findEdgeIndex(a, bEnd mgl64.Vec3) int {
	for i := range b.edges {
		if vec3Equal(b.edges[i].A, a) && vec3Equal(b.edges[i].B, bEnd) {
			return i
		}
	}
	return -1
}

func (b *PolytopeBuilder) removeVisibleFaces() {
	// Remove from the back so earlier indices stay valid under swap-remove.
	for i := 0; i < len(b.visibleIndices)-1; i++ {
		for j := i + 1; j < len(b.visibleIndices); j++ {
			if b.visibleIndices[i] < b.visibleIndices[j] {
				b.visibleIndices[i], b.visibleIndices[j] = b.visibleIndices[j], b.visibleIndices[i]
			}
		}
	}
	for _, idx := range b.visibleIndices {
		if idx < len(b.faces) {
			b.faces[idx] = b.faces[len(b.faces)-1]
			b.faces = b.faces[:len(b.faces)-1]
		}
	}
}

func (b *PolytopeBuilder) addBoundaryFaces(support, centroid mgl64.Vec3) {
	for i := range b.edges {
		if b.edges[i].Count != 1 {
			continue
		}
		b.faces = append(b.faces, b.createFaceOutward(b.edges[i].A, b.edges[i].B, support, centroid))
	}
}

// AddPointAndRebuildFaces expands the polytope with a new support point:
// it removes the faces visible from that point, finds the boundary of the
// resulting hole, and stitches new faces from each boundary edge to the
// support point.
func (b *PolytopeBuilder) AddPointAndRebuildFaces(support mgl64.Vec3, closestIndex int) {
	centroid := b.calculateCentroid()

	b.findVisibleFaces(support)
	if len(b.visibleIndices) >= len(b.faces) {
		b.visibleIndices = b.visibleIndices[:0]
		b.visibleIndices = append(b.visibleIndices, closestIndex)
	}

	b.findBoundaryEdges()
	b.removeVisibleFaces()
	b.addBoundaryFaces(support, centroid)

	if len(b.faces) == 0 {
		b.faces = append(b.faces, Face{
			Points:   [3]mgl64.Vec3{support, support, support},
			Normal:   mgl64.Vec3{0, 1, 0},
			Distance: minFaceDistance,
		})
	}
}
