package xpbd

import (
	"math"
	"sort"

	"github.com/forgephysics/xpbd/body"
	"github.com/go-gl/mathgl/mgl64"
)

// cellKey identifies one cell of a uniform spatial hash.
type cellKey struct {
	x, y, z int
}

type cell struct {
	bodyIndices []int
}

// SpatialGrid is a uniform-hash broad phase, an alternative to the all-pairs
// AABB scan in broadphase.go for scenes dense enough that O(n^2) pair
// testing dominates Simulate's cost.
//
// findPairs runs strictly sequentially rather than fanning cell lookups out
// across goroutines: collecting pairs over an unordered channel would make
// collision order depend on scheduling, breaking reproducibility across
// runs of the same scene.
type SpatialGrid struct {
	cellSize float64
	cells    []cell
	cellMask int
}

// NewSpatialGrid builds a grid with the given cell size and a cell-table
// size rounded up to the next power of two (cellCount hint).
func NewSpatialGrid(cellSize float64, cellCount int) *SpatialGrid {
	cellCount = nextPowerOfTwo(cellCount)

	cells := make([]cell, cellCount)
	for i := range cells {
		cells[i].bodyIndices = make([]int, 0, 8)
	}

	return &SpatialGrid{
		cellSize: cellSize,
		cells:    cells,
		cellMask: cellCount - 1,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

func (sg *SpatialGrid) clear() {
	for i := range sg.cells {
		sg.cells[i].bodyIndices = sg.cells[i].bodyIndices[:0]
	}
}

func (sg *SpatialGrid) insert(bodyIndex int, min, max mgl64.Vec3) {
	minCell := sg.worldToCell(min)
	maxCell := sg.worldToCell(max)

	for x := minCell.x; x <= maxCell.x; x++ {
		for y := minCell.y; y <= maxCell.y; y++ {
			for z := minCell.z; z <= maxCell.z; z++ {
				idx := sg.hashCell(cellKey{x, y, z})
				sg.cells[idx].bodyIndices = append(sg.cells[idx].bodyIndices, bodyIndex)
			}
		}
	}
}

// findPairs is the grid-accelerated equivalent of broadPhase: it reports
// the same candidate set (modulo acceleration-structure hash collisions,
// which only ever add false positives that the narrow phase rejects), in
// body-index order so result order stays reproducible across runs.
func (sg *SpatialGrid) findPairs(bodies []*body.RigidBody) []bodyPair {
	sg.clear()

	aabbMin := make([]mgl64.Vec3, len(bodies))
	aabbMax := make([]mgl64.Vec3, len(bodies))
	for i, b := range bodies {
		aabbMin[i], aabbMax[i] = b.WorldAABB()
		sg.insert(i, aabbMin[i], aabbMax[i])
	}
	for i := range sg.cells {
		if len(sg.cells[i].bodyIndices) > 1 {
			sort.Ints(sg.cells[i].bodyIndices)
		}
	}

	pairs := make([]bodyPair, 0, len(bodies)/2)
	seen := make(map[[2]int]bool)

	for i, a := range bodies {
		minCell := sg.worldToCell(aabbMin[i])
		maxCell := sg.worldToCell(aabbMax[i])

		for x := minCell.x; x <= maxCell.x; x++ {
			for y := minCell.y; y <= maxCell.y; y++ {
				for z := minCell.z; z <= maxCell.z; z++ {
					idx := sg.hashCell(cellKey{x, y, z})

					for _, j := range sg.cells[idx].bodyIndices {
						if j <= i {
							continue
						}
						key := [2]int{i, j}
						if seen[key] {
							continue
						}

						b := bodies[j]
						if (a.IsFixed() || !a.Active) && (b.IsFixed() || !b.Active) {
							continue
						}
						if aabbOverlap(aabbMin[i], aabbMax[i], aabbMin[j], aabbMax[j]) {
							seen[key] = true
							pairs = append(pairs, bodyPair{a: a, b: b})
						}
					}
				}
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a.ID != pairs[j].a.ID {
			return pairs[i].a.ID < pairs[j].a.ID
		}
		return pairs[i].b.ID < pairs[j].b.ID
	})

	return pairs
}

func (sg *SpatialGrid) worldToCell(pos mgl64.Vec3) cellKey {
	return cellKey{
		x: int(math.Floor(pos.X() / sg.cellSize)),
		y: int(math.Floor(pos.Y() / sg.cellSize)),
		z: int(math.Floor(pos.Z() / sg.cellSize)),
	}
}

func (sg *SpatialGrid) hashCell(key cellKey) int {
	h := (key.x * 73856093) ^ (key.y * 19349663) ^ (key.z * 83492791)
	return h & sg.cellMask
}
