package gjk

import (
	"errors"
	"math"
	"testing"

	"github.com/forgephysics/xpbd/collider"
	"github.com/forgephysics/xpbd/errs"
	"github.com/go-gl/mathgl/mgl64"
)

func box(t *testing.T, center mgl64.Vec3, halfExtents mgl64.Vec3) *collider.Hull {
	t.Helper()
	h, err := collider.NewBox(halfExtents)
	if err != nil {
		t.Fatalf("NewBox: %v", err)
	}
	h.Update(center, mgl64.QuatIdent())
	return h
}

func TestMinkowskiSupport(t *testing.T) {
	t.Run("separated boxes along x-axis", func(t *testing.T) {
		a := box(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
		b := box(t, mgl64.Vec3{3, 0, 0}, mgl64.Vec3{1, 1, 1})

		support := MinkowskiSupport(a, b, mgl64.Vec3{1, 0, 0})
		// max(A.x) - min(B.x) = 1 - 2 = -1
		if support.X() >= 0 {
			t.Errorf("expected support.X < 0 for separated boxes, got %v", support.X())
		}
	})

	t.Run("overlapping boxes", func(t *testing.T) {
		a := box(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
		b := box(t, mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{1, 1, 1})

		support := MinkowskiSupport(a, b, mgl64.Vec3{1, 0, 0})
		// max(A.x) - min(B.x) = 1 - 0.5 = 0.5
		if support.X() <= 0 {
			t.Errorf("expected support.X > 0 for overlapping boxes, got %v", support.X())
		}
	})
}

func TestGJK_Boxes_Intersecting(t *testing.T) {
	cases := []struct {
		name  string
		aPos  mgl64.Vec3
		aHalf mgl64.Vec3
		bPos  mgl64.Vec3
		bHalf mgl64.Vec3
	}{
		{"overlapping", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{1.5, 0, 0}, mgl64.Vec3{1, 1, 1}},
		{"touching", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{2.0, 0, 0}, mgl64.Vec3{1, 1, 1}},
		{"nested", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 2, 2}, mgl64.Vec3{0, 1, 1}, mgl64.Vec3{1, 1, 1}},
		{"identical position", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := box(t, tc.aPos, tc.aHalf)
			b := box(t, tc.bPos, tc.bHalf)

			intersecting, simplex, err := GJK(a, b, 0)
			if err != nil {
				t.Fatalf("unexpected convergence failure: %v", err)
			}
			if !intersecting {
				t.Errorf("expected intersection for %s", tc.name)
			}
			// Symmetric axis-aligned setups can land the origin exactly on
			// a simplex vertex, terminating below a tetrahedron (an origin on
			// an edge or face keeps the search going); the simplex must
			// still be non-empty for EPA's degenerate path.
			if simplex.Count < 1 || simplex.Count > 4 {
				t.Errorf("expected terminal simplex of 1-4 points, got %d", simplex.Count)
			}
		})
	}
}

func TestGJK_Boxes_Separated(t *testing.T) {
	cases := []struct {
		name  string
		bPos  mgl64.Vec3
		bHalf mgl64.Vec3
	}{
		{"far apart", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{1, 1, 1}},
		{"barely separated", mgl64.Vec3{2.1, 0, 0}, mgl64.Vec3{1, 1, 1}},
		{"separated on y", mgl64.Vec3{0, 5, 0}, mgl64.Vec3{1, 1, 1}},
		{"separated diagonally", mgl64.Vec3{5, 5, 5}, mgl64.Vec3{1, 1, 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := box(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
			b := box(t, tc.bPos, tc.bHalf)

			intersecting, _, _ := GJK(a, b, 0)
			if intersecting {
				t.Errorf("expected no intersection for %s", tc.name)
			}
		})
	}
}

func TestGJK_IterationCapReportsNoConvergence(t *testing.T) {
	a := box(t, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})
	b := box(t, mgl64.Vec3{0.5, 0.3, 0.2}, mgl64.Vec3{1, 1, 1})

	// One refinement iteration cannot enclose the origin for this offset
	// pair; the cap must fail safe as no intersection, either via a clean
	// separation verdict or ErrGJKNoConvergence.
	intersecting, _, err := GJK(a, b, 1)
	if intersecting {
		t.Error("expected a capped run to fail safe as no intersection")
	}
	if err != nil && !errors.Is(err, errs.ErrGJKNoConvergence) {
		t.Errorf("expected ErrGJKNoConvergence, got %v", err)
	}
}

// Simplex refinement tests: refineSegment/refineTriangle/refineTetrahedron
// operate directly on Simplex values and don't need a collider at all.

func TestRefineSegment(t *testing.T) {
	t.Run("origin beside the segment keeps both points", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{-1, 1, 0}, {1, 1, 0}, {}, {}},
			Count:  2,
		}
		direction := mgl64.Vec3{0, 1, 0}

		if refineSegment(&simplex, &direction) {
			t.Error("segment not passing through origin should not report containment")
		}
		if simplex.Count != 2 {
			t.Errorf("expected simplex to keep both points, got %d", simplex.Count)
		}
		if direction.Sub(mgl64.Vec3{0, -1, 0}).Len() > 1e-12 {
			t.Errorf("expected direction aimed at the origin, got %v", direction)
		}
	})

	t.Run("origin on segment steps off the line to keep growing", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{-1, 0, 0}, {1, 0, 0}, {}, {}},
			Count:  2,
		}
		direction := mgl64.Vec3{0, 1, 0}

		if refineSegment(&simplex, &direction) {
			t.Error("a 2-point simplex must not declare enclosure; EPA needs a volume")
		}
		if simplex.Count != 2 {
			t.Errorf("expected both points kept, got %d", simplex.Count)
		}
		span := simplex.Points[0].Sub(simplex.Points[1])
		if direction.Len() < 1e-12 || math.Abs(direction.Dot(span)) > 1e-12 {
			t.Errorf("expected a non-zero direction off the segment line, got %v", direction)
		}
	})

	t.Run("origin past the newest point reduces to it", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{3, 0, 0}, {1, 0, 0}, {}, {}},
			Count:  2,
		}
		direction := mgl64.Vec3{-1, 0, 0}

		if refineSegment(&simplex, &direction) {
			t.Error("segment should not contain origin")
		}
		if simplex.Count != 1 {
			t.Errorf("expected simplex reduced to 1 point, got %d", simplex.Count)
		}
		if simplex.Points[0] != (mgl64.Vec3{1, 0, 0}) {
			t.Errorf("expected the newest point kept, got %v", simplex.Points[0])
		}
	})
}

func TestRefineTriangle(t *testing.T) {
	t.Run("face region keeps the triangle, never contains in 3D", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 0.5}, {}},
			Count:  3,
		}
		direction := mgl64.Vec3{0, 0, 1}

		if refineTriangle(&simplex, &direction) {
			t.Error("origin off the triangle plane must not report containment")
		}
		if simplex.Count != 3 {
			t.Errorf("expected the full triangle kept for a face-region origin, got %d points", simplex.Count)
		}
	})

	t.Run("origin in an edge region reduces to that edge", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{3, 3, 0}, {0, 2, 0}, {2, 0, 0}, {}},
			Count:  3,
		}
		direction := mgl64.Vec3{0, 0, 1}

		refineTriangle(&simplex, &direction)
		if simplex.Count != 2 {
			t.Errorf("expected simplex reduced to an edge (2 points), got %d", simplex.Count)
		}
		// The closest edge joins the two nearest vertices; the newest
		// point stays last.
		if simplex.Points[1] != (mgl64.Vec3{2, 0, 0}) || simplex.Points[0] != (mgl64.Vec3{0, 2, 0}) {
			t.Errorf("expected edge {(0,2,0),(2,0,0)}, got %v", simplex.Points[:2])
		}
	})

	t.Run("origin inside the triangle aims off-plane to keep growing", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{2, -1, 0}, {-1, 2, 0}, {-1, -1, 0}, {}},
			Count:  3,
		}
		direction := mgl64.Vec3{1, 0, 0}

		if refineTriangle(&simplex, &direction) {
			t.Error("a 3-point simplex must not declare enclosure; the tetrahedron step decides")
		}
		if simplex.Count != 3 {
			t.Errorf("expected the triangle kept, got %d points", simplex.Count)
		}
		// The triangle lies in the z=0 plane; the search must leave it
		// along the normal so the next support grows a tetrahedron.
		if direction.X() != 0 || direction.Y() != 0 || direction.Z() == 0 {
			t.Errorf("expected a direction along the triangle normal, got %v", direction)
		}
	})
}

func TestRefineTetrahedron(t *testing.T) {
	t.Run("origin inside", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{-1, -1, -1}, {1, 1, -1}, {1, -1, 1}, {-1, 1, 1}},
			Count:  4,
		}
		direction := mgl64.Vec3{0, 0, 1}

		if !refineTetrahedron(&simplex, &direction) {
			t.Error("expected tetrahedron to contain the origin")
		}
		if simplex.Count != 4 {
			t.Errorf("expected the enclosing tetrahedron left intact, got %d points", simplex.Count)
		}
	})

	t.Run("origin outside reduces to the closest feature", func(t *testing.T) {
		simplex := Simplex{
			Points: [4]mgl64.Vec3{{5, 5, 5}, {6, 5, 5}, {5, 6, 5}, {5, 5, 6}},
			Count:  4,
		}
		direction := mgl64.Vec3{0, 0, 1}

		if refineTetrahedron(&simplex, &direction) {
			t.Error("expected origin to be outside the tetrahedron")
		}
		// The nearest feature of this far-away tetrahedron is its corner
		// closest to the origin.
		if simplex.Count != 1 {
			t.Fatalf("expected simplex reduced to the nearest vertex, got %d points", simplex.Count)
		}
		if simplex.Points[0] != (mgl64.Vec3{5, 5, 5}) {
			t.Errorf("expected the nearest corner kept, got %v", simplex.Points[0])
		}
		if direction.Sub(mgl64.Vec3{-5, -5, -5}).Len() > 1e-12 {
			t.Errorf("expected direction aimed back at the origin, got %v", direction)
		}
	})
}

func BenchmarkGJK_Boxes_Intersecting(b *testing.B) {
	a, _ := collider.NewBox(mgl64.Vec3{1, 1, 1})
	c, _ := collider.NewBox(mgl64.Vec3{1, 1, 1})
	a.Update(mgl64.Vec3{0, 0, 0}, mgl64.QuatIdent())
	c.Update(mgl64.Vec3{1.5, 0, 0}, mgl64.QuatIdent())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GJK(a, c, 0)
	}
}
