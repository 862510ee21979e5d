// Package xpbd implements the position-based-dynamics solver loop. A World
// holds the entity registry, the user constraint list, and the solver
// configuration explicitly, with no package-global state — every caller
// owns and threads through its own World.
package xpbd

import (
	"log/slog"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/constraint"
	"github.com/forgephysics/xpbd/errs"
	"github.com/forgephysics/xpbd/registry"
	"github.com/go-gl/mathgl/mgl64"
)

// defaultWorkers is the predictor/commit fan-out degree used when the
// caller hasn't set Workers explicitly.
const defaultWorkers = 1

// Config is the solver's external configuration surface.
type Config struct {
	Substeps         int
	PosIters         int
	EnableCollisions bool

	SleepLinearEps  float64
	SleepAngularEps float64
	SleepFrames     int

	GJKMaxIterations int
	EPAMaxIterations int
	EPATolerance     float64

	// Workers bounds the goroutine fan-out used for the order-independent
	// predictor/velocity-commit passes. 1 runs them inline.
	Workers int

	// BroadPhaseCellSize, when non-zero, switches broad phase from the
	// all-pairs AABB scan to a SpatialGrid with this cell size — worthwhile
	// once body count makes O(n^2) pair testing dominate Simulate's cost.
	BroadPhaseCellSize float64
	// BroadPhaseCellCount hints the grid's hash-table size; rounded up to
	// the next power of two. Ignored unless BroadPhaseCellSize is set.
	BroadPhaseCellCount int
}

// DefaultConfig returns a reasonable reference configuration.
func DefaultConfig() Config {
	return Config{
		Substeps:         10,
		PosIters:         1,
		EnableCollisions: true,
		SleepLinearEps:   0.01,
		SleepAngularEps:  0.01,
		SleepFrames:      60,
		GJKMaxIterations: 64,
		EPAMaxIterations: 32,
		EPATolerance:     1e-3,
		Workers:          defaultWorkers,
	}
}

// World owns one simulation's entities, user constraints, and config.
type World struct {
	Registry    *registry.Registry
	Constraints []constraint.Constraint
	Gravity     mgl64.Vec3
	Config      Config

	grid *SpatialGrid
}

// New returns an empty world with the given gravity and configuration.
func New(gravity mgl64.Vec3, cfg Config) *World {
	w := &World{
		Registry: registry.New(),
		Gravity:  gravity,
		Config:   cfg,
	}
	if cfg.BroadPhaseCellSize > 0 {
		w.grid = NewSpatialGrid(cfg.BroadPhaseCellSize, cfg.BroadPhaseCellCount)
	}
	return w
}

// AddConstraint appends a user constraint (positional, mutual-orientation,
// or hinge) to the world. The solver honors insertion order when solving.
func (w *World) AddConstraint(c constraint.Constraint) {
	w.Constraints = append(w.Constraints, c)
}

// Simulate advances the world by dt: broad+narrow phase once, then
// n_substeps of predictor / reset / positional solve / velocity update /
// velocity-level solve, then a post-substep sleeping pass.
func (w *World) Simulate(dt float64) {
	// A zero-length step is a no-op modulo the Lagrange reset every substep
	// begins with.
	if dt <= 0 || w.Config.Substeps < 1 {
		for _, c := range w.Constraints {
			c.ResetLambda()
		}
		return
	}

	workers := max(defaultWorkers, w.Config.Workers)
	bodies := w.Registry.All()

	var collisionStubs []*constraint.Collision
	if w.Config.EnableCollisions {
		for _, b := range bodies {
			b.UpdateColliders()
		}
		var pairs []bodyPair
		if w.grid != nil {
			pairs = w.grid.findPairs(bodies)
		} else {
			pairs = broadPhase(bodies)
		}
		collisionStubs = narrowPhase(pairs, w.Config.GJKMaxIterations, w.Config.EPAMaxIterations, w.Config.EPATolerance)
	}

	h := dt / float64(w.Config.Substeps)
	gravityMagnitude := w.Gravity.Len()

	for s := 0; s < w.Config.Substeps; s++ {
		task(workers, bodies, func(b *body.RigidBody) {
			b.Integrate(h, w.Gravity)
		})

		for _, c := range w.Constraints {
			c.ResetLambda()
		}
		for _, c := range collisionStubs {
			c.ResetLambda()
		}

		for i := 0; i < w.Config.PosIters; i++ {
			for _, c := range w.Constraints {
				c.SolvePosition(w.Registry, h)
			}
			for _, c := range collisionStubs {
				c.SolvePosition(w.Registry, h)
			}
		}

		task(workers, bodies, func(b *body.RigidBody) {
			b.CommitVelocity(h)
		})

		for _, c := range collisionStubs {
			c.SolveVelocity(w.Registry, h, gravityMagnitude)
		}

		rollbackNonFinite(bodies)
	}

	for _, b := range bodies {
		b.UpdateSleepState(w.Config.SleepLinearEps, w.Config.SleepAngularEps, w.Config.SleepFrames)
	}
}

// rollbackNonFinite catches solver degeneracy: a body whose pose or
// velocity is non-finite after a full substep is rolled back to its
// pre-substep state and deactivated, rather than corrupting the rest of
// the simulation.
func rollbackNonFinite(bodies []*body.RigidBody) {
	for _, b := range bodies {
		if !b.IsFinite() {
			slog.Warn("xpbd: solver degeneracy, rolling back body",
				"error", errs.ErrSolverDegeneracy, "body_id", b.ID, "body_tag", b.DebugTag)
			b.Rollback()
		}
	}
}
