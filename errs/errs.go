// Package errs defines the engine's error taxonomy: structural errors that
// are returned to the caller at ingest time, and sentinel markers for the
// recoverable numerical conditions the solver logs and works around
// in-place rather than propagating.
package errs

import "errors"

// ErrInvalidGeometry is returned by collider construction when the input
// mesh cannot form a valid convex hull: fewer than 4 vertices, duplicate
// vertex indices within a face, or a face whose vertices are not coplanar.
var ErrInvalidGeometry = errors.New("invalid collider geometry")

// ErrInvalidConstraint marks a constraint whose referenced entity ID no
// longer resolves in the registry. The solver skips the constraint for
// that frame rather than failing the whole simulate call.
var ErrInvalidConstraint = errors.New("constraint references an unknown entity")

// ErrSolverDegeneracy marks a body whose pose or velocity became
// non-finite during a substep. The solver rolls the body back to its
// pre-substep pose and deactivates it.
var ErrSolverDegeneracy = errors.New("solver degeneracy")

// ErrGJKNoConvergence marks GJK hitting its iteration cap without
// resolving intersection. Treated as "no contact" for that pair this frame.
var ErrGJKNoConvergence = errors.New("gjk failed to converge")

// ErrEPANoConvergence marks EPA hitting its iteration cap without
// finding a separating face. Treated as "no contact" for that pair this frame.
var ErrEPANoConvergence = errors.New("epa failed to converge")
