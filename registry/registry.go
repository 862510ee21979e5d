// Package registry owns the simulation's entities by stable integer ID:
// entities are referenced by ID rather than pointer everywhere outside
// this package, and there is no module-global state — every simulation
// owns an explicit *Registry value.
//
// IDs are assigned once and never reused or reshuffled, so a body's ID
// stays stable across removals elsewhere in the registry.
package registry

import (
	"fmt"

	"github.com/forgephysics/xpbd/body"
	"github.com/google/uuid"
)

// Registry holds every body in a simulation, indexed by its stable ID.
type Registry struct {
	bodies map[int]*body.RigidBody
	nextID int
	// order is insertion order, kept alongside the map so iteration is
	// reproducible rather than subject to Go's randomized map order.
	order []int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{bodies: make(map[int]*body.RigidBody)}
}

// Create inserts a dynamic body, assigning it the next stable ID and
// overwriting whatever ID the caller set on it.
func (r *Registry) Create(b *body.RigidBody) int {
	id := r.nextID
	r.nextID++
	b.ID = id
	if b.DebugTag == "" {
		b.DebugTag = uuid.NewString()
	}
	r.bodies[id] = b
	r.order = append(r.order, id)
	return id
}

// CreateFixed inserts a fixed (infinite-mass) body: identical bookkeeping
// to Create, kept as a distinct entry point so callers state intent and
// the registry can assert b.IsFixed().
func (r *Registry) CreateFixed(b *body.RigidBody) int {
	if !b.IsFixed() {
		panic("registry: CreateFixed given a body with non-zero inverse mass")
	}
	return r.Create(b)
}

// Get returns the body with the given ID, or (nil, false) if it has been
// destroyed or never existed — the path constraints use to detect a
// reference that no longer resolves.
func (r *Registry) Get(id int) (*body.RigidBody, bool) {
	b, ok := r.bodies[id]
	return b, ok
}

// MustGet panics if id does not resolve. Reserved for internal call sites
// that have already validated the ID (e.g. immediately after Create).
func (r *Registry) MustGet(id int) *body.RigidBody {
	b, ok := r.bodies[id]
	if !ok {
		panic(fmt.Sprintf("registry: no body with id %d", id))
	}
	return b
}

// Destroy removes a body from the registry. Its ID is never reused.
func (r *Registry) Destroy(id int) {
	if _, ok := r.bodies[id]; !ok {
		return
	}
	delete(r.bodies, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// All returns every live body in stable insertion order.
func (r *Registry) All() []*body.RigidBody {
	out := make([]*body.RigidBody, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bodies[id])
	}
	return out
}

// Len reports the number of live bodies.
func (r *Registry) Len() int {
	return len(r.bodies)
}
