// Command simpleScene drives a cube falling onto a static ground plane for
// a handful of steps, printing pose/velocity each step as a minimal
// diagnostic loop over the xpbd/body/collider/registry API.
package main

import (
	"fmt"

	"github.com/forgephysics/xpbd/body"
	"github.com/forgephysics/xpbd/collider"
	"github.com/forgephysics/xpbd/mathkernel"
	"github.com/forgephysics/xpbd/xpbd"
	"github.com/go-gl/mathgl/mgl64"
)

func setupScene() *xpbd.World {
	w := xpbd.New(mgl64.Vec3{0, -9.81, 0}, xpbd.DefaultConfig())

	groundHull, err := collider.NewBox(mgl64.Vec3{50, 0.5, 50})
	if err != nil {
		panic(err)
	}
	ground := body.NewFixed(0, mgl64.Vec3{0, -0.5, 0}, mgl64.QuatIdent(), []*collider.Hull{groundHull})
	ground.StaticFriction = 0.5
	ground.DynamicFriction = 0.4
	w.Registry.CreateFixed(ground)

	halfExtents := mgl64.Vec3{1.5, 1.5, 1.5}
	cubeHull, err := collider.NewBox(halfExtents)
	if err != nil {
		panic(err)
	}

	const mass = 1.0
	inertia := collider.BoxInertia(mass, halfExtents)
	cube := body.New(0, mgl64.Vec3{-5, 5, -5}, mathkernel.QuatFromAxisAngleDeg(mgl64.Vec3{0, 0, 1}, 70),
		1.0/mass, inertia, inertia.Inv(), []*collider.Hull{cubeHull})
	cube.Restitution = 0.8
	cube.StaticFriction = 0.5
	cube.DynamicFriction = 0.4
	w.Registry.Create(cube)

	return w
}

func main() {
	fmt.Println("cube falling onto a plane")
	fmt.Println("=========================")

	w := setupScene()
	cube, _ := w.Registry.Get(1)

	const dt = 1.0 / 60.0
	const steps = 200

	for step := 0; step < steps; step++ {
		w.Simulate(dt)

		fmt.Printf("step %3d  pos=%v  vel=%v  angVel=%v (len=%.3f)  active=%v\n",
			step+1, cube.WorldPosition, cube.LinearVelocity, cube.AngularVelocity,
			cube.AngularVelocity.Len(), cube.Active)
	}
}
