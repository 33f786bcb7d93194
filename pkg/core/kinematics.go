// pkg/core/kinematics.go
package core

import "gonum.org/v1/gonum/spatial/r3"

// BodyID identifies a physics body owned by the host world.
type BodyID uint64

// Body frame: +Z forward, +Y up, +X left. Wheel axles lie along X.
var (
	Forward = r3.Vec{Z: 1}
	Up      = r3.Vec{Y: 1}
	Left    = r3.Vec{X: 1}
)

// Identity is the zero rotation.
var Identity = r3.Rotation{Real: 1}

// Pose is a world transform.
type Pose struct {
	Position r3.Vec
	Rotation r3.Rotation
}

// Kinematics is the per-tick state of a vehicle body as reported by physics.
type Kinematics struct {
	Pose   Pose
	LinVel r3.Vec
	AngVel r3.Vec
}

// WheelKinematics is the world-space motion of one wheel body.
type WheelKinematics struct {
	LinVel r3.Vec
	AngVel r3.Vec
}

// Contact is another body a vehicle currently touches.
type Contact struct {
	Body BodyID
	Road bool
}
