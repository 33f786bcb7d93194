package sim

import (
	"github.com/racedqn/autopilot/internal/sensor"
	"github.com/racedqn/autopilot/internal/vehicle"
	"github.com/racedqn/autopilot/pkg/core"
)

// Physics is the world the simulation reads from each tick.
type Physics interface {
	sensor.Raycaster
	// Kinematics reports false for unknown or despawned bodies.
	Kinematics(id core.BodyID) (core.Kinematics, bool)
	WheelKinematics(id core.BodyID) [vehicle.WheelCount]core.WheelKinematics
	// Contacts lists every body id is touching this tick, the road included.
	Contacts(id core.BodyID) []core.Contact
}

// SpawnRequest asks the scene for a new vehicle body and its wheels.
type SpawnRequest struct {
	Spec       vehicle.Spec
	Pose       core.Pose
	Player     bool
	TrackIndex int
}

// Scene owns vehicle bodies and applies per-wheel outputs.
type Scene interface {
	Spawn(req SpawnRequest) (core.BodyID, error)
	Despawn(id core.BodyID)
	ApplyWheels(id core.BodyID, wheels [vehicle.WheelCount]vehicle.WheelOutput)
}
