// Package sensor implements the fixed ray-probe array mounted on each vehicle.
package sensor

import (
	"math"

	"github.com/racedqn/autopilot/pkg/core"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Filter selects which colliders a ray may hit.
type Filter uint8

const (
	// StaticOnly excludes dynamic bodies and sensor volumes.
	StaticOnly Filter = iota
	// All hits every collider.
	All
)

// Raycaster is provided by the physics world.
type Raycaster interface {
	// CastRay returns the distance to the nearest hit along dir within maxDist.
	CastRay(origin, dir r3.Vec, maxDist float64, filter Filter) (float64, bool)
}

// Probe is one ray in vehicle-local space.
type Probe struct {
	Origin r3.Vec
	Dir    r3.Vec
	Angle  float64 // degrees from forward, positive right
}

// Probe angles in degrees, positive to the right of forward.
var (
	frontAngles = []float64{0, -2, 2, -4, 4, -7, 7, -10, 10, -14, 14, -19, 19, -25, 25, -32, 32, -42, 42, -55, 55, -70, 70}
	sideAngles  = []float64{-90, 90}
	// rear probes fan out from the corner on their own side
	rearLeftAngles  = []float64{-180, -150, -120}
	rearRightAngles = []float64{180, 150, 120}
)

// Array is the per-vehicle sensor set. Probe layout is fixed for the vehicle's lifetime.
type Array struct {
	MaxRange float64
	Probes   []Probe
	Readings [core.SensorCount]float64
}

// New lays out the probes for a body of the given half extents.
func New(halfWidth, halfLength, maxRange float64) *Array {
	return &Array{
		MaxRange: maxRange,
		Probes:   Layout(halfWidth, halfLength),
	}
}

// Layout returns the ordered probes: dense front arc, two lateral, six rear.
func Layout(halfWidth, halfLength float64) []Probe {
	probes := make([]Probe, 0, core.SensorCount)
	nose := r3.Vec{Z: halfLength}
	for _, a := range frontAngles {
		probes = append(probes, newProbe(nose, a))
	}
	for _, a := range sideAngles {
		// right is -X
		probes = append(probes, newProbe(r3.Vec{X: -math.Copysign(halfWidth, a)}, a))
	}
	for _, a := range rearLeftAngles {
		probes = append(probes, newProbe(r3.Vec{X: halfWidth, Z: -halfLength}, a))
	}
	for _, a := range rearRightAngles {
		probes = append(probes, newProbe(r3.Vec{X: -halfWidth, Z: -halfLength}, a))
	}
	return probes
}

func newProbe(origin r3.Vec, deg float64) Probe {
	rot := r3.NewRotation(deg*math.Pi/180, r3.Vec{Y: -1})
	return Probe{Origin: origin, Dir: rot.Rotate(core.Forward), Angle: deg}
}

// Update casts every probe from the given pose and refreshes Readings.
func (a *Array) Update(r Raycaster, pose core.Pose) {
	for i, p := range a.Probes {
		origin := r3.Add(pose.Position, pose.Rotation.Rotate(p.Origin))
		dir := pose.Rotation.Rotate(p.Dir)
		dist, hit := r.CastRay(origin, dir, a.MaxRange, StaticOnly)
		a.Readings[i] = Reading(dist, hit, a.MaxRange)
	}
}

// Reading normalizes a hit distance: 1-d/max for d>0, 0 when touching or on a miss.
func Reading(dist float64, hit bool, maxRange float64) float64 {
	if !hit || dist <= 0 || maxRange <= 0 {
		return 0
	}
	return lo.Clamp(1-dist/maxRange, 0, 1)
}

// Fill copies the readings into the sensor part of an observation.
func (a *Array) Fill(obs *core.Observation) {
	s := obs.Sensors()
	for i, r := range a.Readings {
		s[i] = float32(r)
	}
}
