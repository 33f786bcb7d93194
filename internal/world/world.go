// Package world is a flat, headless stand-in for the host physics engine.
// Cars move on a plane under a kinematic bicycle model; the track borders
// are static walls for ray casts and collisions.
package world

import (
	"fmt"
	"math"
	"sync"

	"github.com/racedqn/autopilot/internal/geo"
	"github.com/racedqn/autopilot/internal/sensor"
	"github.com/racedqn/autopilot/internal/sim"
	"github.com/racedqn/autopilot/internal/track"
	"github.com/racedqn/autopilot/internal/vehicle"
	"github.com/racedqn/autopilot/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// Body ids below firstCarID are reserved for static geometry.
const (
	RoadID     core.BodyID = 1
	WallID     core.BodyID = 2
	firstCarID core.BodyID = 16
)

// Config holds the integration constants.
type Config struct {
	Mass              float64 `json:"mass" mapstructure:"mass"`                           // kg
	RollingResistance float64 `json:"rollingResistance" mapstructure:"rollingResistance"` // 1/s
	Drag              float64 `json:"drag" mapstructure:"drag"`                           // 1/m
}

// DefaultConfig returns constants for a mid-size car.
func DefaultConfig() Config {
	return Config{Mass: 1200, RollingResistance: 0.3, Drag: 0.002}
}

type body struct {
	spec     vehicle.Spec
	pos      geom.XY
	heading  float64 // rad about +Y; forward is (sin, 0, cos)
	speed    float64 // signed, along forward
	yawRate  float64
	wheels   [vehicle.WheelCount]vehicle.WheelOutput
	player   bool
	contacts []core.Contact
}

// World implements sim.Physics and sim.Scene.
type World struct {
	cfg   Config
	track *track.Track
	walls []geo.Segment

	mu     sync.RWMutex
	bodies map[core.BodyID]*body
	next   core.BodyID
}

// New builds a world whose walls follow the borders of tr.
func New(cfg Config, tr *track.Track) (*World, error) {
	if cfg.Mass <= 0 {
		return nil, fmt.Errorf("mass must be positive, got %g", cfg.Mass)
	}
	w := &World{
		cfg:    cfg,
		track:  tr,
		bodies: make(map[core.BodyID]*body),
		next:   firstCarID,
	}
	half := tr.Width() / 2
	for _, side := range []float64{half, -half} {
		pts := geo.Offset(tr.Points(), side, tr.Closed())
		for i := 0; i+1 < len(pts); i++ {
			w.walls = append(w.walls, geo.Segment{A: pts[i], B: pts[i+1]})
		}
		if tr.Closed() {
			w.walls = append(w.walls, geo.Segment{A: pts[len(pts)-1], B: pts[0]})
		}
	}
	return w, nil
}

// Walls returns the static border segments.
func (w *World) Walls() []geo.Segment { return w.walls }

// Bodies returns the number of live car bodies.
func (w *World) Bodies() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bodies)
}

// Spawn places a car body at req.Pose, at rest.
func (w *World) Spawn(req sim.SpawnRequest) (core.BodyID, error) {
	if err := req.Spec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid vehicle spec: %w", err)
	}
	fwd := req.Pose.Rotation.Rotate(core.Forward)
	b := &body{
		spec:    req.Spec,
		pos:     track.FromWorld(req.Pose.Position),
		heading: math.Atan2(fwd.X, fwd.Z),
		player:  req.Player,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.bodies[id] = b
	b.contacts = w.contactsOf(b)
	return id, nil
}

// Despawn removes a car body. Unknown ids are ignored.
func (w *World) Despawn(id core.BodyID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.bodies, id)
}

// ApplyWheels stores the wheel outputs used by the next Step.
func (w *World) ApplyWheels(id core.BodyID, wheels [vehicle.WheelCount]vehicle.WheelOutput) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.bodies[id]; ok {
		b.wheels = wheels
	}
}

// Kinematics reports the body transform and velocities.
func (w *World) Kinematics(id core.BodyID) (core.Kinematics, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[id]
	if !ok {
		return core.Kinematics{}, false
	}
	return b.kinematics(), true
}

func (b *body) kinematics() core.Kinematics {
	rot := r3.NewRotation(b.heading, core.Up)
	return core.Kinematics{
		Pose:   core.Pose{Position: track.ToWorld(b.pos), Rotation: rot},
		LinVel: r3.Scale(b.speed, rot.Rotate(core.Forward)),
		AngVel: r3.Vec{Y: b.yawRate},
	}
}

// WheelKinematics reports each wheel rolling without slip at body speed.
func (w *World) WheelKinematics(id core.BodyID) [vehicle.WheelCount]core.WheelKinematics {
	var out [vehicle.WheelCount]core.WheelKinematics
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.bodies[id]
	if !ok {
		return out
	}
	k := b.kinematics()
	for i, m := range b.spec.Mounts() {
		axle, fwd := core.Left, core.Forward
		if m.Front {
			steer := b.wheels[i].Steering
			if b.wheels[i].Steered {
				axle, fwd = steer.Rotate(axle), steer.Rotate(fwd)
			}
		}
		axleW := k.Pose.Rotation.Rotate(axle)
		fwdW := k.Pose.Rotation.Rotate(fwd)
		lin := r3.Add(k.LinVel, r3.Cross(k.AngVel, k.Pose.Rotation.Rotate(m.Offset)))
		spin := r3.Dot(lin, fwdW) / b.spec.WheelRadius
		out[i] = core.WheelKinematics{LinVel: lin, AngVel: r3.Scale(spin, axleW)}
	}
	return out
}

// Contacts lists what a body touches: the road, and the wall once any
// footprint corner leaves it.
func (w *World) Contacts(id core.BodyID) []core.Contact {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if b, ok := w.bodies[id]; ok {
		return b.contacts
	}
	return nil
}

func (w *World) contactsOf(b *body) []core.Contact {
	out := []core.Contact{{Body: RoadID, Road: true}}
	for _, c := range b.corners() {
		if !w.track.OnRoad(c) {
			return append(out, core.Contact{Body: WallID})
		}
	}
	return out
}

func (b *body) corners() [4]geom.XY {
	sin, cos := math.Sincos(b.heading)
	fx, fy := sin*b.spec.HalfLength, cos*b.spec.HalfLength
	// left is +X in the body frame
	lx, ly := cos*b.spec.HalfWidth, -sin*b.spec.HalfWidth
	return [4]geom.XY{
		{X: b.pos.X + fx + lx, Y: b.pos.Y + fy + ly},
		{X: b.pos.X + fx - lx, Y: b.pos.Y + fy - ly},
		{X: b.pos.X - fx + lx, Y: b.pos.Y - fy + ly},
		{X: b.pos.X - fx - lx, Y: b.pos.Y - fy - ly},
	}
}

// CastRay intersects a ray with the walls in the ground plane. Car bodies
// are dynamic and never block sensors, so filter does not change the result.
func (w *World) CastRay(origin, dir r3.Vec, maxDist float64, filter sensor.Filter) (float64, bool) {
	planar := math.Hypot(dir.X, dir.Z)
	if planar < 1e-9 {
		return 0, false
	}
	o := track.FromWorld(origin)
	d := geom.XY{X: dir.X / planar, Y: dir.Z / planar}
	best, hit := math.Inf(1), false
	for _, s := range w.walls {
		if t, ok := geo.RayHit(o, d, s); ok && t < best {
			best, hit = t, true
		}
	}
	// convert planar distance back to distance along dir
	best /= planar / r3.Norm(dir)
	if !hit || best > maxDist {
		return 0, false
	}
	return best, true
}

// Step integrates every body by dt seconds using the last applied wheels.
func (w *World) Step(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range w.bodies {
		w.integrate(b, dt)
		b.contacts = w.contactsOf(b)
	}
}

func (w *World) integrate(b *body, dt float64) {
	k := b.kinematics()
	fwdW := k.Pose.Rotation.Rotate(core.Forward)

	force := 0.0
	steerAngle := 0.0
	for i, m := range b.spec.Mounts() {
		wo := b.wheels[i]
		axle, fwd := core.Left, core.Forward
		if m.Front && wo.Steered {
			axle, fwd = wo.Steering.Rotate(axle), wo.Steering.Rotate(fwd)
			steerAngle = SteeringAngle(wo.Steering)
		}
		drive := r3.Dot(wo.Torque, k.Pose.Rotation.Rotate(axle)) / b.spec.WheelRadius
		force += drive * r3.Dot(k.Pose.Rotation.Rotate(fwd), fwdW)
	}

	resist := w.cfg.RollingResistance*b.speed + w.cfg.Drag*b.speed*math.Abs(b.speed)
	next := b.speed + (force/w.cfg.Mass-resist)*dt
	// resistance alone never reverses the car
	if force == 0 && next*b.speed < 0 {
		next = 0
	}
	b.speed = next

	if base := b.spec.WheelBase; base > 0 {
		// positive steering turns right, which is negative yaw
		b.yawRate = -b.speed * math.Tan(steerAngle) / base
	}
	b.heading += b.yawRate * dt
	sin, cos := math.Sincos(b.heading)
	b.pos.X += sin * b.speed * dt
	b.pos.Y += cos * b.speed * dt
}

// SteeringAngle recovers the wheel angle of a steering joint rotation about
// -Y; positive is right.
func SteeringAngle(q r3.Rotation) float64 {
	return 2 * math.Atan2(-q.Jmag, q.Real)
}
