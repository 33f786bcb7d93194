package vehicle

import (
	"math"

	"github.com/racedqn/autopilot/internal/util"
	"github.com/racedqn/autopilot/pkg/core"

	"gonum.org/v1/gonum/spatial/r3"
)

// steerAxis is the axis the front wheels turn about; positive steering turns right.
var steerAxis = r3.Vec{Y: -1}

// minSteerAuthority is the share of steering angle kept at any speed.
const minSteerAuthority = 0.1

// WheelOutput is what the scene applies to one wheel for this tick.
type WheelOutput struct {
	Torque   r3.Vec      // world space
	Steering r3.Rotation // steering joint local basis, front wheels only
	Steered  bool
	Slip     float64
}

// Output is the result of one ESP evaluation.
type Output struct {
	Wheels        [WheelCount]WheelOutput
	MovingForward bool
	Braking       bool
	Speed         float64
	Torque        float64 // smoothed magnitude before speed and slip derating
	SteeringAngle float64 // rad, positive right
}

// ESP runs the traction/stability law for one tick and advances the smoothing state of v.
func ESP(v *Vehicle, k core.Kinematics, wheels [WheelCount]core.WheelKinematics, dt float64) Output {
	s := v.Spec
	body := k.Pose.Rotation

	forward := body.Rotate(core.Forward)
	slipAngle := util.Angle(util.Planar(k.LinVel), util.Planar(forward))
	movingForward := slipAngle < math.Pi/2

	speed := r3.Norm(k.LinVel)
	braking := (movingForward && v.Brake > 0) || (!movingForward && v.Gas > 0)

	torqueSpeedFactor := 2.0
	if !braking {
		torqueSpeedFactor = 1 - util.Clamp01(speed/s.MaxSpeed)
	}
	steeringSpeedFactor := math.Pow(1-math.Min(speed/s.MaxSteeringSpeed, 1), 2)

	pedal := pedalFor(v, movingForward, braking)
	dir := 1.0
	if pedal < 0 {
		dir = -1
	}
	if dir != v.prevDir {
		v.prevTorque = 0
	}
	v.prevDir = dir

	v.prevSteering = util.Approach(v.prevSteering, v.Steering, s.SteeringRate, dt)
	v.prevTorque = util.Approach(v.prevTorque, math.Abs(pedal)*s.MaxWheelTorque, s.TorqueRate, dt)

	steerAngle := s.MaxWheelAngle * v.prevSteering * (minSteerAuthority + (1-minSteerAuthority)*steeringSpeedFactor)
	steer := r3.NewRotation(steerAngle, steerAxis)
	torqueLocal := r3.Vec{X: dir * v.prevTorque * torqueSpeedFactor}

	out := Output{
		MovingForward: movingForward,
		Braking:       braking,
		Speed:         speed,
		Torque:        v.prevTorque,
		SteeringAngle: steerAngle,
	}
	for i, w := range v.Wheels {
		local := torqueLocal
		axle, fwd := core.Left, core.Forward
		maxSlip := s.MaxSlipRear
		if w.Front {
			local = steer.Rotate(local)
			axle, fwd = steer.Rotate(axle), steer.Rotate(fwd)
			maxSlip = s.MaxSlipFront
		}
		slip := wheelSlip(wheels[i], body.Rotate(axle), body.Rotate(fwd), w.Radius)
		grip := 1 - math.Min(slip/maxSlip, 1)

		wo := WheelOutput{
			Torque: r3.Scale(grip, body.Rotate(local)),
			Slip:   slip,
		}
		if w.Front {
			wo.Steering = steer
			wo.Steered = true
		}
		out.Wheels[i] = wo
	}
	return out
}

// pedalFor maps gas/brake to a signed pedal; forward drive is positive.
// A pedal opposing the direction of travel acts as counter-torque.
func pedalFor(v *Vehicle, movingForward, braking bool) float64 {
	switch {
	case braking && movingForward:
		return -v.Brake
	case braking:
		return v.Gas
	default:
		return v.Gas - v.Brake
	}
}

// wheelSlip is the speed of the contact patch relative to the ground on the wheel plane.
// Rolling speed is ω·axle·r; a wheel rolling freely in its own plane has zero slip.
func wheelSlip(w core.WheelKinematics, axle, fwd r3.Vec, radius float64) float64 {
	rolling := r3.Dot(w.AngVel, axle) * radius
	longitudinal := r3.Dot(w.LinVel, fwd) - rolling
	lateral := r3.Dot(w.LinVel, axle)
	return util.ZeroIfNaN(math.Hypot(longitudinal, lateral))
}
