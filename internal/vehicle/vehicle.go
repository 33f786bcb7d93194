// Package vehicle holds per-car physical state and the ESP tire/drivetrain force law.
package vehicle

import (
	"github.com/samber/lo"
)

// Wheel is one of the four wheels of a Vehicle. It never outlives its parent.
type Wheel struct {
	Radius       float64
	Width        float64
	BorderRadius float64
	Front        bool
	Left         bool
}

// Vehicle is one car instance.
type Vehicle struct {
	Spec   Spec
	Mounts [WheelCount]WheelMount
	Wheels [WheelCount]Wheel

	// Latest control inputs.
	Gas      float64
	Brake    float64
	Steering float64

	// Smoothing state carried tick to tick; only a new Vehicle resets it.
	prevSteering float64
	prevTorque   float64
	prevDir      float64
}

// New builds a Vehicle at rest with fresh smoothing state.
func New(spec Spec) *Vehicle {
	v := &Vehicle{
		Spec:    spec,
		Mounts:  spec.Mounts(),
		prevDir: 1,
	}
	for i, m := range v.Mounts {
		v.Wheels[i] = Wheel{
			Radius:       spec.WheelRadius,
			Width:        spec.WheelWidth,
			BorderRadius: spec.WheelBorderRadius,
			Front:        m.Front,
			Left:         m.Left,
		}
	}
	return v
}

// SetControls stores clamped pedal and steering commands.
func (v *Vehicle) SetControls(gas, brake, steering float64) {
	v.Gas = lo.Clamp(gas, 0, 1)
	v.Brake = lo.Clamp(brake, 0, 1)
	v.Steering = lo.Clamp(steering, -1, 1)
}

// SmoothedTorque is the current low-passed drive torque magnitude.
func (v *Vehicle) SmoothedTorque() float64 { return v.prevTorque }

// SmoothedSteering is the current low-passed steering command.
func (v *Vehicle) SmoothedSteering() float64 { return v.prevSteering }

// Direction is the sign of the last applied pedal.
func (v *Vehicle) Direction() float64 { return v.prevDir }
