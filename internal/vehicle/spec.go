package vehicle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Spec holds the physical constants of a car model.
type Spec struct {
	HalfWidth  float64 `json:"halfWidth" mapstructure:"halfWidth"`
	HalfLength float64 `json:"halfLength" mapstructure:"halfLength"`
	HalfHeight float64 `json:"halfHeight" mapstructure:"halfHeight"`

	WheelRadius       float64 `json:"wheelRadius" mapstructure:"wheelRadius"`
	WheelWidth        float64 `json:"wheelWidth" mapstructure:"wheelWidth"`
	WheelBorderRadius float64 `json:"wheelBorderRadius" mapstructure:"wheelBorderRadius"`
	WheelBase         float64 `json:"wheelBase" mapstructure:"wheelBase"`
	WheelTrack        float64 `json:"wheelTrack" mapstructure:"wheelTrack"`
	WheelHeight       float64 `json:"wheelHeight" mapstructure:"wheelHeight"`

	MaxSpeed         float64 `json:"maxSpeed" mapstructure:"maxSpeed"`                 // m/s, no drive torque above
	MaxSteeringSpeed float64 `json:"maxSteeringSpeed" mapstructure:"maxSteeringSpeed"` // m/s, steering authority reaches its floor
	MaxWheelTorque   float64 `json:"maxWheelTorque" mapstructure:"maxWheelTorque"`     // N·m
	MaxWheelAngle    float64 `json:"maxWheelAngle" mapstructure:"maxWheelAngle"`       // rad
	SteeringRate     float64 `json:"steeringRate" mapstructure:"steeringRate"`         // 1/s
	TorqueRate       float64 `json:"torqueRate" mapstructure:"torqueRate"`             // 1/s
	MaxSlipFront     float64 `json:"maxSlipFront" mapstructure:"maxSlipFront"`         // m/s
	MaxSlipRear      float64 `json:"maxSlipRear" mapstructure:"maxSlipRear"`           // m/s
}

// DefaultSpec returns the stock car.
func DefaultSpec() Spec {
	return Spec{
		HalfWidth:  0.9,
		HalfLength: 2.1,
		HalfHeight: 0.5,

		WheelRadius:       0.35,
		WheelWidth:        0.25,
		WheelBorderRadius: 0.05,
		WheelBase:         2.6,
		WheelTrack:        1.6,
		WheelHeight:       -0.3,

		MaxSpeed:         45,
		MaxSteeringSpeed: 30,
		MaxWheelTorque:   1000,
		MaxWheelAngle:    math.Pi / 4,
		SteeringRate:     5,
		TorqueRate:       10,
		MaxSlipFront:     6,
		MaxSlipRear:      3,
	}
}

// Validate reports specs that would divide by zero or break the slip law.
func (s Spec) Validate() error {
	switch {
	case s.HalfWidth <= 0 || s.HalfLength <= 0:
		return fmt.Errorf("body half extents must be positive")
	case s.WheelRadius <= 0:
		return fmt.Errorf("wheel radius must be positive")
	case s.MaxSpeed <= 0 || s.MaxSteeringSpeed <= 0:
		return fmt.Errorf("max speeds must be positive")
	case s.MaxSlipFront <= 0 || s.MaxSlipRear <= 0:
		return fmt.Errorf("max slip must be positive")
	case s.MaxSlipFront < s.MaxSlipRear:
		return fmt.Errorf("front slip threshold %.2f below rear %.2f", s.MaxSlipFront, s.MaxSlipRear)
	}
	return nil
}

// WheelMount is the fixed anchor of one wheel on the body.
type WheelMount struct {
	Offset r3.Vec
	Front  bool
	Left   bool
}

// Wheel indices.
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight
	WheelCount
)

// Mounts returns the four anchors in FL, FR, RL, RR order.
func (s Spec) Mounts() [WheelCount]WheelMount {
	x := s.WheelTrack / 2
	z := s.WheelBase / 2
	y := s.WheelHeight
	return [WheelCount]WheelMount{
		FrontLeft:  {Offset: r3.Vec{X: x, Y: y, Z: z}, Front: true, Left: true},
		FrontRight: {Offset: r3.Vec{X: -x, Y: y, Z: z}, Front: true},
		RearLeft:   {Offset: r3.Vec{X: x, Y: y, Z: -z}, Left: true},
		RearRight:  {Offset: r3.Vec{X: -x, Y: y, Z: -z}},
	}
}

// ValidateMounts checks that the mounts pair up into exactly FL, FR, RL, RR.
func ValidateMounts(m [WheelCount]WheelMount) error {
	seen := map[[2]bool]bool{}
	for i, w := range m {
		key := [2]bool{w.Front, w.Left}
		if seen[key] {
			return fmt.Errorf("wheel %d duplicates front=%t left=%t", i, w.Front, w.Left)
		}
		seen[key] = true
	}
	return nil
}
