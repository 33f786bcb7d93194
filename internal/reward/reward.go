// Package reward maps one tick of kinematic/track state to a scalar reward.
package reward

import (
	"math"
)

// LateralScale is the centerline distance (m) that maps to a lateral offset of 1.
const LateralScale = 4.0

// Crash is the reward of any tick that ends in a collision.
const Crash float32 = -1

// Inputs is one tick of reward-relevant state.
type Inputs struct {
	VelocityRatio float64 // |velocity| / target speed, unsaturated
	VelCos        float64 // cos(velocity, track direction)
	PosCos        float64 // cos(heading, track direction)
	LateralNorm   float64 // distance from centerline / LateralScale
	Crashed       bool
}

// LateralNorm normalizes a distance from the track centerline.
func LateralNorm(dist float64) float64 {
	return dist / LateralScale
}

// SaturateRatio penalizes speeds over target: r>1 maps to 1-(r-1)/r.
func SaturateRatio(r float64) float64 {
	if r > 1 {
		return 1 - (r-1)/r
	}
	return r
}

// Compute returns the reward for one tick. Degenerate inputs yield 0.
func Compute(in Inputs) float32 {
	if in.Crashed {
		return Crash
	}
	r := SaturateRatio(in.VelocityRatio) * (in.VelCos - in.LateralNorm)
	// drifting forward while facing backward must not score
	if in.VelCos >= 0 && in.PosCos < 0 && r > 0 {
		r = -r
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return float32(r)
}
