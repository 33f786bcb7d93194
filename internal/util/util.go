// Package util provides the small numeric helpers shared by the simulation packages.
package util

import (
	"math"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ZeroIfNaN maps NaN and infinities to 0.
func ZeroIfNaN(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Approach is a first-order low-pass step: x + (target-x)*dt*rate.
// The blend factor is clamped to [0,1] so a positive rate never overshoots.
func Approach(current, target, rate, dt float64) float64 {
	k := lo.Clamp(dt*rate, 0, 1)
	return current + (target-current)*k
}

// Planar drops the vertical component of v.
func Planar(v r3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Z: v.Z}
}

// Cos returns the cosine of the angle between a and b, or 0 when either is degenerate.
func Cos(a, b r3.Vec) float64 {
	return ZeroIfNaN(lo.Clamp(r3.Cos(a, b), -1, 1))
}

// Angle returns the angle between a and b in [0, π], or 0 when either is degenerate.
func Angle(a, b r3.Vec) float64 {
	c := r3.Cos(a, b)
	if math.IsNaN(c) {
		return 0
	}
	return math.Acos(lo.Clamp(c, -1, 1))
}

// Clamp01 clamps f into [0,1]; NaN becomes 0.
func Clamp01(f float64) float64 {
	return lo.Clamp(ZeroIfNaN(f), 0, 1)
}
