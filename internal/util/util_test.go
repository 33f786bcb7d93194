package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestZeroIfNaN(t *testing.T) {
	assert.Equal(t, 0.0, ZeroIfNaN(math.NaN()))
	assert.Equal(t, 0.0, ZeroIfNaN(math.Inf(1)))
	assert.Equal(t, 1.5, ZeroIfNaN(1.5))
}

func TestApproach(t *testing.T) {
	tests := []struct {
		name                      string
		current, target, rate, dt float64
		want                      float64
	}{
		{"half way", 0, 10, 5, 0.1, 5},
		{"no overshoot", 0, 10, 100, 1, 10},
		{"zero dt", 3, 10, 5, 0, 3},
		{"downward", 10, 0, 10, 0.05, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Approach(tt.current, tt.target, tt.rate, tt.dt), 1e-9)
		})
	}
}

func TestAngleAndCos_Degenerate(t *testing.T) {
	zero := r3.Vec{}
	fwd := r3.Vec{Z: 1}

	assert.Equal(t, 0.0, Angle(zero, fwd))
	assert.Equal(t, 0.0, Cos(zero, fwd))
	assert.InDelta(t, math.Pi, Angle(r3.Vec{Z: -1}, fwd), 1e-9)
	assert.InDelta(t, 0.0, Cos(r3.Vec{X: 1}, fwd), 1e-9)
}

func TestPlanarAndClamp01(t *testing.T) {
	assert.Equal(t, r3.Vec{X: 1, Z: 3}, Planar(r3.Vec{X: 1, Y: 2, Z: 3}))
	assert.Equal(t, 1.0, Clamp01(4))
	assert.Equal(t, 0.0, Clamp01(-4))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}
