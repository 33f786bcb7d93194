package sensor

import (
	"math"
	"testing"

	"github.com/racedqn/autopilot/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// wallAhead reports a hit on a plane z = at for rays travelling toward +Z.
type wallAhead struct {
	at    float64
	calls int
}

func (w *wallAhead) CastRay(origin, dir r3.Vec, maxDist float64, filter Filter) (float64, bool) {
	w.calls++
	if filter != StaticOnly {
		return 0, false
	}
	if dir.Z <= 1e-9 {
		return 0, false
	}
	d := (w.at - origin.Z) / dir.Z
	if d < 0 || d > maxDist {
		return 0, false
	}
	return d, true
}

func TestLayout_ProbeDistribution(t *testing.T) {
	probes := Layout(0.9, 2.1)
	require.Len(t, probes, core.SensorCount)

	front, side, rear := 0, 0, 0
	for _, p := range probes {
		assert.InDelta(t, 1, r3.Norm(p.Dir), 1e-9)
		switch a := math.Abs(p.Angle); {
		case a < 90:
			front++
			assert.Greater(t, p.Dir.Z, 0.0)
		case a == 90:
			side++
		default:
			rear++
			assert.Less(t, p.Origin.Z, 0.0)
		}
	}
	assert.Equal(t, 23, front)
	assert.Equal(t, 2, side)
	assert.Equal(t, 6, rear)
}

func TestLayout_RightIsNegativeX(t *testing.T) {
	probes := Layout(1, 2)
	for _, p := range probes {
		if p.Angle == 90 {
			assert.InDelta(t, -1, p.Dir.X, 1e-9)
			assert.Equal(t, -1.0, p.Origin.X)
		}
		if p.Angle == -90 {
			assert.InDelta(t, 1, p.Dir.X, 1e-9)
			assert.Equal(t, 1.0, p.Origin.X)
		}
	}
}

func TestReading(t *testing.T) {
	tests := []struct {
		name string
		dist float64
		hit  bool
		want float64
	}{
		{"miss", 10, false, 0},
		{"touching", 0, true, 0},
		{"near", 5, true, 0.9},
		{"at range", 50, true, 0},
		{"half", 25, true, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Reading(tt.dist, tt.hit, 50), 1e-9)
		})
	}
}

func TestArray_Update(t *testing.T) {
	a := New(1, 2, 20)
	wall := &wallAhead{at: 12}

	a.Update(wall, core.Pose{Rotation: core.Identity})

	assert.Equal(t, core.SensorCount, wall.calls)
	// straight ahead from the nose at z=2: distance 10 of 20
	assert.InDelta(t, 0.5, a.Readings[0], 1e-9)
	for i, p := range a.Probes {
		if p.Dir.Z <= 0 {
			assert.Equal(t, 0.0, a.Readings[i], "probe %d at %.0f°", i, p.Angle)
		}
		assert.GreaterOrEqual(t, a.Readings[i], 0.0)
		assert.LessOrEqual(t, a.Readings[i], 1.0)
	}

	var obs core.Observation
	a.Fill(&obs)
	assert.InDelta(t, 0.5, obs[core.ObsFirstSensor], 1e-6)
}

func TestArray_UpdateFollowsPose(t *testing.T) {
	a := New(1, 2, 20)
	wall := &wallAhead{at: 12}

	// facing backward the front arc sees nothing ahead in +Z
	a.Update(wall, core.Pose{Rotation: r3.NewRotation(math.Pi, core.Up)})

	assert.Equal(t, 0.0, a.Readings[0])
}
