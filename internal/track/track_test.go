package track

import (
	"math"
	"testing"

	"github.com/racedqn/autopilot/internal/geo"
	"github.com/racedqn/autopilot/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straight(t *testing.T) *Track {
	t.Helper()
	tr, err := FromPoints([]geom.XY{{X: 0, Y: 0}, {X: 0, Y: 50}, {X: 0, Y: 100}}, 10, false)
	require.NoError(t, err)
	return tr
}

func TestNew_Validates(t *testing.T) {
	_, err := FromPoints([]geom.XY{{X: 1, Y: 1}}, 10, false)
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = FromPoints([]geom.XY{{X: 1, Y: 1}, {X: 1, Y: 1}}, 10, false)
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = FromPoints([]geom.XY{{X: 0, Y: 0}, {X: 0, Y: 1}}, 0, false)
	assert.Error(t, err)
}

func TestNew_FromParsedLine(t *testing.T) {
	ls, err := geo.ParsePolyline("[[0,0],[0,50],[0,100]]")
	require.NoError(t, err)
	tr, err := New(ls, 8, false)
	require.NoError(t, err)

	assert.Equal(t, 3, tr.Len())
	assert.Len(t, tr.Segments(), 2)
	assert.InDelta(t, tr.Line().Length(), tr.Length(), 1e-9)
}

func TestNew_DropsRepeatedClosingVertex(t *testing.T) {
	tr, err := FromPoints([]geom.XY{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 0}}, 4, false)
	require.NoError(t, err)
	assert.True(t, tr.Closed())
	assert.Equal(t, 3, tr.Len())
	assert.Len(t, tr.Segments(), 3)
	assert.InDelta(t, 20+10*math.Sqrt2, tr.Length(), 1e-9)
}

func TestQuery(t *testing.T) {
	tr := straight(t)

	q := tr.Query(geom.XY{X: 3, Y: 60})
	assert.InDelta(t, 3, q.Distance, 1e-12)
	assert.Equal(t, 1, q.Index)
	assert.InDelta(t, 0, q.Direction.X, 1e-12)
	assert.InDelta(t, 1, q.Direction.Y, 1e-12)
	assert.Equal(t, -1.0, q.Side)

	q = tr.Query(geom.XY{X: -2, Y: 10})
	assert.Equal(t, 0, q.Index)
	assert.Equal(t, 1.0, q.Side)

	assert.True(t, tr.OnRoad(geom.XY{X: 4.9, Y: 20}))
	assert.False(t, tr.OnRoad(geom.XY{X: 5.1, Y: 20}))
}

func TestOval_Closed(t *testing.T) {
	tr, err := FromPoints(Oval(100, 50, 64), 12, true)
	require.NoError(t, err)
	assert.Equal(t, 64, tr.Len())
	assert.Len(t, tr.Segments(), 64)

	q := tr.Query(geom.XY{X: 100, Y: 1})
	assert.Less(t, q.Distance, 0.5)
	// counterclockwise at (a, 0) heads +y
	assert.Greater(t, q.Direction.Y, 0.9)
}

func TestSpawnPose(t *testing.T) {
	tr, err := FromPoints([]geom.XY{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, 4, false)
	require.NoError(t, err)

	pose := tr.SpawnPose(0)
	assert.Equal(t, ToWorld(geom.XY{}), pose.Position)
	fwd := pose.Rotation.Rotate(core.Forward)
	assert.InDelta(t, 1, fwd.X, 1e-9)
	assert.InDelta(t, 0, fwd.Z, 1e-9)

	// last vertex of an open track reuses the final segment heading
	pose = tr.SpawnPose(2)
	fwd = pose.Rotation.Rotate(core.Forward)
	assert.InDelta(t, 1, fwd.Z, 1e-9)

	assert.Equal(t, tr.SpawnPose(1), tr.SpawnPose(4))
	assert.Equal(t, tr.SpawnPose(2), tr.SpawnPose(-1))
}

func TestWorldMapping(t *testing.T) {
	p := geom.XY{X: 3, Y: -7}
	assert.Equal(t, p, FromWorld(ToWorld(p)))
	assert.Equal(t, 0.0, ToWorld(p).Y)
}
