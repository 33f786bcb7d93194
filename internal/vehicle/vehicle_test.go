package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WheelLayout(t *testing.T) {
	v := New(DefaultSpec())

	require.NoError(t, ValidateMounts(v.Mounts))

	front, left := 0, 0
	for i, w := range v.Wheels {
		assert.Equal(t, v.Mounts[i].Front, w.Front)
		assert.Equal(t, v.Mounts[i].Left, w.Left)
		if w.Front {
			front++
			assert.Greater(t, v.Mounts[i].Offset.Z, 0.0)
		}
		if w.Left {
			left++
			assert.Greater(t, v.Mounts[i].Offset.X, 0.0)
		}
	}
	assert.Equal(t, 2, front)
	assert.Equal(t, 2, left)
}

func TestValidateMounts_Duplicate(t *testing.T) {
	m := DefaultSpec().Mounts()
	m[RearRight].Front = true

	assert.Error(t, ValidateMounts(m))
}

func TestSetControls_Clamps(t *testing.T) {
	v := New(DefaultSpec())
	v.SetControls(2, -1, -3)

	assert.Equal(t, 1.0, v.Gas)
	assert.Equal(t, 0.0, v.Brake)
	assert.Equal(t, -1.0, v.Steering)
}

func TestSpec_Validate(t *testing.T) {
	require.NoError(t, DefaultSpec().Validate())

	s := DefaultSpec()
	s.MaxSlipFront = 1
	assert.Error(t, s.Validate())

	s = DefaultSpec()
	s.WheelRadius = 0
	assert.Error(t, s.Validate())
}
