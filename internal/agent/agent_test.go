package agent

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/racedqn/autopilot/internal/replay"
	"github.com/racedqn/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HiddenSize = 8
	cfg.HiddenLayers = 1
	cfg.BatchSize = 2
	cfg.Epochs = 1
	cfg.SyncInterval = 3
	return cfg
}

func filledBuffer(n int) *replay.Buffer {
	rng := rand.New(rand.NewSource(42))
	b := replay.New(64)
	for i := 0; i < n; i++ {
		var tr core.Transition
		for j := range tr.State {
			tr.State[j] = float32(rng.Float64())
			tr.NextState[j] = float32(rng.Float64())
		}
		tr.Action = i % NumActions
		tr.Reward = float32(rng.Float64()*2 - 1)
		tr.Done = i%5 == 4
		b.Store(tr)
	}
	return b
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNew_TargetStartsEqual(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	assert.True(t, a.Online().Equal(a.Target()))
	assert.Equal(t, 1.0, a.Epsilon())
}

func TestArgmax(t *testing.T) {
	nan := math.NaN()
	assert.Equal(t, 1, Argmax([]float64{1, 3, 3}))
	assert.Equal(t, 0, Argmax([]float64{2, 2, 2}))
	assert.Equal(t, 1, Argmax([]float64{nan, 2, 1}))
	assert.Equal(t, 2, Argmax([]float64{-5, nan, -1}))
	assert.Equal(t, 0, Argmax([]float64{nan, nan}))
	assert.Equal(t, 0, Argmax(nil))
}

func TestAct_Greedy(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEps, cfg.MinEps = 0, 0
	a, err := New(cfg, nil)
	require.NoError(t, err)

	var obs core.Observation
	obs[core.ObsVelocityRatio] = 0.5
	obs[core.ObsFirstSensor] = 0.9
	want := Argmax(a.Online().Forward(obs.Float64s()))
	for i := 0; i < 10; i++ {
		assert.Equal(t, want, a.Act(obs))
	}
}

func TestAct_AlwaysValid(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		act := a.Act(core.Observation{})
		assert.GreaterOrEqual(t, act, 0)
		assert.Less(t, act, NumActions)
	}
}

func TestStep_EpsilonMonotonicAndFloored(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEps, cfg.MinEps, cfg.EpsDecay = 1, 0.1, 0.3
	a, err := New(cfg, nil)
	require.NoError(t, err)

	buf := replay.New(4)
	prev := a.Epsilon()
	for i := 0; i < 10; i++ {
		rep := a.Step(buf)
		assert.LessOrEqual(t, rep.Epsilon, prev)
		assert.GreaterOrEqual(t, rep.Epsilon, cfg.MinEps)
		assert.False(t, rep.Dispatched)
		prev = rep.Epsilon
	}
	assert.Equal(t, 0.1, a.Epsilon())
	assert.Equal(t, 10, a.Steps())
}

func TestStep_TargetSyncPeriodicity(t *testing.T) {
	cfg := testConfig()
	cfg.Inline = true
	a, err := New(cfg, nil)
	require.NoError(t, err)
	buf := filledBuffer(10)

	target := a.Target().Clone()
	for step := 1; step <= 12; step++ {
		before := a.Online().Clone()
		rep := a.Step(buf)

		require.Equal(t, step%cfg.SyncInterval == 0, rep.Synced, "step %d", step)
		require.True(t, rep.Dispatched)
		if rep.Synced {
			assert.True(t, a.Target().Equal(before), "target differs from online at sync step %d", step)
			target = a.Target().Clone()
		} else {
			assert.True(t, a.Target().Equal(target), "target changed at step %d", step)
		}
	}
}

func TestStep_NoSyncWithoutEnoughData(t *testing.T) {
	cfg := testConfig()
	cfg.Inline = true
	cfg.SyncInterval = 1
	a, err := New(cfg, nil)
	require.NoError(t, err)

	rep := a.Step(filledBuffer(2 * cfg.BatchSize))
	assert.False(t, rep.Synced)
	assert.True(t, rep.Dispatched)
}

func TestStep_InlineInstallsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.Inline = true
	a, err := New(cfg, nil)
	require.NoError(t, err)

	before := a.Online().Clone()
	rep := a.Step(filledBuffer(4))
	assert.True(t, rep.Dispatched)
	assert.False(t, a.InFlight())
	assert.False(t, a.Online().Equal(before))
	assert.Equal(t, 0, a.Poll())
}

func TestStep_SingleJobInFlight(t *testing.T) {
	cfg := testConfig()
	a, err := New(cfg, nil)
	require.NoError(t, err)
	buf := filledBuffer(8)
	before := a.Online().Clone()

	first := a.Step(buf)
	require.True(t, first.Dispatched)
	require.True(t, a.InFlight())
	assert.True(t, a.Online().Equal(before), "weights must not change until the result is polled")

	second := a.Step(buf)
	assert.False(t, second.Dispatched)

	require.Eventually(t, func() bool {
		a.Poll()
		return !a.InFlight()
	}, 5*time.Second, time.Millisecond)

	assert.False(t, a.Online().Equal(before))
	assert.True(t, a.Step(buf).Dispatched)
}
