package convert

import (
	"testing"
	"time"

	"github.com/racedqn/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sampleTransition() core.Transition {
	var tr core.Transition
	for i := range tr.State {
		tr.State[i] = float32(i) / 4
		tr.NextState[i] = -float32(i) / 8
	}
	tr.Action = 5
	tr.Reward = 0.75
	return tr
}

func TestSessionRoundTrip(t *testing.T) {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := core.Session{ID: "abc", SceneName: "oval", StartedAt: started, TrackLength: 1234.5}

	m := CoreToSession(s)
	assert.Equal(t, "abc", m.ID)
	assert.Equal(t, "oval", m.SceneName)
	assert.Equal(t, 1234.5, m.TrackLength)
	assert.Equal(t, s, SessionToCore(m))
}

func TestTransitionsToRecords(t *testing.T) {
	ts := []core.Transition{sampleTransition(), sampleTransition(), sampleTransition()}
	ts[2].Done = true

	recs := TransitionsToRecords("sess", 40, ts)
	require.Len(t, recs, 3)
	for i, r := range recs {
		assert.Equal(t, "sess", r.SessionID)
		assert.Equal(t, uint64(40+i), r.Seq)
		assert.Len(t, r.State, core.StateSize)
		assert.Len(t, r.NextState, core.StateSize)
	}
	assert.True(t, recs[2].Done)
	assert.Equal(t, float32(0.25), recs[0].State[1])
}

func TestRecordToTransition(t *testing.T) {
	rec := TransitionToRecord("", 7, sampleTransition())

	row, err := RecordToTransition("fallback", rec)
	require.NoError(t, err)
	assert.Equal(t, "fallback", row.SessionID)
	assert.Equal(t, uint64(7), row.Seq)
	assert.Equal(t, 5, row.Action)
	assert.Equal(t, float32(0.75), row.Reward)

	back, err := ReplayTransitionToRecord(row)
	require.NoError(t, err)
	assert.Equal(t, rec.State, back.State)
	assert.Equal(t, rec.NextState, back.NextState)
	assert.Equal(t, "fallback", back.SessionID)
}

func TestRecordToTransitionRejects(t *testing.T) {
	good := TransitionToRecord("s", 0, sampleTransition())

	tests := []struct {
		name   string
		mutate func(r *core.ReplayRecord)
		sessID string
	}{
		{"short state", func(r *core.ReplayRecord) { r.State = r.State[:3] }, "s"},
		{"missing next state", func(r *core.ReplayRecord) { r.NextState = nil }, "s"},
		{"negative action", func(r *core.ReplayRecord) { r.Action = -1 }, "s"},
		{"no session", func(r *core.ReplayRecord) { r.SessionID = "" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := good
			tt.mutate(&r)
			_, err := RecordToTransition(tt.sessID, r)
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}
}

func TestReplayTransitionToRecordBadJSON(t *testing.T) {
	row, err := RecordToTransition("s", TransitionToRecord("s", 0, sampleTransition()))
	require.NoError(t, err)
	row.State = datatypes.JSON("{not json")

	_, err = ReplayTransitionToRecord(row)
	assert.Error(t, err)
}
