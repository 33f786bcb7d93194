// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/racedqn/autopilot/internal/model"
	"github.com/racedqn/autopilot/pkg/core"
	"gorm.io/datatypes"
)

// ErrInvalidRecord is returned for replay records whose state vectors have the wrong shape.
var ErrInvalidRecord = errors.New("invalid replay record")

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:          s.ID,
		SceneName:   s.SceneName,
		StartedAt:   s.StartedAt,
		TrackLength: s.TrackLength,
	}
}

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:          s.ID,
		SceneName:   s.SceneName,
		StartedAt:   s.StartedAt,
		TrackLength: s.TrackLength,
	}
}

// TransitionToRecord builds the wire form of a stored transition.
func TransitionToRecord(sessionID string, seq uint64, t core.Transition) core.ReplayRecord {
	return core.ReplayRecord{
		SessionID: sessionID,
		Seq:       seq,
		State:     t.State[:],
		Action:    t.Action,
		Reward:    t.Reward,
		NextState: t.NextState[:],
		Done:      t.Done,
	}
}

// TransitionsToRecords numbers ts consecutively from firstSeq.
func TransitionsToRecords(sessionID string, firstSeq uint64, ts []core.Transition) []core.ReplayRecord {
	out := make([]core.ReplayRecord, len(ts))
	for i := range ts {
		out[i] = TransitionToRecord(sessionID, firstSeq+uint64(i), ts[i])
	}
	return out
}

// RecordToTransition converts a wire record to a GORM row. An empty
// record SessionID falls back to sessionID.
func RecordToTransition(sessionID string, r core.ReplayRecord) (model.ReplayTransition, error) {
	if len(r.State) != core.StateSize || len(r.NextState) != core.StateSize {
		return model.ReplayTransition{}, fmt.Errorf("%w: state %d, next_state %d, want %d",
			ErrInvalidRecord, len(r.State), len(r.NextState), core.StateSize)
	}
	if r.Action < 0 {
		return model.ReplayTransition{}, fmt.Errorf("%w: action %d", ErrInvalidRecord, r.Action)
	}
	if r.SessionID != "" {
		sessionID = r.SessionID
	}
	if sessionID == "" {
		return model.ReplayTransition{}, fmt.Errorf("%w: missing session id", ErrInvalidRecord)
	}

	return model.ReplayTransition{
		SessionID: sessionID,
		Seq:       r.Seq,
		State:     floatsToJSON(r.State),
		Action:    r.Action,
		Reward:    r.Reward,
		NextState: floatsToJSON(r.NextState),
		Done:      r.Done,
	}, nil
}

// ReplayTransitionToRecord converts a GORM row back to its wire form.
func ReplayTransitionToRecord(t model.ReplayTransition) (core.ReplayRecord, error) {
	var state, next []float32
	if err := json.Unmarshal(t.State, &state); err != nil {
		return core.ReplayRecord{}, fmt.Errorf("decode state: %w", err)
	}
	if err := json.Unmarshal(t.NextState, &next); err != nil {
		return core.ReplayRecord{}, fmt.Errorf("decode next_state: %w", err)
	}
	return core.ReplayRecord{
		SessionID: t.SessionID,
		Seq:       t.Seq,
		State:     state,
		Action:    t.Action,
		Reward:    t.Reward,
		NextState: next,
		Done:      t.Done,
	}, nil
}

func floatsToJSON(v []float32) datatypes.JSON {
	if len(v) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(v)
	return datatypes.JSON(data)
}
