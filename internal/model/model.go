package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&ReplayTransition{},
}

// Session is one training run. The ID is a uuid assigned by the trainer.
type Session struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt   time.Time `json:"createdAt"`
	SceneName   string    `json:"sceneName" gorm:"size:127"`
	StartedAt   time.Time `json:"startedAt" gorm:"index"`
	TrackLength float64   `json:"trackLength"`
}

func (*Session) TableName() string {
	return "sessions"
}

// ReplayTransition is one persisted experience. (SessionID, Seq) is unique;
// State and NextState hold JSON float arrays.
type ReplayTransition struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	CreatedAt time.Time      `json:"createdAt"`
	SessionID string         `json:"sessionId" gorm:"size:36;not null;uniqueIndex:idx_replay_session_seq"`
	Seq       uint64         `json:"seq" gorm:"not null;uniqueIndex:idx_replay_session_seq"`
	State     datatypes.JSON `json:"state"`
	Action    int            `json:"action"`
	Reward    float32        `json:"reward"`
	NextState datatypes.JSON `json:"nextState"`
	Done      bool           `json:"done"`
}

func (*ReplayTransition) TableName() string {
	return "replay_transitions"
}
