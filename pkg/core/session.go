// pkg/core/session.go
package core

import "time"

// Session identifies one training run. Persisted replay records reference it.
type Session struct {
	ID        string    `json:"id"`
	SceneName string    `json:"scene_name"`
	StartedAt time.Time `json:"started_at"`
	// TrackLength is the centerline length in metres, informational only.
	TrackLength float64 `json:"track_length,omitempty"`
}

// Dashboard is the read-only view exposed to text dashboards and metrics sinks.
type Dashboard struct {
	Epsilon      float64
	BufferLen    int
	Inserts      uint64
	Crashes      int
	Step         int
	SyncInterval int
	LastReward   float32
	LastLoss     float64
	Training     bool
}
