// pkg/core/transition.go
package core

// Observation layout.
const (
	// SensorCount is the number of ray probes mounted on every vehicle.
	SensorCount = 31
	// StateSizeBase counts the kinematic/track entries that precede the sensor readings.
	StateSizeBase = 5
	// StateSize is the length of an Observation.
	StateSize = StateSizeBase + SensorCount
)

// Indices of the kinematic entries of an Observation.
const (
	ObsVelocityRatio = iota
	ObsYawRate
	ObsLateralOffset
	ObsVelocityHeadingCos
	ObsPositionHeadingCos
	ObsFirstSensor
)

// Observation is the fixed-size state vector fed to the agent:
// [velocity_ratio, yaw_rate, lateral_offset_norm, velocity_heading_cosine,
// position_heading_cosine, sensor_0..sensor_30].
type Observation [StateSize]float32

// Sensors returns the sensor part of the observation.
func (o *Observation) Sensors() []float32 {
	return o[ObsFirstSensor:]
}

// Float64s widens the observation for the network.
func (o Observation) Float64s() []float64 {
	out := make([]float64, StateSize)
	for i, v := range o {
		out[i] = float64(v)
	}
	return out
}

// Transition is one stored experience. Immutable once stored.
type Transition struct {
	State     Observation
	Action    int
	Reward    float32
	NextState Observation
	Done      bool
}

// ReplayRecord is the wire form of a Transition used by the persistence endpoint.
// SessionID and Seq identify the record; the pair is unique server side.
type ReplayRecord struct {
	SessionID string    `json:"session_id,omitempty"`
	Seq       uint64    `json:"seq"`
	State     []float32 `json:"state"`
	Action    int       `json:"action"`
	Reward    float32   `json:"reward"`
	NextState []float32 `json:"next_state"`
	Done      bool      `json:"done"`
}
