package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/racedqn/autopilot/internal/vehicle"
)

// DefaultPersistBatchSize is the insert cadence of the persist hook.
const DefaultPersistBatchSize = 100

// Config holds the training loop settings.
type Config struct {
	Cars             int           `json:"cars" mapstructure:"cars"`
	ControlPeriod    time.Duration `json:"controlPeriod" mapstructure:"controlPeriod"`
	RespawnDelay     time.Duration `json:"respawnDelay" mapstructure:"respawnDelay"`
	TargetSpeed      float64       `json:"targetSpeed" mapstructure:"targetSpeed"`
	SensorRange      float64       `json:"sensorRange" mapstructure:"sensorRange"`
	PersistBatchSize int           `json:"persistBatchSize" mapstructure:"persistBatchSize"`
	Seed             int64         `json:"seed" mapstructure:"seed"`
	Vehicle          vehicle.Spec  `json:"vehicle" mapstructure:"vehicle"`
}

// DefaultConfig returns a single-car setup.
func DefaultConfig() Config {
	return Config{
		Cars:             1,
		ControlPeriod:    100 * time.Millisecond,
		RespawnDelay:     time.Second,
		TargetSpeed:      25,
		SensorRange:      40,
		PersistBatchSize: DefaultPersistBatchSize,
		Seed:             1,
		Vehicle:          vehicle.DefaultSpec(),
	}
}

// Validate checks for settings the loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Cars < 1 {
		errs = append(errs, fmt.Errorf("cars must be at least 1, got %d", c.Cars))
	}
	if c.ControlPeriod < 0 || c.RespawnDelay < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.TargetSpeed <= 0 {
		errs = append(errs, fmt.Errorf("targetSpeed must be positive, got %g", c.TargetSpeed))
	}
	if c.SensorRange <= 0 {
		errs = append(errs, fmt.Errorf("sensorRange must be positive, got %g", c.SensorRange))
	}
	if c.PersistBatchSize < 1 {
		errs = append(errs, fmt.Errorf("persistBatchSize must be at least 1, got %d", c.PersistBatchSize))
	}
	if err := c.Vehicle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("vehicle: %w", err))
	}
	return errors.Join(errs...)
}
