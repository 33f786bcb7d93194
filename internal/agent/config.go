package agent

import (
	"errors"
	"fmt"
)

// Config holds the network shape and learning hyperparameters.
type Config struct {
	HiddenSize   int     `json:"hiddenSize" mapstructure:"hiddenSize"`
	HiddenLayers int     `json:"hiddenLayers" mapstructure:"hiddenLayers"`
	BatchSize    int     `json:"batchSize" mapstructure:"batchSize"`
	Epochs       int     `json:"epochs" mapstructure:"epochs"`
	Gamma        float64 `json:"gamma" mapstructure:"gamma"`
	LearningRate float64 `json:"learningRate" mapstructure:"learningRate"`
	MaxEps       float64 `json:"maxEps" mapstructure:"maxEps"`
	MinEps       float64 `json:"minEps" mapstructure:"minEps"`
	EpsDecay     float64 `json:"epsDecay" mapstructure:"epsDecay"`
	SyncInterval int     `json:"syncInterval" mapstructure:"syncInterval"`
	// Inline runs training on the calling goroutine.
	Inline bool  `json:"inline" mapstructure:"inline"`
	Seed   int64 `json:"seed" mapstructure:"seed"`
}

// DefaultConfig returns the hyperparameters used by the headless trainer.
func DefaultConfig() Config {
	return Config{
		HiddenSize:   128,
		HiddenLayers: 2,
		BatchSize:    64,
		Epochs:       4,
		Gamma:        0.99,
		LearningRate: 1e-3,
		MaxEps:       1,
		MinEps:       0.05,
		EpsDecay:     1e-4,
		SyncInterval: 500,
		Seed:         1,
	}
}

// Validate checks the configuration for values the agent cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.HiddenSize <= 0 {
		errs = append(errs, fmt.Errorf("hiddenSize must be positive, got %d", c.HiddenSize))
	}
	if c.HiddenLayers < 0 {
		errs = append(errs, fmt.Errorf("hiddenLayers must not be negative, got %d", c.HiddenLayers))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batchSize must be positive, got %d", c.BatchSize))
	}
	if c.Epochs <= 0 {
		errs = append(errs, fmt.Errorf("epochs must be positive, got %d", c.Epochs))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("syncInterval must be positive, got %d", c.SyncInterval))
	}
	if c.MinEps < 0 || c.MinEps > c.MaxEps || c.MaxEps > 1 {
		errs = append(errs, fmt.Errorf("epsilon range [%g, %g] is invalid", c.MinEps, c.MaxEps))
	}
	if c.EpsDecay < 0 {
		errs = append(errs, fmt.Errorf("epsDecay must not be negative, got %g", c.EpsDecay))
	}
	return errors.Join(errs...)
}

func (c Config) layerSizes(inputs, outputs int) []int {
	sizes := []int{inputs}
	for i := 0; i < c.HiddenLayers; i++ {
		sizes = append(sizes, c.HiddenSize)
	}
	return append(sizes, outputs)
}
