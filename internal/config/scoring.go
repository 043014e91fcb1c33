package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/gesture"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

// ScoringConfig tunes heat-map scoring and gesture thresholds.
type ScoringConfig struct {
	Scheme          string        `yaml:"scheme"`
	PenaltyWeight   float64       `yaml:"penalty_weight"`
	MaxLevel        int           `yaml:"max_level"`
	MoveThresholdPx float64       `yaml:"move_threshold_px"`
	TapMaxDuration  time.Duration `yaml:"tap_max_duration"`
}

// DefaultScoring returns the built-in tuning.
func DefaultScoring() ScoringConfig {
	p := aggregate.DefaultParams()
	th := gesture.DefaultThresholds()
	return ScoringConfig{
		Scheme:          string(p.Scheme),
		PenaltyWeight:   p.PenaltyWeight,
		MaxLevel:        int(p.MaxLevel),
		MoveThresholdPx: th.MoveDistance,
		TapMaxDuration:  th.TapMaxDuration,
	}
}

// LoadScoringConfig reads a YAML scoring file over the defaults. An empty
// path returns the defaults.
func LoadScoringConfig(path string) (ScoringConfig, error) {
	cfg := DefaultScoring()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ScoringConfig{}, fmt.Errorf("read scoring config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ScoringConfig{}, fmt.Errorf("parse scoring config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return ScoringConfig{}, err
	}
	return cfg, nil
}

func (c ScoringConfig) validate() error {
	if _, err := aggregate.ParseScheme(c.Scheme); err != nil {
		return fmt.Errorf("scoring config: %w", err)
	}
	if c.PenaltyWeight <= 0 {
		return fmt.Errorf("scoring config: penalty_weight must be positive, got %v", c.PenaltyWeight)
	}
	if c.MaxLevel < int(grid.Ideal) || c.MaxLevel > int(grid.MaxLevel) {
		return fmt.Errorf("scoring config: max_level must be in [%d,%d], got %d", grid.Ideal, grid.MaxLevel, c.MaxLevel)
	}
	if c.MoveThresholdPx < 0 {
		return fmt.Errorf("scoring config: move_threshold_px is negative")
	}
	if c.TapMaxDuration < 0 {
		return fmt.Errorf("scoring config: tap_max_duration is negative")
	}
	return nil
}

// Params returns the aggregation parameters.
func (c ScoringConfig) Params() aggregate.Params {
	scheme, _ := aggregate.ParseScheme(c.Scheme)
	return aggregate.Params{
		Scheme:        scheme,
		PenaltyWeight: c.PenaltyWeight,
		MaxLevel:      grid.Level(c.MaxLevel),
	}
}

// Thresholds returns the touch tap/drag thresholds.
func (c ScoringConfig) Thresholds() gesture.Thresholds {
	return gesture.Thresholds{MoveDistance: c.MoveThresholdPx, TapMaxDuration: c.TapMaxDuration}
}

// PenaltyBelowMaxLevel reports whether a silent member would score better
// than one who marked the least preferred level.
func (c ScoringConfig) PenaltyBelowMaxLevel() bool {
	return c.PenaltyWeight < float64(c.MaxLevel)
}
