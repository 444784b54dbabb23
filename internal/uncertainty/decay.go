package uncertainty

import (
	"math"
	"time"

	"github.com/kgas-labs/kgas/internal/model"
)

// DecayConfig tunes temporal decay of confidence scores.
type DecayConfig struct {
	// HalfLifeDays is the age at which the decay factor reaches 0.5.
	HalfLifeDays int `yaml:"half_life_days" mapstructure:"half_life_days"`

	// Floor is the minimum decay factor; scores never decay past it.
	Floor float64 `yaml:"floor" mapstructure:"floor"`
}

// DefaultDecayConfig returns a one-year half-life with a 0.1 floor.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{HalfLifeDays: 365, Floor: 0.1}
}

// DecayFactor computes the temporal decay factor for an assessment made at
// assessedAt. Formula: max(floor, 2^(-ageDays / halfLifeDays)).
func DecayFactor(assessedAt, now time.Time, cfg DecayConfig) float64 {
	if assessedAt.IsZero() {
		// No timestamp — assume current.
		return 1.0
	}

	ageDays := now.Sub(assessedAt).Hours() / 24
	if ageDays <= 0 {
		return 1.0
	}

	halfLife := float64(cfg.HalfLifeDays)
	if halfLife <= 0 {
		halfLife = 365
	}

	factor := math.Pow(2, -ageDays/halfLife)
	if factor < cfg.Floor {
		return cfg.Floor
	}
	return factor
}

// RefreshDecay returns a copy of score with its temporal decay factor
// recomputed from the age of its last update. Read paths call this before
// combining a stored score into anything downstream.
func RefreshDecay(score model.ConfidenceScore, now time.Time, cfg DecayConfig) model.ConfidenceScore {
	next := score.Clone()
	next.TemporalDecayFactor = DecayFactor(score.LastUpdated, now, cfg)
	return next
}
