// Package calibration reconciles two independently-derived confidence
// estimates for the same claim: one elicited from contextual language
// understanding, one computed by formal Bayesian aggregation. Neither
// estimate overrides the other; each pulls the other toward itself with a
// strength set by how much of its kind of signal the evidence text carries.
package calibration

import (
	"math"
	"strings"
)

// Config tunes the mutual-adjustment loop.
type Config struct {
	// MaxIterations bounds the adjustment loop.
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`

	// Rate is the fraction of the computed pull applied per iteration.
	Rate float64 `yaml:"rate" mapstructure:"rate"`

	// ConvergenceThreshold ends the loop once the estimates agree within it.
	ConvergenceThreshold float64 `yaml:"convergence_threshold" mapstructure:"convergence_threshold"`

	// Bounds for both estimates throughout the loop.
	Floor   float64 `yaml:"floor" mapstructure:"floor"`
	Ceiling float64 `yaml:"ceiling" mapstructure:"ceiling"`
}

// DefaultConfig returns the standard calibration tuning.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        5,
		Rate:                 0.3,
		ConvergenceThreshold: 0.15,
		Floor:                0.05,
		Ceiling:              0.95,
	}
}

// Result reports the reconciled estimates.
type Result struct {
	Contextual float64 `json:"contextual"`
	Bayesian   float64 `json:"bayesian"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`

	// ForcedCompromise is set when the loop hit its iteration limit and both
	// values collapsed to their harmonic mean.
	ForcedCompromise bool `json:"forced_compromise,omitempty"`
}

// Protocol runs the cross-calibration loop.
type Protocol struct {
	cfg Config
}

// NewProtocol creates a Protocol; a zero config gets defaults.
func NewProtocol(cfg Config) *Protocol {
	if cfg.MaxIterations == 0 {
		cfg = DefaultConfig()
	}
	return &Protocol{cfg: cfg}
}

// Marker vocabularies. The contextual density of the evidence text weights
// how hard the contextual estimate pulls the Bayesian one, and vice versa.
var (
	contextualMarkers = []string{
		"suggests", "appears", "likely", "seems", "implies", "indicates",
		"context", "generally", "typically", "arguably", "plausible",
		"consistent with", "in line with",
	}
	statisticalMarkers = []string{
		"probability", "frequency", "rate", "sample", "correlation",
		"significant", "variance", "distribution", "percent", "measured",
		"observed", "p-value", "confidence interval",
	}
)

// Calibrate runs mutual adjustment between a contextual and a Bayesian
// estimate over the given evidence text. Estimates already within the
// convergence threshold return immediately with zero iterations.
func (p *Protocol) Calibrate(contextual, bayesian float64, evidenceText string) Result {
	contextual = p.clamp(contextual)
	bayesian = p.clamp(bayesian)

	contextualWeight := markerDensity(evidenceText, contextualMarkers)
	statisticalWeight := markerDensity(evidenceText, statisticalMarkers)

	res := Result{Contextual: contextual, Bayesian: bayesian}
	for res.Iterations < p.cfg.MaxIterations {
		diff := math.Abs(res.Contextual - res.Bayesian)
		if diff <= p.cfg.ConvergenceThreshold {
			res.Converged = true
			return res
		}

		// Both pulls are computed from the same pre-iteration values and
		// applied simultaneously.
		pullOnBayesian := (res.Contextual - res.Bayesian) * contextualWeight
		pullOnContextual := (res.Bayesian - res.Contextual) * statisticalWeight

		res.Bayesian = p.clamp(res.Bayesian + p.cfg.Rate*pullOnBayesian)
		res.Contextual = p.clamp(res.Contextual + p.cfg.Rate*pullOnContextual)
		res.Iterations++
	}

	if math.Abs(res.Contextual-res.Bayesian) <= p.cfg.ConvergenceThreshold {
		res.Converged = true
		return res
	}

	// Out of iterations without agreement: collapse both to the harmonic
	// mean as a forced compromise.
	hm := harmonicMean(res.Contextual, res.Bayesian)
	res.Contextual = p.clamp(hm)
	res.Bayesian = res.Contextual
	res.Converged = true
	res.ForcedCompromise = true
	return res
}

// MutualConsistency blends agreement between the two final estimates with,
// when available, each estimate's proximity to ground truth. groundTruth may
// be nil.
func (p *Protocol) MutualConsistency(contextual, bayesian float64, groundTruth *float64) float64 {
	agreement := 1.0 - math.Abs(contextual-bayesian)
	if groundTruth == nil {
		return clamp01(agreement)
	}

	proximity := 1.0 - (math.Abs(contextual-*groundTruth)+math.Abs(bayesian-*groundTruth))/2.0
	return clamp01(0.6*agreement + 0.4*proximity)
}

// markerDensity is the fraction of vocabulary markers present in the text,
// floored so a markerless text still permits slow mutual adjustment.
func markerDensity(text string, markers []string) float64 {
	if text == "" {
		return 0.5
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, m := range markers {
		if strings.Contains(lower, m) {
			hits++
		}
	}
	density := float64(hits) / float64(len(markers))
	if density < 0.2 {
		return 0.2
	}
	if density > 1 {
		return 1
	}
	return density
}

func harmonicMean(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}

func (p *Protocol) clamp(v float64) float64 {
	if v < p.cfg.Floor {
		return p.cfg.Floor
	}
	if v > p.cfg.Ceiling {
		return p.cfg.Ceiling
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
