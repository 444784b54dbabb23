package uncertainty

import (
	"math"

	"github.com/kgas-labs/kgas/internal/model"
)

// BayesianConfig tunes the log-odds evidence combination.
type BayesianConfig struct {
	// LogOddsScale converts a fully-reliable, fully-diagnostic, fully-
	// supporting evidence item into a log-odds shift.
	LogOddsScale float64 `yaml:"log_odds_scale" mapstructure:"log_odds_scale"`

	// MaxLogOddsShift bounds any single item's shift at
	// reliability × MaxLogOddsShift, so low-reliability evidence can never
	// swing belief by more than its reliability fraction.
	MaxLogOddsShift float64 `yaml:"max_log_odds_shift" mapstructure:"max_log_odds_shift"`
}

// DefaultBayesianConfig returns the standard combination tuning.
func DefaultBayesianConfig() BayesianConfig {
	return BayesianConfig{
		LogOddsScale:    2.0,
		MaxLogOddsShift: 3.0,
	}
}

// EvidenceUpdate reports the outcome of one batch aggregation: the belief
// movement plus the per-batch statistics the sub-dimension updates consume.
type EvidenceUpdate struct {
	PriorBelief     float64 `json:"prior_belief"`
	PosteriorBelief float64 `json:"posterior_belief"`

	// MeanQuality is the mean quality score across the batch.
	MeanQuality float64 `json:"mean_quality"`

	// Contributions are the per-item belief-change magnitudes, each measured
	// as if the item were applied alone to the prior. Independent of batch
	// order by construction.
	Contributions []float64 `json:"contributions,omitempty"`

	// DeltaVariance is the population variance of Contributions. Low variance
	// means the batch moves belief coherently.
	DeltaVariance float64 `json:"delta_variance"`

	EvidenceCount int `json:"evidence_count"`
}

// BayesianEngine combines weighted evidence into a posterior belief. The
// combination is a commutative sum in log-odds space, so any permutation of
// a batch yields the same posterior.
type BayesianEngine struct {
	cfg BayesianConfig
}

// NewBayesianEngine creates an engine; a zero config gets defaults.
func NewBayesianEngine(cfg BayesianConfig) *BayesianEngine {
	if cfg.LogOddsScale == 0 {
		cfg = DefaultBayesianConfig()
	}
	return &BayesianEngine{cfg: cfg}
}

// AggregateBatch folds a batch of weighted evidence into prior, returning the
// posterior and the batch statistics. An empty batch returns the prior
// unchanged.
func (e *BayesianEngine) AggregateBatch(prior float64, batch []model.WeightedEvidence) EvidenceUpdate {
	prior = clampBelief(prior)
	update := EvidenceUpdate{
		PriorBelief:     prior,
		PosteriorBelief: prior,
		EvidenceCount:   len(batch),
	}
	if len(batch) == 0 {
		return update
	}

	priorLO := logOdds(prior)

	var totalShift, qualitySum float64
	update.Contributions = make([]float64, len(batch))
	for i := range batch {
		shift := e.shift(&batch[i])
		totalShift += shift
		qualitySum += batch[i].Quality
		update.Contributions[i] = math.Abs(sigmoid(priorLO+shift) - prior)
	}

	update.PosteriorBelief = clampBelief(sigmoid(priorLO + totalShift))
	update.MeanQuality = qualitySum / float64(len(batch))
	update.DeltaVariance = populationVariance(update.Contributions)
	return update
}

// UpdateBelief applies a single evidence item to prior.
func (e *BayesianEngine) UpdateBelief(prior float64, ev model.WeightedEvidence) float64 {
	prior = clampBelief(prior)
	return clampBelief(sigmoid(logOdds(prior) + e.shift(&ev)))
}

// shift is the signed log-odds contribution of one evidence item: support
// direction scaled by reliability and diagnosticity, magnitude capped at the
// item's reliability fraction of the maximum shift.
func (e *BayesianEngine) shift(ev *model.WeightedEvidence) float64 {
	reliability := clamp01(ev.Evidence.Reliability)
	diagnosticity := clamp01(ev.Diagnosticity)
	support := ev.Support
	if support > 1 {
		support = 1
	} else if support < -1 {
		support = -1
	}

	shift := e.cfg.LogOddsScale * support * reliability * (0.5 + 0.5*diagnosticity)

	cap := reliability * e.cfg.MaxLogOddsShift
	if shift > cap {
		shift = cap
	} else if shift < -cap {
		shift = -cap
	}
	return shift
}

func logOdds(p float64) float64 {
	return math.Log(p / (1 - p))
}

func sigmoid(lo float64) float64 {
	return 1 / (1 + math.Exp(-lo))
}

// clampBelief keeps a probability away from hard certainty so log-odds stays
// finite and later updates remain possible.
func clampBelief(p float64) float64 {
	if p < 0.001 {
		return 0.001
	}
	if p > 0.999 {
		return 0.999
	}
	return p
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

func populationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return sq / float64(len(values))
}
