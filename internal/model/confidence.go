package model

import "time"

// UpdateAction tags an entry in a ConfidenceScore's update history.
type UpdateAction string

const (
	ActionInitialAssessment        UpdateAction = "initial_assessment"
	ActionBayesianUpdate           UpdateAction = "bayesian_update"
	ActionCrossModalTranslation    UpdateAction = "cross_modal_translation"
	ActionContextualEvidenceUpdate UpdateAction = "contextual_evidence_update"
)

// UpdateEntry is one append-only audit record on a ConfidenceScore. Only the
// fields relevant to the action are populated.
type UpdateEntry struct {
	Timestamp      time.Time    `json:"timestamp"`
	Action         UpdateAction `json:"action"`
	PriorValue     float64      `json:"prior_value,omitempty"`
	PosteriorValue float64      `json:"posterior_value,omitempty"`
	EvidenceAdded  int          `json:"evidence_added,omitempty"`
	SourceModality string       `json:"source_modality,omitempty"`
	TargetModality string       `json:"target_modality,omitempty"`
	Note           string       `json:"note,omitempty"`
}

// CERQualWeights weights the four CERQual sub-dimensions when combining them
// into an overall confidence. Defaults are reasonable, not literature-mandated;
// override via configuration.
type CERQualWeights struct {
	MethodologicalQuality float64 `json:"methodological_quality" mapstructure:"methodological_quality"`
	Relevance             float64 `json:"relevance" mapstructure:"relevance"`
	Coherence             float64 `json:"coherence" mapstructure:"coherence"`
	Adequacy              float64 `json:"adequacy" mapstructure:"adequacy"`
}

// DefaultCERQualWeights returns the standard dimension weighting.
func DefaultCERQualWeights() CERQualWeights {
	return CERQualWeights{
		MethodologicalQuality: 0.3,
		Relevance:             0.25,
		Coherence:             0.25,
		Adequacy:              0.2,
	}
}

// ConfidenceScore carries a scalar belief value plus CERQual sub-dimensions and
// meta-uncertainty terms. Scores are copy-on-write: every update produces a new
// value carrying forward CreatedAt and an extended UpdateHistory, so a score
// handed to a consumer is never mutated underneath it.
type ConfidenceScore struct {
	Value float64 `json:"value"`

	MethodologicalQuality float64 `json:"methodological_quality"`
	Relevance             float64 `json:"relevance"`
	Coherence             float64 `json:"coherence"`
	Adequacy              float64 `json:"adequacy"`

	EstimationUncertainty float64 `json:"estimation_uncertainty"`
	TemporalDecayFactor   float64 `json:"temporal_decay_factor"`
	CrossModalConsistency float64 `json:"cross_modal_consistency"`

	EvidenceCount  int           `json:"evidence_count"`
	UpdateHistory  []UpdateEntry `json:"update_history,omitempty"`
	Domain         string        `json:"domain,omitempty"`
	ConfidenceType string        `json:"confidence_type,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewConfidenceScore creates an initial score with neutral meta-uncertainty.
func NewConfidenceScore(value float64, domain, confidenceType string) ConfidenceScore {
	now := time.Now().UTC()
	return ConfidenceScore{
		Value:                 clamp01(value),
		MethodologicalQuality: 0.5,
		Relevance:             0.5,
		Coherence:             0.5,
		Adequacy:              0.5,
		EstimationUncertainty: 0.5,
		TemporalDecayFactor:   1.0,
		CrossModalConsistency: 1.0,
		Domain:                domain,
		ConfidenceType:        confidenceType,
		CreatedAt:             now,
		LastUpdated:           now,
		UpdateHistory: []UpdateEntry{{
			Timestamp:      now,
			Action:         ActionInitialAssessment,
			PosteriorValue: clamp01(value),
		}},
	}
}

// OverallConfidence combines value, sub-dimensions, and meta-uncertainty into
// a single scalar using the default weights.
func (s ConfidenceScore) OverallConfidence() float64 {
	return s.OverallConfidenceWith(DefaultCERQualWeights())
}

// OverallConfidenceWith is OverallConfidence with explicit dimension weights.
// The result is always in [0.01, 0.99] so downstream multiplication never
// degenerates to hard zero or hard certainty.
func (s ConfidenceScore) OverallConfidenceWith(w CERQualWeights) float64 {
	dims := w.MethodologicalQuality*s.MethodologicalQuality +
		w.Relevance*s.Relevance +
		w.Coherence*s.Coherence +
		w.Adequacy*s.Adequacy

	penalty := 0.7*(1.0-s.EstimationUncertainty) +
		0.2*s.TemporalDecayFactor +
		0.1*s.CrossModalConsistency

	overall := s.Value * dims * penalty
	if overall < 0.01 {
		return 0.01
	}
	if overall > 0.99 {
		return 0.99
	}
	return overall
}

// Clone returns a deep copy with an independent update history slice.
func (s ConfidenceScore) Clone() ConfidenceScore {
	out := s
	out.UpdateHistory = make([]UpdateEntry, len(s.UpdateHistory))
	copy(out.UpdateHistory, s.UpdateHistory)
	return out
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
