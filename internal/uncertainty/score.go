package uncertainty

import (
	"math"
	"time"

	"github.com/kgas-labs/kgas/internal/model"
)

// Sub-dimension blend weights for evidence-driven updates. Each dimension is
// an exponential-moving blend between its prior value and the signal the new
// batch carries.
const (
	methodologyCarry = 0.7
	coherenceCarry   = 0.6
	adequacyCarry    = 0.7

	// uncertaintyDecrement is how much estimation uncertainty drops per
	// update, floored at uncertaintyFloor.
	uncertaintyDecrement = 0.05
	uncertaintyFloor     = 0.1

	// adequacySaturation is the evidence count at which adequacy's
	// logarithmic growth reaches 1.0.
	adequacySaturation = 20.0
)

// UpdateWithEvidence folds a batch of weighted evidence into a confidence
// score. The numeric belief moves through the Bayesian engine; the four
// CERQual sub-dimensions are then re-estimated from the batch statistics.
// The input score is never mutated; a new score is returned alongside the
// belief-update report.
func (e *BayesianEngine) UpdateWithEvidence(current model.ConfidenceScore, batch []model.WeightedEvidence) (model.ConfidenceScore, EvidenceUpdate) {
	update := e.AggregateBatch(current.Value, batch)

	next := current.Clone()
	if len(batch) == 0 {
		return next, update
	}

	now := time.Now().UTC()
	next.Value = update.PosteriorBelief
	next.EvidenceCount = current.EvidenceCount + len(batch)

	next.MethodologicalQuality = clampDim(
		methodologyCarry*current.MethodologicalQuality + (1-methodologyCarry)*update.MeanQuality)

	// Coherent batches move belief uniformly: map delta variance to a
	// consistency signal in [0, 1].
	consistency := 1.0 - math.Min(1.0, update.DeltaVariance*10)
	next.Coherence = clampDim(coherenceCarry*current.Coherence + (1-coherenceCarry)*consistency)

	// Adequacy grows with cumulative evidence, logarithmically saturating,
	// and never decreases: more evidence cannot make coverage worse.
	adequacySignal := math.Min(1.0, math.Log1p(float64(next.EvidenceCount))/math.Log1p(adequacySaturation))
	blended := adequacyCarry*current.Adequacy + (1-adequacyCarry)*adequacySignal
	next.Adequacy = clampDim(math.Max(current.Adequacy, blended))

	next.EstimationUncertainty = math.Max(uncertaintyFloor, current.EstimationUncertainty-uncertaintyDecrement)

	// Fresh evidence resets temporal staleness.
	next.TemporalDecayFactor = 1.0

	next.LastUpdated = now
	next.UpdateHistory = append(next.UpdateHistory, model.UpdateEntry{
		Timestamp:      now,
		Action:         model.ActionBayesianUpdate,
		PriorValue:     update.PriorBelief,
		PosteriorValue: update.PosteriorBelief,
		EvidenceAdded:  len(batch),
	})
	return next, update
}

// Translation carries the externally-computed parameters of a cross-modal
// uncertainty translation.
type Translation struct {
	// Factor scales the value across the modality boundary, bounded [0.5, 1.5].
	Factor float64

	// UncertaintyDelta is added to estimation uncertainty.
	UncertaintyDelta float64

	// Consistency becomes the score's cross-modal consistency.
	Consistency float64
}

// ConservativeTranslation is applied when the adjustment computation fails
// outright. Confidence never crosses a modality boundary unchanged.
func ConservativeTranslation() Translation {
	return Translation{Factor: 0.8, UncertaintyDelta: 0.2, Consistency: 0.6}
}

// TranslateCrossModal applies a modality translation to a score, returning a
// new score with the translation recorded in its history.
func TranslateCrossModal(current model.ConfidenceScore, t Translation, sourceModality, targetModality string) model.ConfidenceScore {
	factor := t.Factor
	if factor < 0.5 {
		factor = 0.5
	} else if factor > 1.5 {
		factor = 1.5
	}

	now := time.Now().UTC()
	next := current.Clone()
	next.Value = clampBelief(current.Value * factor)
	next.EstimationUncertainty = math.Min(1.0, current.EstimationUncertainty+t.UncertaintyDelta)
	next.CrossModalConsistency = clamp01(t.Consistency)
	next.LastUpdated = now
	next.UpdateHistory = append(next.UpdateHistory, model.UpdateEntry{
		Timestamp:      now,
		Action:         model.ActionCrossModalTranslation,
		PriorValue:     current.Value,
		PosteriorValue: next.Value,
		SourceModality: sourceModality,
		TargetModality: targetModality,
	})
	return next
}

// clampDim bounds a sub-dimension to [0.1, 1.0]: dimensions never collapse to
// zero, which would zero out every downstream combination.
func clampDim(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
