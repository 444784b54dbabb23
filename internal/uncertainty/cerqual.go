package uncertainty

import (
	"fmt"
	"time"

	"github.com/kgas-labs/kgas/internal/model"
)

// CERQual overall-confidence thresholds on the weighted dimension score.
const (
	cerqualHighThreshold     = 0.75
	cerqualModerateThreshold = 0.5
	cerqualLowThreshold      = 0.25
)

// limitationPenalty is subtracted from the methodological-limitations
// dimension per distinct limitation reported across the studies.
const limitationPenalty = 0.1

// AssessFinding grades a review finding on the four CERQual dimensions from
// its contributing studies. Purely mechanical: no model call, so the grading
// is reproducible. A finding with no studies is graded very_low.
func AssessFinding(ev model.CERQualEvidence) model.CERQualAssessment {
	assessment := model.CERQualAssessment{
		Finding:    ev.Finding,
		Overall:    model.CERQualVeryLow,
		AssessedAt: time.Now().UTC(),
	}
	if len(ev.Studies) == 0 {
		assessment.Rationale = append(assessment.Rationale, "no contributing studies")
		return assessment
	}

	n := float64(len(ev.Studies))

	limitations := 0
	var contextSum, richnessSum, agreementSum float64
	for i := range ev.Studies {
		s := &ev.Studies[i]
		limitations += len(s.MethodologicalLimitations)
		contextSum += clamp01(s.ContextMatch)
		richnessSum += clamp01(s.DataRichness)
		agreementSum += clamp01(s.FindingAgreement)
	}

	assessment.MethodologicalLimitations = clamp01(1.0 - limitationPenalty*float64(limitations)/n)
	assessment.Relevance = contextSum / n
	assessment.Coherence = agreementSum / n

	// Adequacy rewards both data depth and study count, saturating at five
	// studies.
	countFactor := n / 5.0
	if countFactor > 1 {
		countFactor = 1
	}
	assessment.Adequacy = clamp01(0.7*(richnessSum/n) + 0.3*countFactor)

	weighted := 0.3*assessment.MethodologicalLimitations +
		0.25*assessment.Relevance +
		0.25*assessment.Coherence +
		0.2*assessment.Adequacy

	switch {
	case weighted >= cerqualHighThreshold:
		assessment.Overall = model.CERQualHigh
	case weighted >= cerqualModerateThreshold:
		assessment.Overall = model.CERQualModerate
	case weighted >= cerqualLowThreshold:
		assessment.Overall = model.CERQualLow
	default:
		assessment.Overall = model.CERQualVeryLow
	}

	assessment.Rationale = append(assessment.Rationale,
		fmt.Sprintf("%d studies, %d reported limitations, weighted dimension score %.2f", len(ev.Studies), limitations, weighted))
	if assessment.MethodologicalLimitations < 0.5 {
		assessment.Rationale = append(assessment.Rationale, "serious methodological limitations across contributing studies")
	}
	if assessment.Coherence < 0.5 {
		assessment.Rationale = append(assessment.Rationale, "contributing studies disagree on the finding")
	}
	return assessment
}

// ToConfidenceScore projects a CERQual assessment onto a ConfidenceScore so
// review findings flow through the same propagation machinery as any other
// claim.
func ToConfidenceScore(a model.CERQualAssessment, domain string) model.ConfidenceScore {
	value := map[model.CERQualLevel]float64{
		model.CERQualHigh:     0.85,
		model.CERQualModerate: 0.6,
		model.CERQualLow:      0.35,
		model.CERQualVeryLow:  0.15,
	}[a.Overall]

	score := model.NewConfidenceScore(value, domain, "cerqual_assessment")
	score.MethodologicalQuality = clampDim(a.MethodologicalLimitations)
	score.Relevance = clampDim(a.Relevance)
	score.Coherence = clampDim(a.Coherence)
	score.Adequacy = clampDim(a.Adequacy)
	return score
}
