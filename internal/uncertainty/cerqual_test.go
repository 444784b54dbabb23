package uncertainty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgas-labs/kgas/internal/model"
)

func study(limitations int, contextMatch, richness, agreement float64) model.StudyMetadata {
	s := model.StudyMetadata{
		ContextMatch:     contextMatch,
		DataRichness:     richness,
		FindingAgreement: agreement,
	}
	for i := 0; i < limitations; i++ {
		s.MethodologicalLimitations = append(s.MethodologicalLimitations, "limitation")
	}
	return s
}

func TestAssessFindingNoStudies(t *testing.T) {
	assessment := AssessFinding(model.CERQualEvidence{Finding: "f"})

	assert.Equal(t, model.CERQualVeryLow, assessment.Overall)
	assert.Contains(t, assessment.Rationale, "no contributing studies")
}

func TestAssessFindingStrongEvidence(t *testing.T) {
	ev := model.CERQualEvidence{
		Finding: "treatment adherence improves with reminders",
		Studies: []model.StudyMetadata{
			study(0, 0.9, 0.9, 0.95),
			study(0, 0.85, 0.8, 0.9),
			study(1, 0.9, 0.85, 0.92),
			study(0, 0.95, 0.9, 0.88),
			study(0, 0.8, 0.75, 0.9),
		},
	}

	assessment := AssessFinding(ev)

	assert.Equal(t, model.CERQualHigh, assessment.Overall)
	assert.Greater(t, assessment.MethodologicalLimitations, 0.9)
	assert.Greater(t, assessment.Coherence, 0.85)
	require.NotEmpty(t, assessment.Rationale)
}

func TestAssessFindingDisagreementLowersCoherence(t *testing.T) {
	ev := model.CERQualEvidence{
		Finding: "contested finding",
		Studies: []model.StudyMetadata{
			study(0, 0.8, 0.8, 0.9),
			study(0, 0.8, 0.8, 0.05),
		},
	}

	assessment := AssessFinding(ev)
	assert.InDelta(t, 0.475, assessment.Coherence, 1e-9)
	assert.Contains(t, assessment.Rationale, "contributing studies disagree on the finding")
}

func TestAssessFindingHeavyLimitations(t *testing.T) {
	ev := model.CERQualEvidence{
		Finding: "weak finding",
		Studies: []model.StudyMetadata{
			study(6, 0.5, 0.4, 0.6),
		},
	}

	assessment := AssessFinding(ev)
	assert.InDelta(t, 0.4, assessment.MethodologicalLimitations, 1e-9)
	assert.Contains(t, assessment.Rationale, "serious methodological limitations across contributing studies")
	assert.NotEqual(t, model.CERQualHigh, assessment.Overall)
}

func TestToConfidenceScore(t *testing.T) {
	assessment := model.CERQualAssessment{
		MethodologicalLimitations: 0.8,
		Relevance:                 0.7,
		Coherence:                 0.9,
		Adequacy:                  0.6,
		Overall:                   model.CERQualModerate,
	}

	score := ToConfidenceScore(assessment, "clinical")
	assert.InDelta(t, 0.6, score.Value, 1e-9)
	assert.InDelta(t, 0.8, score.MethodologicalQuality, 1e-9)
	assert.Equal(t, "clinical", score.Domain)
	assert.Equal(t, "cerqual_assessment", score.ConfidenceType)
}
