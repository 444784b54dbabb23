package quality

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgas-labs/kgas/internal/model"
	"github.com/kgas-labs/kgas/internal/store"
)

// stubDeriver returns fixed provenance confidences per ref.
type stubDeriver struct {
	confidences map[string]float64
	err         error
}

func (s *stubDeriver) DerivedConfidence(ctx context.Context, ref string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if c, ok := s.confidences[ref]; ok {
		return c, nil
	}
	return 1.0, nil
}

func newTestAssessor(t *testing.T) (*Assessor, *store.MemoryStore, *stubDeriver) {
	t.Helper()
	st := store.NewMemory()
	deriver := &stubDeriver{confidences: make(map[string]float64)}
	return NewAssessor(deriver, st, DefaultConfig()), st, deriver
}

func saveEntity(t *testing.T, st *store.MemoryStore, ref string, confidence float64) {
	t.Helper()
	require.NoError(t, st.SaveArtifact(context.Background(), &model.Artifact{
		Ref:           ref,
		Type:          model.ArtifactEntity,
		Confidence:    confidence,
		CanonicalName: "Acme Corp",
		EntityType:    "organization",
	}))
}

func TestAssessMissingArtifactSoftFails(t *testing.T) {
	assessor, _, _ := newTestAssessor(t)

	qa, err := assessor.Assess(context.Background(), "neo4j:entity:missing", MethodAutomatic)
	require.NoError(t, err)

	assert.Zero(t, qa.Confidence)
	assert.Equal(t, model.TierLow, qa.Tier)
	assert.Contains(t, qa.Warnings, "artifact not found: neo4j:entity:missing")
}

func TestAssessAutomaticWeights(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:1", 1.0)
	deriver.confidences["neo4j:entity:1"] = 1.0

	qa, err := assessor.Assess(context.Background(), "neo4j:entity:1", MethodAutomatic)
	require.NoError(t, err)

	// A complete, consistent, fully-trusted entity scores 1.0 on every
	// component.
	assert.InDelta(t, 1.0, qa.Confidence, 1e-9)
	assert.Equal(t, model.TierHigh, qa.Tier)
	assert.Empty(t, qa.Warnings)
}

func TestAssessMethodMinimum(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:2", 0.9)
	deriver.confidences["neo4j:entity:2"] = 0.4

	qa, err := assessor.Assess(context.Background(), "neo4j:entity:2", MethodMinimum)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, qa.Confidence, 1e-9)
}

func TestAssessLineageFailureDegradesToNeutral(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:3", 1.0)
	deriver.err = eris.New("store unavailable")

	qa, err := assessor.Assess(context.Background(), "neo4j:entity:3", MethodAutomatic)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, qa.ComponentScores.Provenance, 1e-9)
	assert.Contains(t, qa.Warnings, "provenance unavailable, assuming neutral lineage")
}

func TestAssessIncompleteEntityPenalized(t *testing.T) {
	assessor, st, _ := newTestAssessor(t)
	require.NoError(t, st.SaveArtifact(context.Background(), &model.Artifact{
		Ref:        "neo4j:entity:4",
		Type:       model.ArtifactEntity,
		Confidence: 0.9,
		// no canonical name, no entity type
	}))

	qa, err := assessor.Assess(context.Background(), "neo4j:entity:4", MethodAutomatic)
	require.NoError(t, err)

	assert.InDelta(t, 0.4, qa.ComponentScores.Completeness, 1e-9)
	assert.Contains(t, qa.Warnings, "low completeness score: 0.40")
	assert.NotEmpty(t, qa.Recommendations)
}

func TestAssessDuplicateSurfaceForms(t *testing.T) {
	assessor, st, _ := newTestAssessor(t)
	require.NoError(t, st.SaveArtifact(context.Background(), &model.Artifact{
		Ref:           "neo4j:entity:5",
		Type:          model.ArtifactEntity,
		Confidence:    0.9,
		CanonicalName: "Acme Corp",
		EntityType:    "organization",
		SurfaceForms:  []string{"Acme", "acme ", "ACME Corp"},
	}))

	qa, err := assessor.Assess(context.Background(), "neo4j:entity:5", MethodAutomatic)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, qa.ComponentScores.Consistency, 1e-9)
}

func TestTierThresholds(t *testing.T) {
	assessor, _, _ := newTestAssessor(t)

	tests := []struct {
		confidence float64
		want       model.QualityTier
	}{
		{0.95, model.TierHigh},
		{0.8, model.TierHigh},
		{0.79, model.TierMedium},
		{0.5, model.TierMedium},
		{0.49, model.TierLow},
		{0.0, model.TierLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, assessor.Tier(tt.confidence), "confidence %.2f", tt.confidence)
	}
}

func TestPropagateSingleInput(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:6", 0.6)
	deriver.confidences["neo4j:entity:6"] = 0.6

	// automatic composite: 0.4*0.6 + 0.3*0.6 + 0.2*1.0 + 0.1*1.0 = 0.72
	confidence, warnings, err := assessor.Propagate(context.Background(),
		[]string{"neo4j:entity:6"}, "merge_operation", nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.72*0.95, confidence, 1e-9)
	assert.Empty(t, warnings)
}

func TestPropagateEqualInputsNoVariancePenalty(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	for _, ref := range []string{"neo4j:entity:7", "neo4j:entity:8"} {
		saveEntity(t, st, ref, 0.6)
		deriver.confidences[ref] = 0.6
	}

	confidence, warnings, err := assessor.Propagate(context.Background(),
		[]string{"neo4j:entity:7", "neo4j:entity:8"}, "merge_operation", nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.72*0.95, confidence, 1e-9)
	assert.Empty(t, warnings)
}

func TestPropagateVariancePenalty(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:9", 1.0)
	deriver.confidences["neo4j:entity:9"] = 1.0
	saveEntity(t, st, "neo4j:entity:10", 0.2)
	deriver.confidences["neo4j:entity:10"] = 0.2

	confidence, warnings, err := assessor.Propagate(context.Background(),
		[]string{"neo4j:entity:9", "neo4j:entity:10"}, "merge_operation", nil)
	require.NoError(t, err)

	// min composite is 0.4*0.2 + 0.3*0.2 + 0.2 + 0.1 = 0.44
	assert.InDelta(t, 0.44*0.95*0.85, confidence, 1e-9)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "variance")
}

func TestPropagateDegradationFlags(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:11", 1.0)
	deriver.confidences["neo4j:entity:11"] = 1.0

	confidence, warnings, err := assessor.Propagate(context.Background(),
		[]string{"neo4j:entity:11"}, "unknown_operation",
		map[string]any{"partial_results": true, "multiple_candidates": true})
	require.NoError(t, err)

	assert.InDelta(t, 0.9*0.8*0.9, confidence, 1e-9)
	assert.Len(t, warnings, 2)
}

func TestUpdateRecordsAuditTrail(t *testing.T) {
	assessor, st, _ := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:12", 0.9)

	err := assessor.Update(context.Background(), "neo4j:entity:12", 0.3,
		[]string{"manual review pending"}, "conflicting extraction")
	require.NoError(t, err)

	artifact, err := st.Resolve(context.Background(), "neo4j:entity:12")
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.InDelta(t, 0.3, artifact.Confidence, 1e-9)
	assert.Equal(t, model.TierLow, artifact.QualityTier)
	assert.Contains(t, artifact.Warnings, "manual review pending")
	require.Len(t, artifact.AuditTrail, 1)
	assert.Equal(t, "quality updated 0.90 -> 0.30 (conflicting extraction)", artifact.AuditTrail[0])
}

func TestUpdateMissingArtifactErrors(t *testing.T) {
	assessor, _, _ := newTestAssessor(t)

	err := assessor.Update(context.Background(), "neo4j:entity:none", 0.5, nil, "n/a")
	require.Error(t, err)
}

func TestReportAggregates(t *testing.T) {
	assessor, st, deriver := newTestAssessor(t)
	saveEntity(t, st, "neo4j:entity:13", 1.0)
	deriver.confidences["neo4j:entity:13"] = 1.0
	saveEntity(t, st, "neo4j:entity:14", 0.5)
	deriver.confidences["neo4j:entity:14"] = 0.5

	report, err := assessor.Report(context.Background(),
		[]string{"neo4j:entity:13", "neo4j:entity:14", "neo4j:entity:gone"})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Assessments, 3)
	assert.Equal(t, 1, report.TierCounts[model.TierHigh])
	assert.Equal(t, 1, report.TierCounts[model.TierMedium])
	assert.Equal(t, 1, report.TierCounts[model.TierLow])
	assert.InDelta(t, 1.0, report.MaxConfidence, 1e-9)
	assert.Zero(t, report.MinConfidence)

	// The missing ref's warning surfaces in the top warnings.
	found := false
	for _, w := range report.TopWarnings {
		if w.Warning == "artifact not found: neo4j:entity:gone" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReportEmpty(t *testing.T) {
	assessor, _, _ := newTestAssessor(t)

	report, err := assessor.Report(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, report.Assessments)
}
