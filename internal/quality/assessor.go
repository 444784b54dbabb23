package quality

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kgas-labs/kgas/internal/model"
	"github.com/kgas-labs/kgas/internal/store"
)

// Assessment methods.
const (
	MethodAutomatic = "automatic"
	MethodMinimum   = "minimum"
	MethodMean      = "mean"
)

// reportConcurrency bounds parallel assessments in Report.
const reportConcurrency = 8

// topWarningCount is how many warning strings a report surfaces.
const topWarningCount = 10

// ConfidenceDeriver supplies provenance-derived confidence for a reference.
// The tracker satisfies it; tests substitute stubs.
type ConfidenceDeriver interface {
	DerivedConfidence(ctx context.Context, ref string) (float64, error)
}

// Config holds the tunable weights and thresholds of the assessor. Every
// value here is a default, not a law; override via configuration.
type Config struct {
	// Component weights for the "automatic" method.
	InherentWeight     float64 `yaml:"inherent_weight" mapstructure:"inherent_weight"`
	ProvenanceWeight   float64 `yaml:"provenance_weight" mapstructure:"provenance_weight"`
	ConsistencyWeight  float64 `yaml:"consistency_weight" mapstructure:"consistency_weight"`
	CompletenessWeight float64 `yaml:"completeness_weight" mapstructure:"completeness_weight"`

	// Tier classification thresholds.
	HighThreshold   float64 `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold" mapstructure:"medium_threshold"`

	// Warning thresholds for the overall confidence and each component.
	OverallWarnThreshold   float64 `yaml:"overall_warn_threshold" mapstructure:"overall_warn_threshold"`
	ComponentWarnThreshold float64 `yaml:"component_warn_threshold" mapstructure:"component_warn_threshold"`

	// Consistency penalties.
	MaxAttributes    int     `yaml:"max_attributes" mapstructure:"max_attributes"`
	MaxWarnings      int     `yaml:"max_warnings" mapstructure:"max_warnings"`
	AttributePenalty float64 `yaml:"attribute_penalty" mapstructure:"attribute_penalty"`
	WarningPenalty   float64 `yaml:"warning_penalty" mapstructure:"warning_penalty"`
	DuplicatePenalty float64 `yaml:"duplicate_penalty" mapstructure:"duplicate_penalty"`

	// Propagation settings.
	OperationFactors map[string]float64 `yaml:"operation_factors" mapstructure:"operation_factors"`
	DefaultFactor    float64            `yaml:"default_factor" mapstructure:"default_factor"`
	PartialPenalty   float64            `yaml:"partial_penalty" mapstructure:"partial_penalty"`
	CandidatePenalty float64            `yaml:"candidate_penalty" mapstructure:"candidate_penalty"`
	VariancePenalty  float64            `yaml:"variance_penalty" mapstructure:"variance_penalty"`

	// VarianceThreshold is the population standard deviation of input
	// qualities above which the variance penalty triggers. The source
	// default of 0.2 has no documented rationale; treat as tunable.
	VarianceThreshold float64 `yaml:"variance_threshold" mapstructure:"variance_threshold"`
}

// DefaultConfig returns the standard assessor tuning.
func DefaultConfig() Config {
	return Config{
		InherentWeight:     0.4,
		ProvenanceWeight:   0.3,
		ConsistencyWeight:  0.2,
		CompletenessWeight: 0.1,

		HighThreshold:   0.8,
		MediumThreshold: 0.5,

		OverallWarnThreshold:   0.5,
		ComponentWarnThreshold: 0.6,

		MaxAttributes:    20,
		MaxWarnings:      5,
		AttributePenalty: 0.1,
		WarningPenalty:   0.2,
		DuplicatePenalty: 0.15,

		OperationFactors: map[string]float64{
			"chunking":                0.98,
			"embedding":               0.95,
			"merge_operation":         0.95,
			"entity_extraction":       0.85,
			"relationship_extraction": 0.8,
			"pagerank":                0.9,
			"query":                   0.95,
		},
		DefaultFactor:    0.9,
		PartialPenalty:   0.8,
		CandidatePenalty: 0.9,
		VariancePenalty:  0.85,

		VarianceThreshold: 0.2,
	}
}

// Assessor computes composite quality assessments for artifacts. The lineage
// reader and artifact resolver are injected at construction; there is no
// hidden service lookup.
type Assessor struct {
	deriver   ConfidenceDeriver
	artifacts store.ArtifactStore
	cfg       Config
}

// NewAssessor creates an Assessor. A zero Config is replaced with defaults.
func NewAssessor(deriver ConfidenceDeriver, artifacts store.ArtifactStore, cfg Config) *Assessor {
	if cfg.InherentWeight == 0 && cfg.ProvenanceWeight == 0 &&
		cfg.ConsistencyWeight == 0 && cfg.CompletenessWeight == 0 {
		cfg = DefaultConfig()
	}
	return &Assessor{deriver: deriver, artifacts: artifacts, cfg: cfg}
}

// Assess computes a composite quality assessment for a reference. A reference
// that does not resolve yields a zero-confidence low-tier result with a
// warning rather than an error: quality reporting must summarize over
// partially-missing data.
func (a *Assessor) Assess(ctx context.Context, ref, method string) (*model.QualityAssessment, error) {
	if method == "" {
		method = MethodAutomatic
	}

	qa := &model.QualityAssessment{
		Ref:        ref,
		Method:     method,
		Tier:       model.TierLow,
		AssessedAt: time.Now().UTC(),
	}

	artifact, err := a.artifacts.Resolve(ctx, ref)
	if err != nil {
		return nil, eris.Wrapf(err, "quality: resolve %s", ref)
	}
	if artifact == nil {
		qa.Warnings = append(qa.Warnings, fmt.Sprintf("artifact not found: %s", ref))
		return qa, nil
	}

	scores := model.ComponentScores{
		Inherent:     artifact.Confidence,
		Consistency:  a.consistencyScore(artifact),
		Completeness: a.completenessScore(artifact),
	}

	prov, err := a.deriver.DerivedConfidence(ctx, ref)
	if err != nil {
		// Lineage unavailability degrades to provenance-neutral, with a
		// warning: assessment must not fail because history is unreadable.
		zap.L().Warn("quality: derived confidence unavailable",
			zap.String("ref", ref),
			zap.Error(err),
		)
		qa.Warnings = append(qa.Warnings, "provenance unavailable, assuming neutral lineage")
		prov = 1.0
	}
	scores.Provenance = prov
	qa.ComponentScores = scores

	qa.Confidence = a.aggregate(scores, method)
	qa.Tier = a.Tier(qa.Confidence)

	a.appendComponentWarnings(qa, scores)
	qa.Warnings = append(qa.Warnings, artifact.Warnings...)

	return qa, nil
}

// Tier classifies a confidence value using the configured thresholds.
func (a *Assessor) Tier(confidence float64) model.QualityTier {
	switch {
	case confidence >= a.cfg.HighThreshold:
		return model.TierHigh
	case confidence >= a.cfg.MediumThreshold:
		return model.TierMedium
	default:
		return model.TierLow
	}
}

func (a *Assessor) aggregate(s model.ComponentScores, method string) float64 {
	switch method {
	case MethodAutomatic:
		return clamp01(a.cfg.InherentWeight*s.Inherent +
			a.cfg.ProvenanceWeight*s.Provenance +
			a.cfg.ConsistencyWeight*s.Consistency +
			a.cfg.CompletenessWeight*s.Completeness)
	case MethodMinimum:
		return min4(s.Inherent, s.Provenance, s.Consistency, s.Completeness)
	default:
		return (s.Inherent + s.Provenance + s.Consistency + s.Completeness) / 4.0
	}
}

func (a *Assessor) consistencyScore(artifact *model.Artifact) float64 {
	score := 1.0
	if len(artifact.Attributes) > a.cfg.MaxAttributes {
		score -= a.cfg.AttributePenalty
	}
	if len(artifact.Warnings) > a.cfg.MaxWarnings {
		score -= a.cfg.WarningPenalty
	}
	if hasDuplicates(artifact.SurfaceForms) {
		score -= a.cfg.DuplicatePenalty
	}
	return clamp01(score)
}

func (a *Assessor) completenessScore(artifact *model.Artifact) float64 {
	score := 1.0
	switch artifact.Type {
	case model.ArtifactEntity:
		if artifact.CanonicalName == "" {
			score -= 0.3
		}
		if artifact.EntityType == "" {
			score -= 0.3
		}
	case model.ArtifactRelationship:
		if artifact.SourceRef == "" {
			score -= 0.25
		}
		if artifact.TargetRef == "" {
			score -= 0.25
		}
		if artifact.RelationType == "" {
			score -= 0.25
		}
	case model.ArtifactDocument, model.ArtifactChunk:
		if artifact.Content == "" {
			score -= 0.5
		}
	}
	return clamp01(score)
}

func (a *Assessor) appendComponentWarnings(qa *model.QualityAssessment, s model.ComponentScores) {
	if qa.Confidence < a.cfg.OverallWarnThreshold {
		qa.Warnings = append(qa.Warnings, fmt.Sprintf("low overall confidence: %.2f", qa.Confidence))
		qa.Recommendations = append(qa.Recommendations, "re-run extraction with a higher-quality source or manual review")
	}
	components := []struct {
		name  string
		value float64
		rec   string
	}{
		{"inherent", s.Inherent, "verify the original extraction for this artifact"},
		{"provenance", s.Provenance, "inspect upstream operations in the lineage graph"},
		{"consistency", s.Consistency, "deduplicate surface forms and prune noisy attributes"},
		{"completeness", s.Completeness, "populate the required fields for this artifact type"},
	}
	for _, c := range components {
		if c.value < a.cfg.ComponentWarnThreshold {
			qa.Warnings = append(qa.Warnings, fmt.Sprintf("low %s score: %.2f", c.name, c.value))
			qa.Recommendations = append(qa.Recommendations, c.rec)
		}
	}
}

// Propagate computes the confidence of a new artifact derived from inputRefs.
// Composition is pessimistic: the base is the minimum input quality, scaled
// by an operation-type factor and any triggered degradation penalties.
func (a *Assessor) Propagate(ctx context.Context, inputRefs []string, operationType string, parameters map[string]any) (float64, []string, error) {
	var warnings []string

	base := 1.0
	var inputQualities []float64
	for _, ref := range inputRefs {
		qa, err := a.Assess(ctx, ref, MethodAutomatic)
		if err != nil {
			return 0, nil, eris.Wrapf(err, "quality: propagate assess %s", ref)
		}
		inputQualities = append(inputQualities, qa.Confidence)
		if qa.Confidence < base {
			base = qa.Confidence
		}
	}

	factor, ok := a.cfg.OperationFactors[operationType]
	if !ok {
		factor = a.cfg.DefaultFactor
	}
	confidence := base * factor

	if flag, _ := parameters["partial_results"].(bool); flag {
		confidence *= a.cfg.PartialPenalty
		warnings = append(warnings, "partial results: confidence reduced")
	}
	if flag, _ := parameters["multiple_candidates"].(bool); flag {
		confidence *= a.cfg.CandidatePenalty
		warnings = append(warnings, "multiple candidates: confidence reduced")
	}

	if len(inputQualities) > 1 {
		if sd := stdDev(inputQualities); sd > a.cfg.VarianceThreshold {
			confidence *= a.cfg.VariancePenalty
			warnings = append(warnings, fmt.Sprintf("input quality variance %.2f exceeds threshold: confidence reduced", sd))
		}
	}

	return clamp01(confidence), warnings, nil
}

// Update applies an administrative confidence override to an artifact,
// recomputing its tier and recording the change in its audit trail.
func (a *Assessor) Update(ctx context.Context, ref string, confidence float64, warnings []string, reason string) error {
	artifact, err := a.artifacts.Resolve(ctx, ref)
	if err != nil {
		return eris.Wrapf(err, "quality: resolve %s", ref)
	}
	if artifact == nil {
		return eris.Errorf("quality: artifact not found: %s", ref)
	}

	old := artifact.Confidence
	artifact.Confidence = clamp01(confidence)
	artifact.QualityTier = a.Tier(artifact.Confidence)
	artifact.AuditTrail = append(artifact.AuditTrail,
		fmt.Sprintf("quality updated %.2f -> %.2f (%s)", old, artifact.Confidence, reason))
	artifact.Warnings = append(artifact.Warnings, warnings...)

	if err := a.artifacts.SaveArtifact(ctx, artifact); err != nil {
		return eris.Wrapf(err, "quality: save %s", ref)
	}

	zap.L().Info("quality updated",
		zap.String("ref", ref),
		zap.Float64("old", old),
		zap.Float64("new", artifact.Confidence),
		zap.String("reason", reason),
	)
	return nil
}

// Report batch-assesses a collection of references. A single reference's
// failure becomes a zero-confidence entry with a warning; the batch always
// completes.
func (a *Assessor) Report(ctx context.Context, refs []string) (*model.QualityReport, error) {
	report := &model.QualityReport{
		Total:       len(refs),
		TierCounts:  make(map[model.QualityTier]int),
		GeneratedAt: time.Now().UTC(),
	}
	if len(refs) == 0 {
		return report, nil
	}

	assessments := make([]model.QualityAssessment, len(refs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			qa, err := a.Assess(gctx, ref, MethodAutomatic)
			if err != nil {
				zap.L().Warn("quality: report item failed",
					zap.String("ref", ref),
					zap.Error(err),
				)
				qa = &model.QualityAssessment{
					Ref:        ref,
					Method:     MethodAutomatic,
					Tier:       model.TierLow,
					Warnings:   []string{fmt.Sprintf("assessment failed: %s", ref)},
					AssessedAt: time.Now().UTC(),
				}
			}
			mu.Lock()
			assessments[i] = *qa
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "quality: report")
	}

	report.Assessments = assessments
	report.MinConfidence = 1.0
	var sum float64
	warningCounts := make(map[string]int)
	var warningOrder []string

	for i := range assessments {
		qa := &assessments[i]
		sum += qa.Confidence
		if qa.Confidence < report.MinConfidence {
			report.MinConfidence = qa.Confidence
		}
		if qa.Confidence > report.MaxConfidence {
			report.MaxConfidence = qa.Confidence
		}
		report.TierCounts[qa.Tier]++
		for _, w := range qa.Warnings {
			if _, seen := warningCounts[w]; !seen {
				warningOrder = append(warningOrder, w)
			}
			warningCounts[w]++
		}
	}
	report.MeanConfidence = sum / float64(len(assessments))

	// Rank warnings by frequency; ties keep first-seen order.
	firstSeen := make(map[string]int, len(warningOrder))
	for i, w := range warningOrder {
		firstSeen[w] = i
	}
	sort.SliceStable(warningOrder, func(i, j int) bool {
		ci, cj := warningCounts[warningOrder[i]], warningCounts[warningOrder[j]]
		if ci != cj {
			return ci > cj
		}
		return firstSeen[warningOrder[i]] < firstSeen[warningOrder[j]]
	})
	for i, w := range warningOrder {
		if i >= topWarningCount {
			break
		}
		report.TopWarnings = append(report.TopWarnings, model.WarningCount{Warning: w, Count: warningCounts[w]})
	}

	return report, nil
}

// helpers

func hasDuplicates(forms []string) bool {
	seen := make(map[string]bool, len(forms))
	for _, f := range forms {
		key := strings.ToLower(strings.TrimSpace(f))
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// stdDev is the population standard deviation.
func stdDev(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
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

func min4(a, b, c, d float64) float64 {
	m := a
	for _, v := range []float64{b, c, d} {
		if v < m {
			m = v
		}
	}
	return m
}
