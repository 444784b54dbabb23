package model

import "time"

// ComponentScores are the four inputs to a composite quality assessment.
type ComponentScores struct {
	Inherent     float64 `json:"inherent"`
	Provenance   float64 `json:"provenance"`
	Consistency  float64 `json:"consistency"`
	Completeness float64 `json:"completeness"`
}

// QualityAssessment is the result of assessing a single artifact reference.
type QualityAssessment struct {
	Ref             string          `json:"ref"`
	Method          string          `json:"method"`
	Confidence      float64         `json:"confidence"`
	Tier            QualityTier     `json:"quality_tier"`
	ComponentScores ComponentScores `json:"component_scores"`
	Warnings        []string        `json:"warnings,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
	AssessedAt      time.Time       `json:"assessed_at"`
}

// WarningCount pairs a warning string with its occurrence count in a batch.
type WarningCount struct {
	Warning string `json:"warning"`
	Count   int    `json:"count"`
}

// QualityReport aggregates assessments over a batch of references.
type QualityReport struct {
	Total          int                 `json:"total"`
	MeanConfidence float64             `json:"mean_confidence"`
	MinConfidence  float64             `json:"min_confidence"`
	MaxConfidence  float64             `json:"max_confidence"`
	TierCounts     map[QualityTier]int `json:"tier_counts"`
	TopWarnings    []WarningCount      `json:"top_warnings,omitempty"`
	Assessments    []QualityAssessment `json:"assessments,omitempty"`
	GeneratedAt    time.Time           `json:"generated_at"`
}
