package model

import "time"

// CERQualLevel is the categorical overall confidence of a CERQual assessment.
type CERQualLevel string

const (
	CERQualHigh     CERQualLevel = "high"
	CERQualModerate CERQualLevel = "moderate"
	CERQualLow      CERQualLevel = "low"
	CERQualVeryLow  CERQualLevel = "very_low"
)

// StudyMetadata describes one study contributing to a review finding.
type StudyMetadata struct {
	StudyID    string `json:"study_id"`
	Title      string `json:"title,omitempty"`
	Authors    string `json:"authors,omitempty"`
	Year       int    `json:"year,omitempty"`
	Design     string `json:"design,omitempty"`
	SampleSize int    `json:"sample_size,omitempty"`

	// MethodologicalLimitations lists known weaknesses of the study.
	MethodologicalLimitations []string `json:"methodological_limitations,omitempty"`

	// ContextMatch is how closely the study context matches the review
	// question, in [0, 1].
	ContextMatch float64 `json:"context_match"`

	// DataRichness is the depth of qualitative data, in [0, 1].
	DataRichness float64 `json:"data_richness"`

	// FindingAgreement is how strongly the study supports the review
	// finding, in [0, 1].
	FindingAgreement float64 `json:"finding_agreement"`
}

// CERQualEvidence is the input to a CERQual-style evidence synthesis: one
// review finding plus the studies that inform it. Immutable once assessed.
type CERQualEvidence struct {
	Finding string          `json:"finding"`
	Context string          `json:"context,omitempty"`
	Studies []StudyMetadata `json:"studies"`
}

// CERQualAssessment grades a review finding on the four CERQual dimensions.
type CERQualAssessment struct {
	Finding string `json:"finding"`

	MethodologicalLimitations float64 `json:"methodological_limitations"`
	Relevance                 float64 `json:"relevance"`
	Coherence                 float64 `json:"coherence"`
	Adequacy                  float64 `json:"adequacy"`

	Overall    CERQualLevel `json:"overall_confidence"`
	Rationale  []string     `json:"rationale,omitempty"`
	AssessedAt time.Time    `json:"assessed_at"`
}
