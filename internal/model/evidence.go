package model

import "time"

// Evidence is a single observation supporting or undermining a claim.
// Evidence items are immutable once constructed; the aggregation engine
// consumes them read-only.
type Evidence struct {
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	SourceType  string    `json:"source_type,omitempty"`
	Reliability float64   `json:"reliability"`
	Timestamp   time.Time `json:"timestamp"`
}

// WeightedEvidence pairs an evidence item with a formal assessment of how it
// bears on a claim: Support in [-1, 1] (negative contradicts), Quality in
// [0, 1], and Diagnosticity in [0, 1] (how sharply it discriminates between
// competing hypotheses).
type WeightedEvidence struct {
	Evidence      Evidence `json:"evidence"`
	Support       float64  `json:"support"`
	Quality       float64  `json:"quality"`
	Diagnosticity float64  `json:"diagnosticity"`
}
