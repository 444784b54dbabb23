package model

import "time"

// OperationStatus is the lifecycle state of a tracked operation.
type OperationStatus string

const (
	OperationRunning   OperationStatus = "running"
	OperationCompleted OperationStatus = "completed"
	OperationFailed    OperationStatus = "failed"
)

// QualityTier buckets a confidence score into a coarse classification.
type QualityTier string

const (
	TierHigh   QualityTier = "high"
	TierMedium QualityTier = "medium"
	TierLow    QualityTier = "low"
)

// ProvenanceRecord is one node in the lineage graph: a single operation that
// consumed input artifacts and produced output artifacts.
type ProvenanceRecord struct {
	ID            string          `json:"id"`
	OperationType string          `json:"operation_type"`
	ToolID        string          `json:"tool_id"`
	InputRefs     []string        `json:"input_refs"`
	OutputRefs    []string        `json:"output_refs"`
	Parameters    map[string]any  `json:"parameters,omitempty"`
	Metrics       map[string]any  `json:"metrics,omitempty"`
	Status        OperationStatus `json:"status"`
	Confidence    float64         `json:"confidence"`
	QualityTier   QualityTier     `json:"quality_tier"`
	ParentID      string          `json:"parent_id,omitempty"`
	DurationMS    int64           `json:"duration_ms"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ProducesRef reports whether the record lists ref among its outputs.
func (r *ProvenanceRecord) ProducesRef(ref string) bool {
	for _, o := range r.OutputRefs {
		if o == ref {
			return true
		}
	}
	return false
}

// ConsumesRef reports whether the record lists ref among its inputs.
func (r *ProvenanceRecord) ConsumesRef(ref string) bool {
	for _, i := range r.InputRefs {
		if i == ref {
			return true
		}
	}
	return false
}

// LineageNode is an operation node in an exported lineage graph.
type LineageNode struct {
	ID            string          `json:"id"`
	OperationType string          `json:"operation_type"`
	ToolID        string          `json:"tool_id"`
	Status        OperationStatus `json:"status"`
	Confidence    float64         `json:"confidence"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LineageEdge is a typed data-flow arc between an artifact reference and an
// operation. Type "input" points artifact -> operation, "output" points
// operation -> artifact.
type LineageEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// LineageGraph is a materialized backward lineage for visualization.
type LineageGraph struct {
	Root  string        `json:"root"`
	Nodes []LineageNode `json:"nodes"`
	Edges []LineageEdge `json:"edges"`
}
