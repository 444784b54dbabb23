package model

import (
	"strings"
	"time"
)

// ArtifactType discriminates the kinds of artifacts the quality assessor
// understands. The type is encoded in the reference string.
type ArtifactType string

const (
	ArtifactEntity       ArtifactType = "entity"
	ArtifactRelationship ArtifactType = "relationship"
	ArtifactDocument     ArtifactType = "document"
	ArtifactChunk        ArtifactType = "chunk"
)

// Artifact is the resolved form of an opaque reference string. Only the
// fields relevant to its type are populated.
type Artifact struct {
	Ref        string         `json:"ref"`
	Type       ArtifactType   `json:"type"`
	Confidence float64        `json:"confidence"`
	Warnings   []string       `json:"warnings,omitempty"`
	AuditTrail []string       `json:"audit_trail,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	// Entity fields.
	CanonicalName string   `json:"canonical_name,omitempty"`
	EntityType    string   `json:"entity_type,omitempty"`
	SurfaceForms  []string `json:"surface_forms,omitempty"`

	// Relationship fields.
	SourceRef    string `json:"source_ref,omitempty"`
	TargetRef    string `json:"target_ref,omitempty"`
	RelationType string `json:"relation_type,omitempty"`

	// Document/chunk fields.
	Content string `json:"content,omitempty"`

	QualityTier QualityTier `json:"quality_tier,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ParseRef splits a reference of the form "backend:type:id". The core never
// interprets more of a reference than this routing prefix.
func ParseRef(ref string) (backend string, typ ArtifactType, id string, ok bool) {
	parts := strings.SplitN(ref, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], ArtifactType(parts[1]), parts[2], true
}
