package store

import (
	"context"
	"time"

	"github.com/kgas-labs/kgas/internal/model"
)

// OperationFilter specifies criteria for querying provenance records.
type OperationFilter struct {
	ToolID string    `json:"tool_id,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Until  time.Time `json:"until,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// LineageStore persists provenance records and supports the access patterns
// the tracker's lineage traversal needs. Get returns (nil, nil) when the id
// is unknown; traversal treats absence as a terminated branch, not an error.
type LineageStore interface {
	Save(ctx context.Context, rec *model.ProvenanceRecord) error
	Update(ctx context.Context, rec *model.ProvenanceRecord) error
	Get(ctx context.Context, id string) (*model.ProvenanceRecord, error)
	GetByOutput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error)
	GetByInput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error)
	Query(ctx context.Context, filter OperationFilter) ([]model.ProvenanceRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Store is the full persistence surface: lineage plus artifacts. All three
// backends (sqlite, postgres, memory) implement it.
type Store interface {
	LineageStore
	ArtifactStore
}

// ArtifactStore resolves opaque reference strings to artifacts. Resolve
// returns (nil, nil) for unknown references so quality assessment can degrade
// gracefully over partially-missing data.
type ArtifactStore interface {
	Resolve(ctx context.Context, ref string) (*model.Artifact, error)
	SaveArtifact(ctx context.Context, a *model.Artifact) error
}
