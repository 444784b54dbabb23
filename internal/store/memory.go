package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kgas-labs/kgas/internal/model"
)

// MemoryStore is an in-process LineageStore and ArtifactStore. It backs the
// "memory" driver and the package tests.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]model.ProvenanceRecord
	artifacts map[string]model.Artifact
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]model.ProvenanceRecord),
		artifacts: make(map[string]model.Artifact),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) Save(ctx context.Context, rec *model.ProvenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *model.ProvenanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.ProvenanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	out := cloneRecord(&rec)
	return &out, nil
}

func (s *MemoryStore) GetByOutput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error) {
	return s.filter(func(r *model.ProvenanceRecord) bool { return r.ProducesRef(ref) }), nil
}

func (s *MemoryStore) GetByInput(ctx context.Context, ref string) ([]model.ProvenanceRecord, error) {
	return s.filter(func(r *model.ProvenanceRecord) bool { return r.ConsumesRef(ref) }), nil
}

func (s *MemoryStore) Query(ctx context.Context, f OperationFilter) ([]model.ProvenanceRecord, error) {
	recs := s.filter(func(r *model.ProvenanceRecord) bool {
		if f.ToolID != "" && r.ToolID != f.ToolID {
			return false
		}
		if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && r.CreatedAt.After(f.Until) {
			return false
		}
		return true
	})

	// Query returns newest first, unlike the ref lookups.
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, ref string) (*model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[ref]
	if !ok {
		return nil, nil
	}
	out := a
	out.Warnings = append([]string(nil), a.Warnings...)
	out.AuditTrail = append([]string(nil), a.AuditTrail...)
	return &out, nil
}

func (s *MemoryStore) SaveArtifact(ctx context.Context, a *model.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[a.Ref] = *a
	return nil
}

func (s *MemoryStore) filter(keep func(*model.ProvenanceRecord) bool) []model.ProvenanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ProvenanceRecord
	for id := range s.records {
		rec := s.records[id]
		if keep(&rec) {
			out = append(out, cloneRecord(&rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func cloneRecord(rec *model.ProvenanceRecord) model.ProvenanceRecord {
	out := *rec
	out.InputRefs = append([]string(nil), rec.InputRefs...)
	out.OutputRefs = append([]string(nil), rec.OutputRefs...)
	out.Warnings = append([]string(nil), rec.Warnings...)
	return out
}
