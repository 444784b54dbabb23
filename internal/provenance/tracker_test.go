package provenance

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgas-labs/kgas/internal/model"
	"github.com/kgas-labs/kgas/internal/store"
)

func newTestTracker(t *testing.T) (*Tracker, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	return NewTracker(st), st
}

func TestStartCompleteOperation(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	id, err := tracker.StartOperation(ctx, "entity_extraction", "t23", []string{"sqlite:chunk:1"}, map[string]any{"model": "fast"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, tracker.ActiveCount())

	rec, err := tracker.CompleteOperation(ctx, id, []string{"neo4j:entity:9"}, map[string]any{"entities": 3}, 0.85)
	require.NoError(t, err)

	assert.Equal(t, model.OperationCompleted, rec.Status)
	assert.GreaterOrEqual(t, rec.DurationMS, int64(0))
	assert.InDelta(t, 0.85, rec.Confidence, 1e-9)
	assert.Equal(t, []string{"neo4j:entity:9"}, rec.OutputRefs)
	assert.Equal(t, 0, tracker.ActiveCount())
}

func TestCompleteTwiceReturnsNotFound(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	id, err := tracker.StartOperation(ctx, "chunking", "t15", nil, nil)
	require.NoError(t, err)

	_, err = tracker.CompleteOperation(ctx, id, nil, nil, 0.9)
	require.NoError(t, err)

	_, err = tracker.CompleteOperation(ctx, id, nil, nil, 0.9)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestCompleteUnknownIDReturnsNotFound(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.CompleteOperation(context.Background(), "no-such-id", nil, nil, 0.5)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestFailOperation(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	id, err := tracker.StartOperation(ctx, "embedding", "t41", []string{"sqlite:chunk:2"}, nil)
	require.NoError(t, err)

	rec, err := tracker.FailOperation(ctx, id, "model timeout", []string{"sqlite:chunk:2a"})
	require.NoError(t, err)

	assert.Equal(t, model.OperationFailed, rec.Status)
	assert.Zero(t, rec.Confidence)
	assert.Equal(t, model.TierLow, rec.QualityTier)
	assert.Equal(t, "model timeout", rec.ErrorMessage)
	assert.Contains(t, rec.Warnings, "operation failed: model timeout")
	assert.Equal(t, 0, tracker.ActiveCount())
}

func TestNestedOperationsRecordParent(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	outer, err := tracker.StartOperation(ctx, "pipeline", "t1", nil, nil)
	require.NoError(t, err)
	inner, err := tracker.StartOperation(ctx, "chunking", "t15", nil, nil)
	require.NoError(t, err)

	_, err = tracker.CompleteOperation(ctx, inner, nil, nil, 0.9)
	require.NoError(t, err)
	_, err = tracker.CompleteOperation(ctx, outer, nil, nil, 0.9)
	require.NoError(t, err)

	chain, err := tracker.OperationChain(ctx, inner)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, outer, chain[0].ID)
	assert.Equal(t, inner, chain[1].ID)
}

func TestOperationChainUnknownID(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.OperationChain(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

// seedChain records doc -> chunk -> entity with the given confidences.
func seedChain(t *testing.T, tracker *Tracker, c1, c2 float64) {
	t.Helper()
	ctx := context.Background()

	id, err := tracker.StartOperation(ctx, "chunking", "t15", []string{"sqlite:document:1"}, nil)
	require.NoError(t, err)
	_, err = tracker.CompleteOperation(ctx, id, []string{"sqlite:chunk:1"}, nil, c1)
	require.NoError(t, err)

	id, err = tracker.StartOperation(ctx, "entity_extraction", "t23", []string{"sqlite:chunk:1"}, nil)
	require.NoError(t, err)
	_, err = tracker.CompleteOperation(ctx, id, []string{"neo4j:entity:1"}, nil, c2)
	require.NoError(t, err)
}

func TestLineageBackwardAndForward(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	seedChain(t, tracker, 0.9, 0.8)

	backward, err := tracker.Lineage(ctx, "neo4j:entity:1", DirectionBackward, 10)
	require.NoError(t, err)
	require.Len(t, backward, 2)
	// Ordered by creation time ascending.
	assert.Equal(t, "chunking", backward[0].OperationType)
	assert.Equal(t, "entity_extraction", backward[1].OperationType)

	forward, err := tracker.Lineage(ctx, "sqlite:document:1", DirectionForward, 10)
	require.NoError(t, err)
	require.Len(t, forward, 2)
}

func TestLineageInvalidDirection(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.Lineage(context.Background(), "sqlite:chunk:1", "sideways", 10)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidArgument))
}

func TestLineageTerminatesOnCycle(t *testing.T) {
	tracker, st := newTestTracker(t)
	ctx := context.Background()

	// a -> b and b -> a form a cycle in the artifact graph.
	now := time.Now().UTC()
	require.NoError(t, st.Save(ctx, &model.ProvenanceRecord{
		ID: "op1", OperationType: "merge_operation", Status: model.OperationCompleted,
		InputRefs: []string{"ref:a"}, OutputRefs: []string{"ref:b"},
		Confidence: 0.9, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.Save(ctx, &model.ProvenanceRecord{
		ID: "op2", OperationType: "merge_operation", Status: model.OperationCompleted,
		InputRefs: []string{"ref:b"}, OutputRefs: []string{"ref:a"},
		Confidence: 0.9, CreatedAt: now.Add(time.Millisecond), UpdatedAt: now,
	}))

	recs, err := tracker.Lineage(ctx, "ref:a", DirectionBackward, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestDerivedConfidenceNoProvenance(t *testing.T) {
	tracker, _ := newTestTracker(t)

	confidence, err := tracker.DerivedConfidence(context.Background(), "sqlite:document:orphan")
	require.NoError(t, err)
	assert.Equal(t, 1.0, confidence)
}

func TestDerivedConfidenceChainProduct(t *testing.T) {
	tracker, _ := newTestTracker(t)
	seedChain(t, tracker, 0.9, 0.8)

	confidence, err := tracker.DerivedConfidence(context.Background(), "neo4j:entity:1")
	require.NoError(t, err)
	assert.InDelta(t, 0.72, confidence, 1e-9)
}

func TestExportGraph(t *testing.T) {
	tracker, _ := newTestTracker(t)
	seedChain(t, tracker, 0.9, 0.8)

	graph, err := tracker.ExportGraph(context.Background(), "neo4j:entity:1")
	require.NoError(t, err)

	assert.Equal(t, "neo4j:entity:1", graph.Root)
	assert.Len(t, graph.Nodes, 2)
	// Each operation contributes one input edge and one output edge.
	assert.Len(t, graph.Edges, 4)
}

func TestQueryOperationsFilter(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()
	seedChain(t, tracker, 0.9, 0.8)

	recs, err := tracker.QueryOperations(ctx, store.OperationFilter{ToolID: "t23"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "entity_extraction", recs[0].OperationType)
}

func TestStartOperationFixedClock(t *testing.T) {
	st := store.NewMemory()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewTracker(st).WithNow(func() time.Time { return fixed })
	ctx := context.Background()

	id, err := tracker.StartOperation(ctx, "query", "t49", nil, nil)
	require.NoError(t, err)
	rec, err := tracker.CompleteOperation(ctx, id, nil, nil, 1.0)
	require.NoError(t, err)

	assert.Equal(t, fixed, rec.CreatedAt)
	assert.Zero(t, rec.DurationMS)
}
