package provenance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kgas-labs/kgas/internal/model"
	"github.com/kgas-labs/kgas/internal/store"
)

// Sentinel errors for bookkeeping misuse. These propagate to the caller;
// they indicate a programming error (double completion, typo'd id, bad
// direction), never a data-availability problem.
var (
	ErrNotFound        = eris.New("provenance: operation not found")
	ErrInvalidArgument = eris.New("provenance: invalid argument")
)

// Traversal directions for Lineage.
const (
	DirectionBackward = "backward"
	DirectionForward  = "forward"
)

// Traversal depth defaults.
const (
	defaultLineageDepth    = 10
	confidenceLineageDepth = 20
	exportLineageDepth     = 50
)

// Tracker records a call-stack-scoped DAG of operations. It is the sole write
// path to the lineage store: no other component writes ProvenanceRecords.
//
// The active-operation map and call stack are guarded by a mutex, so a single
// Tracker may be shared across goroutines; workers that need an independent
// call stack should each construct their own Tracker over the same store.
type Tracker struct {
	mu     sync.Mutex
	store  store.LineageStore
	active map[string]*model.ProvenanceRecord
	stack  []string
	now    func() time.Time
}

// NewTracker creates a Tracker over the given lineage store.
func NewTracker(st store.LineageStore) *Tracker {
	return &Tracker{
		store:  st,
		active: make(map[string]*model.ProvenanceRecord),
		now:    time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (t *Tracker) WithNow(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// StartOperation opens a new operation record with status running, parented
// to the operation currently on top of the call stack, and persists it.
// Returns the new operation id.
func (t *Tracker) StartOperation(ctx context.Context, operationType, toolID string, inputRefs []string, parameters map[string]any) (string, error) {
	now := t.now().UTC()
	rec := &model.ProvenanceRecord{
		ID:            uuid.New().String(),
		OperationType: operationType,
		ToolID:        toolID,
		InputRefs:     append([]string(nil), inputRefs...),
		Parameters:    parameters,
		Status:        model.OperationRunning,
		Confidence:    1.0,
		QualityTier:   model.TierHigh,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	t.mu.Lock()
	if len(t.stack) > 0 {
		rec.ParentID = t.stack[len(t.stack)-1]
	}
	t.active[rec.ID] = rec
	t.stack = append(t.stack, rec.ID)
	t.mu.Unlock()

	if err := t.store.Save(ctx, rec); err != nil {
		// Roll back the in-memory bookkeeping so the caller can retry.
		t.mu.Lock()
		delete(t.active, rec.ID)
		t.popIfTop(rec.ID)
		t.mu.Unlock()
		return "", eris.Wrap(err, "provenance: save operation")
	}

	zap.L().Debug("operation started",
		zap.String("operation_id", rec.ID),
		zap.String("operation_type", operationType),
		zap.String("tool_id", toolID),
	)
	return rec.ID, nil
}

// CompleteOperation closes an active operation with its outputs and
// confidence, computes the wall-clock duration, persists the terminal state,
// and retires the operation from the active set.
func (t *Tracker) CompleteOperation(ctx context.Context, operationID string, outputRefs []string, metrics map[string]any, confidence float64) (*model.ProvenanceRecord, error) {
	t.mu.Lock()
	rec, ok := t.active[operationID]
	if !ok {
		t.mu.Unlock()
		return nil, eris.Wrapf(ErrNotFound, "complete %s", operationID)
	}

	now := t.now().UTC()
	rec.OutputRefs = append([]string(nil), outputRefs...)
	rec.Metrics = metrics
	rec.Confidence = confidence
	rec.Status = model.OperationCompleted
	rec.DurationMS = now.Sub(rec.CreatedAt).Milliseconds()
	rec.UpdatedAt = now

	delete(t.active, operationID)
	// Pop only when the operation is the current top: nested operations may
	// complete out of order when tracked independently.
	t.popIfTop(operationID)
	t.mu.Unlock()

	if err := t.store.Update(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "provenance: update operation")
	}

	zap.L().Debug("operation completed",
		zap.String("operation_id", operationID),
		zap.Float64("confidence", confidence),
		zap.Int64("duration_ms", rec.DurationMS),
	)
	return rec, nil
}

// FailOperation closes an active operation as failed. The underlying
// operation's failure is recorded, not re-raised: this is the channel through
// which failures enter the lineage, and only bookkeeping misuse errors out.
func (t *Tracker) FailOperation(ctx context.Context, operationID, errorMessage string, partialOutputs []string) (*model.ProvenanceRecord, error) {
	t.mu.Lock()
	rec, ok := t.active[operationID]
	if !ok {
		t.mu.Unlock()
		return nil, eris.Wrapf(ErrNotFound, "fail %s", operationID)
	}

	now := t.now().UTC()
	rec.OutputRefs = append([]string(nil), partialOutputs...)
	rec.Status = model.OperationFailed
	rec.Confidence = 0.0
	rec.QualityTier = model.TierLow
	rec.ErrorMessage = errorMessage
	rec.Warnings = append(rec.Warnings, "operation failed: "+errorMessage)
	rec.DurationMS = now.Sub(rec.CreatedAt).Milliseconds()
	rec.UpdatedAt = now

	delete(t.active, operationID)
	t.popIfTop(operationID)
	t.mu.Unlock()

	if err := t.store.Update(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "provenance: update operation")
	}

	zap.L().Warn("operation failed",
		zap.String("operation_id", operationID),
		zap.String("error", errorMessage),
	)
	return rec, nil
}

// popIfTop removes operationID from the call stack only if it is the current
// top. Caller must hold the mutex.
func (t *Tracker) popIfTop(operationID string) {
	if len(t.stack) > 0 && t.stack[len(t.stack)-1] == operationID {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

// ActiveCount returns the number of operations currently running.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Lineage walks the provenance graph from a reference. Backward traversal
// follows input refs from the operations that produced ref (toward original
// sources); forward follows output refs from the operations that consumed it
// (toward derivatives). Missing nodes terminate a branch silently; a
// visited-set bounds traversal on cyclic or diamond-shaped graphs. Results
// are ordered by creation time ascending.
func (t *Tracker) Lineage(ctx context.Context, ref, direction string, maxDepth int) ([]model.ProvenanceRecord, error) {
	if direction != DirectionBackward && direction != DirectionForward {
		return nil, eris.Wrapf(ErrInvalidArgument, "direction %q", direction)
	}
	if maxDepth <= 0 {
		maxDepth = defaultLineageDepth
	}

	visited := make(map[string]bool)
	var out []model.ProvenanceRecord

	var walk func(ref string, depth int) error
	walk = func(ref string, depth int) error {
		if depth > maxDepth {
			return nil
		}

		var recs []model.ProvenanceRecord
		var err error
		if direction == DirectionBackward {
			recs, err = t.store.GetByOutput(ctx, ref)
		} else {
			recs, err = t.store.GetByInput(ctx, ref)
		}
		if err != nil {
			return eris.Wrapf(err, "provenance: lineage lookup %s", ref)
		}

		for i := range recs {
			rec := recs[i]
			if visited[rec.ID] {
				continue
			}
			visited[rec.ID] = true
			out = append(out, rec)

			next := rec.InputRefs
			if direction == DirectionForward {
				next = rec.OutputRefs
			}
			for _, n := range next {
				if err := walk(n, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(ref, 1); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DerivedConfidence computes the product of confidences over the backward
// lineage of ref. A reference with no recorded provenance returns 1.0:
// unattributed data is provenance-neutral, not suspect.
func (t *Tracker) DerivedConfidence(ctx context.Context, ref string) (float64, error) {
	recs, err := t.Lineage(ctx, ref, DirectionBackward, confidenceLineageDepth)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 1.0, nil
	}

	confidence := 1.0
	for i := range recs {
		confidence *= recs[i].Confidence
	}
	return confidence, nil
}

// OperationChain walks parent pointers from an operation to the root of its
// call stack, returning the chain oldest first.
func (t *Tracker) OperationChain(ctx context.Context, operationID string) ([]model.ProvenanceRecord, error) {
	var chain []model.ProvenanceRecord
	seen := make(map[string]bool)

	id := operationID
	for id != "" && !seen[id] {
		seen[id] = true
		rec, err := t.store.Get(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "provenance: get operation %s", id)
		}
		if rec == nil {
			if len(chain) == 0 {
				return nil, eris.Wrapf(ErrNotFound, "chain %s", operationID)
			}
			break
		}
		chain = append(chain, *rec)
		id = rec.ParentID
	}

	// Walked child-to-root; callers want oldest first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// QueryOperations lists recorded operations matching the filter, newest first.
func (t *Tracker) QueryOperations(ctx context.Context, filter store.OperationFilter) ([]model.ProvenanceRecord, error) {
	recs, err := t.store.Query(ctx, filter)
	return recs, eris.Wrap(err, "provenance: query operations")
}

// ExportGraph materializes the backward lineage of ref as a node/edge graph
// for visualization. Nodes are operations; edges are typed input/output
// data-flow arcs through artifact references.
func (t *Tracker) ExportGraph(ctx context.Context, ref string) (*model.LineageGraph, error) {
	recs, err := t.Lineage(ctx, ref, DirectionBackward, exportLineageDepth)
	if err != nil {
		return nil, err
	}

	graph := &model.LineageGraph{Root: ref}
	for i := range recs {
		rec := recs[i]
		graph.Nodes = append(graph.Nodes, model.LineageNode{
			ID:            rec.ID,
			OperationType: rec.OperationType,
			ToolID:        rec.ToolID,
			Status:        rec.Status,
			Confidence:    rec.Confidence,
			CreatedAt:     rec.CreatedAt,
		})
		for _, in := range rec.InputRefs {
			graph.Edges = append(graph.Edges, model.LineageEdge{
				Source: in,
				Target: rec.ID,
				Type:   "input",
			})
		}
		for _, out := range rec.OutputRefs {
			graph.Edges = append(graph.Edges, model.LineageEdge{
				Source: rec.ID,
				Target: out,
				Type:   "output",
			})
		}
	}
	return graph, nil
}
