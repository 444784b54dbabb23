package resilience

import (
	"errors"
	"testing"
)

func TestDLQEntry_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		retryCount int
		maxRetries int
		want       bool
	}{
		{"below max", 0, 3, true},
		{"at max", 3, 3, false},
		{"above max", 5, 3, false},
		{"one below max", 2, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := DLQEntry{
				RetryCount: tt.retryCount,
				MaxRetries: tt.maxRetries,
			}
			if got := e.CanRetry(); got != tt.want {
				t.Errorf("CanRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"transient error", NewTransientError(errors.New("503"), 503), "transient"},
		{"permanent error", errors.New("invalid input"), "permanent"},
		{"connection reset", errors.New("connection reset by peer"), "transient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDLQEntry_ClaimFields(t *testing.T) {
	e := DLQEntry{
		ClaimID:     "claim-7",
		ClaimText:   "the merger closed in Q3",
		FailedStage: "evidence_assessment",
	}
	if e.ClaimID != "claim-7" || e.FailedStage != "evidence_assessment" {
		t.Errorf("unexpected entry fields: %+v", e)
	}
}

func TestDeadLetterQueue_AddFillsIdentity(t *testing.T) {
	q := NewDeadLetterQueue(10)
	q.Add(DLQEntry{ClaimID: "c1", Error: "api down"})

	entries := q.List(DLQFilter{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" {
		t.Error("expected generated ID")
	}
	if entries[0].CreatedAt.IsZero() || entries[0].LastFailedAt.IsZero() {
		t.Error("expected timestamps to be filled")
	}
}

func TestDeadLetterQueue_FilterAndLimit(t *testing.T) {
	q := NewDeadLetterQueue(10)
	q.Add(DLQEntry{ClaimID: "c1", ErrorType: "transient"})
	q.Add(DLQEntry{ClaimID: "c2", ErrorType: "permanent"})
	q.Add(DLQEntry{ClaimID: "c3", ErrorType: "transient"})

	transient := q.List(DLQFilter{ErrorType: "transient"})
	if len(transient) != 2 {
		t.Fatalf("expected 2 transient entries, got %d", len(transient))
	}
	if transient[0].ClaimID != "c1" || transient[1].ClaimID != "c3" {
		t.Errorf("unexpected order: %+v", transient)
	}

	limited := q.List(DLQFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected 1 entry with limit, got %d", len(limited))
	}
}

func TestDeadLetterQueue_BoundedDropsOldest(t *testing.T) {
	q := NewDeadLetterQueue(2)
	q.Add(DLQEntry{ClaimID: "c1"})
	q.Add(DLQEntry{ClaimID: "c2"})
	q.Add(DLQEntry{ClaimID: "c3"})

	entries := q.List(DLQFilter{})
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ClaimID != "c2" || entries[1].ClaimID != "c3" {
		t.Errorf("expected oldest dropped, got %+v", entries)
	}
}
