package resilience

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DLQEntry represents a failed assessment request that can be retried later.
type DLQEntry struct {
	ID           string    `json:"id"`
	ClaimID      string    `json:"claim_id"`
	ClaimText    string    `json:"claim_text,omitempty"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	FailedStage  string    `json:"failed_stage,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
	NextRetryAt  time.Time `json:"next_retry_at"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry returns true if this entry hasn't exceeded its max retry count.
func (e *DLQEntry) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}

// DeadLetterQueue is a bounded in-memory queue of failed assessment requests.
// When full, the oldest entry is dropped. Safe for concurrent use.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DLQEntry
	max     int
}

// NewDeadLetterQueue creates a queue holding at most max entries.
func NewDeadLetterQueue(max int) *DeadLetterQueue {
	if max <= 0 {
		max = 1000
	}
	return &DeadLetterQueue{max: max}
}

// Add records a failed request. A missing ID or timestamp is filled in.
func (q *DeadLetterQueue) Add(e DLQEntry) {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastFailedAt = now

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	if len(q.entries) > q.max {
		q.entries = q.entries[len(q.entries)-q.max:]
	}
}

// List returns entries matching the filter, oldest first.
func (q *DeadLetterQueue) List(f DLQFilter) []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DLQEntry, 0, len(q.entries))
	for _, e := range q.entries {
		if f.ErrorType != "" && e.ErrorType != f.ErrorType {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of queued entries.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
