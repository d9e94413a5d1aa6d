// Package evaluation scores recorded responses asynchronously: a
// bounded drop-oldest FIFO feeds a background worker that runs the
// configured quality metrics and keeps running statistics. Evaluation
// never sits on the query path's latency.
package evaluation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

// Record is one response awaiting quality evaluation.
type Record struct {
	ID               string             `json:"id"`
	Query            string             `json:"query"`
	Response         string             `json:"response"`
	TippingPoint     string             `json:"tipping_point,omitempty"`
	ChunksContext    []string           `json:"chunks_context,omitempty"`
	SummariesContext []string           `json:"summaries_context,omitempty"`
	GraphContext     []string           `json:"graph_context,omitempty"`
	SessionID        string             `json:"session_id,omitempty"`
	ConversationType string             `json:"conversation_type,omitempty"`
	TraceID          string             `json:"trace_id,omitempty"`
	Status           string             `json:"status"`
	Scores           map[string]float64 `json:"scores,omitempty"`
	Explanations     map[string]string  `json:"explanations,omitempty"`
	OverallScore     float64            `json:"overall_score"`
	CreatedAt        time.Time          `json:"created_at"`
	EvaluatedAt      *time.Time         `json:"evaluated_at,omitempty"`
	Error            string             `json:"error,omitempty"`
}

// NewRecord builds a pending record with a fresh ID.
func NewRecord(query, response string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Query:     query,
		Response:  response,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// ContextTexts returns every context snippet across sources, for
// metrics that judge against the retrieved material.
func (r *Record) ContextTexts() []string {
	out := make([]string, 0, len(r.ChunksContext)+len(r.SummariesContext)+len(r.GraphContext))
	out = append(out, r.ChunksContext...)
	out = append(out, r.SummariesContext...)
	out = append(out, r.GraphContext...)
	return out
}

// Queue is a bounded FIFO ring buffer. On overflow the oldest pending
// record is dropped so a push always succeeds; records already handed
// to the worker are never dropped.
type Queue struct {
	mu      sync.Mutex
	buf     []*Record
	head    int
	size    int
	dropped int64
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{buf: make([]*Record, capacity)}
}

// Push appends a record, dropping the oldest pending record when full.
// Returns true when an old record was dropped to make room.
func (q *Queue) Push(r *Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := false
	if q.size == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		dropped = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = r
	q.size++
	return dropped
}

// PopN removes and returns up to n records from the front.
func (q *Queue) PopN(n int) []*Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > q.size {
		n = q.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]*Record, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
	}
	q.size -= n
	return out
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns how many records overflow has discarded.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
