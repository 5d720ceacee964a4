package uplink

import (
	"sync"

	"formtel/pkg/model"
)

// Queue is an unbounded FIFO of records awaiting transmission.
// It is safe for many writers and readers.
type Queue struct {
	mu    sync.Mutex
	items []model.LogRecord
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push appends one record at the tail.
func (q *Queue) Push(rec model.LogRecord) {
	q.mu.Lock()
	q.items = append(q.items, rec)
	q.mu.Unlock()
}

// PushAll appends recs at the tail as one step, so concurrent pushes never
// interleave inside a batch.
func (q *Queue) PushAll(recs []model.LogRecord) {
	if len(recs) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, recs...)
	q.mu.Unlock()
}

// PopN removes and returns up to n records from the head.
// Returns nil if empty.
func (q *Queue) PopN(n int) []model.LogRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	out := make([]model.LogRecord, n)
	copy(out, q.items[:n])

	// Help GC: clear popped slots before reslicing.
	clear(q.items[:n])
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return out
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued records, head first.
func (q *Queue) Snapshot() []model.LogRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.LogRecord(nil), q.items...)
}
