package uplink

import (
	"fmt"
	"sync"
	"testing"

	"formtel/pkg/model"
)

func rec(level model.Level, msg string) model.LogRecord {
	return model.LogRecord{Level: level, Message: msg}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	q.Push(rec(model.Error, "1"))
	q.PushAll([]model.LogRecord{rec(model.Error, "2"), rec(model.Error, "3")})

	if q.Len() != 3 {
		t.Fatalf("Expected 3 queued, got %d", q.Len())
	}

	first := q.PopN(2)
	if len(first) != 2 || first[0].Message != "1" || first[1].Message != "2" {
		t.Errorf("Order corrupted: %+v", first)
	}
	rest := q.PopN(10)
	if len(rest) != 1 || rest[0].Message != "3" {
		t.Errorf("Order corrupted: %+v", rest)
	}
	if out := q.PopN(1); out != nil {
		t.Errorf("Expected nil (empty), got %+v", out)
	}
	if out := q.PopN(0); out != nil {
		t.Errorf("PopN(0) = %+v", out)
	}
}

func TestQueue_ConcurrentBatchesStayContiguous(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			batch := make([]model.LogRecord, 5)
			for i := range batch {
				batch[i] = rec(model.Warning, fmt.Sprintf("%d-%d", w, i))
			}
			q.PushAll(batch)
		}(w)
	}
	wg.Wait()

	snap := q.Snapshot()
	if len(snap) != 40 {
		t.Fatalf("Expected 40 queued, got %d", len(snap))
	}
	for start := 0; start < len(snap); start += 5 {
		var w int
		fmt.Sscanf(snap[start].Message, "%d-", &w)
		for i := 0; i < 5; i++ {
			if want := fmt.Sprintf("%d-%d", w, i); snap[start+i].Message != want {
				t.Fatalf("batch interleaved at %d: got %s, want %s", start+i, snap[start+i].Message, want)
			}
		}
	}
}
