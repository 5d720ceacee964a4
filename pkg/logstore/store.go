// Package logstore keeps a capped, most-recent-first history of log records
// in a single durable slot.
//
// The whole record set is rewritten on every mutation. Read and write
// failures never reach the caller of Append or Records: a corrupt or
// unreadable slot reads as empty and a failed write is dropped, with the
// failure reported on the diagnostic logger only.
package logstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"formtel/pkg/model"
	"formtel/pkg/slot"
)

const (
	DefaultKey      = "app_logs"
	DefaultCapacity = 1000
)

type Options struct {
	Key      string
	Capacity int
	Logger   *slog.Logger
}

// Store is the bounded log store. It is the only writer of its key.
type Store struct {
	slot     slot.Slot
	key      string
	capacity int
	log      *slog.Logger

	// Serializes read-modify-write cycles.
	mu sync.Mutex
}

func New(s slot.Slot, opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		slot:     s,
		key:      opts.Key,
		capacity: opts.Capacity,
		log:      opts.Logger.With("component", "logstore"),
	}
}

// Capacity returns the maximum number of stored records.
func (s *Store) Capacity() int {
	return s.capacity
}

// Append inserts rec at the head and drops the oldest records beyond capacity.
// Property values JSON cannot encode are stored in their fmt.Sprint form; a
// record that still cannot be encoded is dropped so the stored set survives.
func (s *Store) Append(ctx context.Context, rec model.LogRecord) {
	rec = rec.Sanitized()
	if err := rec.CheckEncoding(); err != nil {
		s.log.Error("Logstore: dropping record that cannot be encoded", "message", rec.Message, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load(ctx)
	records = append(records, model.LogRecord{})
	copy(records[1:], records)
	records[0] = rec
	if len(records) > s.capacity {
		records = records[:s.capacity]
	}

	data, err := json.Marshal(records)
	if err != nil {
		s.log.Error("Logstore: failed to encode records", "error", err)
		return
	}
	if err := s.slot.Set(ctx, s.key, data); err != nil {
		s.log.Error("Logstore: failed to persist records", "error", err)
	}
}

// Records returns the stored records, newest first. maxCount <= 0 means all.
func (s *Store) Records(ctx context.Context, maxCount int) []model.LogRecord {
	s.mu.Lock()
	records := s.load(ctx)
	s.mu.Unlock()

	if maxCount > 0 && len(records) > maxCount {
		records = records[:maxCount]
	}
	return records
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) int {
	return len(s.Records(ctx, 0))
}

// Clear removes the persisted record set.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.Delete(ctx, s.key); err != nil {
		s.log.Error("Logstore: failed to clear records", "error", err)
	}
}

func (s *Store) load(ctx context.Context) []model.LogRecord {
	data, err := s.slot.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, slot.ErrNotFound) {
			s.log.Error("Logstore: failed to read records", "error", err)
		}
		return []model.LogRecord{}
	}
	if len(data) == 0 {
		return []model.LogRecord{}
	}

	var records []model.LogRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Error("Logstore: stored records are corrupt", "error", err)
		return []model.LogRecord{}
	}
	if records == nil {
		records = []model.LogRecord{}
	}
	return records
}

// ExportJSON renders all stored records as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context) (string, error) {
	b, err := json.MarshalIndent(s.Records(ctx, 0), "", "  ")
	if err != nil {
		return "", fmt.Errorf("export json: %w", err)
	}
	return string(b), nil
}
