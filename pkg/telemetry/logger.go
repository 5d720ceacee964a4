// Package telemetry is the logging facade used by application code.
//
// Each call builds a LogRecord, hands it to a background writer that appends
// it to the bounded store, and passes Warning and Error records to the
// uplink. Calls never block on storage or the network and never fail.
//
// Quick start
//
//	store := logstore.New(slot.NewMemory(), logstore.Options{})
//	pipe := uplink.NewPipeline(transport, uplink.Options{})
//	pipe.Start(ctx)
//	l := telemetry.New(store, pipe, telemetry.Options{})
//	defer l.Close(ctx)
//	l.Error("submit failed", err, map[string]any{"module": "intake"})
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"formtel/pkg/logstore"
	"formtel/pkg/model"
)

const DefaultQueueSize = 1024

// Uplink receives qualifying records. *uplink.Pipeline satisfies it.
type Uplink interface {
	Submit(rec model.LogRecord) bool
}

// Downloader hands an export to the user, e.g. as a file.
type Downloader interface {
	Download(ctx context.Context, name, contentType string, data []byte) error
}

type Options struct {
	// Diagnostics receives a mirror of every call and the facade's own
	// failures. It must not route back into this Logger.
	Diagnostics *slog.Logger
	// QueueSize bounds appends waiting for the writer. A full queue drops
	// the append (the uplink still gets the record).
	QueueSize  int
	Downloader Downloader
}

type op struct {
	rec     model.LogRecord
	barrier chan struct{}
}

// Logger is the facade. It is safe for concurrent use.
type Logger struct {
	store      *logstore.Store
	uplink     Uplink
	diag       *slog.Logger
	downloader Downloader

	mu     sync.RWMutex
	closed bool
	ops    chan op
	done   chan struct{}
}

// New starts the background writer. up may be nil for store-only logging.
func New(store *logstore.Store, up Uplink, opts Options) *Logger {
	if opts.Diagnostics == nil {
		opts.Diagnostics = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	l := &Logger{
		store:      store,
		uplink:     up,
		diag:       opts.Diagnostics,
		downloader: opts.Downloader,
		ops:        make(chan op, opts.QueueSize),
		done:       make(chan struct{}),
	}
	go l.writer()
	return l
}

func (l *Logger) writer() {
	defer close(l.done)
	ctx := context.Background()
	for o := range l.ops {
		if o.barrier != nil {
			close(o.barrier)
			continue
		}
		l.store.Append(ctx, o.rec)
	}
}

// Log records a message at level. err and props may be nil.
func (l *Logger) Log(level model.Level, message string, err error, props map[string]any) {
	l.record(model.NewRecord(level, message, err, props), true)
}

func (l *Logger) Debug(message string, props map[string]any) {
	l.Log(model.Debug, message, nil, props)
}

func (l *Logger) Info(message string, props map[string]any) {
	l.Log(model.Information, message, nil, props)
}

func (l *Logger) Warn(message string, err error, props map[string]any) {
	l.Log(model.Warning, message, err, props)
}

func (l *Logger) Error(message string, err error, props map[string]any) {
	l.Log(model.Error, message, err, props)
}

// Write records a pre-built record, e.g. one received by an ingest listener.
// A zero timestamp is replaced with the current time and property values JSON
// cannot encode are stored as text.
func (l *Logger) Write(rec model.LogRecord) {
	rec = rec.Sanitized()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = model.Now().UTC()
	}
	l.record(rec, true)
}

func (l *Logger) record(rec model.LogRecord, mirror bool) {
	if err := rec.Validate(); err != nil {
		l.diag.Warn("Telemetry: dropping invalid record", "error", err)
		return
	}
	if mirror {
		l.mirror(rec)
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		l.diag.Warn("Telemetry: logger closed, record not stored", "message", rec.Message)
		return
	}
	select {
	case l.ops <- op{rec: rec}:
	default:
		l.diag.Error("Telemetry: append queue full, record not stored", "message", rec.Message)
	}
	l.mu.RUnlock()

	if l.uplink != nil && rec.Level.Qualifies() {
		l.uplink.Submit(rec)
	}
}

func (l *Logger) mirror(rec model.LogRecord) {
	args := make([]any, 0, 2+2*len(rec.Properties))
	if rec.Exception != "" {
		args = append(args, "exception", rec.Exception)
	}
	for k, v := range rec.Properties {
		args = append(args, k, v)
	}
	l.diag.Log(context.Background(), slogLevel(rec.Level), rec.Message, args...)
}

// Flush waits until every record logged before the call has been appended.
func (l *Logger) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil
	}
	select {
	case l.ops <- op{barrier: barrier}:
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}
	l.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stores pending records and stops the writer, then closes the uplink
// if it has a Close method. Later calls only reach the diagnostic logger.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ops)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c, ok := l.uplink.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

// Records returns stored records, newest first. maxCount <= 0 means all.
func (l *Logger) Records(ctx context.Context, maxCount int) []model.LogRecord {
	return l.store.Records(ctx, maxCount)
}

// Clear empties the store and records that it did so.
func (l *Logger) Clear(ctx context.Context) {
	if err := l.Flush(ctx); err != nil {
		l.diag.Warn("Telemetry: flush before clear failed", "error", err)
	}
	l.store.Clear(ctx)
	l.Info("Logs cleared", nil)
}

func (l *Logger) ExportJSON(ctx context.Context) (string, error) {
	return l.store.ExportJSON(ctx)
}

func (l *Logger) ExportText(ctx context.Context) string {
	return l.store.ExportText(ctx)
}

// DownloadText exports the store as text and hands it to the Downloader.
// Unlike logging calls, failures are returned.
func (l *Logger) DownloadText(ctx context.Context) (string, error) {
	if l.downloader == nil {
		return "", errors.New("telemetry: no downloader configured")
	}
	name := fmt.Sprintf("logs_%s.txt", time.Now().Format("20060102_150405"))
	if err := l.downloader.Download(ctx, name, "text/plain", []byte(l.ExportText(ctx))); err != nil {
		l.diag.Error("Telemetry: error exporting logs as TXT", "error", err)
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	l.diag.Info("Telemetry: logs exported as TXT file", "file", name)
	return name, nil
}

func slogLevel(lvl model.Level) slog.Level {
	switch lvl {
	case model.Debug:
		return slog.LevelDebug
	case model.Warning:
		return slog.LevelWarn
	case model.Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
