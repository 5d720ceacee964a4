package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"formtel/pkg/logstore"
	"formtel/pkg/model"
	"formtel/pkg/slot"
	"formtel/pkg/uplink"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// MockUplink records submitted records.
type MockUplink struct {
	mu      sync.Mutex
	records []model.LogRecord
	closed  bool
}

func (m *MockUplink) Submit(rec model.LogRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return true
}

func (m *MockUplink) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *MockUplink) Submitted() []model.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.LogRecord(nil), m.records...)
}

// MockTransport captures reports sent by a real pipeline.
type MockTransport struct {
	mu      sync.Mutex
	reports []model.ErrorReport
}

func (m *MockTransport) Send(_ context.Context, r model.ErrorReport) error {
	m.mu.Lock()
	m.reports = append(m.reports, r)
	m.mu.Unlock()
	return nil
}

func (m *MockTransport) Reports() []model.ErrorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ErrorReport(nil), m.reports...)
}

func newLogger(t *testing.T, up Uplink, opts Options) (*Logger, *logstore.Store) {
	t.Helper()
	store := logstore.New(slot.NewMemory(), logstore.Options{Logger: quiet})
	if opts.Diagnostics == nil {
		opts.Diagnostics = quiet
	}
	l := New(store, up, opts)
	t.Cleanup(func() { _ = l.Close(context.Background()) })
	return l, store
}

func flush(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestLogger_EndToEnd(t *testing.T) {
	out := &MockTransport{}
	pipe := uplink.NewPipeline(out, uplink.Options{Logger: quiet})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipe.Start(ctx)

	l, store := newLogger(t, pipe, Options{})
	l.Error("disk full", nil, nil)
	flush(t, l)

	recs := store.Records(ctx, 0)
	if len(recs) != 1 || recs[0].Level != model.Error || recs[0].Message != "disk full" {
		t.Fatalf("store = %+v", recs)
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(out.Reports()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	reports := out.Reports()
	if len(reports) != 1 {
		t.Fatalf("Expected exactly one report, got %d", len(reports))
	}
	if len(reports[0].Errors) != 1 || reports[0].Errors[0].Message != "disk full" {
		t.Errorf("report = %+v", reports[0])
	}
}

func TestLogger_OnlyQualifyingRecordsReachUplink(t *testing.T) {
	up := &MockUplink{}
	l, store := newLogger(t, up, Options{})

	l.Debug("d", nil)
	l.Info("i", map[string]any{"k": "v"})
	l.Warn("w", errors.New("slow"), nil)
	l.Error("e", nil, nil)
	flush(t, l)

	if n := store.Count(context.Background()); n != 4 {
		t.Errorf("Expected 4 stored records, got %d", n)
	}
	got := up.Submitted()
	if len(got) != 2 || got[0].Message != "w" || got[1].Message != "e" {
		t.Fatalf("uplink received %+v", got)
	}
	if got[0].Exception != "slow" {
		t.Errorf("Exception = %q", got[0].Exception)
	}
}

func TestLogger_StoreOnly(t *testing.T) {
	l, store := newLogger(t, nil, Options{})
	l.Error("no collector", nil, nil)
	flush(t, l)
	if n := store.Count(context.Background()); n != 1 {
		t.Errorf("Expected 1 stored record, got %d", n)
	}
}

func TestLogger_OrderPreserved(t *testing.T) {
	l, _ := newLogger(t, nil, Options{})
	for _, m := range []string{"a", "b", "c"} {
		l.Info(m, nil)
	}
	flush(t, l)

	recs := l.Records(context.Background(), 0)
	if len(recs) != 3 || recs[0].Message != "c" || recs[2].Message != "a" {
		t.Errorf("records = %+v", recs)
	}
	if top := l.Records(context.Background(), 1); len(top) != 1 || top[0].Message != "c" {
		t.Errorf("Records(1) = %+v", top)
	}
}

func TestLogger_DropsInvalidRecords(t *testing.T) {
	up := &MockUplink{}
	l, store := newLogger(t, up, Options{})
	l.Error("", nil, nil)
	l.Log(model.Level(42), "bogus", nil, nil)
	flush(t, l)

	if store.Count(context.Background()) != 0 || len(up.Submitted()) != 0 {
		t.Error("invalid records should be dropped")
	}
}

func TestLogger_WriteKeepsTimestamp(t *testing.T) {
	l, _ := newLogger(t, nil, Options{})
	ts := time.Date(2023, 12, 24, 18, 0, 0, 0, time.UTC)
	l.Write(model.LogRecord{Timestamp: ts, Level: model.Warning, Message: "remote"})
	l.Write(model.LogRecord{Level: model.Information, Message: "no time"})
	flush(t, l)

	recs := l.Records(context.Background(), 0)
	if len(recs) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recs))
	}
	if recs[0].Timestamp.IsZero() {
		t.Error("zero timestamp should be replaced")
	}
	if !recs[1].Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", recs[1].Timestamp, ts)
	}
}

func TestLogger_Clear(t *testing.T) {
	l, _ := newLogger(t, nil, Options{})
	l.Error("old", nil, nil)
	l.Clear(context.Background())
	flush(t, l)

	recs := l.Records(context.Background(), 0)
	if len(recs) != 1 || recs[0].Message != "Logs cleared" || recs[0].Level != model.Information {
		t.Errorf("records after Clear = %+v", recs)
	}
}

func TestLogger_Exports(t *testing.T) {
	l, _ := newLogger(t, nil, Options{})
	l.Warn("careful", nil, map[string]any{"field": "email"})
	flush(t, l)

	js, err := l.ExportJSON(context.Background())
	if err != nil || !strings.Contains(js, `"careful"`) {
		t.Errorf("ExportJSON = %s, %v", js, err)
	}
	txt := l.ExportText(context.Background())
	if !strings.Contains(txt, "Message: careful") || !strings.Contains(txt, "  field: email") {
		t.Errorf("ExportText = %s", txt)
	}
}

type failingDownloader struct{}

func (failingDownloader) Download(context.Context, string, string, []byte) error {
	return errors.New("disk is read-only")
}

func TestLogger_DownloadText(t *testing.T) {
	dir := t.TempDir()
	l, _ := newLogger(t, nil, Options{Downloader: DirDownloader{Dir: dir}})
	l.Info("hello", nil)
	flush(t, l)

	name, err := l.DownloadText(context.Background())
	if err != nil {
		t.Fatalf("DownloadText: %v", err)
	}
	if !regexp.MustCompile(`^logs_\d{8}_\d{6}\.txt$`).MatchString(name) {
		t.Errorf("unexpected file name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !strings.HasPrefix(string(data), "=== LOG FILE ===") {
		t.Errorf("download content = %s", data)
	}
}

func TestLogger_DownloadFailuresAreReturned(t *testing.T) {
	l, _ := newLogger(t, nil, Options{})
	if _, err := l.DownloadText(context.Background()); err == nil {
		t.Error("Expected error without downloader")
	}

	l2, _ := newLogger(t, nil, Options{Downloader: failingDownloader{}})
	if _, err := l2.DownloadText(context.Background()); err == nil {
		t.Error("Expected downloader error to be returned")
	}
}

func TestLogger_Close(t *testing.T) {
	up := &MockUplink{}
	store := logstore.New(slot.NewMemory(), logstore.Options{Logger: quiet})
	l := New(store, up, Options{Diagnostics: quiet})

	for i := 0; i < 50; i++ {
		l.Info("pending", nil)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := store.Count(context.Background()); n != 50 {
		t.Errorf("Close should store pending records, got %d", n)
	}
	if !up.closed {
		t.Error("Close should close the uplink")
	}

	l.Error("after close", nil, nil)
	if err := l.Flush(context.Background()); err != nil {
		t.Errorf("Flush after Close: %v", err)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if n := store.Count(context.Background()); n != 50 {
		t.Errorf("records logged after Close must not be stored, got %d", n)
	}
}
