package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"formtel/pkg/model"
)

type collector struct {
	mu      sync.Mutex
	reports []model.ErrorReport
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var report model.ErrorReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.reports = append(c.reports, report)
	c.mu.Unlock()
}

func (c *collector) Reports() []model.ErrorReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.ErrorReport(nil), c.reports...)
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("formtel %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestCLI_LogReportAndExport(t *testing.T) {
	t.Setenv("FORMTEL_CONFIG", "")
	t.Setenv("FORMTEL_LOG_LEVEL", "error")
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	store := []string{"--store", "pebble", "--store-path", filepath.Join(t.TempDir(), "logs")}
	with := func(args ...string) []string { return append(append([]string{}, args...), store...) }

	run(t, with("log", "--level", "info", "form loaded")...)
	out := run(t, with("log", "-l", "error", "--collector", srv.URL, "-p", "module=intake", "disk full")...)
	if !strings.Contains(out, "reported 1 record(s)") {
		t.Errorf("log output = %q", out)
	}

	reports := c.Reports()
	if len(reports) != 1 || len(reports[0].Errors) != 1 || reports[0].Errors[0].Message != "disk full" {
		t.Fatalf("collector received %+v", reports)
	}
	if reports[0].Errors[0].Properties["module"] != "intake" {
		t.Errorf("properties not sent: %+v", reports[0].Errors[0])
	}

	listed := run(t, with("logs")...)
	lines := strings.Split(strings.TrimSpace(listed), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "disk full") || !strings.Contains(lines[1], "form loaded") {
		t.Errorf("logs output = %q", listed)
	}
	filtered := run(t, with("logs", "--where", "level=error")...)
	if strings.Contains(filtered, "form loaded") || !strings.Contains(filtered, "disk full") {
		t.Errorf("filtered logs = %q", filtered)
	}

	exported := run(t, with("export", "--format", "json")...)
	var recs []model.LogRecord
	if err := json.Unmarshal([]byte(exported), &recs); err != nil || len(recs) != 2 {
		t.Fatalf("export json = %q (%v)", exported, err)
	}
	text := run(t, with("export", "-f", "text")...)
	if !strings.Contains(text, "Total entries: 2") {
		t.Errorf("export text = %q", text)
	}

	dir := t.TempDir()
	name := strings.TrimSpace(run(t, with("download", "--dir", dir)...))
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Errorf("download not written: %v", err)
	}

	run(t, with("clear")...)
	after := run(t, with("logs")...)
	if strings.Count(strings.TrimSpace(after), "\n") != 0 || !strings.Contains(after, "Logs cleared") {
		t.Errorf("logs after clear = %q", after)
	}
}

func TestCLI_ReportStoredErrors(t *testing.T) {
	t.Setenv("FORMTEL_CONFIG", "")
	t.Setenv("FORMTEL_LOG_LEVEL", "error")
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	store := []string{"--store", "pebble", "--store-path", filepath.Join(t.TempDir(), "logs")}
	for _, lvl := range []string{"warning", "debug", "error"} {
		run(t, append([]string{"log", "-l", lvl, "entry " + lvl}, store...)...)
	}

	out := run(t, append([]string{"report", "--collector", srv.URL}, store...)...)
	if !strings.Contains(out, "reported 2 record(s)") {
		t.Errorf("report output = %q", out)
	}
	reports := c.Reports()
	if len(reports) != 1 || len(reports[0].Errors) != 2 {
		t.Fatalf("collector received %+v", reports)
	}
	if reports[0].Errors[0].Message != "entry error" {
		t.Errorf("batch should keep store order (newest first): %+v", reports[0].Errors)
	}
}

func TestCLI_DryRun(t *testing.T) {
	t.Setenv("FORMTEL_CONFIG", "")
	t.Setenv("FORMTEL_LOG_LEVEL", "error")
	out := run(t, "log", "--store", "memory", "--dry-run", "-l", "warning", "printed")
	if !strings.Contains(out, `"message":"printed"`) {
		t.Errorf("dry run output = %q", out)
	}
}

func TestParseProps(t *testing.T) {
	props, err := parseProps([]string{"a=1", "b=x=y"})
	if err != nil || props["a"] != "1" || props["b"] != "x=y" {
		t.Errorf("parseProps = %v, %v", props, err)
	}
	if _, err := parseProps([]string{"novalue"}); err == nil {
		t.Error("Expected error for missing '='")
	}
}
