package logstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"formtel/pkg/model"
)

const textTimeLayout = "2006-01-02 15:04:05"

// ExportText renders all stored records as a plain-text report.
// The header time is local; record timestamps are printed as stored (UTC).
func (s *Store) ExportText(ctx context.Context) string {
	return FormatText(s.Records(ctx, 0), time.Now())
}

// FormatText renders records in the plain-text export format.
func FormatText(records []model.LogRecord, generated time.Time) string {
	var b strings.Builder
	b.WriteString("=== LOG FILE ===\n")
	fmt.Fprintf(&b, "Generated: %s\n", generated.Format(textTimeLayout))
	fmt.Fprintf(&b, "Total entries: %d\n", len(records))
	b.WriteString("\n---\n")

	for _, rec := range records {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[%s] %s\n", rec.Timestamp.Format(textTimeLayout), rec.Level)
		fmt.Fprintf(&b, "Message: %s\n", rec.Message)
		if rec.Exception != "" {
			fmt.Fprintf(&b, "Exception: %s\n", rec.Exception)
		}
		if len(rec.Properties) > 0 {
			b.WriteString("Properties:\n")
			keys := make([]string, 0, len(rec.Properties))
			for k := range rec.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "  %s: %v\n", k, rec.Properties[k])
			}
		}
		b.WriteString("---\n")
	}
	return b.String()
}
