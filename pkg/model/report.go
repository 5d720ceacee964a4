package model

import "time"

// ErrorReport is the body POSTed to the collector.
type ErrorReport struct {
	Errors    []LogRecord `json:"errors"`
	Timestamp time.Time   `json:"timestamp"`
	UserAgent string      `json:"userAgent,omitempty"`
}

// NewErrorReport wraps a batch, preserving its order.
func NewErrorReport(batch []LogRecord, userAgent string) ErrorReport {
	return ErrorReport{
		Errors:    batch,
		Timestamp: Now().UTC(),
		UserAgent: userAgent,
	}
}
