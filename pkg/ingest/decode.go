// Package ingest accepts log records from local processes over TCP and UDP,
// one JSON LogRecord per line or datagram, and hands them to a Sink.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"formtel/pkg/model"
)

// Sink receives decoded records. *telemetry.Logger satisfies it.
type Sink interface {
	Write(rec model.LogRecord)
}

func decode(line []byte) (model.LogRecord, error) {
	var rec model.LogRecord
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return rec, fmt.Errorf("empty line")
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return rec, err
	}
	return rec, nil
}
