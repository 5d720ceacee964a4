package uplink

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"formtel/pkg/model"
)

// WriterTransport writes each report as one JSON line. It never fails
// unless the writer does.
type WriterTransport struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterTransport(w io.Writer) *WriterTransport {
	return &WriterTransport{w: w}
}

func (t *WriterTransport) Send(_ context.Context, report model.ErrorReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.w.Write(data)
	return err
}
