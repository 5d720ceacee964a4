// Package slot provides durable single-key value slots. The log store keeps
// its whole record set in one slot and rewrites it on every mutation.
package slot

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("slot: key not found")

// Slot is a minimal key-value surface. Get returns ErrNotFound for a
// missing key; Delete of a missing key is not an error.
type Slot interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
