package slot

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode defines durability behavior for writes to a Pebble slot.
type FsyncMode int

const (
	// FsyncInterval syncs every write but lets Pebble coalesce the WAL
	// syncs of writes arriving within FsyncEvery.
	FsyncInterval FsyncMode = iota
	// FsyncAlways syncs the WAL on each write.
	FsyncAlways
	// FsyncNever leaves syncing entirely to Pebble.
	FsyncNever
)

// PebbleOptions configures an on-disk slot.
type PebbleOptions struct {
	Dir        string
	Fsync      FsyncMode
	FsyncEvery time.Duration
}

// Pebble is a Slot backed by an on-disk Pebble database.
type Pebble struct {
	db        *pebble.DB
	writeSync bool
}

func OpenPebble(opts PebbleOptions) (*Pebble, error) {
	if opts.Dir == "" {
		return nil, errors.New("slot: pebble directory is required")
	}

	po := &pebble.Options{}
	switch opts.Fsync {
	case FsyncAlways, FsyncNever:
	default:
		every := opts.FsyncEvery
		if every <= 0 {
			every = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return every }
	}

	db, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, err
	}
	return &Pebble{db: db, writeSync: opts.Fsync != FsyncNever}, nil
}

func (p *Pebble) writeOpts() *pebble.WriteOptions {
	if p.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (p *Pebble) Get(_ context.Context, key string) ([]byte, error) {
	val, closer, err := p.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (p *Pebble) Set(_ context.Context, key string, value []byte) error {
	return p.db.Set([]byte(key), value, p.writeOpts())
}

func (p *Pebble) Delete(_ context.Context, key string) error {
	return p.db.Delete([]byte(key), p.writeOpts())
}

func (p *Pebble) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
