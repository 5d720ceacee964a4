// Package uplink delivers Warning and Error records to a remote collector in
// rate-limited batches.
//
// Records wait in an in-memory FIFO. Each Submit requests one drain cycle;
// a single worker runs the cycles one at a time, so there is never more than
// one report in flight and the rate limiter has one notion of the last send.
// A failed report puts its records back at the tail of the queue, where they
// wait for the next requested cycle. Nothing is persisted: pending records
// are lost when the process exits.
package uplink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"formtel/pkg/model"
)

const (
	DefaultMinInterval = 5 * time.Second
	DefaultMaxBatch    = 10
	DefaultSendTimeout = 10 * time.Second
)

// Transport sends one report. Any error counts as a failed delivery.
type Transport interface {
	Send(ctx context.Context, report model.ErrorReport) error
}

type Options struct {
	// MinInterval is the minimum time between a successful report and the
	// start of the next one. Zero means the default; negative disables it.
	MinInterval time.Duration
	// MaxBatch caps the records per report and per SubmitBatch call.
	MaxBatch int
	// SendTimeout bounds a single Transport.Send.
	SendTimeout time.Duration
	UserAgent   string
	Logger      *slog.Logger
}

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	Attempts uint64
	Sent     uint64
	Failures uint64
	Requeued uint64
	Dropped  uint64
	Pending  int
}

// Pipeline is the rate-limited uplink. Construct one per process and share it.
type Pipeline struct {
	queue     *Queue
	transport Transport

	minInterval time.Duration
	maxBatch    int
	sendTimeout time.Duration
	userAgent   string
	log         *slog.Logger

	// gate admits one drain cycle at a time. lastReport is only touched
	// while holding it.
	gate       chan struct{}
	lastReport time.Time

	reqMu    sync.Mutex
	requests int
	wake     chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup

	attempts atomic.Uint64
	sent     atomic.Uint64
	failures atomic.Uint64
	requeued atomic.Uint64
	dropped  atomic.Uint64
}

func NewPipeline(t Transport, opts Options) *Pipeline {
	if opts.MinInterval < 0 {
		opts.MinInterval = 0
	} else if opts.MinInterval == 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		queue:       NewQueue(),
		transport:   t,
		minInterval: opts.MinInterval,
		maxBatch:    opts.MaxBatch,
		sendTimeout: opts.SendTimeout,
		userAgent:   opts.UserAgent,
		log:         opts.Logger.With("component", "uplink"),
		gate:        make(chan struct{}, 1),
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the drain worker. Cycles requested before Start run once
// it is up.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.worker(ctx)
}

// Close stops the worker and waits for an in-flight cycle to finish.
// Records still queued are dropped.
func (p *Pipeline) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if n := p.queue.Len(); n > 0 {
		p.log.Warn("Uplink: discarding unsent records", "count", n)
	}
}

// Submit queues rec if it is a Warning or Error and requests a drain cycle.
// It reports whether rec qualified. It never waits on the network.
func (p *Pipeline) Submit(rec model.LogRecord) bool {
	if !rec.Level.Qualifies() {
		return false
	}
	p.queue.Push(rec)
	p.requestDrain()
	return true
}

// SubmitBatch queues the first MaxBatch qualifying records of recs, in
// order, and requests one drain cycle. Qualifying records past the cap are
// dropped. It reports whether anything was queued.
func (p *Pipeline) SubmitBatch(recs []model.LogRecord) bool {
	batch := make([]model.LogRecord, 0, min(len(recs), p.maxBatch))
	for _, rec := range recs {
		if len(batch) == p.maxBatch {
			break
		}
		if rec.Level.Qualifies() {
			batch = append(batch, rec)
		}
	}
	if len(batch) == 0 {
		return false
	}
	p.queue.PushAll(batch)
	p.requestDrain()
	return true
}

// Pending returns the number of queued records.
func (p *Pipeline) Pending() int {
	return p.queue.Len()
}

// PendingRecords returns a copy of the queue, head first.
func (p *Pipeline) PendingRecords() []model.LogRecord {
	return p.queue.Snapshot()
}

func (p *Pipeline) Stats() Stats {
	return Stats{
		Attempts: p.attempts.Load(),
		Sent:     p.sent.Load(),
		Failures: p.failures.Load(),
		Requeued: p.requeued.Load(),
		Dropped:  p.dropped.Load(),
		Pending:  p.queue.Len(),
	}
}

func (p *Pipeline) requestDrain() {
	p.reqMu.Lock()
	p.requests++
	p.reqMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) takeRequest() bool {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	if p.requests == 0 {
		return false
	}
	p.requests--
	return true
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		for p.takeRequest() {
			if _, err := p.DrainOnce(ctx); err != nil && ctx.Err() != nil {
				return
			}
		}
	}
}

// DrainOnce runs one drain cycle: wait for the gate and the rate limit, take
// up to MaxBatch records from the head and send them. It reports whether a
// report was delivered. An empty queue is (false, nil). On a failed send the
// records go back to the tail in their original order and the error is
// returned. Records that cannot be encoded are dropped before sending.
func (p *Pipeline) DrainOnce(ctx context.Context) (bool, error) {
	select {
	case p.gate <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-p.gate }()

	if !p.lastReport.IsZero() {
		if wait := p.minInterval - time.Since(p.lastReport); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return false, ctx.Err()
			}
		}
	}

	batch := p.takeBatch()
	if len(batch) == 0 {
		return false, nil
	}

	report := model.NewErrorReport(batch, p.userAgent)
	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	err := p.transport.Send(sendCtx, report)
	cancel()

	p.attempts.Add(1)
	if err != nil {
		p.queue.PushAll(batch)
		p.failures.Add(1)
		p.requeued.Add(uint64(len(batch)))
		if errors.Is(err, ErrNotConfigured) {
			p.log.Debug("Uplink: collector not configured, keeping records queued", "count", len(batch))
		} else {
			p.log.Warn("Uplink: failed to report errors", "count", len(batch), "error", err)
		}
		return false, err
	}

	p.lastReport = time.Now()
	p.sent.Add(uint64(len(batch)))
	p.log.Debug("Uplink: reported errors", "count", len(batch))
	return true, nil
}

// takeBatch pops up to MaxBatch records, stringifying property values JSON
// cannot encode. A record that still cannot be encoded would fail every
// report it rides in, so it is dropped.
func (p *Pipeline) takeBatch() []model.LogRecord {
	for {
		batch := p.queue.PopN(p.maxBatch)
		if len(batch) == 0 {
			return nil
		}
		kept := batch[:0]
		for _, rec := range batch {
			rec = rec.Sanitized()
			if err := rec.CheckEncoding(); err != nil {
				p.dropped.Add(1)
				p.log.Error("Uplink: dropping record that cannot be encoded", "message", rec.Message, "error", err)
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) > 0 {
			return kept
		}
	}
}
