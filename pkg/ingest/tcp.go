package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// TCPIngestor listens for TCP connections carrying newline-delimited records.
type TCPIngestor struct {
	addr string
	sink Sink
	log  *slog.Logger

	mu        sync.Mutex
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once
}

func NewTCPIngestor(addr string, sink Sink, logger *slog.Logger) *TCPIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPIngestor{
		addr:  addr,
		sink:  sink,
		log:   logger.With("component", "ingest"),
		ready: make(chan struct{}),
	}
}

// Addr blocks until Start has bound the listener and returns its address,
// or nil if binding failed.
func (t *TCPIngestor) Addr() net.Addr {
	<-t.ready
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Start listens until ctx is cancelled. Blocking call.
func (t *TCPIngestor) Start(ctx context.Context) error {
	defer t.readyOnce.Do(func() { close(t.ready) })

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", t.addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()
	t.readyOnce.Do(func() { close(t.ready) })
	t.log.Info("TCP Ingestor listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.log.Warn("Error accepting connection", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.handleConnection(ctx, conn)
		}()
	}
}

func (t *TCPIngestor) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if rec, derr := decode(line); derr != nil {
				t.log.Debug("Dropping malformed record", "remote", conn.RemoteAddr().String(), "error", derr)
			} else {
				t.sink.Write(rec)
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				t.log.Warn("Read error", "error", err)
			}
			return
		}
	}
}
