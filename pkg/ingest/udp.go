package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"sync"
)

// UDPIngestor listens for datagrams carrying one or more newline-delimited
// records.
type UDPIngestor struct {
	addr string
	sink Sink
	log  *slog.Logger

	mu        sync.Mutex
	conn      *net.UDPConn
	ready     chan struct{}
	readyOnce sync.Once
}

func NewUDPIngestor(addr string, sink Sink, logger *slog.Logger) *UDPIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPIngestor{
		addr:  addr,
		sink:  sink,
		log:   logger.With("component", "ingest"),
		ready: make(chan struct{}),
	}
}

// Addr blocks until Start has bound the socket and returns its address,
// or nil if binding failed.
func (u *UDPIngestor) Addr() net.Addr {
	<-u.ready
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Start reads datagrams until ctx is cancelled. Blocking call.
func (u *UDPIngestor) Start(ctx context.Context) error {
	defer u.readyOnce.Do(func() { close(u.ready) })

	addr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	u.readyOnce.Do(func() { close(u.ready) })
	u.log.Info("UDP Ingestor listening", "addr", conn.LocalAddr().String())

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	// Max UDP payload; the buffer is reused, decode copies what it keeps.
	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			u.log.Warn("UDP Read error", "error", err)
			continue
		}

		for _, line := range bytes.Split(buf[:n], []byte("\n")) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			rec, err := decode(line)
			if err != nil {
				u.log.Debug("Dropping malformed datagram", "error", err)
				continue
			}
			u.sink.Write(rec)
		}
	}
}
