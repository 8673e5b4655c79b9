package quic

import (
	"context"
	"fmt"
	"net"

	"github.com/nsauthd/nsauthd/internal/ns/common/log"
)

// maxDatagramSize bounds a single inbound read; QUIC datagrams never
// exceed a UDP path's MTU and this package never assembles anything larger
// than one packet at a time.
const maxDatagramSize = 65535

// Listener runs one UDP socket feeding every received datagram through a
// Demultiplexer. Unlike the classic UDP pipeline (internal/ns/transport/udp)
// it does not shard across SO_REUSEPORT workers: a Demultiplexer has no
// internal locking and is only ever driven from the goroutine that owns it,
// so one Listener is exactly one Demultiplexer's worker.
type Listener struct {
	addr  string
	demux *Demultiplexer
}

// NewListener builds a Listener serving addr (host:port) by driving demux.
func NewListener(addr string, demux *Demultiplexer) *Listener {
	return &Listener{addr: addr, demux: demux}
}

// Run binds addr and serves until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	pc, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		return fmt.Errorf("quic: failed to bind %s: %w", l.addr, err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			pc.Close()
		case <-done:
		}
	}()
	defer close(done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, peer, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("quic: read failed: %w", err)
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		for _, out := range l.demux.HandleDatagram(ctx, pkt, peer) {
			if _, err := pc.WriteTo(out.Data, out.Peer); err != nil {
				log.Warn(map[string]any{"peer": out.Peer.String(), "error": err.Error()}, "quic: write failed")
			}
		}
	}
}
