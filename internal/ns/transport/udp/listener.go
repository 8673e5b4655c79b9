// Package udp implements the UDP datagram pipeline (C6): a pool of
// independent per-worker sockets, each running its own batched
// receive→handle→send loop over a per-query arena, driving the query layer
// (C4) against the query processor (C5).
package udp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/nsauthd/nsauthd/internal/ns/common/arena"
	"github.com/nsauthd/nsauthd/internal/ns/common/clock"
	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/query"
	"github.com/nsauthd/nsauthd/internal/ns/resolve"
	"github.com/nsauthd/nsauthd/internal/ns/snapshot"
)

// DefaultBatchSize is the configurable default batch size for
// recvmmsg/sendmmsg-style batched I/O.
const DefaultBatchSize = 64

// pollTimeout bounds how long a worker's ReadBatch call blocks before
// re-checking ctx.Done(); kept at or under one second so cancellation is
// observed promptly.
const pollTimeout = time.Second

// Listener runs a fixed pool of UDP workers, each bound to its own
// SO_REUSEPORT socket on the same address, so the kernel load-balances
// incoming datagrams across them with no cross-worker locking -- each
// worker owns its own fd, arena, and layer scratch outright.
type Listener struct {
	addr      string
	store     *snapshot.Store
	tsig      domain.TSIGVerifier
	workers   int
	batchSize int
	clk       clock.Clock

	wg sync.WaitGroup
}

// Option configures a Listener at construction time.
type Option func(*Listener)

// WithWorkers sets the number of SO_REUSEPORT worker sockets. Defaults to
// one if unset or non-positive.
func WithWorkers(n int) Option {
	return func(l *Listener) { l.workers = n }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(l *Listener) { l.batchSize = n }
}

// WithTSIGVerifier sets the verifier the query processor surfaces TSIG
// results through. Defaults to domain.NoopTSIGVerifier{}.
func WithTSIGVerifier(v domain.TSIGVerifier) Option {
	return func(l *Listener) { l.tsig = v }
}

// WithClock overrides every worker's time source, for tests that need the
// read-deadline poll driven by a clock.MockClock instead of the wall clock.
func WithClock(c clock.Clock) Option {
	return func(l *Listener) { l.clk = c }
}

// NewListener builds a Listener serving addr (host:port) from store.
func NewListener(addr string, store *snapshot.Store, opts ...Option) *Listener {
	l := &Listener{
		addr:      addr,
		store:     store,
		tsig:      domain.NoopTSIGVerifier{},
		batchSize: DefaultBatchSize,
		clk:       clock.RealClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.workers <= 0 {
		l.workers = 1
	}
	return l
}

// Run binds l.workers independent SO_REUSEPORT sockets and serves on each
// until ctx is cancelled, then blocks until every worker has exited. If a
// worker's socket fails to bind, Run returns that error at once; workers
// already started keep serving until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = setReusePort(fd)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	errs := make(chan error, l.workers)
	for i := 0; i < l.workers; i++ {
		pc, err := lc.ListenPacket(ctx, "udp", l.addr)
		if err != nil {
			return fmt.Errorf("udp: worker %d failed to bind %s: %w", i, l.addr, err)
		}
		conn, family, err := wrapPacketConn(pc)
		if err != nil {
			pc.Close()
			return fmt.Errorf("udp: worker %d failed to enable PKTINFO: %w", i, err)
		}
		w := &worker{
			id:        i,
			conn:      conn,
			family:    family,
			batchSize: l.batchSize,
			processor: resolve.NewProcessor(l.store, l.tsig),
			arena:     arena.New(l.batchSize * query.MaxMessageSize),
			clk:       l.clk,
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			errs <- w.run(ctx)
		}()
	}

	<-ctx.Done()
	l.wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

// family identifies which x/net control-message codec a worker's socket
// needs, since ipv4.ControlMessage and ipv6.ControlMessage are distinct
// types even though ipv4.Message and ipv6.Message are the same type alias.
type family int

const (
	familyV4 family = 4
	familyV6 family = 6
)

// batchConn is the surface both *ipv4.PacketConn and *ipv6.PacketConn
// expose for batched datagram I/O; ipv4.Message and ipv6.Message are the
// same underlying type (golang.org/x/net/internal/socket.Message), so one
// interface covers both families.
type batchConn interface {
	ReadBatch(ms []ipv4.Message, flags int) (int, error)
	WriteBatch(ms []ipv4.Message, flags int) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// wrapPacketConn wraps pc in the ipv4 or ipv6 control-message-aware
// PacketConn matching its address family, and enables PKTINFO delivery
// (destination address + inbound interface) on every read. ipv4.Message
// and ipv6.Message are the same underlying type
// (golang.org/x/net/internal/socket.Message, aliased by both packages), so
// *ipv6.PacketConn's ReadBatch/WriteBatch satisfy batchConn directly with
// no adapter needed.
func wrapPacketConn(pc net.PacketConn) (batchConn, family, error) {
	udpConn, ok := pc.(*net.UDPConn)
	if !ok {
		return nil, 0, fmt.Errorf("udp: expected *net.UDPConn, got %T", pc)
	}
	if isIPv4Addr(udpConn.LocalAddr()) {
		v4 := ipv4.NewPacketConn(udpConn)
		if err := v4.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
			return nil, 0, err
		}
		return v4, familyV4, nil
	}
	v6 := ipv6.NewPacketConn(udpConn)
	if err := v6.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
		return nil, 0, err
	}
	return v6, familyV6, nil
}

func isIPv4Addr(addr net.Addr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok || udpAddr.IP == nil {
		return true
	}
	return udpAddr.IP.To4() != nil
}
