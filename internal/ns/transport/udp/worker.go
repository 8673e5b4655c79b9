package udp

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/nsauthd/nsauthd/internal/ns/common/arena"
	"github.com/nsauthd/nsauthd/internal/ns/common/clock"
	"github.com/nsauthd/nsauthd/internal/ns/common/log"
	"github.com/nsauthd/nsauthd/internal/ns/query"
	"github.com/nsauthd/nsauthd/internal/ns/resolve"
)

// worker owns one SO_REUSEPORT socket, its own arena, and its own
// query-processor scratch. It never touches another worker's state and
// the only thing shared across workers is the zone snapshot store buried
// inside its processor.
type worker struct {
	id        int
	conn      batchConn
	family    family
	batchSize int
	processor *resolve.Processor
	arena     *arena.Arena
	clk       clock.Clock
}

// run executes the poll→receive→handle→send loop until ctx is cancelled.
func (w *worker) run(ctx context.Context) error {
	controlSpace := controlMessageSpace(w.family)

	msgs := make([]ipv4.Message, w.batchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, query.MaxMessageSize)}
		msgs[i].OOB = make([]byte, controlSpace)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := w.conn.SetReadDeadline(w.deadline(pollTimeout)); err != nil {
			return err
		}

		n, err := w.conn.ReadBatch(msgs, 0)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn(map[string]any{"worker": w.id, "error": err.Error()}, "udp batch receive failed")
			continue
		}

		sendCount := w.handleBatch(msgs[:n])
		w.arena.Reset()

		if sendCount > 0 {
			if _, err := w.conn.WriteBatch(msgs[:sendCount], 0); err != nil {
				log.Warn(map[string]any{"worker": w.id, "error": err.Error()}, "udp batch send failed")
			}
		}
	}
}

// handleBatch drives the query layer for every datagram in ms, rewriting
// ms in place so that the first sendCount entries are ready to hand
// straight to WriteBatch: response bytes in Buffers[0][:N], the original
// sender as the destination Addr, and a control message pinning the reply
// source address to the original destination with the interface index
// cleared.
func (w *worker) handleBatch(ms []ipv4.Message) int {
	sendCount := 0
	for i := range ms {
		pkt := ms[i].Buffers[0][:ms[i].N]
		dst := parseDst(w.family, ms[i].OOB[:])

		claimed := w.arena.Claim(query.MaxMessageSize)
		out, ok := query.Drive(w.processor, resolve.Params{
			Transport: resolve.TransportUDP,
			BufferCap: query.MaxMessageSize,
		}, pkt, claimed)
		if !ok || len(out) == 0 {
			continue
		}
		w.arena.Commit(len(out))

		send := &ms[sendCount]
		send.Buffers[0] = out
		send.Addr = ms[i].Addr
		send.N = len(out)
		if dst != nil {
			send.OOB = buildControl(w.family, dst)
		} else {
			send.OOB = nil
		}
		sendCount++
	}
	return sendCount
}

func controlMessageSpace(f family) int {
	if f == familyV4 {
		return len(ipv4.NewControlMessage(ipv4.FlagDst | ipv4.FlagInterface))
	}
	return len(ipv6.NewControlMessage(ipv6.FlagDst | ipv6.FlagInterface))
}

func parseDst(f family, oob []byte) net.IP {
	if f == familyV4 {
		cm := new(ipv4.ControlMessage)
		if err := cm.Parse(oob); err != nil {
			return nil
		}
		return cm.Dst
	}
	cm := new(ipv6.ControlMessage)
	if err := cm.Parse(oob); err != nil {
		return nil
	}
	return cm.Dst
}

func buildControl(f family, dst net.IP) []byte {
	if f == familyV4 {
		cm := &ipv4.ControlMessage{Src: dst}
		return cm.Marshal()
	}
	cm := &ipv6.ControlMessage{Src: dst}
	return cm.Marshal()
}

func (w *worker) deadline(d time.Duration) time.Time {
	return w.clk.Now().Add(d)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
