package notify

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/wire"
)

// echoPeer binds a UDP socket that decodes the incoming request, flips the
// Response bit, sets rcode, and sends back a reply with the same ID -- a
// stand-in for a secondary answering NOTIFY.
func echoPeer(t *testing.T, rcode domain.RCode) string {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			req, err := wire.Parse(buf[:n])
			if err != nil {
				continue
			}
			resp := domain.Message{
				Header: domain.Header{
					ID:            req.Header.ID,
					Opcode:        req.Header.Opcode,
					Response:      true,
					Authoritative: true,
					RCode:         rcode,
				},
				Question: req.Question,
			}
			out, err := wire.EncodeUncompressed(resp)
			if err != nil {
				continue
			}
			pc.WriteTo(out, addr)
		}
	}()
	return pc.LocalAddr().String()
}

func testSOA(t *testing.T) domain.RRSet {
	t.Helper()
	soa, err := wire.EncodeSOA(wire.SOAFields{
		MName: "ns1.example.", RName: "hostmaster.example.",
		Serial: 5, Refresh: 3600, Retry: 600, Expire: 86400, Minimum: 60,
	})
	require.NoError(t, err)
	rs, err := domain.NewRRSet("example.", domain.RRTypeSOA, domain.RRClassIN, 3600, soa)
	require.NoError(t, err)
	return rs
}

func TestNotifySucceedsOnFirstReachablePeer(t *testing.T) {
	addr := echoPeer(t, domain.RCodeNoError)
	soa := testSOA(t)
	req := BuildNotify(0x1234, "example.", &soa)

	r := NewRequestor(Options{Timeout: 500 * time.Millisecond})
	resp, err := r.Notify(context.Background(), []string{addr}, req)
	require.NoError(t, err)
	require.Equal(t, uint16(0x1234), resp.Header.ID)
	require.True(t, resp.Header.Response)
	require.Equal(t, domain.RCodeNoError, resp.Header.RCode)
}

func TestNotifyFallsBackToNextAddress(t *testing.T) {
	good := echoPeer(t, domain.RCodeNoError)
	soa := testSOA(t)
	req := BuildNotify(0xABCD, "example.", &soa)

	// Bad address: nothing listens there, so the first attempt must time
	// out quickly and the retry harness must move on to the next address.
	bad := "127.0.0.1:1"

	r := NewRequestor(Options{Timeout: 300 * time.Millisecond})
	resp, err := r.Notify(context.Background(), []string{bad, good}, req)
	require.NoError(t, err)
	require.Equal(t, uint16(0xABCD), resp.Header.ID)
}

func TestNotifyFailsWhenAllAddressesFail(t *testing.T) {
	soa := testSOA(t)
	req := BuildNotify(1, "example.", &soa)

	r := NewRequestor(Options{Timeout: 200 * time.Millisecond})
	_, err := r.Notify(context.Background(), []string{"127.0.0.1:1"}, req)
	require.Error(t, err)
}

func TestNotifyRequiresAtLeastOneAddress(t *testing.T) {
	r := NewRequestor(Options{})
	_, err := r.Notify(context.Background(), nil, domain.Message{})
	require.Error(t, err)
}

func TestBuildNotifySetsOpcodeAndQuestion(t *testing.T) {
	soa := testSOA(t)
	msg := BuildNotify(42, "example.", &soa)
	require.Equal(t, domain.OpcodeNotify, msg.Header.Opcode)
	require.True(t, msg.Header.Authoritative)
	require.Equal(t, domain.Name("example."), msg.Question.Name)
	require.Equal(t, domain.RRTypeSOA, msg.Question.Type)
	require.Len(t, msg.Answer, 1)
}

func TestBuildNotifyWithoutSOAHint(t *testing.T) {
	msg := BuildNotify(1, "example.", nil)
	require.Empty(t, msg.Answer)
}
