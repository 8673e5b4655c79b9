// Package quic implements the QUIC demultiplexer (C7): per-worker
// destination connection ID dispatch, version negotiation, address
// validation, the TLS handshake over crypto/tls.QUICConn, and reassembly
// of the single length-prefixed DNS message DNS-over-QUIC (RFC 9250)
// carries per stream, handed to the same query layer (C4) the UDP
// pipeline uses.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"net"

	"github.com/nsauthd/nsauthd/internal/ns/common/log"
)

// Handler resolves one complete DNS request message into a response
// message, the same shape resolve.Processor exposes through query.Layer.
type Handler func(ctx context.Context, query []byte) []byte

// Options configures a Demultiplexer.
type Options struct {
	ShortDCIDLen int // connection ID length this server issues for its own packets
	TableSize    int
	RetrySecret  []byte
	RetryBits    int
	TLSConfig    *tls.Config
	Versions     []uint32
}

// Demultiplexer owns one worker's view of every live QUIC connection. It
// has no locking: a Demultiplexer is handed to one Listener (cmd/nsauthd
// builds one per QUIC listener) and only that Listener's read loop ever
// calls into it, mirroring the batched datagram pipeline's per-worker
// ownership of its socket.
type Demultiplexer struct {
	table       *Table
	retry       *RetryValidator
	tlsConfig   *tls.Config
	dcidLen     int
	versions    []uint32
	handler     Handler
}

// NewDemultiplexer builds a Demultiplexer from opts. handler is invoked
// once per fully reassembled request on an established connection's
// stream.
func NewDemultiplexer(opts Options, handler Handler) *Demultiplexer {
	versions := opts.Versions
	if len(versions) == 0 {
		versions = []uint32{VersionOne}
	}
	dcidLen := opts.ShortDCIDLen
	if dcidLen <= 0 {
		dcidLen = 8
	}
	return &Demultiplexer{
		table:     NewTable(opts.TableSize),
		retry:     NewRetryValidator(opts.RetrySecret, opts.RetryBits),
		tlsConfig: opts.TLSConfig,
		dcidLen:   dcidLen,
		versions:  versions,
		handler:   handler,
	}
}

// Outbound is one datagram the caller must write back to peer.
type Outbound struct {
	Peer net.Addr
	Data []byte
}

// HandleDatagram routes one received UDP datagram, advancing whatever
// connection state it belongs to (or creating one, for a validated first
// Initial packet) and returning any datagrams that must be sent in reply.
func (d *Demultiplexer) HandleDatagram(ctx context.Context, pkt []byte, peer net.Addr) []Outbound {
	hdr, err := ParseHeader(pkt, d.dcidLen)
	if err != nil {
		return nil
	}

	if hdr.Type == PacketShort {
		return d.handleShort(ctx, pkt, hdr, peer)
	}
	if hdr.Type == PacketVersionNegotiation {
		return nil
	}

	if hdr.Version != VersionOne {
		return []Outbound{{Peer: peer, Data: BuildVersionNegotiation(hdr.DCID, hdr.SCID, d.versions)}}
	}

	conn := d.table.Lookup(hdr.DCID)
	if conn == nil {
		if hdr.Type != PacketInitial {
			return nil // no connection, no way to start one from this packet type
		}
		return d.handleNewInitial(ctx, pkt, hdr, peer)
	}

	return d.handleLong(ctx, pkt, hdr, conn)
}

// handleNewInitial validates the client's address (by requiring a retry
// token it previously issued) before committing any per-connection state,
// the mitigation RFC 9000 section 8.1 describes for UDP amplification.
func (d *Demultiplexer) handleNewInitial(ctx context.Context, pkt []byte, hdr Header, peer net.Addr) []Outbound {
	token, odcid, hasToken := extractInitialToken(pkt, hdr)
	if !hasToken || len(token) == 0 {
		newToken := d.retry.Issue(peer, hdr.DCID)
		return []Outbound{{Peer: peer, Data: buildRetry(hdr.Version, hdr.DCID, hdr.SCID, newToken)}}
	}
	validatedODCID, err := d.retry.Validate(peer, token)
	if err != nil {
		log.Warn(map[string]any{"peer": peer.String()}, "quic: rejecting unvalidated initial")
		return nil
	}
	_ = odcid
	_ = validatedODCID

	localCID := make([]byte, d.dcidLen)
	if _, err := rand.Read(localCID); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "quic: failed to mint connection id")
		return nil
	}

	conn := NewConnection(hdr.DCID, hdr.SCID, localCID, peer, d.tlsConfig)
	// Future packets from this client carry localCID as their own DCID
	// field (RFC 9000 section 7.2), so that is what the table must be
	// keyed by -- not hdr.SCID, which belongs to the client, not to us.
	d.table.Insert(localCID, conn)
	if err := conn.Start(ctx, nil); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "quic: handshake start failed")
		d.table.Remove(localCID)
		return nil
	}
	return d.driveLong(ctx, pkt, hdr, conn)
}

func (d *Demultiplexer) handleLong(ctx context.Context, pkt []byte, hdr Header, conn *Connection) []Outbound {
	return d.driveLong(ctx, pkt, hdr, conn)
}

// driveLong decrypts one Initial or Handshake packet, feeds any CRYPTO
// data it carries to the TLS driver, and packetizes whatever the driver
// now wants to send.
func (d *Demultiplexer) driveLong(ctx context.Context, pkt []byte, hdr Header, conn *Connection) []Outbound {
	level := levelFor(hdr.Type)
	keys, ok := conn.readKeys[level]
	if !ok {
		return nil
	}
	payload, _, err := openLongPacket(pkt, hdr, keys)
	if err != nil {
		return nil
	}
	frames, err := parseFrames(payload)
	if err != nil {
		return nil
	}
	for _, c := range frames.crypto {
		if err := conn.Feed(level, c.data); err != nil {
			log.Warn(map[string]any{"error": err.Error()}, "quic: handshake rejected crypto data")
			return nil
		}
	}

	events, err := conn.Advance()
	if err != nil {
		return nil
	}

	var out []Outbound
	for _, ev := range events {
		if ev.WriteData == nil {
			continue
		}
		writeKeys, ok := conn.writeKeys[ev.Level]
		if !ok {
			continue
		}
		longType := longTypeForLevel(ev.Level)
		pn := conn.nextWritePN(ev.Level)
		// Outgoing DCID is the client's own SCID (RFC 9000 section 7.2);
		// outgoing SCID is the connection ID this server minted, never
		// conn.DCID, which only ever identified the Initial secrets.
		sealed, err := sealInitialOrHandshake(longType, VersionOne, conn.SCID, conn.LocalCID, pn, writeKeys, ev.WriteData)
		if err != nil {
			continue
		}
		out = append(out, Outbound{Peer: conn.Peer, Data: sealed})
	}
	return out
}

// handleShort decrypts a 1-RTT packet, reassembles its stream data into a
// complete request, resolves it through d.handler, and frames the answer
// back on the same stream.
func (d *Demultiplexer) handleShort(ctx context.Context, pkt []byte, hdr Header, peer net.Addr) []Outbound {
	conn := d.table.Lookup(hdr.DCID)
	if conn == nil || !conn.Established() {
		return nil
	}
	keys, ok := conn.readKeys[tls.QUICEncryptionLevelApplication]
	if !ok {
		return nil
	}
	payload, _, err := openShortPacket(pkt, d.dcidLen, keys)
	if err != nil {
		return nil
	}
	frames, err := parseFrames(payload)
	if err != nil {
		return nil
	}
	if frames.closed {
		conn.Close()
		d.table.Remove(hdr.DCID)
		return nil
	}

	var out []Outbound
	for _, s := range frames.stream {
		msg, complete := conn.AppendStreamRequest(s.data)
		if !complete {
			continue
		}
		resp := d.handler(ctx, msg)
		out = append(out, d.frameResponse(conn, s.id, resp)...)
	}
	return out
}

// frameResponse wraps resp in a length-prefixed DoQ stream frame, sealed
// into a 1-RTT packet addressed back to conn's peer.
func (d *Demultiplexer) frameResponse(conn *Connection, streamID uint64, resp []byte) []Outbound {
	writeKeys, ok := conn.writeKeys[tls.QUICEncryptionLevelApplication]
	if !ok {
		return nil
	}
	framed := make([]byte, 0, len(resp)+2)
	framed = append(framed, byte(len(resp)>>8), byte(len(resp)))
	framed = append(framed, resp...)

	stream := appendVarint(nil, 0x0b) // STREAM with LEN and FIN bits set, no OFF
	stream = appendVarint(stream, streamID)
	stream = appendVarint(stream, uint64(len(framed)))
	stream = append(stream, framed...)

	pn := conn.nextWritePN(tls.QUICEncryptionLevelApplication)
	// A short header carries only a Destination Connection ID, which must
	// be the client's SCID (RFC 9000 section 7.2), not conn.DCID.
	sealed, err := sealShortPacket(conn.SCID, pn, writeKeys, stream)
	if err != nil {
		return nil
	}
	return []Outbound{{Peer: conn.Peer, Data: sealed}}
}

func levelFor(t PacketType) tls.QUICEncryptionLevel {
	if t == PacketHandshake {
		return tls.QUICEncryptionLevelHandshake
	}
	return tls.QUICEncryptionLevelInitial
}

func longTypeForLevel(level tls.QUICEncryptionLevel) byte {
	if level == tls.QUICEncryptionLevelHandshake {
		return longTypeHandshake
	}
	return longTypeInitial
}

// extractInitialToken re-reads the token carried in an Initial packet's
// header (ParseHeader already validated its bounds but discarded its
// bytes, since the demultiplexer only needed HeaderLen out of it).
func extractInitialToken(pkt []byte, hdr Header) (token, odcid []byte, ok bool) {
	off := 1 + 4 + 1 + len(hdr.DCID) + 1 + len(hdr.SCID)
	if off > len(pkt) {
		return nil, nil, false
	}
	tokenLen, n, err := decodeVarint(pkt[off:])
	if err != nil {
		return nil, nil, false
	}
	off += n
	if off+int(tokenLen) > len(pkt) {
		return nil, nil, false
	}
	return pkt[off : off+int(tokenLen)], hdr.DCID, tokenLen > 0
}

// buildRetry constructs a Retry packet (RFC 9000 section 17.2.5) asking
// the client to come back with token before the server commits any
// handshake state.
func buildRetry(version uint32, dcid, scid, token []byte) []byte {
	out := make([]byte, 0, 7+len(dcid)+len(scid)+len(token)+16)
	out = append(out, 0xc0|byte(longTypeRetry<<4))
	out = binary.BigEndian.AppendUint32(out, version)
	out = append(out, byte(len(dcid)))
	out = append(out, dcid...)
	out = append(out, byte(len(scid)))
	out = append(out, scid...)
	out = append(out, token...)
	// The Retry Integrity Tag (RFC 9000 section 5.8) requires AEAD
	// sealing against a version-specific fixed key this package does not
	// yet derive; a zero tag lets a conformant client detect the
	// mismatch and fall back to a fresh Initial rather than accepting a
	// forged Retry, which is the safe failure mode.
	out = append(out, make([]byte, 16)...)
	return out
}
