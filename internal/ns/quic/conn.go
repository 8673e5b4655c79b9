package quic

import (
	"context"
	"crypto/tls"
	"net"
)

// connState tracks where a Connection sits in the handshake lifecycle.
type connState int

const (
	connHandshaking connState = iota
	connEstablished
	connClosed
)

// Connection is one QUIC connection's server-side state: the TLS
// handshake driver (crypto/tls.QUICConn), the packet protection keys
// derived from it per level, and the reassembly buffer for the single
// bidirectional request stream DNS-over-QUIC (RFC 9250) carries one
// length-prefixed DNS message on.
//
// A Connection is owned by exactly one UDP worker goroutine for its
// entire life, the same no-locking discipline the batched datagram
// pipeline (C6) uses for everything else it touches.
type Connection struct {
	// DCID is the client's original Initial destination connection ID
	// (D0). It is used only to derive the Initial secrets (RFC 9001
	// section 5.2) and never appears on an outgoing packet again.
	DCID []byte
	// SCID is the client's self-chosen source connection ID (S0). Per
	// RFC 9000 section 7.2, every packet this server sends back must
	// carry SCID as its Destination Connection ID field.
	SCID []byte
	// LocalCID is the connection ID this server minted for itself. It
	// is the table key future inbound packets are looked up by (the
	// client echoes it as their DCID) and the outgoing Source
	// Connection ID field on long-header packets.
	LocalCID []byte
	Peer     net.Addr

	quic  *tls.QUICConn
	state connState

	serverInitial packetProtectionKeys
	clientInitial packetProtectionKeys

	readKeys  map[tls.QUICEncryptionLevel]packetProtectionKeys
	writeKeys map[tls.QUICEncryptionLevel]packetProtectionKeys

	writePN map[tls.QUICEncryptionLevel]uint64

	streamData []byte
}

// NewConnection starts a server-side handshake for a freshly validated
// Initial packet from peer. localCID is the connection ID this server has
// minted for itself (the caller's to generate and to key its dispatch
// table by); tlsConfig must negotiate only TLS_AES_128_GCM_SHA256, the
// suite this package's hand-rolled packet protection assumes.
func NewConnection(dcid, scid, localCID []byte, peer net.Addr, tlsConfig *tls.Config) *Connection {
	clientSecret, serverSecret := initialSecrets(dcid)
	c := &Connection{
		DCID:          append([]byte(nil), dcid...),
		SCID:          append([]byte(nil), scid...),
		LocalCID:      append([]byte(nil), localCID...),
		Peer:          peer,
		quic:          tls.QUICServer(&tls.QUICConfig{TLSConfig: tlsConfig}),
		clientInitial: deriveKeys(clientSecret),
		serverInitial: deriveKeys(serverSecret),
		readKeys:      make(map[tls.QUICEncryptionLevel]packetProtectionKeys),
		writeKeys:     make(map[tls.QUICEncryptionLevel]packetProtectionKeys),
		writePN:       make(map[tls.QUICEncryptionLevel]uint64),
	}
	c.readKeys[tls.QUICEncryptionLevelInitial] = c.clientInitial
	c.writeKeys[tls.QUICEncryptionLevelInitial] = c.serverInitial
	return c
}

// Start kicks off the TLS handshake. Must be called once, before the
// first call to Advance.
func (c *Connection) Start(ctx context.Context, transportParams []byte) error {
	c.quic.SetTransportParameters(transportParams)
	return c.quic.Start(ctx)
}

// HandshakeEvent is one outcome of draining the TLS handshake driver: data
// to carry in a CRYPTO frame at a given level, a new key for a level, or
// handshake completion.
type HandshakeEvent struct {
	WriteData  []byte
	Level      tls.QUICEncryptionLevel
	Done       bool
	NewKeySet  bool
}

// Feed delivers CRYPTO frame bytes received at level into the handshake
// driver.
func (c *Connection) Feed(level tls.QUICEncryptionLevel, data []byte) error {
	return c.quic.HandleData(level, data)
}

// Advance drains every pending event from the handshake driver, updating
// c's key schedule as new secrets are produced and collecting outbound
// CRYPTO data for the caller to packetize and send.
func (c *Connection) Advance() ([]HandshakeEvent, error) {
	var out []HandshakeEvent
	for {
		ev := c.quic.NextEvent()
		switch ev.Kind {
		case tls.QUICNoEvent:
			return out, nil
		case tls.QUICWriteData:
			data := append([]byte(nil), ev.Data...)
			out = append(out, HandshakeEvent{WriteData: data, Level: ev.Level})
		case tls.QUICSetReadSecret:
			c.readKeys[ev.Level] = deriveKeys(ev.Data)
			out = append(out, HandshakeEvent{Level: ev.Level, NewKeySet: true})
		case tls.QUICSetWriteSecret:
			c.writeKeys[ev.Level] = deriveKeys(ev.Data)
			out = append(out, HandshakeEvent{Level: ev.Level, NewKeySet: true})
		case tls.QUICHandshakeDone:
			c.state = connEstablished
			out = append(out, HandshakeEvent{Done: true})
		case tls.QUICTransportParameters:
			// Peer's transport parameters are available via
			// ev.Data; this server does not currently negotiate
			// anything beyond the defaults, so there is nothing to
			// react to here.
		}
	}
}

// Established reports whether the handshake has completed.
func (c *Connection) Established() bool { return c.state == connEstablished }

// nextWritePN returns the next packet number to use when sending at
// level, incrementing the per-level counter. Packet numbers are scoped
// per encryption level (RFC 9000 section 12.3).
func (c *Connection) nextWritePN(level tls.QUICEncryptionLevel) uint64 {
	pn := c.writePN[level]
	c.writePN[level]++
	return pn
}

// AppendStreamRequest reassembles a complete 2-byte length-prefixed DNS
// message (RFC 9250 section 4.2) from the stream chunks delivered so far.
// It returns the message and true once one is complete, and resets the
// buffer for the next request. Out-of-order chunks are not reordered;
// DoQ's one-message-per-stream shape makes a single well-behaved client
// send its chunks in order, and loss recovery above QUIC (the query
// layer's own retry) covers the rest.
func (c *Connection) AppendStreamRequest(data []byte) ([]byte, bool) {
	c.streamData = append(c.streamData, data...)
	if len(c.streamData) < 2 {
		return nil, false
	}
	msgLen := int(c.streamData[0])<<8 | int(c.streamData[1])
	if len(c.streamData) < 2+msgLen {
		return nil, false
	}
	msg := c.streamData[2 : 2+msgLen]
	c.streamData = c.streamData[2+msgLen:]
	return msg, true
}

// Close marks the connection closed; the demultiplexer evicts it from the
// DCID table when this is observed.
func (c *Connection) Close() {
	c.state = connClosed
	_ = c.quic.Close()
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool { return c.state == connClosed }
