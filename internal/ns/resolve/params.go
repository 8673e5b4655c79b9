// Package resolve implements the query processor (C5): the server-side
// query.Layer that turns a parsed question into a response using the zone
// store (C2) under the snapshot protocol (C3).
package resolve

// Transport identifies which datagram transport delivered a query, since
// size policy differs between them. Transfer-type policy does not depend on
// the transport; Params.AllowTransfer governs it.
type Transport int

const (
	// TransportUDP applies the classic/EDNS UDP payload size ceiling.
	TransportUDP Transport = iota
	// TransportQUIC carries one length-prefixed message per stream with no
	// UDP-style size ceiling or ceiling-driven truncation.
	TransportQUIC
)

// Params is the begin-time context the transport supplies to the processor
// for one exchange: which transport delivered the query and how much room
// the reply has to fit in.
type Params struct {
	Transport Transport
	// BufferCap is the capacity of the caller's reply buffer; the
	// effective UDP size ceiling is min(EDNS/classic payload size,
	// BufferCap). Ignored for TransportQUIC.
	BufferCap int
	// AllowTransfer permits AXFR/IXFR query types through to resolution
	// instead of NOTIMP. Defaults to false (the common "transfers
	// disabled on this listener" policy); set true only for a
	// specifically-configured transfer-enabled listener.
	AllowTransfer bool
}
