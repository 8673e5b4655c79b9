// Package query implements the query layer (C4): a state machine shared by
// the server-side query processor (resolve.Processor) and the outbound
// requestor (notify.Requestor's request layer). Drive runs the server side;
// the requestor drives the same states with its own send/receive loop.
package query

// State is one of the five states the query layer state machine can be in.
type State int

const (
	// Consume means the layer is waiting for an incoming packet.
	Consume State = iota
	// Produce means the layer has an outgoing packet ready, or needs
	// another Produce call to build one.
	Produce
	// Done means the layer has finished successfully; the last produced
	// packet (if any) is the one to ship.
	Done
	// Fail means the layer hit a terminal error but may still have an
	// error response (e.g. FORMERR, SERVFAIL) to produce before finishing.
	Fail
	// Reset means the layer discarded its in-progress exchange and is
	// ready to Begin again without producing anything.
	Reset
)

func (s State) String() string {
	switch s {
	case Consume:
		return "CONSUME"
	case Produce:
		return "PRODUCE"
	case Done:
		return "DONE"
	case Fail:
		return "FAIL"
	case Reset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}
