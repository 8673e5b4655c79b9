package domain

// TSIGRecord carries the fields of a TSIG resource record (RFC 8945) that
// accompanied a request or response. This repository treats TSIG as a
// carriage concern only: it decodes/encodes the RR so a signed message
// round-trips intact, but does not implement the MAC algorithms itself.
type TSIGRecord struct {
	Algorithm  Name
	TimeSigned uint64 // 48-bit field, stored widened
	Fudge      uint16
	MAC        []byte
	OriginalID uint16
	Error      RCode
	OtherData  []byte
}

// TSIGVerifier checks a TSIG-signed message against a key. The zero value of
// NoopTSIGVerifier always succeeds, for deployments that carry TSIG RRs
// without this repository doing the cryptographic verification itself.
type TSIGVerifier interface {
	Verify(msg *Message, key []byte) error
}

// NoopTSIGVerifier accepts every message; it exists so the query processor
// and requestor have a concrete default when no verifier is configured.
type NoopTSIGVerifier struct{}

func (NoopTSIGVerifier) Verify(*Message, []byte) error { return nil }

var _ TSIGVerifier = NoopTSIGVerifier{}
