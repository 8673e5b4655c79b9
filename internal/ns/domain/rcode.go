package domain

import "fmt"

// RCode is a DNS response code. Values above 15 only arise via EDNS extended
// RCODE (OPT TTL high octet); this type holds the full 12-bit value so the
// wire codec can split it into the 4-bit header field and the 8-bit OPT
// extension without a second type.
type RCode uint16

const (
	RCodeNoError  RCode = 0
	RCodeFormErr  RCode = 1
	RCodeServFail RCode = 2
	RCodeNXDomain RCode = 3
	RCodeNotImp   RCode = 4
	RCodeRefused  RCode = 5
	RCodeYXDomain RCode = 6
	RCodeYXRRSet  RCode = 7
	RCodeNXRRSet  RCode = 8
	RCodeNotAuth  RCode = 9
	RCodeNotZone  RCode = 10
)

// String returns the textual mnemonic for r.
func (r RCode) String() string {
	switch r {
	case RCodeNoError:
		return "NOERROR"
	case RCodeFormErr:
		return "FORMERR"
	case RCodeServFail:
		return "SERVFAIL"
	case RCodeNXDomain:
		return "NXDOMAIN"
	case RCodeNotImp:
		return "NOTIMP"
	case RCodeRefused:
		return "REFUSED"
	case RCodeYXDomain:
		return "YXDOMAIN"
	case RCodeYXRRSet:
		return "YXRRSET"
	case RCodeNXRRSet:
		return "NXRRSET"
	case RCodeNotAuth:
		return "NOTAUTH"
	case RCodeNotZone:
		return "NOTZONE"
	default:
		return fmt.Sprintf("RCODE%d", uint16(r))
	}
}

// Opcode is a DNS message opcode (header bits 3-6).
type Opcode uint8

const (
	OpcodeQuery  Opcode = 0
	OpcodeIQuery Opcode = 1
	OpcodeStatus Opcode = 2
	OpcodeNotify Opcode = 4
	OpcodeUpdate Opcode = 5
)
