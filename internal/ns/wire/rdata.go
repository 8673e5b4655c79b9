package wire

import (
	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// DecodeRdata decodes rdata (the bytes of one RR's RDATA field, already
// sliced out of the message buffer) into its presentation-form string, for
// types the codec understands. msgBuf/rdataOffset are the full message
// buffer and the absolute offset rdata starts at, needed because some
// record types (NS, CNAME, DNAME, SOA, MX, SRV) may carry compressed names
// that point elsewhere in the message.
func DecodeRdata(t domain.RRType, msgBuf []byte, rdataOffset, rdataLen int) (string, error) {
	rdata := msgBuf[rdataOffset : rdataOffset+rdataLen]
	switch t {
	case domain.RRTypeA:
		return decodeA(rdata)
	case domain.RRTypeAAAA:
		return decodeAAAA(rdata)
	case domain.RRTypeNS:
		return decodeNameRdata(msgBuf, rdataOffset)
	case domain.RRTypeCNAME:
		return decodeNameRdata(msgBuf, rdataOffset)
	case domain.RRTypeDNAME:
		return decodeNameRdata(msgBuf, rdataOffset)
	case domain.RRTypeSOA:
		return decodeSOA(msgBuf, rdataOffset)
	case domain.RRTypeMX:
		return decodeMX(msgBuf, rdataOffset)
	case domain.RRTypeTXT:
		return decodeTXT(rdata)
	case domain.RRTypeSRV:
		return decodeSRV(msgBuf, rdataOffset)
	default:
		return "", nil
	}
}

func decodeNameRdata(msgBuf []byte, offset int) (string, error) {
	name, _, err := DecodeName(msgBuf, offset)
	if err != nil {
		return "", err
	}
	return string(name), nil
}
