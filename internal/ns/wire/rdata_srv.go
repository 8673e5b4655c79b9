package wire

import (
	"encoding/binary"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// EncodeSRV encodes an SRV RDATA (RFC 2782): priority, weight, port, then an
// uncompressed target name.
func EncodeSRV(priority, weight, port uint16, target string) ([]byte, error) {
	buf := make([]byte, 6)
	binary.BigEndian.PutUint16(buf[0:2], priority)
	binary.BigEndian.PutUint16(buf[2:4], weight)
	binary.BigEndian.PutUint16(buf[4:6], port)
	buf, err := EncodeName(buf, domain.NewName(target), nil)
	if err != nil {
		return nil, newEncodeError("SRV target: %v", err)
	}
	return buf, nil
}

func decodeSRV(msgBuf []byte, offset int) (string, error) {
	if offset+6 > len(msgBuf) {
		return "", newParseError(offset, "SRV rdata missing fixed fields")
	}
	priority := binary.BigEndian.Uint16(msgBuf[offset : offset+2])
	weight := binary.BigEndian.Uint16(msgBuf[offset+2 : offset+4])
	port := binary.BigEndian.Uint16(msgBuf[offset+4 : offset+6])
	target, _, err := DecodeName(msgBuf, offset+6)
	if err != nil {
		return "", err
	}
	return itoa(uint32(priority)) + " " + itoa(uint32(weight)) + " " + itoa(uint32(port)) + " " + string(target), nil
}
