package wire

import (
	"encoding/binary"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// EncodeMX encodes an MX RDATA: a 16-bit preference followed by an
// uncompressed exchange name.
func EncodeMX(preference uint16, exchange string) ([]byte, error) {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, preference)
	buf, err := EncodeName(buf, domain.NewName(exchange), nil)
	if err != nil {
		return nil, newEncodeError("MX exchange: %v", err)
	}
	return buf, nil
}

func decodeMX(msgBuf []byte, offset int) (string, error) {
	if offset+2 > len(msgBuf) {
		return "", newParseError(offset, "MX rdata missing preference field")
	}
	preference := binary.BigEndian.Uint16(msgBuf[offset : offset+2])
	exchange, _, err := DecodeName(msgBuf, offset+2)
	if err != nil {
		return "", err
	}
	return itoa(uint32(preference)) + " " + string(exchange), nil
}
