package wire

import (
	"encoding/binary"
	"strings"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// maxCompressionJumps bounds the number of compression-pointer dereferences
// DecodeName will follow before declaring a loop.
const maxCompressionJumps = 127

// DecodeName decodes a domain name beginning at offset in buf, following
// compression pointers. It returns the decoded name and the offset
// immediately following the name's own encoded bytes in buf -- that is,
// following the terminating zero octet or the two-byte pointer that ended
// the name as written at offset, never following a jump target. Pointers
// must point strictly backward (offset < current position); forward
// pointers and pointer loops are rejected.
func DecodeName(buf []byte, offset int) (domain.Name, int, error) {
	var labels []string
	pos := offset
	consumedEnd := -1
	jumps := 0

	for {
		if pos >= len(buf) {
			return "", 0, newParseError(pos, "name extends past end of message")
		}
		b := buf[pos]

		switch {
		case b == 0:
			if consumedEnd < 0 {
				consumedEnd = pos + 1
			}
			name := domain.NewName(strings.Join(labels, "."))
			if err := name.ValidateLabels(); err != nil {
				return "", 0, newParseError(offset, "%v", err)
			}
			return name, consumedEnd, nil

		case b&0xC0 == 0xC0:
			if pos+1 >= len(buf) {
				return "", 0, newParseError(pos, "truncated compression pointer")
			}
			ptr := int(binary.BigEndian.Uint16(buf[pos:pos+2]) &^ 0xC000)
			if consumedEnd < 0 {
				consumedEnd = pos + 2
			}
			if ptr >= pos {
				return "", 0, newParseError(pos, "compression pointer does not point backward")
			}
			jumps++
			if jumps > maxCompressionJumps {
				return "", 0, newParseError(pos, "too many compression pointer dereferences")
			}
			pos = ptr

		case b&0xC0 != 0:
			return "", 0, newParseError(pos, "reserved/unsupported label type 0x%02x", b&0xC0)

		default:
			length := int(b)
			pos++
			if length > 63 {
				return "", 0, newParseError(pos, "label exceeds 63 octets")
			}
			if pos+length > len(buf) {
				return "", 0, newParseError(pos, "label extends past end of message")
			}
			labels = append(labels, string(buf[pos:pos+length]))
			pos += length
		}
	}
}

// nameCompressor records the absolute buffer offset at which each name
// suffix was first written, so later occurrences of the same suffix can be
// replaced with a two-byte pointer (RFC 1035 §4.1.4). A nil compressor
// (what encode passes when compress is false) disables compression; the
// codec must still produce wire-legal output in that mode.
type nameCompressor struct {
	offsets map[string]int
}

// newNameCompressor returns a compressor with no names recorded yet.
func newNameCompressor() *nameCompressor {
	return &nameCompressor{offsets: make(map[string]int)}
}

// EncodeName appends name's wire encoding to buf, which must already hold
// exactly the bytes of the message written so far (so buf's current length
// is the absolute offset the name will start at). When comp is non-nil,
// matching suffixes already written are replaced with compression pointers.
func EncodeName(buf []byte, name domain.Name, comp *nameCompressor) ([]byte, error) {
	if err := name.ValidateLabels(); err != nil {
		return nil, newEncodeError("%v", err)
	}
	labels := name.Labels()
	for i := 0; i < len(labels); i++ {
		suffix := strings.Join(labels[i:], ".")
		key := strings.ToLower(suffix)
		if comp != nil {
			if off, ok := comp.offsets[key]; ok {
				ptr := uint16(0xC000 | off)
				buf = append(buf, byte(ptr>>8), byte(ptr))
				return buf, nil
			}
			if off := len(buf); off <= 0x3FFF {
				comp.offsets[key] = off
			}
		}
		label := labels[i]
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	return buf, nil
}
