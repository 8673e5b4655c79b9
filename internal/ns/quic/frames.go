package quic

import "errors"

// frame types this demultiplexer recognizes (RFC 9000 section 19). Any
// other type ends the walk without an error: the frames parsed before it
// are kept, and the frames after it are not processed.
const (
	frameTypePadding  = 0x00
	frameTypePing     = 0x01
	frameTypeAckLow   = 0x02
	frameTypeAckHigh  = 0x03
	frameTypeCrypto   = 0x06
	frameTypeStreamLo = 0x08
	frameTypeStreamHi = 0x0f
	frameTypeConnCloseTransport = 0x1c
	frameTypeConnCloseApp       = 0x1d
)

var ErrFrameTruncated = errors.New("quic: frame truncated")

// cryptoChunk is one CRYPTO frame's contribution to the handshake stream.
type cryptoChunk struct {
	offset uint64
	data   []byte
}

// streamChunk is one STREAM frame's contribution to an application stream.
type streamChunk struct {
	id     uint64
	offset uint64
	fin    bool
	data   []byte
}

// parsedFrames is the result of walking one decrypted packet payload.
type parsedFrames struct {
	crypto []cryptoChunk
	stream []streamChunk
	closed bool
}

// parseFrames walks payload frame by frame. It does not validate
// cross-frame consistency (flow control, final-size agreement); this
// demultiplexer only needs to recover CRYPTO and STREAM payloads in the
// order they were sent, which for a server fed by a well-behaved resolver
// peer is the order they arrive in.
func parseFrames(payload []byte) (parsedFrames, error) {
	var out parsedFrames
	off := 0
	for off < len(payload) {
		typ, n, err := decodeVarint(payload[off:])
		if err != nil {
			return out, err
		}
		off += n

		switch {
		case typ == frameTypePadding:
			// PADDING is a single zero byte with no body; the varint
			// decode above already consumed it.
		case typ == frameTypePing:
		case typ == frameTypeAckLow || typ == frameTypeAckHigh:
			n, err := skipAck(payload[off:], typ == frameTypeAckHigh)
			if err != nil {
				return out, err
			}
			off += n
		case typ == frameTypeCrypto:
			chunk, n, err := readCrypto(payload[off:])
			if err != nil {
				return out, err
			}
			out.crypto = append(out.crypto, chunk)
			off += n
		case typ >= frameTypeStreamLo && typ <= frameTypeStreamHi:
			chunk, n, err := readStream(payload[off:], typ)
			if err != nil {
				return out, err
			}
			out.stream = append(out.stream, chunk)
			off += n
		case typ == frameTypeConnCloseTransport || typ == frameTypeConnCloseApp:
			out.closed = true
			return out, nil
		default:
			// Unrecognized frame type with no statically known length:
			// stop rather than misinterpret the remaining bytes.
			return out, nil
		}
	}
	return out, nil
}

func readCrypto(buf []byte) (cryptoChunk, int, error) {
	offset, n1, err := decodeVarint(buf)
	if err != nil {
		return cryptoChunk{}, 0, err
	}
	length, n2, err := decodeVarint(buf[n1:])
	if err != nil {
		return cryptoChunk{}, 0, err
	}
	start := n1 + n2
	end := start + int(length)
	if end > len(buf) {
		return cryptoChunk{}, 0, ErrFrameTruncated
	}
	return cryptoChunk{offset: offset, data: buf[start:end]}, end, nil
}

func readStream(buf []byte, typ uint64) (streamChunk, int, error) {
	const (
		offBit = 0x04
		lenBit = 0x02
		finBit = 0x01
	)
	id, off, err := decodeVarint(buf)
	if err != nil {
		return streamChunk{}, 0, err
	}
	var offset uint64
	if typ&offBit != 0 {
		offset, off2, err := decodeVarint(buf[off:])
		if err != nil {
			return streamChunk{}, 0, err
		}
		_ = offset
		off += off2
	}
	var length uint64
	if typ&lenBit != 0 {
		l, n, err := decodeVarint(buf[off:])
		if err != nil {
			return streamChunk{}, 0, err
		}
		length = l
		off += n
	} else {
		length = uint64(len(buf) - off)
	}
	end := off + int(length)
	if end > len(buf) {
		return streamChunk{}, 0, ErrFrameTruncated
	}
	return streamChunk{id: id, offset: offset, fin: typ&finBit != 0, data: buf[off:end]}, end, nil
}

// skipAck advances past an ACK frame's body without inspecting its
// contents; this demultiplexer does no loss recovery of its own, relying
// on the query layer's own timeout-and-retry above it.
func skipAck(buf []byte, ecn bool) (int, error) {
	off := 0
	for i := 0; i < 2; i++ { // Largest Acknowledged, ACK Delay
		_, n, err := decodeVarint(buf[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	rangeCount, n, err := decodeVarint(buf[off:])
	if err != nil {
		return 0, err
	}
	off += n
	_, n, err = decodeVarint(buf[off:]) // First ACK Range
	if err != nil {
		return 0, err
	}
	off += n
	for i := uint64(0); i < rangeCount; i++ {
		for j := 0; j < 2; j++ { // Gap, ACK Range Length
			_, n, err := decodeVarint(buf[off:])
			if err != nil {
				return 0, err
			}
			off += n
		}
	}
	if ecn {
		for i := 0; i < 3; i++ {
			_, n, err := decodeVarint(buf[off:])
			if err != nil {
				return 0, err
			}
			off += n
		}
	}
	return off, nil
}
