package quic

import (
	"encoding/binary"
	"errors"
)

var (
	ErrHeaderProtectionSample = errors.New("quic: not enough bytes for header protection sample")
	ErrPacketNumberLen        = errors.New("quic: invalid packet number length")
)

// openLongPacket removes header protection and then AEAD-decrypts a long
// header packet (Initial, Handshake, or 0-RTT), returning the frame
// payload and the packet number it carried.
//
// hdr.HeaderLen must point at the still-protected packet number field, as
// ParseHeader leaves it.
func openLongPacket(pkt []byte, hdr Header, keys packetProtectionKeys) ([]byte, uint64, error) {
	sampleOff := hdr.HeaderLen + 4
	if sampleOff+16 > len(pkt) {
		return nil, 0, ErrHeaderProtectionSample
	}
	mask, err := headerProtectionMask(keys.hp, pkt[sampleOff:sampleOff+16])
	if err != nil {
		return nil, 0, err
	}

	first := pkt[0] ^ (mask[0] & 0x0f)
	pnLen := int(first&0x03) + 1

	pnStart := hdr.HeaderLen
	if pnStart+pnLen > len(pkt) {
		return nil, 0, ErrPacketNumberLen
	}
	pnBytes := make([]byte, pnLen)
	for i := 0; i < pnLen; i++ {
		pnBytes[i] = pkt[pnStart+i] ^ mask[1+i]
	}
	var pn uint64
	for _, b := range pnBytes {
		pn = pn<<8 | uint64(b)
	}

	aad := make([]byte, pnStart+pnLen)
	copy(aad, pkt[:pnStart])
	aad[0] = first
	copy(aad[pnStart:], pnBytes)

	payloadEnd := hdr.HeaderLen + hdr.PacketLen
	if payloadEnd > len(pkt) {
		return nil, 0, ErrPacketTooShort
	}
	ciphertext := pkt[pnStart+pnLen : payloadEnd]

	plaintext, err := openAEAD(keys, pn, aad, ciphertext)
	if err != nil {
		return nil, 0, err
	}
	return plaintext, pn, nil
}

// openShortPacket removes header protection and AEAD-decrypts a 1-RTT
// short header packet. Unlike a long header packet, a short header packet
// has no Length field, so its ciphertext runs to the end of the datagram;
// this assumes one QUIC packet per datagram at 1-RTT, true for a DoQ peer
// that does not coalesce.
func openShortPacket(pkt []byte, dcidLen int, keys packetProtectionKeys) ([]byte, uint64, error) {
	pnStart := 1 + dcidLen
	sampleOff := pnStart + 4
	if sampleOff+16 > len(pkt) {
		return nil, 0, ErrHeaderProtectionSample
	}
	mask, err := headerProtectionMask(keys.hp, pkt[sampleOff:sampleOff+16])
	if err != nil {
		return nil, 0, err
	}

	first := pkt[0] ^ (mask[0] & 0x1f)
	pnLen := int(first&0x03) + 1
	if pnStart+pnLen > len(pkt) {
		return nil, 0, ErrPacketNumberLen
	}
	pnBytes := make([]byte, pnLen)
	for i := 0; i < pnLen; i++ {
		pnBytes[i] = pkt[pnStart+i] ^ mask[1+i]
	}
	var pn uint64
	for _, b := range pnBytes {
		pn = pn<<8 | uint64(b)
	}

	aad := make([]byte, pnStart+pnLen)
	copy(aad, pkt[:pnStart])
	aad[0] = first
	copy(aad[pnStart:], pnBytes)

	ciphertext := pkt[pnStart+pnLen:]
	plaintext, err := openAEAD(keys, pn, aad, ciphertext)
	if err != nil {
		return nil, 0, err
	}
	return plaintext, pn, nil
}

// sealShortPacket builds a protected 1-RTT packet carrying payload
// (already-framed STREAM/ACK bytes) addressed to dcid.
func sealShortPacket(dcid []byte, pn uint64, keys packetProtectionKeys, payload []byte) ([]byte, error) {
	const pnLen = 2
	pnBytes := []byte{byte(pn >> 8), byte(pn)}

	header := make([]byte, 0, 1+len(dcid)+pnLen)
	header = append(header, 0x40|byte(pnLen-1)) // header form=0, fixed bit=1
	header = append(header, dcid...)

	aad := append(append([]byte(nil), header...), pnBytes...)
	ciphertext, err := sealAEAD(keys, pn, aad, payload)
	if err != nil {
		return nil, err
	}

	sampleOff := 4 - pnLen
	if sampleOff+16 > len(ciphertext) {
		return nil, ErrHeaderProtectionSample
	}
	sample := ciphertext[sampleOff : sampleOff+16]
	mask, err := headerProtectionMask(keys.hp, sample)
	if err != nil {
		return nil, err
	}

	out := append([]byte(nil), header...)
	out[0] ^= mask[0] & 0x1f
	for i := range pnBytes {
		pnBytes[i] ^= mask[1+i]
	}
	out = append(out, pnBytes...)
	out = append(out, ciphertext...)
	return out, nil
}

// sealInitialOrHandshake builds a protected long header packet carrying a
// single CRYPTO frame, at the given long header packet type (longType*
// constants) and version.
func sealInitialOrHandshake(longType byte, version uint32, dcid, scid []byte, pn uint64, keys packetProtectionKeys, cryptoData []byte) ([]byte, error) {
	frame := appendVarint(nil, frameTypeCrypto)
	frame = appendVarint(frame, 0) // offset: each handshake flight here is a single frame starting at 0
	frame = appendVarint(frame, uint64(len(cryptoData)))
	frame = append(frame, cryptoData...)

	const pnLen = 2 // fixed 2-byte packet number length keeps header construction simple
	pnBytes := []byte{byte(pn >> 8), byte(pn)}

	payloadLen := len(frame) + 16 // + AEAD tag
	header := make([]byte, 0, 7+len(dcid)+len(scid)+4)
	header = append(header, 0xc0|(longType<<4)|byte(pnLen-1))
	header = binary.BigEndian.AppendUint32(header, version)
	header = append(header, byte(len(dcid)))
	header = append(header, dcid...)
	header = append(header, byte(len(scid)))
	header = append(header, scid...)
	if longType == longTypeInitial {
		header = appendVarint(header, 0) // Token Length: server never attaches a retry token of its own
	}
	header = appendVarint(header, uint64(payloadLen+pnLen))

	aad := append(append([]byte(nil), header...), pnBytes...)
	ciphertext, err := sealAEAD(keys, pn, aad, frame)
	if err != nil {
		return nil, err
	}

	// The header protection sample starts 4 bytes into the packet number
	// field regardless of its actual encoded length (RFC 9001 section
	// 5.4.2); relative to the start of ciphertext that is 4-pnLen bytes
	// in, since ciphertext begins right after the packet number field.
	sampleOff := 4 - pnLen
	sample := ciphertext[sampleOff : sampleOff+16]
	mask, err := headerProtectionMask(keys.hp, sample)
	if err != nil {
		return nil, err
	}

	out := append([]byte(nil), header...)
	out[0] ^= mask[0] & 0x0f
	for i := range pnBytes {
		pnBytes[i] ^= mask[1+i]
	}
	out = append(out, pnBytes...)
	out = append(out, ciphertext...)
	return out, nil
}
