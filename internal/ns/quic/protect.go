// Packet protection for the Initial encryption level (RFC 9001 sections
// 5.1-5.4). Initial keys are derived entirely from the client's
// destination connection ID and a version-specific public salt, so unlike
// every later encryption level they need no input from the TLS stack: the
// demultiplexer can open an Initial packet before a Connection exists at
// all, which is exactly the property it needs to reach the CRYPTO frame
// that starts the handshake.
//
// No library in the retrieval pack implements QUIC packet protection, so
// this is hand-rolled against the RFC rather than grounded on an example;
// HKDF itself is implemented directly on crypto/hmac and crypto/sha256
// (RFC 5869) to avoid depending on golang.org/x/crypto, which the rest of
// this tree keeps strictly as a transitive dependency.
package quic

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// initialSalt is the QUIC v1 Initial salt, RFC 9001 section 5.2.
var initialSalt = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3,
	0x4d, 0x17, 0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad,
	0xcc, 0xbb, 0x7f, 0x0a,
}

func hkdfExtract(salt, ikm []byte) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

func hkdfExpand(prk []byte, info []byte, length int) []byte {
	var t []byte
	out := make([]byte, 0, length)
	for i := byte(1); len(out) < length; i++ {
		mac := hmac.New(sha256.New, prk)
		mac.Write(t)
		mac.Write(info)
		mac.Write([]byte{i})
		t = mac.Sum(nil)
		out = append(out, t...)
	}
	return out[:length]
}

// hkdfExpandLabel implements TLS 1.3's HKDF-Expand-Label (RFC 8446 section
// 7.1), the wrapping every QUIC-TLS key schedule step uses.
func hkdfExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	full := "tls13 " + label
	info := make([]byte, 0, 2+1+len(full)+1+len(context))
	info = binary.BigEndian.AppendUint16(info, uint16(length))
	info = append(info, byte(len(full)))
	info = append(info, full...)
	info = append(info, byte(len(context)))
	info = append(info, context...)
	return hkdfExpand(secret, info, length)
}

// initialSecrets derives the client and server Initial secrets for dcid
// (RFC 9001 section 5.2).
func initialSecrets(dcid []byte) (clientSecret, serverSecret []byte) {
	initial := hkdfExtract(initialSalt, dcid)
	clientSecret = hkdfExpandLabel(initial, "client in", nil, sha256.Size)
	serverSecret = hkdfExpandLabel(initial, "server in", nil, sha256.Size)
	return clientSecret, serverSecret
}

// packetProtectionKeys are the three values RFC 9001 section 5.1 derives
// from an encryption-level secret: the AEAD key, its base IV, and the
// header protection key.
type packetProtectionKeys struct {
	key []byte // 16 bytes, AES-128-GCM
	iv  []byte // 12 bytes
	hp  []byte // 16 bytes
}

func deriveKeys(secret []byte) packetProtectionKeys {
	return packetProtectionKeys{
		key: hkdfExpandLabel(secret, "quic key", nil, 16),
		iv:  hkdfExpandLabel(secret, "quic iv", nil, 12),
		hp:  hkdfExpandLabel(secret, "quic hp", nil, 16),
	}
}

var errSampleTooShort = errors.New("quic: header protection sample too short")

// headerProtectionMask computes the 5-byte mask RFC 9001 section 5.4.1
// uses to unprotect the first header byte and the packet number.
func headerProtectionMask(hpKey, sample []byte) ([]byte, error) {
	if len(sample) < aes.BlockSize {
		return nil, errSampleTooShort
	}
	block, err := aes.NewCipher(hpKey)
	if err != nil {
		return nil, err
	}
	mask := make([]byte, aes.BlockSize)
	block.Encrypt(mask, sample[:aes.BlockSize])
	return mask[:5], nil
}

// packetNonce builds the AEAD nonce for packetNumber at this encryption
// level: iv XORed with the packet number left-padded into 12 bytes (RFC
// 9001 section 5.3).
func packetNonce(iv []byte, packetNumber uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	var pnBytes [8]byte
	binary.BigEndian.PutUint64(pnBytes[:], packetNumber)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= pnBytes[7-i]
	}
	return nonce
}

// openAEAD decrypts an AES-128-GCM protected payload. aad is the
// reconstructed (unprotected) header bytes, per RFC 9001 section 5.3.
func openAEAD(keys packetProtectionKeys, packetNumber uint64, aad, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(keys.key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, packetNonce(keys.iv, packetNumber), ciphertext, aad)
}

// sealAEAD encrypts plaintext with AES-128-GCM for transmission.
func sealAEAD(keys packetProtectionKeys, packetNumber uint64, aad, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(keys.key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, packetNonce(keys.iv, packetNumber), plaintext, aad), nil
}
