package quic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialSecretsAreStableAndDistinctByRole(t *testing.T) {
	dcid := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	clientSecret, serverSecret := initialSecrets(dcid)

	assert.Len(t, clientSecret, 32)
	assert.Len(t, serverSecret, 32)
	assert.NotEqual(t, clientSecret, serverSecret)

	clientSecret2, serverSecret2 := initialSecrets(dcid)
	assert.Equal(t, clientSecret, clientSecret2)
	assert.Equal(t, serverSecret, serverSecret2)
}

func TestDeriveKeysProducesExpectedLengths(t *testing.T) {
	secret := make([]byte, 32)
	keys := deriveKeys(secret)
	assert.Len(t, keys.key, 16)
	assert.Len(t, keys.iv, 12)
	assert.Len(t, keys.hp, 16)
}

func TestSealOpenAEADRoundTrip(t *testing.T) {
	keys := deriveKeys(make([]byte, 32))
	aad := []byte("header bytes")
	plaintext := []byte("crypto frame payload")

	ciphertext, err := sealAEAD(keys, 1, aad, plaintext)
	require.NoError(t, err)

	got, err := openAEAD(keys, 1, aad, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestOpenAEADRejectsWrongPacketNumber(t *testing.T) {
	keys := deriveKeys(make([]byte, 32))
	ciphertext, err := sealAEAD(keys, 1, []byte("aad"), []byte("data"))
	require.NoError(t, err)

	_, err = openAEAD(keys, 2, []byte("aad"), ciphertext)
	assert.Error(t, err)
}

func TestHeaderProtectionMaskIsDeterministic(t *testing.T) {
	hp := make([]byte, 16)
	sample := make([]byte, 16)
	for i := range sample {
		sample[i] = byte(i)
	}
	m1, err := headerProtectionMask(hp, sample)
	require.NoError(t, err)
	m2, err := headerProtectionMask(hp, sample)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
	assert.Len(t, m1, 5)
}

func TestSealAndOpenLongPacketRoundTrip(t *testing.T) {
	dcid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	scid := []byte{8, 7, 6, 5}
	_, serverSecret := initialSecrets(dcid)
	keys := deriveKeys(serverSecret)

	crypto := []byte("server hello bytes")
	pkt, err := sealInitialOrHandshake(longTypeInitial, VersionOne, dcid, scid, 0, keys, crypto)
	require.NoError(t, err)

	hdr, err := ParseHeader(pkt, 8)
	require.NoError(t, err)
	require.Equal(t, PacketInitial, hdr.Type)

	payload, pn, err := openLongPacket(pkt, hdr, keys)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pn)

	frames, err := parseFrames(payload)
	require.NoError(t, err)
	require.Len(t, frames.crypto, 1)
	assert.Equal(t, crypto, frames.crypto[0].data)
}
