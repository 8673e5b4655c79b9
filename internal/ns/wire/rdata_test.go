package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeA(t *testing.T) {
	rdata, err := EncodeA("192.0.2.1")
	require.NoError(t, err)
	assert.Len(t, rdata, 4)

	got, err := decodeA(rdata)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", got)
}

func TestEncodeARejectsIPv6(t *testing.T) {
	_, err := EncodeA("2001:db8::1")
	require.Error(t, err)
}

func TestEncodeDecodeAAAA(t *testing.T) {
	rdata, err := EncodeAAAA("2001:db8::1")
	require.NoError(t, err)
	assert.Len(t, rdata, 16)

	got, err := decodeAAAA(rdata)
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", got)
}

func TestEncodeSOARoundTrip(t *testing.T) {
	rdata, err := EncodeSOA(SOAFields{
		MName: "ns1.example.com.", RName: "hostmaster.example.com.",
		Serial: 2026080601, Refresh: 3600, Retry: 900, Expire: 604800, Minimum: 300,
	})
	require.NoError(t, err)

	msg := append([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, rdata...)
	got, err := decodeSOA(msg, 12)
	require.NoError(t, err)
	assert.Equal(t, "ns1.example.com. hostmaster.example.com. 2026080601 3600 900 604800 300", got)

	ttl, ok := SOAMinimum(rdata)
	require.True(t, ok)
	assert.Equal(t, uint32(300), ttl)

	serial, ok := SOASerial(rdata)
	require.True(t, ok)
	assert.Equal(t, uint32(2026080601), serial)
}

func TestSOASerialRejectsTruncatedRdata(t *testing.T) {
	_, ok := SOASerial([]byte{0})
	assert.False(t, ok)
}

func TestSOATTLClampsToMinimum(t *testing.T) {
	rdata, err := EncodeSOA(SOAFields{MName: "ns1.example.com.", RName: "hostmaster.example.com.", Minimum: 300})
	require.NoError(t, err)
	assert.Equal(t, uint32(300), SOATTL(3600, rdata))
	assert.Equal(t, uint32(100), SOATTL(100, rdata))
}

func TestEncodeDecodeMX(t *testing.T) {
	rdata, err := EncodeMX(10, "mail.example.com.")
	require.NoError(t, err)

	msg := append([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, rdata...)
	got, err := decodeMX(msg, 12)
	require.NoError(t, err)
	assert.Equal(t, "10 mail.example.com.", got)
}

func TestEncodeDecodeTXT(t *testing.T) {
	rdata, err := EncodeTXT("hello", "world")
	require.NoError(t, err)

	got, err := decodeTXT(rdata)
	require.NoError(t, err)
	assert.Equal(t, `"hello" "world"`, got)
}

func TestEncodeTXTSplitsLongChunk(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	rdata, err := EncodeTXT(string(long))
	require.NoError(t, err)
	assert.Equal(t, byte(255), rdata[0])
}

func TestEncodeDecodeSRV(t *testing.T) {
	rdata, err := EncodeSRV(10, 20, 5060, "sip.example.com.")
	require.NoError(t, err)

	msg := append([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, rdata...)
	got, err := decodeSRV(msg, 12)
	require.NoError(t, err)
	assert.Equal(t, "10 20 5060 sip.example.com.", got)
}

func TestEncodeNSTarget(t *testing.T) {
	rdata, err := EncodeNSTarget("ns1.example.com.")
	require.NoError(t, err)
	name, next, err := DecodeName(rdata, 0)
	require.NoError(t, err)
	assert.Equal(t, "ns1.example.com.", name.String())
	assert.Equal(t, len(rdata), next)
}
