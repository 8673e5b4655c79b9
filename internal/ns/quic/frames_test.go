package quic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFramesCryptoAndPadding(t *testing.T) {
	var buf []byte
	buf = append(buf, 0x00, 0x00, 0x00) // PADDING x3
	buf = appendVarint(buf, frameTypeCrypto)
	buf = appendVarint(buf, 0) // offset
	buf = appendVarint(buf, 5)
	buf = append(buf, []byte("hello")...)

	out, err := parseFrames(buf)
	require.NoError(t, err)
	require.Len(t, out.crypto, 1)
	assert.Equal(t, "hello", string(out.crypto[0].data))
	assert.Empty(t, out.stream)
}

func TestParseFramesStreamWithLenAndFin(t *testing.T) {
	var buf []byte
	typ := uint64(0x08 | 0x02 | 0x01) // LEN + FIN, no OFF
	buf = appendVarint(buf, typ)
	buf = appendVarint(buf, 7) // stream id
	buf = appendVarint(buf, 3)
	buf = append(buf, []byte("abc")...)

	out, err := parseFrames(buf)
	require.NoError(t, err)
	require.Len(t, out.stream, 1)
	assert.Equal(t, uint64(7), out.stream[0].id)
	assert.True(t, out.stream[0].fin)
	assert.Equal(t, "abc", string(out.stream[0].data))
}

func TestParseFramesConnectionClose(t *testing.T) {
	buf := appendVarint(nil, frameTypeConnCloseTransport)
	out, err := parseFrames(buf)
	require.NoError(t, err)
	assert.True(t, out.closed)
}

func TestSkipAckAdvancesPastRanges(t *testing.T) {
	var buf []byte
	buf = appendVarint(buf, frameTypeAckLow)
	buf = appendVarint(buf, 10) // largest acked
	buf = appendVarint(buf, 0)  // ack delay
	buf = appendVarint(buf, 1)  // range count
	buf = appendVarint(buf, 2)  // first ack range
	buf = appendVarint(buf, 1)  // gap
	buf = appendVarint(buf, 1)  // ack range length
	buf = appendVarint(buf, frameTypeCrypto)
	buf = appendVarint(buf, 0)
	buf = appendVarint(buf, 1)
	buf = append(buf, 'x')

	out, err := parseFrames(buf)
	require.NoError(t, err)
	require.Len(t, out.crypto, 1)
	assert.Equal(t, "x", string(out.crypto[0].data))
}
