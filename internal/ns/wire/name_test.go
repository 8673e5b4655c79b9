package wire

import (
	"testing"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	name := domain.NewName("www.example.com.")
	buf, err := EncodeName(nil, name, nil)
	require.NoError(t, err)

	got, next, err := DecodeName(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, name, got)
	assert.Equal(t, len(buf), next)
}

func TestEncodeNameCompression(t *testing.T) {
	comp := newNameCompressor()
	buf, err := EncodeName(nil, domain.NewName("example.com."), comp)
	require.NoError(t, err)
	base := len(buf)

	buf, err = EncodeName(buf, domain.NewName("www.example.com."), comp)
	require.NoError(t, err)

	// "www" label (1 length byte + 3) then a 2-byte pointer back to the
	// "example.com." suffix recorded by the first EncodeName call.
	assert.Equal(t, base+4+2, len(buf))

	got, _, err := DecodeName(buf, base)
	require.NoError(t, err)
	assert.Equal(t, domain.NewName("www.example.com."), got)
}

func TestDecodeNameRejectsForwardPointer(t *testing.T) {
	buf := []byte{0xC0, 0x02, 0x00}
	_, _, err := DecodeName(buf, 0)
	require.Error(t, err)
}

func TestDecodeNameRejectsPointerLoop(t *testing.T) {
	// offset 0 points to offset 2, offset 2 points back to offset 0.
	buf := []byte{0xC0, 0x02, 0xC0, 0x00}
	_, _, err := DecodeName(buf, 0)
	require.Error(t, err)
}

func TestDecodeNameRejectsOversizeLabel(t *testing.T) {
	buf := append([]byte{64}, make([]byte, 64)...)
	buf = append(buf, 0)
	_, _, err := DecodeName(buf, 0)
	require.Error(t, err)
}

func TestDecodeNameTruncated(t *testing.T) {
	buf := []byte{3, 'w', 'w'}
	_, _, err := DecodeName(buf, 0)
	require.Error(t, err)
}
