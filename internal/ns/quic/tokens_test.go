package quic

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryValidatorIssueThenValidate(t *testing.T) {
	v := NewRetryValidator([]byte("secret"), 1<<16)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
	odcid := []byte{1, 2, 3, 4}

	token := v.Issue(addr, odcid)
	got, err := v.Validate(addr, token)
	require.NoError(t, err)
	assert.Equal(t, odcid, got)
}

func TestRetryValidatorRejectsReplay(t *testing.T) {
	v := NewRetryValidator([]byte("secret"), 1<<16)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
	token := v.Issue(addr, []byte{9, 9})

	_, err := v.Validate(addr, token)
	require.NoError(t, err)

	_, err = v.Validate(addr, token)
	assert.ErrorIs(t, err, ErrRetryTokenInvalid)
}

func TestRetryValidatorRejectsWrongAddress(t *testing.T) {
	v := NewRetryValidator([]byte("secret"), 1<<16)
	issuer := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
	other := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5555}

	token := v.Issue(issuer, []byte{1})
	_, err := v.Validate(other, token)
	assert.ErrorIs(t, err, ErrRetryTokenInvalid)
}

func TestRetryValidatorRejectsTamperedToken(t *testing.T) {
	v := NewRetryValidator([]byte("secret"), 1<<16)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
	token := v.Issue(addr, []byte{1})
	token[len(token)-1] ^= 0xff

	_, err := v.Validate(addr, token)
	assert.ErrorIs(t, err, ErrRetryTokenInvalid)
}
