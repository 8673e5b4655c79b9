// Retry token issuance and anti-replay, grounded on the blocklist bloom
// filter's New/Add/Test shape (bits-and-blooms/bloom/v3), the same library
// used there to test set membership cheaply with a bounded false-positive
// rate instead of persisting every token ever issued.
package quic

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"net"

	"github.com/bits-and-blooms/bloom/v3"
)

// hmacTagLen is the length of the HMAC-SHA256 tag that ends every retry
// token. Tokens carry no expiry (this package has no clock dependency
// injected into it); they are single-use by construction of the
// anti-replay filter below, which is the property address validation
// actually needs (RFC 9000 section 8.1.2 requires tokens not be reusable
// across connection attempts).
const hmacTagLen = 32

// bloomHashes is the number of hash functions the anti-replay filter uses
// per insertion, matching the blocklist filter's fixed choice.
const bloomHashes = 4

// RetryValidator issues and checks address-validation retry tokens.
// NewDemultiplexer builds one per Demultiplexer, so only that
// Demultiplexer's goroutine ever uses it; it has no locking of its own.
type RetryValidator struct {
	secret []byte
	seen   *bloom.BloomFilter
}

// NewRetryValidator builds a validator whose anti-replay filter has
// roughly bits bits of underlying storage.
func NewRetryValidator(secret []byte, bits int) *RetryValidator {
	if bits < 1 {
		bits = 1
	}
	return &RetryValidator{
		secret: append([]byte(nil), secret...),
		seen:   bloom.New(uint(bits), bloomHashes),
	}
}

// ErrRetryTokenInvalid is returned for a token that doesn't verify or has
// already been consumed.
var ErrRetryTokenInvalid = errors.New("quic: invalid or replayed retry token")

// Issue builds a retry token binding addr and odcid (the connection ID the
// client used before the server asked it to retry) with an HMAC tag.
func (v *RetryValidator) Issue(addr net.Addr, odcid []byte) []byte {
	token := make([]byte, 0, 1+len(odcid)+hmacTagLen)
	token = append(token, byte(len(odcid)))
	token = append(token, odcid...)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(addr.String()))
	mac.Write(token)
	return mac.Sum(token)
}

// Validate checks token against addr and, if valid and not previously
// seen, returns the original destination connection ID it carries.
// Validate consumes the token: a second call with the same bytes fails
// even if the first call succeeded.
func (v *RetryValidator) Validate(addr net.Addr, token []byte) ([]byte, error) {
	if v.seen.Test(token) {
		return nil, ErrRetryTokenInvalid
	}
	if len(token) < 1 {
		return nil, ErrRetryTokenInvalid
	}
	odcidLen := int(token[0])
	if len(token) < 1+odcidLen+hmacTagLen {
		return nil, ErrRetryTokenInvalid
	}
	odcid := token[1 : 1+odcidLen]
	body := token[:1+odcidLen]
	wantTag := token[1+odcidLen:]

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(addr.String()))
	mac.Write(body)
	gotTag := mac.Sum(nil)
	if !hmac.Equal(gotTag, wantTag) {
		return nil, ErrRetryTokenInvalid
	}

	v.seen.Add(token)
	return odcid, nil
}
