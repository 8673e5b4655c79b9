package wire

import "github.com/nsauthd/nsauthd/internal/ns/domain"

// EncodeNSTarget encodes the RDATA of an NS/CNAME/PTR/DNAME record: a
// single uncompressed domain name. RFC 1035 permits compressing names in
// these RDATA positions, but encoding always produces wire-legal output
// whether or not compression is applied; this codec keeps
// RDATA-embedded names uncompressed and relies on owner-name compression
// for the size win, which covers the common case of many records repeating
// the zone apex or a delegated subdomain.
func EncodeNSTarget(target string) ([]byte, error) {
	return EncodeName(nil, domain.NewName(target), nil)
}
