package wire

import (
	"encoding/binary"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// SOAFields holds the seven fields of an SOA RDATA in their native form.
type SOAFields struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

// EncodeSOA encodes an SOA RDATA. Both names are written uncompressed,
// matching EncodeNSTarget's rationale.
func EncodeSOA(f SOAFields) ([]byte, error) {
	buf, err := EncodeName(nil, domain.NewName(f.MName), nil)
	if err != nil {
		return nil, newEncodeError("SOA mname: %v", err)
	}
	buf, err = EncodeName(buf, domain.NewName(f.RName), nil)
	if err != nil {
		return nil, newEncodeError("SOA rname: %v", err)
	}
	var u32 [20]byte
	binary.BigEndian.PutUint32(u32[0:4], f.Serial)
	binary.BigEndian.PutUint32(u32[4:8], f.Refresh)
	binary.BigEndian.PutUint32(u32[8:12], f.Retry)
	binary.BigEndian.PutUint32(u32[12:16], f.Expire)
	binary.BigEndian.PutUint32(u32[16:20], f.Minimum)
	return append(buf, u32[:]...), nil
}

func decodeSOA(msgBuf []byte, offset int) (string, error) {
	mname, pos, err := DecodeName(msgBuf, offset)
	if err != nil {
		return "", err
	}
	rname, pos2, err := DecodeName(msgBuf, pos)
	if err != nil {
		return "", err
	}
	if pos2+20 > len(msgBuf) {
		return "", newParseError(pos2, "SOA rdata missing integer fields")
	}
	serial := binary.BigEndian.Uint32(msgBuf[pos2 : pos2+4])
	refresh := binary.BigEndian.Uint32(msgBuf[pos2+4 : pos2+8])
	retry := binary.BigEndian.Uint32(msgBuf[pos2+8 : pos2+12])
	expire := binary.BigEndian.Uint32(msgBuf[pos2+12 : pos2+16])
	minimum := binary.BigEndian.Uint32(msgBuf[pos2+16 : pos2+20])
	return formatSOA(string(mname), string(rname), serial, refresh, retry, expire, minimum), nil
}

func formatSOA(mname, rname string, serial, refresh, retry, expire, minimum uint32) string {
	return mname + " " + rname + " " + itoa(serial) + " " + itoa(refresh) + " " + itoa(retry) + " " + itoa(expire) + " " + itoa(minimum)
}

func itoa(v uint32) string {
	// Small helper kept local to avoid pulling in strconv at every call site
	// across the rdata files; SOA, MX and SRV all format their integers
	// with it.
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// SOASerial decodes just the serial field of a standalone, uncompressed SOA
// RDATA buffer (domain.RRSet.Rdata entries are exactly this), used by
// nsauthd's reload callback (Application.onReload) to detect when a reload
// actually changed content instead of just mtimes.
func SOASerial(rdata []byte) (uint32, bool) {
	_, pos, err := DecodeName(rdata, 0)
	if err != nil {
		return 0, false
	}
	_, pos, err = DecodeName(rdata, pos)
	if err != nil {
		return 0, false
	}
	if pos+4 > len(rdata) {
		return 0, false
	}
	return binary.BigEndian.Uint32(rdata[pos : pos+4]), true
}

// SOAMinimum decodes just the minimum field of SOA rdata, used by the query
// processor to compute negative-answer TTL without round-tripping through
// presentation form.
func SOAMinimum(rdata []byte) (uint32, bool) {
	if len(rdata) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(rdata[len(rdata)-4:]), true
}

// SOATTL returns min(rrsetTTL, soaMinimum): a negative answer's TTL is the
// lesser of the SOA rrset's own TTL and the SOA RDATA's MINIMUM field.
func SOATTL(rrsetTTL uint32, soaRdata []byte) uint32 {
	min, ok := SOAMinimum(soaRdata)
	if !ok || rrsetTTL < min {
		return rrsetTTL
	}
	return min
}
