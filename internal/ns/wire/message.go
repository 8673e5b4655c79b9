package wire

import (
	"encoding/binary"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

const headerLen = 12

// rawRR is a single decoded resource record before RRSet grouping.
type rawRR struct {
	owner domain.Name
	typ   domain.RRType
	class domain.RRClass
	ttl   uint32
	rdata []byte
}

// Parse decodes a complete wire-format DNS message. On a format error after
// the header has been successfully decoded, the returned *ParseError carries
// HeaderParsed=true and the original message ID, so the caller can still
// answer FORMERR with the query's own ID.
func Parse(buf []byte) (domain.Message, error) {
	var msg domain.Message

	if len(buf) < headerLen {
		return msg, newParseError(0, "message shorter than header (%d bytes)", len(buf))
	}
	id := binary.BigEndian.Uint16(buf[0:2])
	flags1 := buf[2]
	flags2 := buf[3]
	qdcount := binary.BigEndian.Uint16(buf[4:6])
	ancount := binary.BigEndian.Uint16(buf[6:8])
	nscount := binary.BigEndian.Uint16(buf[8:10])
	arcount := binary.BigEndian.Uint16(buf[10:12])

	msg.Header = domain.Header{
		ID:                 id,
		Response:           flags1&0x80 != 0,
		Opcode:             domain.Opcode((flags1 >> 3) & 0x0F),
		Authoritative:      flags1&0x04 != 0,
		Truncated:          flags1&0x02 != 0,
		RecursionDesired:   flags1&0x01 != 0,
		RecursionAvailable: flags2&0x80 != 0,
		AuthenticData:      flags2&0x20 != 0,
		CheckingDisabled:   flags2&0x10 != 0,
		RCode:              domain.RCode(flags2 & 0x0F),
	}

	pos := headerLen

	if qdcount != 1 {
		return msg, headerErr(id, pos, "exactly one question required, got %d", qdcount)
	}

	qname, next, err := DecodeName(buf, pos)
	if err != nil {
		return msg, markHeaderParsed(id, err)
	}
	pos = next
	if pos+4 > len(buf) {
		return msg, headerErr(id, pos, "truncated question section")
	}
	msg.Question = domain.Question{
		Name:  qname,
		Type:  domain.RRType(binary.BigEndian.Uint16(buf[pos : pos+2])),
		Class: domain.RRClass(binary.BigEndian.Uint16(buf[pos+2 : pos+4])),
	}
	pos += 4

	answers, pos, err := decodeRRs(buf, pos, int(ancount), id)
	if err != nil {
		return msg, err
	}
	authority, pos, err := decodeRRs(buf, pos, int(nscount), id)
	if err != nil {
		return msg, err
	}
	additional, pos, err := decodeRRs(buf, pos, int(arcount), id)
	if err != nil {
		return msg, err
	}
	_ = pos

	additional, edns, tsig, err := extractPseudoRecords(additional, id)
	if err != nil {
		return msg, err
	}

	msg.Answer = groupRRs(answers)
	msg.Authority = groupRRs(authority)
	msg.Additional = groupRRs(additional)
	msg.EDNS = edns
	msg.TSIG = tsig

	return msg, nil
}

func headerErr(id uint16, offset int, format string, args ...any) *ParseError {
	e := newParseError(offset, format, args...)
	e.HeaderParsed = true
	e.ID = id
	return e
}

func markHeaderParsed(id uint16, err error) error {
	if pe, ok := err.(*ParseError); ok {
		pe.HeaderParsed = true
		pe.ID = id
		return pe
	}
	return err
}

// decodeRRs decodes count resource records starting at pos, returning the
// records, the offset following the last one, and any parse error.
func decodeRRs(buf []byte, pos, count int, id uint16) ([]rawRR, int, error) {
	out := make([]rawRR, 0, count)
	for i := 0; i < count; i++ {
		name, next, err := DecodeName(buf, pos)
		if err != nil {
			return nil, 0, markHeaderParsed(id, err)
		}
		pos = next
		if pos+10 > len(buf) {
			return nil, 0, headerErr(id, pos, "truncated resource record")
		}
		typ := domain.RRType(binary.BigEndian.Uint16(buf[pos : pos+2]))
		class := domain.RRClass(binary.BigEndian.Uint16(buf[pos+2 : pos+4]))
		ttl := binary.BigEndian.Uint32(buf[pos+4 : pos+8])
		rdlen := int(binary.BigEndian.Uint16(buf[pos+8 : pos+10]))
		pos += 10
		if pos+rdlen > len(buf) {
			return nil, 0, headerErr(id, pos, "rdata extends past end of message")
		}
		rdata := make([]byte, rdlen)
		copy(rdata, buf[pos:pos+rdlen])
		pos += rdlen
		out = append(out, rawRR{owner: name, typ: typ, class: class, ttl: ttl, rdata: rdata})
	}
	return out, pos, nil
}

// groupRRs merges adjacent records sharing (owner, type, class) into RRSets,
// preserving wire order. Zone data and well-formed responses always present
// same-set records contiguously.
func groupRRs(rrs []rawRR) []domain.RRSet {
	var out []domain.RRSet
	for _, r := range rrs {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Owner.EqualFold(r.owner) && last.Type == r.typ && last.Class == r.class {
				last.Rdata = append(last.Rdata, r.rdata)
				continue
			}
		}
		out = append(out, domain.RRSet{
			Owner: r.owner,
			Type:  r.typ,
			Class: r.class,
			TTL:   r.ttl,
			Rdata: [][]byte{r.rdata},
		})
	}
	return out
}

// extractPseudoRecords pulls the OPT and TSIG pseudo-records out of the
// additional section. RFC 6891 §6.1.1 requires at most one OPT RR; a second
// is a FORMERR. TSIG, if present, must be the last additional record (RFC
// 8945 §5.2); this codec accepts it there and does not enforce the position
// strictly on decode, deferring to the caller's policy.
func extractPseudoRecords(additional []rawRR, id uint16) ([]rawRR, *domain.EDNSOptions, *domain.TSIGRecord, error) {
	var out []rawRR
	var edns *domain.EDNSOptions
	var tsig *domain.TSIGRecord

	for _, r := range additional {
		switch r.typ {
		case domain.RRTypeOPT:
			if edns != nil {
				return nil, nil, nil, headerErr(id, 0, "more than one OPT record")
			}
			edns = decodeOPT(r)
		case domain.RRTypeTSIG:
			if tsig != nil {
				return nil, nil, nil, headerErr(id, 0, "more than one TSIG record")
			}
			t, err := decodeTSIG(r)
			if err != nil {
				return nil, nil, nil, markHeaderParsed(id, err)
			}
			tsig = t
		default:
			out = append(out, r)
		}
	}
	return out, edns, tsig, nil
}

func decodeOPT(r rawRR) *domain.EDNSOptions {
	extRCode := byte(r.ttl >> 24)
	version := byte(r.ttl >> 16)
	flags := uint16(r.ttl)
	return &domain.EDNSOptions{
		UDPSize:    uint16(r.class),
		ExtRCode:   extRCode,
		Version:    version,
		DO:         flags&0x8000 != 0,
		ExtraFlags: flags &^ 0x8000,
	}
}

func decodeTSIG(r rawRR) (*domain.TSIGRecord, error) {
	pos := 0
	alg, next, err := DecodeName(r.rdata, 0)
	if err != nil {
		return nil, newParseError(pos, "TSIG algorithm name: %v", err)
	}
	pos = next
	if pos+10 > len(r.rdata) {
		return nil, newParseError(pos, "TSIG rdata truncated before MAC size")
	}
	timeSigned := uint64(binary.BigEndian.Uint16(r.rdata[pos:pos+2]))<<32 | uint64(binary.BigEndian.Uint32(r.rdata[pos+2:pos+6]))
	fudge := binary.BigEndian.Uint16(r.rdata[pos+6 : pos+8])
	macSize := int(binary.BigEndian.Uint16(r.rdata[pos+8 : pos+10]))
	pos += 10
	if pos+macSize+6 > len(r.rdata) {
		return nil, newParseError(pos, "TSIG rdata truncated in MAC/trailer")
	}
	mac := append([]byte(nil), r.rdata[pos:pos+macSize]...)
	pos += macSize
	origID := binary.BigEndian.Uint16(r.rdata[pos : pos+2])
	tsigErr := domain.RCode(binary.BigEndian.Uint16(r.rdata[pos+2 : pos+4]))
	otherLen := int(binary.BigEndian.Uint16(r.rdata[pos+4 : pos+6]))
	pos += 6
	if pos+otherLen > len(r.rdata) {
		return nil, newParseError(pos, "TSIG rdata truncated in other-data")
	}
	other := append([]byte(nil), r.rdata[pos:pos+otherLen]...)

	return &domain.TSIGRecord{
		Algorithm:  alg,
		TimeSigned: timeSigned,
		Fudge:      fudge,
		MAC:        mac,
		OriginalID: origID,
		Error:      tsigErr,
		OtherData:  other,
	}, nil
}

// Encode serializes msg to wire format. Name compression is applied across
// the whole message, including the question, per RFC 1035 §4.1.4.
func Encode(msg domain.Message) ([]byte, error) {
	return encode(nil, msg, true)
}

// EncodeUncompressed serializes msg to wire format without applying name
// compression. The requestor uses this for outbound NOTIFY messages, which
// are short enough that compression buys nothing and deterministic,
// pointer-free output is easier to compare byte-for-byte in tests.
func EncodeUncompressed(msg domain.Message) ([]byte, error) {
	return encode(nil, msg, false)
}

// EncodeInto serializes msg the same way Encode does, but builds the
// message in dst's backing array instead of a freshly allocated one when
// dst has enough spare capacity. The batched UDP pipeline passes its
// arena-claimed response buffer here so a reply never needs a second,
// heap-allocated home on its way out.
func EncodeInto(dst []byte, msg domain.Message) ([]byte, error) {
	return encode(dst, msg, true)
}

func encode(dst []byte, msg domain.Message, compress bool) ([]byte, error) {
	buf := dst[:0]
	if cap(buf) < headerLen {
		buf = make([]byte, 0, headerLen)
	}
	buf = buf[:headerLen]
	for i := range buf {
		buf[i] = 0
	}
	encodeHeader(buf, msg)

	var comp *nameCompressor
	if compress {
		comp = newNameCompressor()
	}

	var err error
	buf, err = EncodeName(buf, msg.Question.Name, comp)
	if err != nil {
		return nil, newEncodeError("question name: %v", err)
	}
	buf = appendUint16(buf, uint16(msg.Question.Type))
	buf = appendUint16(buf, uint16(msg.Question.Class))

	ancount := 0
	if buf, ancount, err = encodeRRSets(buf, msg.Answer, comp); err != nil {
		return nil, err
	}
	nscount := 0
	if buf, nscount, err = encodeRRSets(buf, msg.Authority, comp); err != nil {
		return nil, err
	}
	arcount := 0
	if buf, arcount, err = encodeRRSets(buf, msg.Additional, comp); err != nil {
		return nil, err
	}
	if msg.EDNS != nil {
		buf = encodeOPT(buf, *msg.EDNS)
		arcount++
	}
	if msg.TSIG != nil {
		buf, err = encodeTSIG(buf, *msg.TSIG, msg.Header.ID)
		if err != nil {
			return nil, err
		}
		arcount++
	}

	binary.BigEndian.PutUint16(buf[4:6], 1)
	binary.BigEndian.PutUint16(buf[6:8], uint16(ancount))
	binary.BigEndian.PutUint16(buf[8:10], uint16(nscount))
	binary.BigEndian.PutUint16(buf[10:12], uint16(arcount))

	return buf, nil
}

func encodeHeader(buf []byte, msg domain.Message) {
	h := msg.Header
	binary.BigEndian.PutUint16(buf[0:2], h.ID)

	var f1 byte
	if h.Response {
		f1 |= 0x80
	}
	f1 |= byte(h.Opcode&0x0F) << 3
	if h.Authoritative {
		f1 |= 0x04
	}
	if h.Truncated {
		f1 |= 0x02
	}
	if h.RecursionDesired {
		f1 |= 0x01
	}
	buf[2] = f1

	var f2 byte
	if h.RecursionAvailable {
		f2 |= 0x80
	}
	if h.AuthenticData {
		f2 |= 0x20
	}
	if h.CheckingDisabled {
		f2 |= 0x10
	}
	f2 |= byte(h.RCode & 0x0F)
	buf[3] = f2
}

func encodeRRSets(buf []byte, sets []domain.RRSet, comp *nameCompressor) ([]byte, int, error) {
	count := 0
	var err error
	for _, rs := range sets {
		for _, rdata := range rs.Rdata {
			buf, err = EncodeName(buf, rs.Owner, comp)
			if err != nil {
				return nil, 0, newEncodeError("owner %s: %v", rs.Owner, err)
			}
			buf = appendUint16(buf, uint16(rs.Type))
			buf = appendUint16(buf, uint16(rs.Class))
			buf = appendUint32(buf, rs.TTL)
			if len(rdata) > 0xFFFF {
				return nil, 0, newEncodeError("rdata for %s/%s exceeds 65535 octets", rs.Owner, rs.Type)
			}
			buf = appendUint16(buf, uint16(len(rdata)))
			buf = append(buf, rdata...)
			count++
		}
	}
	return buf, count, nil
}

func encodeOPT(buf []byte, e domain.EDNSOptions) []byte {
	buf = append(buf, 0) // root owner name
	buf = appendUint16(buf, uint16(domain.RRTypeOPT))
	buf = appendUint16(buf, e.UDPSize)
	var flags uint16
	if e.DO {
		flags |= 0x8000
	}
	flags |= e.ExtraFlags &^ 0x8000
	ttl := uint32(e.ExtRCode)<<24 | uint32(e.Version)<<16 | uint32(flags)
	buf = appendUint32(buf, ttl)
	buf = appendUint16(buf, 0) // rdlength: no options carried
	return buf
}

func encodeTSIG(buf []byte, t domain.TSIGRecord, origID uint16) ([]byte, error) {
	var rdata []byte
	var err error
	rdata, err = EncodeName(rdata, t.Algorithm, nil)
	if err != nil {
		return nil, newEncodeError("TSIG algorithm: %v", err)
	}
	rdata = appendUint16(rdata, uint16(t.TimeSigned>>32))
	rdata = appendUint32(rdata, uint32(t.TimeSigned))
	rdata = appendUint16(rdata, t.Fudge)
	rdata = appendUint16(rdata, uint16(len(t.MAC)))
	rdata = append(rdata, t.MAC...)
	rdata = appendUint16(rdata, origID)
	rdata = appendUint16(rdata, uint16(t.Error))
	rdata = appendUint16(rdata, uint16(len(t.OtherData)))
	rdata = append(rdata, t.OtherData...)

	// TSIGRecord does not carry a key name (carriage-only, no MAC
	// verification), so the owner name is written as
	// root; deployments needing an accurate key-name owner must extend
	// TSIGRecord first.
	buf = append(buf, 0)
	buf = appendUint16(buf, uint16(domain.RRTypeTSIG))
	buf = appendUint16(buf, uint16(domain.RRClassANY))
	buf = appendUint32(buf, 0) // TSIG TTL is always 0
	buf = appendUint16(buf, uint16(len(rdata)))
	buf = append(buf, rdata...)
	return buf, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
