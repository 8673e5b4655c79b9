package wire

import (
	"testing"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildQuery(t *testing.T, id uint16, qname string, qtype domain.RRType) domain.Message {
	t.Helper()
	return domain.Message{
		Header: domain.Header{
			ID:               id,
			Opcode:           domain.OpcodeQuery,
			RecursionDesired: true,
		},
		Question: domain.Question{
			Name:  domain.NewName(qname),
			Type:  qtype,
			Class: domain.RRClassIN,
		},
	}
}

func TestEncodeParseQueryRoundTrip(t *testing.T) {
	msg := buildQuery(t, 0x1234, "www.example.com.", domain.RRTypeA)

	buf, err := Encode(msg)
	require.NoError(t, err)

	got, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, msg.Header.ID, got.Header.ID)
	assert.True(t, got.Header.RecursionDesired)
	assert.Equal(t, msg.Question, got.Question)
}

func TestEncodeIntoWritesThroughSuppliedBuffer(t *testing.T) {
	msg := buildQuery(t, 0x4321, "www.example.com.", domain.RRTypeA)

	dst := make([]byte, 0, 512)
	out, err := EncodeInto(dst, msg)
	require.NoError(t, err)
	require.Equal(t, cap(dst), cap(out), "EncodeInto must grow the supplied buffer in place, not allocate a new one")

	got, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, msg.Header.ID, got.Header.ID)
	assert.Equal(t, msg.Question, got.Question)
}

func TestEncodeIntoFallsBackWhenBufferTooSmall(t *testing.T) {
	msg := buildQuery(t, 0x5555, "www.example.com.", domain.RRTypeA)

	out, err := EncodeInto(make([]byte, 0, 1), msg)
	require.NoError(t, err)

	got, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, msg.Header.ID, got.Header.ID)
}

func TestEncodeParseResponseWithAnswerRoundTrip(t *testing.T) {
	msg := buildQuery(t, 0xABCD, "www.example.com.", domain.RRTypeA)
	msg.Header.Response = true
	msg.Header.Authoritative = true
	msg.Header.RCode = domain.RCodeNoError

	rdata, err := EncodeA("192.0.2.1")
	require.NoError(t, err)
	rs, err := domain.NewRRSet(domain.NewName("www.example.com."), domain.RRTypeA, domain.RRClassIN, 3600, rdata)
	require.NoError(t, err)
	msg.Answer = []domain.RRSet{rs}

	buf, err := Encode(msg)
	require.NoError(t, err)

	got, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, got.Answer, 1)
	assert.Equal(t, "www.example.com.", got.Answer[0].Owner.String())
	assert.Equal(t, domain.RRTypeA, got.Answer[0].Type)
	assert.Equal(t, uint32(3600), got.Answer[0].TTL)
	require.Len(t, got.Answer[0].Rdata, 1)
	assert.Equal(t, rdata, got.Answer[0].Rdata[0])
}

func TestEncodeParseMultiRecordRRSetGrouping(t *testing.T) {
	msg := buildQuery(t, 1, "example.com.", domain.RRTypeA)
	msg.Header.Response = true

	r1, _ := EncodeA("192.0.2.1")
	r2, _ := EncodeA("192.0.2.2")
	rs, err := domain.NewRRSet(domain.NewName("example.com."), domain.RRTypeA, domain.RRClassIN, 60, r1, r2)
	require.NoError(t, err)
	msg.Answer = []domain.RRSet{rs}

	buf, err := Encode(msg)
	require.NoError(t, err)

	got, err := Parse(buf)
	require.NoError(t, err)
	require.Len(t, got.Answer, 1)
	assert.Len(t, got.Answer[0].Rdata, 2)
}

func TestEncodeParseEDNSRoundTrip(t *testing.T) {
	msg := buildQuery(t, 2, "example.com.", domain.RRTypeA)
	msg.EDNS = &domain.EDNSOptions{UDPSize: 4096, DO: true, Version: 0}

	buf, err := Encode(msg)
	require.NoError(t, err)

	got, err := Parse(buf)
	require.NoError(t, err)
	require.NotNil(t, got.EDNS)
	assert.Equal(t, uint16(4096), got.EDNS.UDPSize)
	assert.True(t, got.EDNS.DO)
	assert.Equal(t, uint16(4096), got.MaxPayloadSize())
}

func TestEncodeParseEffectiveRCodeWithEDNSExtension(t *testing.T) {
	msg := buildQuery(t, 3, "example.com.", domain.RRTypeA)
	msg.Header.Response = true
	msg.Header.RCode = domain.RCode(0x1) // low 4 bits
	msg.EDNS = &domain.EDNSOptions{UDPSize: 1232, ExtRCode: 0x2}

	buf, err := Encode(msg)
	require.NoError(t, err)
	got, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, domain.RCode(0x21), got.EffectiveRCode())
}

func TestParseRejectsMultiQuestion(t *testing.T) {
	buf := make([]byte, headerLen)
	buf[4] = 0
	buf[5] = 2 // QDCOUNT = 2
	_, err := Parse(buf)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.HeaderParsed)
}

func TestParseFormErrPreservesQueryID(t *testing.T) {
	msg := buildQuery(t, 0x5566, "www.example.com.", domain.RRTypeA)
	buf, err := Encode(msg)
	require.NoError(t, err)

	// Claim one answer record in the header but supply none, provoking a
	// parse failure past the header so the query ID must still surface.
	buf[6], buf[7] = 0, 1

	_, err = Parse(buf)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.HeaderParsed)
	assert.Equal(t, uint16(0x5566), pe.ID)
}
