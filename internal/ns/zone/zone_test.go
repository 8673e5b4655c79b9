package zone

import (
	"testing"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRRSet(t *testing.T, owner string, typ domain.RRType, ttl uint32, rdata ...[]byte) domain.RRSet {
	t.Helper()
	rs, err := domain.NewRRSet(domain.NewName(owner), typ, domain.RRClassIN, ttl, rdata...)
	require.NoError(t, err)
	return rs
}

func buildTestZone(t *testing.T) *Zone {
	t.Helper()
	soa, err := wire.EncodeSOA(wire.SOAFields{
		MName: "ns1.example.com.", RName: "hostmaster.example.com.",
		Serial: 1, Refresh: 3600, Retry: 900, Expire: 604800, Minimum: 300,
	})
	require.NoError(t, err)
	ns, err := wire.EncodeNSTarget("ns1.example.com.")
	require.NoError(t, err)
	a1, err := wire.EncodeA("192.0.2.1")
	require.NoError(t, err)
	a2, err := wire.EncodeA("192.0.2.2")
	require.NoError(t, err)
	wildA, err := wire.EncodeA("192.0.2.9")
	require.NoError(t, err)
	delNS, err := wire.EncodeNSTarget("ns1.child.example.com.")
	require.NoError(t, err)
	glueA, err := wire.EncodeA("192.0.2.53")
	require.NoError(t, err)

	rrsets := []domain.RRSet{
		mustRRSet(t, "example.com.", domain.RRTypeSOA, 3600, soa),
		mustRRSet(t, "example.com.", domain.RRTypeNS, 3600, ns),
		mustRRSet(t, "www.example.com.", domain.RRTypeA, 300, a1, a2),
		mustRRSet(t, "*.example.com.", domain.RRTypeA, 300, wildA),
		mustRRSet(t, "child.example.com.", domain.RRTypeNS, 3600, delNS),
		mustRRSet(t, "ns1.child.example.com.", domain.RRTypeA, 3600, glueA),
	}

	z, err := NewZone(domain.NewName("example.com."), rrsets)
	require.NoError(t, err)
	return z
}

func TestZoneExactMatch(t *testing.T) {
	z := buildTestZone(t)
	node, kind := z.Lookup(domain.NewName("www.example.com."))
	require.Equal(t, Exact, kind)
	rs, ok := node.RRSet(domain.RRTypeA)
	require.True(t, ok)
	assert.Equal(t, 2, rs.Len())
}

func TestZoneWildcardMatch(t *testing.T) {
	z := buildTestZone(t)
	node, kind := z.Lookup(domain.NewName("anything.example.com."))
	require.Equal(t, EncloserWildcard, kind)
	assert.Equal(t, "*.example.com.", node.Owner.String())
}

func TestZoneBelowCut(t *testing.T) {
	z := buildTestZone(t)
	node, kind := z.Lookup(domain.NewName("deep.child.example.com."))
	require.Equal(t, BelowCut, kind)
	assert.Equal(t, "child.example.com.", node.Owner.String())
}

func TestZoneBelowCutAtCutItself(t *testing.T) {
	z := buildTestZone(t)
	_, kind := z.Lookup(domain.NewName("child.example.com."))
	assert.Equal(t, BelowCut, kind)
}

func TestZoneBelowCutCoversInBailiwickGlueNode(t *testing.T) {
	// ns1.child.example.com. has its own A rrset in the fixture (glue for
	// the child.example.com. delegation), but a direct query for it is
	// still below the cut and must not be answered as Exact.
	z := buildTestZone(t)
	node, kind := z.Lookup(domain.NewName("ns1.child.example.com."))
	require.Equal(t, BelowCut, kind)
	assert.Equal(t, "child.example.com.", node.Owner.String())
}

func TestZoneWildcardCoversDeeperNames(t *testing.T) {
	z := buildTestZone(t)
	// *.example.com.'s closest encloser for a.b.example.com. is still
	// example.com., so the apex-level wildcard covers it too.
	node, kind := z.Lookup(domain.NewName("a.b.example.com."))
	require.Equal(t, EncloserWildcard, kind)
	assert.Equal(t, "*.example.com.", node.Owner.String())
}

func TestZoneNoName(t *testing.T) {
	soa, err := wire.EncodeSOA(wire.SOAFields{MName: "ns1.example.com.", RName: "hostmaster.example.com."})
	require.NoError(t, err)
	a, err := wire.EncodeA("192.0.2.1")
	require.NoError(t, err)
	z, err := NewZone(domain.NewName("example.com."), []domain.RRSet{
		mustRRSet(t, "example.com.", domain.RRTypeSOA, 3600, soa),
		mustRRSet(t, "www.example.com.", domain.RRTypeA, 300, a),
	})
	require.NoError(t, err)

	_, kind := z.Lookup(domain.NewName("nowhere.example.com."))
	assert.Equal(t, NoName, kind)
}

func TestZoneOutOfZone(t *testing.T) {
	z := buildTestZone(t)
	_, kind := z.Lookup(domain.NewName("example.org."))
	assert.Equal(t, OutOfZone, kind)
}

func TestZoneApexExact(t *testing.T) {
	z := buildTestZone(t)
	node, kind := z.Lookup(domain.NewName("example.com."))
	require.Equal(t, Exact, kind)
	_, ok := node.RRSet(domain.RRTypeSOA)
	assert.True(t, ok)
}

func TestNewZoneRequiresSingleSOA(t *testing.T) {
	ns, _ := wire.EncodeNSTarget("ns1.example.com.")
	_, err := NewZone(domain.NewName("example.com."), []domain.RRSet{
		mustRRSet(t, "example.com.", domain.RRTypeNS, 3600, ns),
	})
	require.Error(t, err)
}

func TestNewZoneRejectsOutOfApexOwner(t *testing.T) {
	soa, _ := wire.EncodeSOA(wire.SOAFields{MName: "ns1.example.com.", RName: "hostmaster.example.com."})
	a, _ := wire.EncodeA("192.0.2.1")
	_, err := NewZone(domain.NewName("example.com."), []domain.RRSet{
		mustRRSet(t, "example.com.", domain.RRTypeSOA, 3600, soa),
		mustRRSet(t, "www.example.org.", domain.RRTypeA, 300, a),
	})
	require.Error(t, err)
}

func TestZonePredecessor(t *testing.T) {
	z := buildTestZone(t)
	node, ok := z.Predecessor(domain.NewName("www.example.com."))
	require.True(t, ok)
	assert.NotEqual(t, "www.example.com.", node.Owner.String())
}
