package zone

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testZoneYAML = `
zone_root: example.com.
"@":
  soa: "ns1.example.com. hostmaster.example.com. 2026080601 3600 900 604800 300"
  ns: "ns1.example.com."
www:
  a:
    - "192.0.2.1"
    - "192.0.2.2"
  ttl: 120
mail:
  mx: "10 mail.example.com."
`

func TestLoadDirectoryParsesYAMLZone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "example.com.yaml"), []byte(testZoneYAML), 0o644))

	zones, err := LoadDirectory(dir, 300*time.Second)
	require.NoError(t, err)
	require.Contains(t, zones, domain.NewName("example.com."))

	z := zones[domain.NewName("example.com.")]
	node, kind := z.Lookup(domain.NewName("www.example.com."))
	require.Equal(t, Exact, kind)
	rs, ok := node.RRSet(domain.RRTypeA)
	require.True(t, ok)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, uint32(120), rs.TTL)

	mxNode, kind := z.Lookup(domain.NewName("mail.example.com."))
	require.Equal(t, Exact, kind)
	mxRS, ok := mxNode.RRSet(domain.RRTypeMX)
	require.True(t, ok)
	assert.Equal(t, 1, mxRS.Len())
}

func TestLoadDirectorySkipsUnsupportedExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))

	zones, err := LoadDirectory(dir, 300*time.Second)
	require.NoError(t, err)
	assert.Empty(t, zones)
}

func TestLoadDirectoryRejectsMissingSOA(t *testing.T) {
	dir := t.TempDir()
	bad := "zone_root: example.com.\nwww:\n  a: \"192.0.2.1\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o644))

	_, err := LoadDirectory(dir, 300*time.Second)
	require.Error(t, err)
}
