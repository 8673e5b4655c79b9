package zone

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/wire"
)

// LoadDirectory walks dir, parses every supported zone file (YAML/JSON/TOML)
// found in it, and returns one *Zone per distinct zone_root declared. A file
// with an unrecognized extension is skipped.
func LoadDirectory(dir string, defaultTTL time.Duration) (map[domain.Name]*Zone, error) {
	grouped := make(map[string][]domain.RRSet)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		root, rrsets, err := loadZoneFile(path, defaultTTL)
		if err != nil {
			return fmt.Errorf("zone: parsing %s: %w", path, err)
		}
		if root == "" {
			return nil
		}
		grouped[string(root)] = append(grouped[string(root)], rrsets...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	zones := make(map[domain.Name]*Zone, len(grouped))
	for root, rrsets := range grouped {
		z, err := NewZone(domain.Name(root), rrsets)
		if err != nil {
			return nil, fmt.Errorf("zone: building %s: %w", root, err)
		}
		zones[z.Apex] = z
	}
	return zones, nil
}

// loadZoneFile parses one zone file and returns its declared zone root and
// the rrsets it contains. A file whose extension is not recognized returns
// ("", nil, nil).
func loadZoneFile(path string, defaultTTL time.Duration) (domain.Name, []domain.RRSet, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return "", nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return "", nil, fmt.Errorf("loading %s: %w", path, err)
	}

	rootStr := k.String("zone_root")
	if rootStr == "" {
		return "", nil, fmt.Errorf("%s: missing zone_root", path)
	}
	root := domain.NewName(rootStr).Canonical()
	rootNoDot := strings.TrimSuffix(string(root), ".")

	var rrsets []domain.RRSet
	for name, raw := range k.Raw() {
		if name == "zone_root" {
			continue
		}
		rawMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		owner := domain.NewName(expandOwner(name, rootNoDot))
		for rrType, val := range rawMap {
			if rrType == "ttl" {
				continue
			}
			values := stringValues(val)
			if len(values) == 0 {
				continue
			}
			ttl := ownerTTL(rawMap, defaultTTL)
			rs, err := buildRRSet(owner, rrType, values, ttl)
			if err != nil {
				return "", nil, fmt.Errorf("%s: record %s %s: %w", path, name, rrType, err)
			}
			rrsets = append(rrsets, rs)
		}
	}
	return root, rrsets, nil
}

// expandOwner expands "@" to the zone root and appends the root to any
// label not already absolute.
func expandOwner(label, root string) string {
	if label == "@" {
		return root
	}
	if strings.HasSuffix(label, ".") {
		return label
	}
	return label + "." + root
}

func ownerTTL(rawMap map[string]any, defaultTTL time.Duration) uint32 {
	if v, ok := rawMap["ttl"]; ok {
		switch t := v.(type) {
		case int:
			return uint32(t)
		case int64:
			return uint32(t)
		case float64:
			return uint32(t)
		case string:
			if n, err := strconv.ParseUint(t, 10, 32); err == nil {
				return uint32(n)
			}
		}
	}
	return uint32(defaultTTL.Seconds())
}

// stringValues normalizes a koanf-parsed field (string or []any of strings)
// into a slice of non-empty strings, silently skipping anything else.
func stringValues(val any) []string {
	switch v := val.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := elem.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// buildRRSet encodes presentation-form values for one (owner, type) pair
// into a wire-ready RRSet, dispatching to the appropriate rdata encoder.
func buildRRSet(owner domain.Name, rrType string, values []string, ttl uint32) (domain.RRSet, error) {
	t := domain.RRTypeFromString(strings.ToUpper(rrType))
	if t == 0 {
		return domain.RRSet{}, fmt.Errorf("unrecognized record type %q", rrType)
	}

	rdata := make([][]byte, 0, len(values))
	for _, v := range values {
		enc, err := encodeRdataString(t, v)
		if err != nil {
			return domain.RRSet{}, err
		}
		rdata = append(rdata, enc)
	}
	return domain.NewRRSet(owner, t, domain.RRClassIN, ttl, rdata...)
}

func encodeRdataString(t domain.RRType, v string) ([]byte, error) {
	switch t {
	case domain.RRTypeA:
		return wire.EncodeA(v)
	case domain.RRTypeAAAA:
		return wire.EncodeAAAA(v)
	case domain.RRTypeNS, domain.RRTypeCNAME, domain.RRTypeDNAME:
		return wire.EncodeNSTarget(v)
	case domain.RRTypePTR:
		return wire.EncodeNSTarget(v)
	case domain.RRTypeSOA:
		return encodeSOAString(v)
	case domain.RRTypeMX:
		return encodeMXString(v)
	case domain.RRTypeTXT:
		return wire.EncodeTXT(v)
	case domain.RRTypeSRV:
		return encodeSRVString(v)
	default:
		return nil, fmt.Errorf("no rdata encoder for type %s", t)
	}
}

func encodeSOAString(v string) ([]byte, error) {
	parts := strings.Fields(v)
	if len(parts) != 7 {
		return nil, fmt.Errorf("SOA must have 7 space-separated fields, got %d: %q", len(parts), v)
	}
	nums := make([]uint32, 5)
	for i := 0; i < 5; i++ {
		n, err := strconv.ParseUint(parts[i+2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("SOA field %d: %w", i+2, err)
		}
		nums[i] = uint32(n)
	}
	return wire.EncodeSOA(wire.SOAFields{
		MName: parts[0], RName: parts[1],
		Serial: nums[0], Refresh: nums[1], Retry: nums[2], Expire: nums[3], Minimum: nums[4],
	})
}

func encodeMXString(v string) ([]byte, error) {
	parts := strings.Fields(v)
	if len(parts) != 2 {
		return nil, fmt.Errorf("MX must have 2 space-separated fields (preference exchange), got %d: %q", len(parts), v)
	}
	pref, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("MX preference: %w", err)
	}
	return wire.EncodeMX(uint16(pref), parts[1])
}

func encodeSRVString(v string) ([]byte, error) {
	parts := strings.Fields(v)
	if len(parts) != 4 {
		return nil, fmt.Errorf("SRV must have 4 space-separated fields (priority weight port target), got %d: %q", len(parts), v)
	}
	var nums [3]uint64
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(parts[i], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("SRV field %d: %w", i, err)
		}
		nums[i] = n
	}
	return wire.EncodeSRV(uint16(nums[0]), uint16(nums[1]), uint16(nums[2]), parts[3])
}
