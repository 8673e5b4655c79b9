package zone

// MatchKind classifies the result of a Zone.Lookup.
type MatchKind int

const (
	// Exact means the queried name has its own node in the zone.
	Exact MatchKind = iota
	// EncloserWildcard means no node exists for the queried name, but its
	// closest encloser has a wildcard child ("*.encloser") carrying an
	// rrset of the queried type.
	EncloserWildcard
	// NoName means the queried name falls within the zone's namespace but
	// neither it nor a covering wildcard has a node.
	NoName
	// BelowCut means resolution hit a delegation point (a non-apex node
	// carrying an NS rrset) at or above the queried name.
	BelowCut
	// OutOfZone means the queried name is not a subdomain of the zone apex.
	OutOfZone
)

func (m MatchKind) String() string {
	switch m {
	case Exact:
		return "exact"
	case EncloserWildcard:
		return "encloserWildcard"
	case NoName:
		return "noName"
	case BelowCut:
		return "belowCut"
	case OutOfZone:
		return "outOfZone"
	default:
		return "unknown"
	}
}
