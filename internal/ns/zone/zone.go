// Package zone implements the authoritative zone store (C2): an immutable,
// canonically-ordered name tree supporting exact, wildcard, delegation, and
// out-of-zone lookup classification.
package zone

import (
	"fmt"
	"sort"

	"github.com/nsauthd/nsauthd/internal/ns/domain"
)

// Zone is an immutable, fully-built authoritative zone. Once constructed by
// NewZone it is never mutated; a reload produces a new *Zone that is
// installed wholesale through the snapshot store (C3), never patched in
// place.
type Zone struct {
	Apex  domain.Name
	nodes []*Node // sorted by canonical name, ascending
}

// NewZone groups rrsets by owner name into nodes and builds a zone rooted at
// apex. It enforces the single invariant the store cares about structurally:
// the apex must carry exactly one SOA rrset with exactly one record.
func NewZone(apex domain.Name, rrsets []domain.RRSet) (*Zone, error) {
	apex = apex.Canonical()
	byOwner := make(map[string]*Node)
	var owners []domain.Name

	for _, rs := range rrsets {
		if err := rs.Validate(); err != nil {
			return nil, fmt.Errorf("zone: %w", err)
		}
		if !rs.Owner.IsSubdomainOf(apex) {
			return nil, fmt.Errorf("zone: owner %s is not within apex %s", rs.Owner, apex)
		}
		key := string(rs.Owner.Canonical())
		node, ok := byOwner[key]
		if !ok {
			node = &Node{Owner: rs.Owner, RRSets: make(map[domain.RRType]domain.RRSet)}
			byOwner[key] = node
			owners = append(owners, rs.Owner)
		}
		if existing, dup := node.RRSets[rs.Type]; dup {
			return nil, fmt.Errorf("zone: duplicate rrset %s/%s (already has %d records)", rs.Owner, rs.Type, existing.Len())
		}
		node.RRSets[rs.Type] = rs
	}

	apexNode, ok := byOwner[string(apex)]
	if !ok {
		return nil, fmt.Errorf("zone: apex %s has no records", apex)
	}
	soa, ok := apexNode.RRSet(domain.RRTypeSOA)
	if !ok {
		return nil, fmt.Errorf("zone: apex %s missing SOA rrset", apex)
	}
	if soa.Len() != 1 {
		return nil, fmt.Errorf("zone: apex %s SOA rrset must have exactly one record, has %d", apex, soa.Len())
	}

	sort.Slice(owners, func(i, j int) bool {
		return domain.CompareCanonical(owners[i], owners[j]) < 0
	})
	nodes := make([]*Node, len(owners))
	for i, owner := range owners {
		nodes[i] = byOwner[string(owner.Canonical())]
	}

	return &Zone{Apex: apex, nodes: nodes}, nil
}

// find returns the node owned by name, using binary search over the
// canonically-sorted node slice (O(log n)).
func (z *Zone) find(name domain.Name) (*Node, bool) {
	name = name.Canonical()
	i := sort.Search(len(z.nodes), func(i int) bool {
		return domain.CompareCanonical(z.nodes[i].Owner, name) >= 0
	})
	if i < len(z.nodes) && z.nodes[i].Owner.EqualFold(name) {
		return z.nodes[i], true
	}
	return nil, false
}

// GlueNode returns the node owned by name if one exists in this zone,
// without the cut classification Lookup applies. Delegation glue routinely
// lives below the cut it serves (an NS target's own A/AAAA records are
// stored in the parent zone that delegates to it); callers assembling glue
// for a referral want that node's address records directly, not Lookup's
// BelowCut verdict.
func (z *Zone) GlueNode(name domain.Name) (*Node, bool) {
	return z.find(name)
}

// Predecessor returns the node immediately preceding name in canonical
// order, if one exists. Exposed for future NSEC synthesis; today's only
// consumer of ordered lookup is wildcard matching, which uses Lookup
// directly.
func (z *Zone) Predecessor(name domain.Name) (*Node, bool) {
	name = name.Canonical()
	i := sort.Search(len(z.nodes), func(i int) bool {
		return domain.CompareCanonical(z.nodes[i].Owner, name) >= 0
	})
	if i == 0 {
		return nil, false
	}
	return z.nodes[i-1], true
}

// Lookup classifies qname against the zone and returns the node that
// answers it (for Exact and EncloserWildcard matches, and the delegation
// node for BelowCut), or (nil, NoName/OutOfZone) when nothing answers it.
//
// Wildcard matches are returned under the wildcard's own owner name
// ("*.example.com."); callers synthesize the answer's owner via
// domain.RRSet.WithOwner(qname).
func (z *Zone) Lookup(qname domain.Name) (*Node, MatchKind) {
	if !qname.IsSubdomainOf(z.Apex) {
		return nil, OutOfZone
	}

	// A cut anywhere from qname up to (but not including) the apex takes
	// priority over anything a closer encloser walk would find. A name
	// below a cut can still have its own node -- in-bailiwick NS glue is
	// routinely stored in the parent zone -- but that node is never
	// authoritative; it's still answered with a referral.
	for above := qname; !above.EqualFold(z.Apex); above = above.Parent() {
		if node, ok := z.find(above); ok && node.HasNS() {
			return node, BelowCut
		}
	}

	encloser := qname
	for {
		if node, ok := z.find(encloser); ok {
			if encloser.EqualFold(qname) {
				return node, Exact
			}
			if wnode, ok := z.find(domain.WildcardOf(encloser)); ok {
				return wnode, EncloserWildcard
			}
			return nil, NoName
		}
		// An ancestor with no rrsets of its own still encloses qname when a
		// wildcard sits directly below it ("w.example." under "*.w.example.").
		if !encloser.EqualFold(qname) {
			if wnode, ok := z.find(domain.WildcardOf(encloser)); ok {
				return wnode, EncloserWildcard
			}
		}
		if encloser.EqualFold(z.Apex) {
			// The apex is required to have a node (enforced in NewZone);
			// reaching here would mean that invariant was violated.
			return nil, NoName
		}
		encloser = encloser.Parent()
	}
}

// SOA returns the zone's apex SOA rrset.
func (z *Zone) SOA() domain.RRSet {
	node, _ := z.find(z.Apex)
	soa, _ := node.RRSet(domain.RRTypeSOA)
	return soa
}

// NodeCount returns the number of distinct owner names in the zone.
func (z *Zone) NodeCount() int {
	return len(z.nodes)
}
