package zone

import "github.com/nsauthd/nsauthd/internal/ns/domain"

// Node is one owner name's worth of typed rrsets within a zone. Nodes are
// immutable once a Zone is built; a reload builds an entirely new Zone
// rather than mutating an existing one.
type Node struct {
	Owner  domain.Name
	RRSets map[domain.RRType]domain.RRSet
}

// HasNS reports whether this node carries an NS rrset, the marker of a zone
// cut (delegation) when the node is not the zone apex.
func (n *Node) HasNS() bool {
	_, ok := n.RRSets[domain.RRTypeNS]
	return ok
}

// RRSet returns the rrset of type t at this node, if any.
func (n *Node) RRSet(t domain.RRType) (domain.RRSet, bool) {
	rs, ok := n.RRSets[t]
	return rs, ok
}
