package domain

import "fmt"

// RRSet is a multiset of resource records sharing one owner name, type,
// class, and TTL. Record holds pre-encoded RDATA (wire form, uncompressed);
// the wire codec applies name compression at encode time.
type RRSet struct {
	Owner Name
	Type  RRType
	Class RRClass
	TTL   uint32
	Rdata [][]byte
}

// NewRRSet constructs an RRSet and validates it.
func NewRRSet(owner Name, t RRType, class RRClass, ttl uint32, rdata ...[]byte) (RRSet, error) {
	rs := RRSet{Owner: owner, Type: t, Class: class, TTL: ttl, Rdata: rdata}
	if err := rs.Validate(); err != nil {
		return RRSet{}, err
	}
	return rs, nil
}

// Validate checks structural validity of the set.
func (rs RRSet) Validate() error {
	if rs.Owner == "" {
		return fmt.Errorf("domain: rrset owner must not be empty")
	}
	if err := rs.Owner.ValidateLabels(); err != nil {
		return err
	}
	if len(rs.Rdata) == 0 {
		return fmt.Errorf("domain: rrset %s/%s has no records", rs.Owner, rs.Type)
	}
	return nil
}

// Len returns the number of individual records in the set.
func (rs RRSet) Len() int {
	return len(rs.Rdata)
}

// CacheKey returns a lookup key unique to (owner, type, class), canonically
// cased so lookups are case-insensitive.
func (rs RRSet) CacheKey() string {
	return RRSetKey(rs.Owner, rs.Type, rs.Class)
}

// RRSetKey builds the (owner, type, class) lookup key used by zone nodes.
func RRSetKey(owner Name, t RRType, class RRClass) string {
	return fmt.Sprintf("%s|%d|%d", owner.Canonical(), t, class)
}

// WithOwner returns a copy of rs with a different owner name, used when a
// wildcard match synthesizes an answer owned by the queried name rather than
// the wildcard name the rrset is stored under.
func (rs RRSet) WithOwner(owner Name) RRSet {
	out := rs
	out.Owner = owner
	return out
}
