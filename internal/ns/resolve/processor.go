package resolve

import (
	"github.com/nsauthd/nsauthd/internal/ns/common/log"
	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/query"
	"github.com/nsauthd/nsauthd/internal/ns/snapshot"
	"github.com/nsauthd/nsauthd/internal/ns/wire"
	"github.com/nsauthd/nsauthd/internal/ns/zone"
)

// maxCNAMEChain bounds how many CNAME hops the processor will follow within
// one zone before giving up and leaving the chase where it stands.
const maxCNAMEChain = 16

// Processor is the server-side query.Layer: it turns a parsed question into
// an authoritative response against a snapshot.Store. One Processor is
// per-worker scratch, not shared concurrently -- the query layer's states
// are layer-local and never shared across goroutines.
type Processor struct {
	store *snapshot.Store
	tsig  domain.TSIGVerifier

	// exchange-scoped fields, reset in Finish.
	params   Params
	request  domain.Message
	response domain.Message
	lease    snapshot.Lease
	drop     bool
}

// NewProcessor builds a query processor over store. tsig may be
// domain.NoopTSIGVerifier{} when no verifier is configured.
func NewProcessor(store *snapshot.Store, tsig domain.TSIGVerifier) *Processor {
	if tsig == nil {
		tsig = domain.NoopTSIGVerifier{}
	}
	return &Processor{store: store, tsig: tsig}
}

var _ query.Layer = (*Processor)(nil)

// Begin starts a new exchange. params must be a Params (or nil, which
// behaves as Params{}: TransportUDP with no BufferCap, so only the
// EDNS/classic payload size ceiling applies).
func (p *Processor) Begin(params any) query.State {
	p.request = domain.Message{}
	p.response = domain.Message{}
	p.lease = snapshot.Lease{}
	p.drop = false
	if pp, ok := params.(Params); ok {
		p.params = pp
	} else if pp, ok := params.(*Params); ok && pp != nil {
		p.params = *pp
	} else {
		p.params = Params{}
	}
	return query.Consume
}

// Consume decodes pkt and builds the response in full. The snapshot lease
// is acquired here and released before Consume returns, once every rrset
// referenced by the response has been copied into p.response -- the
// response no longer needs the lease to remain valid for the zone data it
// carries once every rrset is copied out of it.
func (p *Processor) Consume(pkt []byte) query.State {
	msg, err := wire.Parse(pkt)
	if err != nil {
		return p.consumeParseError(err)
	}
	p.request = msg

	if p.request.TSIG != nil {
		if verr := p.tsig.Verify(&p.request, nil); verr != nil {
			// Enforcement is the caller's policy; the processor only surfaces
			// the result.
			log.Warn(map[string]any{"error": verr.Error(), "qname": string(p.request.Question.Name)}, "tsig verification failed")
		}
	}

	p.response = domain.Message{
		Header: domain.Header{
			ID:               p.request.Header.ID,
			Opcode:           p.request.Header.Opcode,
			Response:         true,
			RecursionDesired: p.request.Header.RecursionDesired,
		},
		Question: p.request.Question,
	}
	if p.request.EDNS != nil {
		p.response.EDNS = &domain.EDNSOptions{
			UDPSize: p.request.EDNS.UDPSize,
			Version: 0,
			DO:      p.request.EDNS.DO,
		}
	}

	q := p.request.Question
	if q.Type.IsTransfer() && !p.params.AllowTransfer {
		p.response.Header.RCode = domain.RCodeNotImp
		return query.Produce
	}

	p.lease = p.store.Acquire()
	snap := p.lease.Snapshot()
	if snap == nil {
		p.response.Header.RCode = domain.RCodeServFail
		p.lease.Release()
		p.lease = snapshot.Lease{}
		return query.Produce
	}
	z, ok := snap.Lookup(string(q.Name.Canonical()))
	if !ok {
		p.response.Header.RCode = domain.RCodeRefused
		p.lease.Release()
		p.lease = snapshot.Lease{}
		return query.Produce
	}

	p.answer(z, q.Name, q.Type)

	p.lease.Release()
	p.lease = snapshot.Lease{}
	return query.Produce
}

// consumeParseError maps a wire.Parse failure onto the FORMERR-with-ID path
// when the header was recoverable, or a silent drop otherwise.
func (p *Processor) consumeParseError(err error) query.State {
	perr, ok := err.(*wire.ParseError)
	if !ok || !perr.HeaderParsed {
		p.drop = true
		return query.Reset
	}
	p.response = domain.Message{
		Header: domain.Header{
			ID:       perr.ID,
			Response: true,
			RCode:    domain.RCodeFormErr,
		},
	}
	return query.Produce
}

// answer resolves owner/qtype against z, chasing CNAMEs within the zone up
// to maxCNAMEChain hops, and populates p.response in place.
func (p *Processor) answer(z *zone.Zone, owner domain.Name, qtype domain.RRType) {
	for hop := 0; ; hop++ {
		node, kind := z.Lookup(owner)

		switch kind {
		case zone.OutOfZone:
			// A CNAME target left this zone's authority; nothing more to
			// add, the chase simply stops where it stands.
			return

		case zone.NoName:
			p.response.Header.Authoritative = true
			p.response.Header.RCode = domain.RCodeNXDomain
			p.response.Authority = []domain.RRSet{withNegativeTTL(z.SOA())}
			return

		case zone.BelowCut:
			nsRS, _ := node.RRSet(domain.RRTypeNS)
			p.response.Authority = append(p.response.Authority, nsRS)
			p.response.Additional = append(p.response.Additional, glueRecords(z, nsRS)...)
			p.response.Header.Authoritative = false
			return

		case zone.Exact, zone.EncloserWildcard:
			rewrite := func(rs domain.RRSet) domain.RRSet {
				if kind == zone.EncloserWildcard {
					return rs.WithOwner(owner)
				}
				return rs
			}

			if qtype != domain.RRTypeCNAME && qtype != domain.RRTypeANY {
				if cname, ok := node.RRSet(domain.RRTypeCNAME); ok {
					p.response.Header.Authoritative = true
					p.response.Answer = append(p.response.Answer, rewrite(cname))
					if hop+1 >= maxCNAMEChain {
						return
					}
					target, _, err := wire.DecodeName(cname.Rdata[0], 0)
					if err != nil {
						p.response.Header.RCode = domain.RCodeServFail
						return
					}
					owner = target
					continue
				}
			}

			if rs, ok := node.RRSet(qtype); ok {
				p.response.Header.Authoritative = true
				p.response.Answer = append(p.response.Answer, rewrite(rs))
				return
			}

			p.response.Header.Authoritative = true
			p.response.Authority = []domain.RRSet{withNegativeTTL(z.SOA())}
			return
		}
	}
}

// withNegativeTTL clamps the SOA TTL to min(rrset TTL, SOA MINIMUM field)
// for the SOA rrset carried in an authority-only response.
func withNegativeTTL(soa domain.RRSet) domain.RRSet {
	if soa.Len() != 1 {
		return soa
	}
	out := soa
	out.TTL = wire.SOATTL(soa.TTL, soa.Rdata[0])
	return out
}

// glueRecords finds the in-bailiwick A/AAAA records for nsRS's targets
// within z, for the additional section of a delegation response.
func glueRecords(z *zone.Zone, nsRS domain.RRSet) []domain.RRSet {
	var out []domain.RRSet
	for _, rdata := range nsRS.Rdata {
		target, _, err := wire.DecodeName(rdata, 0)
		if err != nil || !target.IsSubdomainOf(z.Apex) {
			continue
		}
		tnode, ok := z.GlueNode(target)
		if !ok {
			continue
		}
		if a, ok := tnode.RRSet(domain.RRTypeA); ok {
			out = append(out, a)
		}
		if aaaa, ok := tnode.RRSet(domain.RRTypeAAAA); ok {
			out = append(out, aaaa)
		}
	}
	return out
}

// Produce encodes the response built in Consume directly into buf,
// re-encoding with only the header, the question and, when the query
// carried EDNS, the OPT record (TC set) when the transport is UDP and the full response doesn't fit the negotiated
// payload size. buf is assumed sized to query.MaxMessageSize (Drive's
// contract), so every wire.EncodeInto call below grows in place without
// ever outgrowing buf's capacity and reallocating.
func (p *Processor) Produce(buf []byte) (int, query.State) {
	if p.drop {
		return 0, query.Done
	}

	data, err := wire.EncodeInto(buf, p.response)
	if err != nil {
		fallback := domain.Message{
			Header: domain.Header{
				ID:       p.response.Header.ID,
				Response: true,
				RCode:    domain.RCodeServFail,
			},
			Question: p.response.Question,
		}
		data, err = wire.EncodeInto(buf, fallback)
		if err != nil {
			return 0, query.Fail
		}
	}

	if p.params.Transport == TransportUDP {
		limit := int(p.response.MaxPayloadSize())
		if p.params.BufferCap > 0 && p.params.BufferCap < limit {
			limit = p.params.BufferCap
		}
		if len(data) > limit {
			truncated := domain.Message{
				Header:   p.response.Header,
				Question: p.response.Question,
				EDNS:     p.response.EDNS,
			}
			truncated.Header.Truncated = true
			if td, terr := wire.EncodeInto(buf, truncated); terr == nil {
				data = td
			}
		}
	}

	return len(data), query.Done
}

// Finish resets exchange-scoped state. The snapshot lease is always
// released by the end of Consume, so there's nothing outstanding to clean
// up here beyond clearing scratch fields for the next Begin.
func (p *Processor) Finish() {
	p.request = domain.Message{}
	p.response = domain.Message{}
	p.drop = false
}
