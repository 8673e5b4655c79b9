package notify

import (
	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/query"
	"github.com/nsauthd/nsauthd/internal/ns/wire"
)

// requestLayer is the client-side query.Layer (C4): it produces one outbound
// request and consumes one peer reply, the mirror image of
// resolve.Processor's server-side Consume-then-Produce shape.
type requestLayer struct {
	request  domain.Message
	response domain.Message
	produced bool
}

var _ query.Layer = (*requestLayer)(nil)

// Begin accepts the pre-built domain.Message to send as params.
func (l *requestLayer) Begin(params any) query.State {
	req, _ := params.(domain.Message)
	l.request = req
	l.response = domain.Message{}
	l.produced = false
	return query.Produce
}

// Produce encodes the outbound request exactly once; a second call (which
// Requestor's loop never makes, since it stops producing after one write)
// would return nothing.
func (l *requestLayer) Produce(buf []byte) (int, query.State) {
	if l.produced {
		return 0, query.Consume
	}
	l.produced = true
	data, err := wire.EncodeUncompressed(l.request)
	if err != nil {
		return 0, query.Fail
	}
	n := copy(buf, data)
	return n, query.Consume
}

// Consume decodes the peer's reply. A reply whose ID does not match the
// request's is treated as a protocol failure rather than a valid answer.
func (l *requestLayer) Consume(pkt []byte) query.State {
	msg, err := wire.Parse(pkt)
	if err != nil {
		return query.Fail
	}
	if msg.Header.ID != l.request.Header.ID {
		return query.Fail
	}
	l.response = msg
	return query.Done
}

func (l *requestLayer) Finish() {
	l.request = domain.Message{}
	l.response = domain.Message{}
	l.produced = false
}
