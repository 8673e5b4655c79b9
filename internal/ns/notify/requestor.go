// Package notify implements the outbound requestor (C8): an engine that
// drives the query layer (C4) against a remote peer to deliver a NOTIFY
// (RFC 1996) when a zone reload publishes a new SOA serial.
package notify

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nsauthd/nsauthd/internal/ns/common/log"
	"github.com/nsauthd/nsauthd/internal/ns/domain"
	"github.com/nsauthd/nsauthd/internal/ns/query"
)

// DialFunc establishes the connection a Requestor sends a request over.
// Injectable so tests can substitute an in-memory transport.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Requestor.
type Options struct {
	// Dial creates the outbound connection. Defaults to net.Dialer.DialContext.
	Dial DialFunc
	// Source, if set, binds outbound connections to this local address.
	// Ignored when Dial is overridden.
	Source string
	// Timeout bounds each individual address attempt.
	Timeout time.Duration
	// MaxRetries bounds how many addresses Notify tries in total (the
	// first MaxRetries of addrs); zero or negative tries every address.
	MaxRetries int
}

// Requestor drives one outbound request/response exchange per configured
// peer address, stopping at the first address that completes the exchange.
type Requestor struct {
	dial       DialFunc
	timeout    time.Duration
	maxRetries int
}

// NewRequestor builds a Requestor from opts, applying defaults for any
// zero-valued field.
func NewRequestor(opts Options) *Requestor {
	dial := opts.Dial
	if dial == nil {
		dialer := &net.Dialer{}
		if opts.Source != "" {
			if laddr, err := net.ResolveUDPAddr("udp", opts.Source); err == nil {
				dialer.LocalAddr = laddr
			}
		}
		dial = dialer.DialContext
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	// maxRetries <= 0 means "try every configured address once"; Notify
	// only truncates the address list when a positive bound is set.
	return &Requestor{dial: dial, timeout: timeout, maxRetries: opts.MaxRetries}
}

// BuildNotify constructs the outbound NOTIFY request for zone: opcode
// NOTIFY, AA set, question (apex, SOA, IN), and optionally the current SOA
// rrset carried as an unsecured hint in the answer section.
func BuildNotify(id uint16, apex domain.Name, soa *domain.RRSet) domain.Message {
	msg := domain.Message{
		Header: domain.Header{
			ID:            id,
			Opcode:        domain.OpcodeNotify,
			Authoritative: true,
		},
		Question: domain.Question{
			Name:  apex,
			Type:  domain.RRTypeSOA,
			Class: domain.RRClassIN,
		},
	}
	if soa != nil {
		msg.Answer = []domain.RRSet{*soa}
	}
	return msg
}

// Notify drives req against each address in addrs in order, stopping at the
// first address that completes the exchange (query.Done), bounded by
// r.maxRetries addresses attempted. It returns that peer's response, or the
// last error if every attempted address failed.
func (r *Requestor) Notify(ctx context.Context, addrs []string, req domain.Message) (domain.Message, error) {
	if len(addrs) == 0 {
		return domain.Message{}, fmt.Errorf("notify: no addresses configured")
	}
	tried := addrs
	if r.maxRetries > 0 && r.maxRetries < len(tried) {
		tried = tried[:r.maxRetries]
	}

	var lastErr error
	for _, addr := range tried {
		resp, err := r.attempt(ctx, addr, req)
		if err == nil {
			return resp, nil
		}
		log.Warn(map[string]any{"addr": addr, "error": err.Error()}, "notify attempt failed")
		lastErr = err
	}
	return domain.Message{}, fmt.Errorf("notify: all %d addresses failed: %w", len(tried), lastErr)
}

// attempt drives one complete query.Layer exchange against addr: produce
// the request, write it, read one reply, consume it.
func (r *Requestor) attempt(ctx context.Context, addr string, req domain.Message) (domain.Message, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := r.dial(attemptCtx, "udp", addr)
	if err != nil {
		return domain.Message{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := attemptCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	layer := &requestLayer{}
	defer layer.Finish()

	state := layer.Begin(req)
	var buf [query.MaxMessageSize]byte
	for state == query.Produce {
		n, next := layer.Produce(buf[:])
		state = next
		if n == 0 {
			continue
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return domain.Message{}, fmt.Errorf("write %s: %w", addr, err)
		}
	}
	if state == query.Fail {
		return domain.Message{}, fmt.Errorf("notify: encoding request for %s failed", addr)
	}

	readBuf := make([]byte, query.MaxMessageSize)
	n, err := conn.Read(readBuf)
	if err != nil {
		return domain.Message{}, fmt.Errorf("read %s: %w", addr, err)
	}

	state = layer.Consume(readBuf[:n])
	if state != query.Done {
		return domain.Message{}, fmt.Errorf("notify: peer %s: exchange did not complete", addr)
	}
	return layer.response, nil
}
