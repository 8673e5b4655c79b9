package quic

import (
	"crypto/rand"
	"crypto/tls"
)

// WireSessionStore installs store onto cfg's WrapSession/UnwrapSession
// hooks (added in Go 1.23 for stateless session tickets with an
// implementer-chosen backing store), so a session state crypto/tls wants
// to hand a resuming client survives a process restart instead of forcing
// a fresh handshake for every connection racing the reload.
func WireSessionStore(cfg *tls.Config, store *TicketStore) {
	cfg.WrapSession = func(cs tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
		data, err := ss.Bytes()
		if err != nil {
			return nil, err
		}
		label := make([]byte, 16)
		if _, err := rand.Read(label); err != nil {
			return nil, err
		}
		if err := store.Put(label, data); err != nil {
			return nil, err
		}
		return label, nil
	}
	cfg.UnwrapSession = func(identity []byte, cs tls.ConnectionState) (*tls.SessionState, error) {
		data, ok := store.Get(identity)
		if !ok {
			return nil, nil
		}
		return tls.ParseSessionState(data)
	}
}
