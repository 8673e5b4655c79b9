// Session ticket persistence for 0-RTT resumption, grounded on the
// blocklist bbolt store's open-bucket-then-Get/Put shape.
package quic

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketTickets = []byte("tickets")

// TicketStore persists session ticket state keyed by the ticket label a
// resuming client presents, so a connection that dials in after a server
// restart can still be offered 0-RTT instead of starting cold.
type TicketStore struct {
	db *bbolt.DB
}

// OpenTicketStore opens (creating if absent) the bbolt database at path.
func OpenTicketStore(path string) (*TicketStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("quic: opening ticket store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTickets)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("quic: initializing ticket store: %w", err)
	}
	return &TicketStore{db: db}, nil
}

// Put stores the opaque session state bytes under label.
func (s *TicketStore) Put(label, state []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTickets).Put(label, state)
	})
}

// Get retrieves the session state previously stored under label, if any.
// The returned slice is only valid until the enclosing transaction ends,
// so it is copied before return.
func (s *TicketStore) Get(label []byte) ([]byte, bool) {
	var out []byte
	_ = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketTickets).Get(label)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

// Delete removes a stored session state. Nothing in this package calls it;
// redeeming a ticket leaves its stored state in place.
func (s *TicketStore) Delete(label []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTickets).Delete(label)
	})
}

// Close releases the underlying database file.
func (s *TicketStore) Close() error {
	return s.db.Close()
}
