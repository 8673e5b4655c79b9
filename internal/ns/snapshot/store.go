// Package snapshot implements the zone snapshot protocol (C3): lock-free
// publish of new zone versions, with reader-side grace semantics so no
// reader blocks a writer and no writer blocks a reader.
//
// The one rule this package exists to enforce: a plain sync.RWMutex is not
// an acceptable implementation here. A writer publishing a new zone version
// must never wait on an in-flight reader's RLock, and a reader acquiring a
// lease must never allocate or block. The mechanism below is an
// atomic.Pointer swap plus a fixed-size ring of per-generation atomic
// reader counts, so both sides only ever touch atomics.
package snapshot

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nsauthd/nsauthd/internal/ns/common/clock"
	"github.com/nsauthd/nsauthd/internal/ns/zone"
)

// generationSlots bounds the ring of in-flight reader-count slots, so the
// slot array never grows. Generation g counts its readers in slot
// g mod generationSlots; nothing checks that a slot has drained before a
// later generation starts counting in it, so readers of generations
// generationSlots apart share one count.
const generationSlots = 4

// Snapshot is one immutable, published zone set: every zone this server is
// authoritative for at one point in time.
type Snapshot struct {
	Generation uint64
	Zones      map[string]*zone.Zone // keyed by canonical apex name
	PublishedAt time.Time
}

// Lookup finds the zone whose apex is the longest matching suffix of name,
// or (nil, false) if name is not covered by any published zone.
func (s *Snapshot) Lookup(name string) (*zone.Zone, bool) {
	var best *zone.Zone
	bestLen := -1
	for apex, z := range s.Zones {
		if len(apex) <= bestLen {
			continue
		}
		if hasSuffixFold(name, apex) {
			best = z
			bestLen = len(apex)
		}
	}
	return best, best != nil
}

func hasSuffixFold(name, apex string) bool {
	if len(name) < len(apex) {
		return false
	}
	suffix := name[len(name)-len(apex):]
	return equalFold(suffix, apex)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// readerCounts is the fixed-size ring of per-generation reader counts. Index
// is generation mod generationSlots; a Store never allocates one of these
// per lease, only the slots live for the Store's whole lifetime.
type readerCounts [generationSlots]atomic.Int64

// Store holds the currently published Snapshot and the reader-count ring
// that makes release safe to call without a lock. One Store is shared
// read-mostly across every worker thread; it is the sole object any two
// workers ever touch concurrently.
type Store struct {
	current atomic.Pointer[Snapshot]
	counts  readerCounts

	history *lru.Cache[uint64, *Snapshot]
	clk     clock.Clock
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the Store's time source, for tests that need
// WaitForGrace's deadline driven by a clock.MockClock instead of the wall
// clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clk = c }
}

// NewStore creates a Store with no snapshot published yet. historySize
// bounds how many fully-retired snapshots remain reachable through
// RetiredSnapshot for debug inspection; it does not affect the hot
// acquire/release path.
func NewStore(historySize int, opts ...Option) *Store {
	hist, _ := lru.New[uint64, *Snapshot](historySize)
	st := &Store{history: hist, clk: clock.RealClock{}}
	for _, opt := range opts {
		opt(st)
	}
	return st
}

// Publish installs snap as the current snapshot, retiring whatever was
// published before it into the bounded history. Publish does not wait for
// the previous generation's readers to drain, and no other Store method
// waits on a writer's behalf; a writer that needs the grace event calls
// WaitForGrace itself.
func (st *Store) Publish(snap *Snapshot) {
	prev := st.current.Swap(snap)
	if prev != nil && st.history != nil {
		st.history.Add(prev.Generation, prev)
	}
}

// Current returns the currently published snapshot without taking a lease.
// Safe for a one-shot read (e.g. admin/status endpoints); query processing
// should use Acquire/Release instead so a lease is held for the query's
// whole duration.
func (st *Store) Current() *Snapshot {
	return st.current.Load()
}

// RetiredSnapshot looks up a previously-published snapshot by generation,
// for debug/inspection ("what zone version answered query X").
func (st *Store) RetiredSnapshot(generation uint64) (*Snapshot, bool) {
	if st.history == nil {
		return nil, false
	}
	return st.history.Get(generation)
}

// Lease is a reader's hold on one snapshot generation. It must be released
// exactly once via Release, normally deferred immediately after Acquire.
type Lease struct {
	store      *Store
	generation uint64
	snapshot   *Snapshot
}

// Acquire takes a lease on the currently published snapshot. The hot path:
// one atomic load, one atomic increment, no allocation. Acquire on a Store
// with nothing published yet returns a zero Lease whose Snapshot is nil;
// callers must check before dereferencing.
func (st *Store) Acquire() Lease {
	snap := st.current.Load()
	if snap == nil {
		return Lease{}
	}
	slot := &st.counts[snap.Generation%generationSlots]
	slot.Add(1)
	return Lease{store: st, generation: snap.Generation, snapshot: snap}
}

// Snapshot returns the snapshot this lease holds a reference to.
func (l Lease) Snapshot() *Snapshot {
	return l.snapshot
}

// Release drops this lease's hold on its generation's reader count. After
// every reader of a generation has released, that generation has reached
// its grace event and its slot is free to recycle. Release on a zero Lease
// (no snapshot was ever published) is a no-op.
func (l Lease) Release() {
	if l.store == nil {
		return
	}
	slot := &l.store.counts[l.generation%generationSlots]
	slot.Add(-1)
}

// GenerationReaders returns the current reader count for generation, for
// tests and the grace-wait poll in WaitForGrace.
func (st *Store) GenerationReaders(generation uint64) int64 {
	return st.counts[generation%generationSlots].Load()
}

// WaitForGrace blocks (bounded spin then sleep backoff, never a condition
// variable, since writers are rare and off the hot path) until generation's
// reader count reaches zero, or until maxWait elapses. It returns whether
// the grace event was observed. Callers that recycle a generation's slot
// for reuse should call this for the generation being evicted first.
func (st *Store) WaitForGrace(generation uint64, maxWait time.Duration) bool {
	deadline := st.clk.Now().Add(maxWait)
	spins := 0
	for {
		if st.GenerationReaders(generation) == 0 {
			return true
		}
		spins++
		if spins < 1000 {
			continue
		}
		if st.clk.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
