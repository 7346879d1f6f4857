package state

import "sync"

// Store holds the live Snapshot and the one it replaced.
//
// Concurrency:
//   - Published snapshots are immutable; readers get the pointer and need no lock afterwards.
//   - Swap is a single pointer assignment under the write lock, so no reader observes a
//     half-updated snapshot.
//   - Update applies a copy-on-write change (clone → mutate clone → swap); concurrent
//     Update calls are serialized.
//
// Writers: the poller (Swap, Update for supplementary data) and action handlers
// (Update, best-effort). The next poll tick is always authoritative.
type Store struct {
	mu   sync.RWMutex
	cur  *Snapshot
	prev *Snapshot
}

// NewStore returns an empty store. Load returns nil until the first Swap.
func NewStore() *Store { return &Store{} }

// Load returns the live snapshot (nil before the first successful poll).
func (s *Store) Load() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Previous returns the snapshot replaced by the last Swap.
func (s *Store) Previous() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prev
}

// Swap publishes next and returns the snapshot it replaced.
func (s *Store) Swap(next *Snapshot) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur
	s.prev, s.cur = old, next
	return old
}

// Update clones the live snapshot, applies fn to the clone and publishes it.
// It reports false (and calls nothing) when no snapshot has been published yet.
// The previous snapshot is left untouched: supplementary updates are not diff generations.
func (s *Store) Update(fn func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return false
	}
	next := s.cur.Clone()
	fn(next)
	s.cur = next
	return true
}
