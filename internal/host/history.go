package host

import (
	"sync"
	"time"

	"github.com/edirooss/pearl-bridge/internal/status"
)

// StatusEntry is one status indicator change.
type StatusEntry struct {
	At      time.Time     `json:"at"`
	Status  status.Status `json:"status"`
	Message string        `json:"message,omitempty"`
}

// history is a thread-safe circular buffer of status changes with O(1) append.
type history struct {
	entries [200]StatusEntry // fixed-size ring
	head    int              // next write position
	size    int              // current number of entries
	mu      sync.RWMutex
}

// Append adds an entry, overwriting the oldest when full.
func (b *history) Append(e StatusEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	const capN = len(b.entries)
	b.entries[b.head] = e
	b.head = (b.head + 1) % capN
	if b.size < capN {
		b.size++
	}
}

// Read returns up to n entries, newest first. n <= 0 or above capacity means everything.
// The returned slice is owned by the caller.
func (b *history) Read(n int) []StatusEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	const capN = len(b.entries)
	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > b.size {
		n = b.size
	}

	out := make([]StatusEntry, n)
	newest := (b.head - 1 + capN) % capN
	for i := range n {
		out[i] = b.entries[(newest-i+capN)%capN]
	}
	return out
}
