package state

import "encoding/json"

// Ordered is an id-indexed collection that remembers insertion order.
//
// Data structures:
//   - ids slice (insertion order, unique)
//   - byID map (id → value)
//
// Iteration follows the order in which the device listed the entities; nothing is sorted.
// Ordered is not safe for concurrent mutation; snapshots are built by one goroutine and
// treated as read-only once published.
//
// The zero value is ready to use.
type Ordered[T any] struct {
	ids  []ID
	byID map[ID]T
}

// Set inserts or overwrites the value at id. Overwrites keep the original position.
//
// Time: O(1) amortized.
func (o *Ordered[T]) Set(id ID, v T) {
	if o.byID == nil {
		o.byID = make(map[ID]T)
	}
	if _, exists := o.byID[id]; !exists {
		o.ids = append(o.ids, id)
	}
	o.byID[id] = v
}

// Get returns (value, ok).
func (o *Ordered[T]) Get(id ID) (T, bool) {
	v, ok := o.byID[id]
	return v, ok
}

// Has reports membership.
func (o *Ordered[T]) Has(id ID) bool {
	_, ok := o.byID[id]
	return ok
}

// Len returns the number of entries.
func (o *Ordered[T]) Len() int { return len(o.ids) }

// IDs returns a copy of the ids in insertion order.
func (o *Ordered[T]) IDs() []ID {
	out := make([]ID, len(o.ids))
	copy(out, o.ids)
	return out
}

// Values returns the values aligned to IDs().
func (o *Ordered[T]) Values() []T {
	out := make([]T, len(o.ids))
	for i, id := range o.ids {
		out[i] = o.byID[id]
	}
	return out
}

// Each calls fn for every entry in insertion order.
func (o *Ordered[T]) Each(fn func(id ID, v T)) {
	for _, id := range o.ids {
		fn(id, o.byID[id])
	}
}

// Map returns a copy of o with every value passed through fn. Order is preserved.
func (o *Ordered[T]) Map(fn func(T) T) Ordered[T] {
	out := Ordered[T]{ids: make([]ID, len(o.ids)), byID: make(map[ID]T, len(o.ids))}
	copy(out.ids, o.ids)
	for id, v := range o.byID {
		out.byID[id] = fn(v)
	}
	return out
}

// MarshalJSON encodes the collection as an ordered JSON array of values.
func (o Ordered[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Values())
}
