package ledger

// Entry is one key/value pair of a Bounded container, in insertion order.
type Entry[K comparable, V any] struct {
	Key   K `json:"key"`
	Value V `json:"value"`
}

// Bounded is an insertion-ordered map with a soft capacity.
//
// Put never evicts; callers run Evict during a sweep. Evict removes the
// oldest entries first and skips any entry the pinned predicate reports as
// still in use, so the container may stay above capacity while pinned
// entries remain.
type Bounded[K comparable, V any] struct {
	capacity int
	order    []K
	items    map[K]V
}

// NewBounded creates an empty container. A capacity <= 0 means unbounded.
func NewBounded[K comparable, V any](capacity int) *Bounded[K, V] {
	return &Bounded[K, V]{
		capacity: capacity,
		items:    make(map[K]V),
	}
}

// Capacity returns the configured capacity.
func (b *Bounded[K, V]) Capacity() int {
	return b.capacity
}

// Get returns the value for k.
func (b *Bounded[K, V]) Get(k K) (V, bool) {
	v, ok := b.items[k]
	return v, ok
}

// Has reports whether k is present.
func (b *Bounded[K, V]) Has(k K) bool {
	_, ok := b.items[k]
	return ok
}

// Put inserts or updates k. Updating keeps the original position.
func (b *Bounded[K, V]) Put(k K, v V) {
	if _, ok := b.items[k]; !ok {
		b.order = append(b.order, k)
	}
	b.items[k] = v
}

// Touch moves k to the newest position. It reports whether k was present.
func (b *Bounded[K, V]) Touch(k K) bool {
	if _, ok := b.items[k]; !ok {
		return false
	}
	for i, key := range b.order {
		if key == k {
			b.order = append(append(b.order[:i:i], b.order[i+1:]...), k)
			break
		}
	}
	return true
}

// Delete removes k if present.
func (b *Bounded[K, V]) Delete(k K) {
	if _, ok := b.items[k]; !ok {
		return
	}
	delete(b.items, k)
	for i, key := range b.order {
		if key == k {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (b *Bounded[K, V]) Len() int {
	return len(b.items)
}

// Over reports whether the container exceeds its capacity.
func (b *Bounded[K, V]) Over() bool {
	return b.capacity > 0 && len(b.items) > b.capacity
}

// Evict removes the oldest unpinned entries until the container is within
// capacity, returning the evicted keys. A nil pinned pins nothing.
func (b *Bounded[K, V]) Evict(pinned func(K, V) bool) []K {
	if !b.Over() {
		return nil
	}

	excess := len(b.items) - b.capacity
	var evicted []K
	kept := b.order[:0]
	for _, k := range b.order {
		if excess > 0 && (pinned == nil || !pinned(k, b.items[k])) {
			delete(b.items, k)
			evicted = append(evicted, k)
			excess--
			continue
		}
		kept = append(kept, k)
	}
	b.order = kept
	return evicted
}

// EvictWhere removes every entry matching drop, regardless of capacity.
func (b *Bounded[K, V]) EvictWhere(drop func(K, V) bool) []K {
	var evicted []K
	kept := b.order[:0]
	for _, k := range b.order {
		if drop(k, b.items[k]) {
			delete(b.items, k)
			evicted = append(evicted, k)
			continue
		}
		kept = append(kept, k)
	}
	b.order = kept
	return evicted
}

// Range calls fn for each entry, oldest first, until fn returns false.
func (b *Bounded[K, V]) Range(fn func(K, V) bool) {
	for _, k := range b.order {
		if !fn(k, b.items[k]) {
			return
		}
	}
}

// Entries returns all entries, oldest first.
func (b *Bounded[K, V]) Entries() []Entry[K, V] {
	out := make([]Entry[K, V], 0, len(b.order))
	for _, k := range b.order {
		out = append(out, Entry[K, V]{Key: k, Value: b.items[k]})
	}
	return out
}

// Load replaces the contents with entries, preserving their order.
func (b *Bounded[K, V]) Load(entries []Entry[K, V]) {
	b.Reset()
	for _, e := range entries {
		b.Put(e.Key, e.Value)
	}
}

// Reset removes every entry.
func (b *Bounded[K, V]) Reset() {
	b.order = nil
	b.items = make(map[K]V)
}
