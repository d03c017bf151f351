package node

import "iter"

// Collection is an insertion-ordered map. Updating an existing key keeps its
// original position. There is no eviction: the collection mirrors whatever
// its owner puts in it until Clear.
//
// Collection is not safe for concurrent use; the owner serializes access.
type Collection[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

// NewCollection returns an empty collection.
func NewCollection[K comparable, V any]() *Collection[K, V] {
	return &Collection[K, V]{items: make(map[K]V)}
}

// Get returns the value for key and whether it was present.
func (c *Collection[K, V]) Get(key K) (V, bool) {
	v, ok := c.items[key]
	return v, ok
}

// Has reports whether key is present.
func (c *Collection[K, V]) Has(key K) bool {
	_, ok := c.items[key]
	return ok
}

// Set inserts or replaces the value for key.
func (c *Collection[K, V]) Set(key K, value V) {
	if _, ok := c.items[key]; !ok {
		c.keys = append(c.keys, key)
	}

	c.items[key] = value
}

// Len returns the number of entries.
func (c *Collection[K, V]) Len() int {
	return len(c.keys)
}

// All iterates entries in insertion order. Set on an existing key during
// iteration is allowed; inserting new keys is not reflected in the
// running iteration.
func (c *Collection[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		keys := c.keys
		for _, k := range keys {
			if !yield(k, c.items[k]) {
				return
			}
		}
	}
}

// Keys returns the keys in insertion order.
func (c *Collection[K, V]) Keys() []K {
	out := make([]K, len(c.keys))
	copy(out, c.keys)

	return out
}

// Values returns the values in insertion order.
func (c *Collection[K, V]) Values() []V {
	out := make([]V, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.items[k])
	}

	return out
}

// Filter returns the values matching pred, in insertion order.
func (c *Collection[K, V]) Filter(pred func(K, V) bool) []V {
	var out []V

	for k, v := range c.All() {
		if pred(k, v) {
			out = append(out, v)
		}
	}

	return out
}

// Find returns the first value matching pred.
func (c *Collection[K, V]) Find(pred func(K, V) bool) (V, bool) {
	for k, v := range c.All() {
		if pred(k, v) {
			return v, true
		}
	}

	var zero V

	return zero, false
}

// Clear removes every entry.
func (c *Collection[K, V]) Clear() {
	c.keys = nil
	c.items = make(map[K]V)
}

// Clone returns a shallow copy. clone, if non-nil, is applied to each value
// so reference-typed values can be deep-copied.
func (c *Collection[K, V]) Clone(clone func(V) V) *Collection[K, V] {
	out := &Collection[K, V]{
		keys:  make([]K, len(c.keys)),
		items: make(map[K]V, len(c.items)),
	}

	copy(out.keys, c.keys)

	for k, v := range c.items {
		if clone != nil {
			v = clone(v)
		}

		out.items[k] = v
	}

	return out
}
