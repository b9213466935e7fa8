// Package trie implements a byte-keyed prefix tree with a single cursor.
//
// It is the code table of the LZW encoder: the cursor tracks the longest
// match seen so far and advances one byte at a time.
package trie

// edge identifies the child of parent reached through key.
type edge struct {
	parent int32
	key    byte
}

// Trie is a prefix tree whose nodes carry values of type V. The root stands
// for the empty sequence and carries the zero value.
//
// Nodes live in a flat slice and edges in one map, so a transition costs a
// single map lookup regardless of fan-out.
type Trie[V any] struct {
	values  []V
	edges   map[edge]int32
	current int32
}

// New returns an empty Trie positioned at its root.
func New[V any]() *Trie[V] {
	return &Trie[V]{
		values: make([]V, 1),
		edges:  make(map[edge]int32),
	}
}

// CurrentValue returns the value stored at the cursor.
func (t *Trie[V]) CurrentValue() V {
	return t.values[t.current]
}

// AtRoot reports whether the cursor is at the root.
func (t *Trie[V]) AtRoot() bool {
	return t.current == 0
}

// Len returns the number of nodes below the root.
func (t *Trie[V]) Len() int {
	return len(t.values) - 1
}

// Reset moves the cursor back to the root.
func (t *Trie[V]) Reset() {
	t.current = 0
}

// HasChild reports whether the node at the cursor has a child for key.
func (t *Trie[V]) HasChild(key byte) bool {
	_, ok := t.edges[edge{t.current, key}]
	return ok
}

// AddChild adds a child for key holding value below the cursor. The cursor
// does not move. It returns false if the child already existed.
func (t *Trie[V]) AddChild(key byte, value V) bool {
	e := edge{t.current, key}
	if _, ok := t.edges[e]; ok {
		return false
	}

	t.edges[e] = int32(len(t.values))
	t.values = append(t.values, value)
	return true
}

// MoveForward moves the cursor to the child for key. It returns false and
// stays put if there is no such child.
func (t *Trie[V]) MoveForward(key byte) bool {
	next, ok := t.edges[edge{t.current, key}]
	if !ok {
		return false
	}
	t.current = next
	return true
}
