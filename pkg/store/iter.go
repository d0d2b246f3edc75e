package store

// trieIter walks a trie one entry at a time using an explicit stack rather
// than recursion, so callers can pause, inspect, and resume (e.g. to
// interleave iteration with other store operations) without recursion
// depth tied to trie depth.
type trieIter struct {
	s    *Store
	ops  trieOps
	done bool

	// stack holds, for each dispatch node on the current path, the node
	// itself and the next child position to descend into.
	stack []dispatchFrame

	entries []Value // flattened fields of the current search node
	entryAt int
}

type dispatchFrame struct {
	node Value
	next int // next child index (0..popcount-1) to visit
}

func newTrieIter(s *Store, ops trieOps, root Value) *trieIter {
	it := &trieIter{s: s, ops: ops}

	if IsNull(root) {
		it.done = true

		return it
	}

	it.descend(root)

	return it
}

// descend pushes dispatch frames until it reaches a search node, loading
// its entries.
func (it *trieIter) descend(node Value) {
	depth := 0

	for it.s.Tag(node) != it.ops.searchTag {
		it.stack = append(it.stack, dispatchFrame{node: node, next: 0})
		bitmap := it.s.dispatchBitmap(node)

		if popcount(bitmap) == 0 {
			it.popAndAdvance()

			return
		}

		node = it.s.dispatchChild(node, 0)
		it.stack[len(it.stack)-1].next = 1

		depth++
		if depth > maxTrieDepth {
			it.done = true

			return
		}
	}

	n := it.s.Len(node)
	it.entries = make([]Value, n)

	for i := range n {
		it.entries[i] = it.s.Ref(node, i)
	}

	it.entryAt = 0
}

// popAndAdvance backtracks to the nearest frame with a remaining sibling
// and descends into it, or marks iteration done.
func (it *trieIter) popAndAdvance() {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		bitmap := it.s.dispatchBitmap(top.node)
		n := popcount(bitmap)

		if top.next < n {
			child := it.s.dispatchChild(top.node, top.next)
			top.next++
			it.descend(child)

			return
		}

		it.stack = it.stack[:len(it.stack)-1]
	}

	it.done = true
}

// next advances the iterator and returns the next flat entry (ops.width
// Values), or ok=false when exhausted.
func (it *trieIter) next() (entry []Value, ok bool) {
	for {
		if it.done {
			return nil, false
		}

		if it.entryAt < len(it.entries)/it.ops.width {
			start := it.entryAt * it.ops.width
			entry = it.entries[start : start+it.ops.width]
			it.entryAt++

			return entry, true
		}

		it.popAndAdvance()
	}
}

// InternIterator walks every object currently interned in an
// [InternHandle], one at a time.
type InternIterator struct{ it *trieIter }

// Iterate returns an iterator positioned before the first entry.
func (h *InternHandle) Iterate() *InternIterator {
	return &InternIterator{it: newTrieIter(h.store, internOps(), h.root)}
}

// Next advances the iterator, returning the next interned object, or
// ok=false once exhausted.
func (it *InternIterator) Next() (v Value, ok bool) {
	e, ok := it.it.next()
	if !ok {
		return Null, false
	}

	return e[0], true
}

// DictIterator walks the entries of a strong or weak-key [DictHandle], one
// pair at a time.
type DictIterator struct{ it *trieIter }

// Iterate returns an iterator positioned before the first entry. Panics for
// a weak-set dictionary; use [DictHandle.IterateMembers].
func (h *DictHandle) Iterate() *DictIterator {
	if h.kind == DictWeakSet {
		panic("store: Iterate on a weak-set dictionary; use IterateMembers")
	}

	return &DictIterator{it: newTrieIter(h.store, dictOps(h.kind), h.root)}
}

// Next advances the iterator, returning the next (key, value) pair.
func (it *DictIterator) Next() (key, value Value, ok bool) {
	e, ok := it.it.next()
	if !ok {
		return Null, Null, false
	}

	return e[0], e[1], true
}

// MemberIterator walks the (key, member) pairs of a weak-set [DictHandle],
// layering a secondary index over each key's inner set record (spec.md
// §4.6): the underlying trie walk yields one entry per key, and Next flattens
// that key's set into one call per member before advancing the trie walk.
type MemberIterator struct {
	it  *trieIter
	s   *Store
	key Value

	members []Value
	at      int
}

// IterateMembers returns an iterator positioned before the first (key,
// member) pair.
func (h *DictHandle) IterateMembers() *MemberIterator {
	if h.kind != DictWeakSet {
		panic("store: IterateMembers is only valid on a weak-set dictionary")
	}

	return &MemberIterator{it: newTrieIter(h.store, dictOps(h.kind), h.root), s: h.store}
}

// Next advances the iterator, returning the next (key, member) pair.
func (it *MemberIterator) Next() (key, member Value, ok bool) {
	for it.at >= len(it.members) {
		e, ok := it.it.next()
		if !ok {
			return Null, Null, false
		}

		it.key = e[0]
		it.members = it.s.setMembers(e[1])
		it.at = 0
	}

	member = it.members[it.at]
	it.at++

	return it.key, member, true
}
