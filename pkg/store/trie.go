package store

import "math/bits"

// trie.go implements the hash-array-mapped trie shared by the intern table
// (intern.go) and all three dictionary modes (dict.go): 5 bits of hash
// dispatched per level, folded into 30 usable child slots (see localIndex),
// with a terminal "search" node that
// holds one or more entries linearly once a path stops needing to branch.
//
// Unlike [Builder]-constructed records, trie nodes are allocated directly
// into the store (allocDispatchNode / allocSearchNode below) rather than
// through scratch objects: they are store-internal plumbing, never handed
// to a caller as a value in their own right.

// trieOps parameterizes the generic trie algorithms over the three callers:
// the intern table compares entries structurally (content hash/equality);
// strong and weak dictionaries compare by identity (the key's own store
// offset).
type trieOps struct {
	dispatchTag uint8
	searchTag   uint8

	// width is the number of Value fields per entry: 1 for the intern
	// table and weak-value sets (the member is its own key), 2 for
	// dictionaries (key, value).
	width int

	hash  func(s *Store, key Value) uint32
	equal func(s *Store, a, b Value) bool
}

func popcount(bitmap uint32) int { return bits.OnesCount32(bitmap) }

// allocDispatchNode writes a dispatch node: header, a raw (unencoded)
// bitmap word in field slot 0 with the top two bits forced to 1 (see
// hamtSentinelBits in format.go), then one self-relative field word per
// set real-occupancy bit, in bit order. bitmap must only ever carry real
// occupancy bits (hamtBitmapMask); the sentinel bits are added here, not
// by the caller.
func (s *Store) allocDispatchNode(tag uint8, bitmap uint32, children []Value) (Value, error) {
	total := 2*wordSize + uint32(len(children))*wordSize

	off, err := s.reserve(total)
	if err != nil {
		return Null, err
	}

	s.writeWord(off, header{tag: tag, length: uint32(1 + len(children))}.encode())
	s.writeWord(off+wordSize, (bitmap&hamtBitmapMask)|hamtSentinelBits)

	for i, c := range children {
		s.writeWord(off+2*wordSize+uint32(i)*wordSize, encodeFieldWord(c, off))
	}

	return storeValue(off), nil
}

// dispatchBitmap returns the node's real occupancy bitmap, with the
// always-1 sentinel bits stripped so every caller's popcount/position
// arithmetic only ever sees the hamtRealFanout real child slots.
func (s *Store) dispatchBitmap(node Value) uint32 {
	off := s.mustStoreRef(node)

	return s.readWord(off+wordSize) &^ hamtSentinelBits
}

func (s *Store) dispatchChild(node Value, pos int) Value {
	off := s.mustStoreRef(node)

	return decodeFieldWord(s.readWord(off+2*wordSize+uint32(pos)*wordSize), off)
}

func (s *Store) dispatchChildren(node Value) []Value {
	bitmap := s.dispatchBitmap(node)
	n := popcount(bitmap)
	out := make([]Value, n)

	for i := range n {
		out[i] = s.dispatchChild(node, i)
	}

	return out
}

func (s *Store) emptyDispatch(tag uint8) (Value, error) {
	return s.allocDispatchNode(tag, 0, nil)
}

// allocSearchNode writes a search node: a flat record whose fields are the
// concatenation of each entry's width Values, in entry order.
func (s *Store) allocSearchNode(ops trieOps, entries [][]Value) (Value, error) {
	fields := make([]Value, 0, len(entries)*ops.width)
	for _, e := range entries {
		fields = append(fields, e...)
	}

	return s.allocRecord(ops.searchTag, fields)
}

func (s *Store) searchEntries(ops trieOps, node Value) [][]Value {
	n := s.Len(node) / ops.width
	out := make([][]Value, n)

	for i := range n {
		e := make([]Value, ops.width)
		for j := range ops.width {
			e[j] = s.Ref(node, i*ops.width+j)
		}

		out[i] = e
	}

	return out
}

// localIndex extracts the 5-bit hash window for depth and folds it into
// the real (non-sentinel) fanout range, so a genuine child is never routed
// to one of the two reserved slots the sentinel bits occupy.
func localIndex(hash uint32, depth int) uint32 {
	return ((hash >> uint(depth*hamtBitsPerLevel)) & (hamtFanout - 1)) % hamtRealFanout
}

// trieLookup returns the stored entry (length ops.width) matching key, if
// any.
func (s *Store) trieLookup(ops trieOps, root Value, key Value) ([]Value, bool) {
	if IsNull(root) {
		return nil, false
	}

	hash := ops.hash(s, key)
	node := root

	for depth := 0; depth <= maxTrieDepth; depth++ {
		if s.Tag(node) == ops.searchTag {
			for _, e := range s.searchEntries(ops, node) {
				if ops.equal(s, e[0], key) {
					return e, true
				}
			}

			return nil, false
		}

		idx := localIndex(hash, depth)
		bitmap := s.dispatchBitmap(node)
		bit := uint32(1) << idx

		if bitmap&bit == 0 {
			return nil, false
		}

		node = s.dispatchChild(node, popcount(bitmap&(bit-1)))
	}

	return nil, false
}

// trieInsert inserts or, if replace is true and the key already exists,
// replaces the entry matching entry[0]. It returns the new trie root and
// whether the trie actually changed (false when the key already existed
// and replace is false).
func (s *Store) trieInsert(ops trieOps, root Value, entry []Value, replace bool) (Value, bool, error) {
	return s.trieInsertAt(ops, root, ops.hash(s, entry[0]), 0, entry, replace)
}

func (s *Store) trieInsertAt(ops trieOps, node Value, hash uint32, depth int, entry []Value, replace bool) (Value, bool, error) {
	if IsNull(node) {
		v, err := s.allocSearchNode(ops, [][]Value{entry})

		return v, true, err
	}

	if s.Tag(node) == ops.searchTag {
		entries := s.searchEntries(ops, node)

		for i, e := range entries {
			if ops.equal(s, e[0], entry[0]) {
				if !replace {
					return node, false, nil
				}

				entries[i] = entry
				v, err := s.allocSearchNode(ops, entries)

				return v, true, err
			}
		}

		if depth >= maxTrieDepth {
			entries = append(entries, entry)
			v, err := s.allocSearchNode(ops, entries)

			return v, true, err
		}

		// Push every existing entry (plus the new one) one level deeper so
		// they can diverge by their next hash bits.
		dispatch, err := s.emptyDispatch(ops.dispatchTag)
		if err != nil {
			return Null, false, err
		}

		for _, e := range entries {
			dispatch, _, err = s.trieInsertAt(ops, dispatch, ops.hash(s, e[0]), depth, e, true)
			if err != nil {
				return Null, false, err
			}
		}

		dispatch, _, err = s.trieInsertAt(ops, dispatch, hash, depth, entry, true)

		return dispatch, true, err
	}

	idx := localIndex(hash, depth)
	bitmap := s.dispatchBitmap(node)
	bit := uint32(1) << idx
	pos := popcount(bitmap & (bit - 1))
	present := bitmap&bit != 0

	child := Value(Null)
	if present {
		child = s.dispatchChild(node, pos)
	}

	newChild, changed, err := s.trieInsertAt(ops, child, hash, depth+1, entry, replace)
	if err != nil {
		return Null, false, err
	}

	if !changed {
		return node, false, nil
	}

	children := s.dispatchChildren(node)
	if present {
		children[pos] = newChild
	} else {
		children = append(children, Null)
		copy(children[pos+1:], children[pos:])
		children[pos] = newChild
		bitmap |= bit
	}

	v, err := s.allocDispatchNode(ops.dispatchTag, bitmap, children)

	return v, true, err
}

// trieDelete removes the entry matching key, returning the new root and
// whether anything was removed.
func (s *Store) trieDelete(ops trieOps, root Value, key Value) (Value, bool, error) {
	if IsNull(root) {
		return Null, false, nil
	}

	return s.trieDeleteAt(ops, root, ops.hash(s, key), 0, key)
}

func (s *Store) trieDeleteAt(ops trieOps, node Value, hash uint32, depth int, key Value) (Value, bool, error) {
	if s.Tag(node) == ops.searchTag {
		entries := s.searchEntries(ops, node)
		idx := -1

		for i, e := range entries {
			if ops.equal(s, e[0], key) {
				idx = i

				break
			}
		}

		if idx < 0 {
			return node, false, nil
		}

		entries = append(entries[:idx], entries[idx+1:]...)
		if len(entries) == 0 {
			return Null, true, nil
		}

		v, err := s.allocSearchNode(ops, entries)

		return v, true, err
	}

	idx := localIndex(hash, depth)
	bitmap := s.dispatchBitmap(node)
	bit := uint32(1) << idx

	if bitmap&bit == 0 {
		return node, false, nil
	}

	pos := popcount(bitmap & (bit - 1))
	child := s.dispatchChild(node, pos)

	newChild, deleted, err := s.trieDeleteAt(ops, child, hash, depth+1, key)
	if err != nil || !deleted {
		return node, deleted, err
	}

	children := s.dispatchChildren(node)

	if IsNull(newChild) {
		children = append(children[:pos], children[pos+1:]...)
		bitmap &^= bit

		if len(children) == 0 {
			return Null, true, nil
		}

		if len(children) == 1 && s.Tag(children[0]) == ops.searchTag {
			return children[0], true, nil
		}

		v, err := s.allocDispatchNode(ops.dispatchTag, bitmap, children)

		return v, true, err
	}

	children[pos] = newChild

	v, err := s.allocDispatchNode(ops.dispatchTag, bitmap, children)

	return v, true, err
}

// trieEach walks every entry in the trie rooted at root, in no particular
// order, calling fn until it returns false or the trie is exhausted.
func (s *Store) trieEach(ops trieOps, root Value, fn func(entry []Value) bool) {
	if IsNull(root) {
		return
	}

	s.trieEachNode(ops, root, fn)
}

func (s *Store) trieEachNode(ops trieOps, node Value, fn func(entry []Value) bool) bool {
	if s.Tag(node) == ops.searchTag {
		for _, e := range s.searchEntries(ops, node) {
			if !fn(e) {
				return false
			}
		}

		return true
	}

	for _, c := range s.dispatchChildren(node) {
		if !s.trieEachNode(ops, c, fn) {
			return false
		}
	}

	return true
}
