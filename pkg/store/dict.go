package store

func identityEqual(_ *Store, a, b Value) bool { return a == b }

func dictOps(kind DictKind) trieOps {
	dispatch, search := kind.tags()

	return trieOps{
		dispatchTag: dispatch,
		searchTag:   search,
		width:       2,
		hash:        (*Store).IdentityHash,
		equal:       identityEqual,
	}
}

// DictHandle is an identity-hashed persistent dictionary (spec.md §3): keys
// are compared and hashed by store identity (their own offset), never by
// structural equality. The three [DictKind] modes share this
// implementation and differ only in how gc.go treats their entries:
//
//   - strong: both key and value keep their referents alive through GC.
//   - weak-key: an entry survives GC only if its key is otherwise
//     reachable; the dictionary itself does not keep keys alive.
//   - weak-set: the value under each key is itself a set of members
//     (spec.md §4.4); an entry survives only if at least one member is
//     otherwise reachable, and the key is pulled alive by any such member.
//
// A handle accumulates mutations directly against the store (trie nodes
// are allocated the same way any other record is), tracking the store's
// length at the moment it was created. [DictHandle.Finish] simply returns
// the accumulated root; [DictHandle.Abort] truncates the store back to
// that checkpoint, discarding every allocation made since the handle was
// created — including any made through other handles or Builders in the
// meantime. This gives the finish/abort
// lifecycle spec.md §4.4 describes without a separate scratch-object
// area; see DESIGN.md.
type DictHandle struct {
	store *Store
	kind  DictKind

	root     Value
	origRoot Value

	checkpoint uint32
}

// NewDictHandle wraps an existing dictionary root (or [Null] for a fresh,
// empty dictionary) of the given kind.
func NewDictHandle(s *Store, kind DictKind, root Value) *DictHandle {
	return &DictHandle{store: s, kind: kind, root: root, origRoot: root, checkpoint: s.length}
}

// Kind reports which of the three dictionary modes h implements.
func (h *DictHandle) Kind() DictKind { return h.kind }

// Root returns the dictionary's current root.
func (h *DictHandle) Root() Value { return h.root }

// Finish returns the root reflecting every mutation made through h so
// far, for the caller to embed in whatever larger structure it publishes
// via [Store.SetRoot]. h must not be used again afterwards.
func (h *DictHandle) Finish() Value { return h.root }

// Abort discards every mutation made through h since it was created,
// rolling the store back to its pre-handle length. h must not be used
// again afterwards.
func (h *DictHandle) Abort() {
	h.store.rollback(h.checkpoint)
	h.root = h.origRoot
}

// Get looks up key (a stored, non-scratch Value) in a strong or weak-key
// dictionary. It panics if h is a weak-set (use [DictHandle.Has] instead).
func (h *DictHandle) Get(key Value) (Value, bool) {
	if h.kind == DictWeakSet {
		panic("store: Get on a weak-set dictionary")
	}

	entry, ok := h.store.trieLookup(dictOps(h.kind), h.root, key)
	if !ok {
		return Null, false
	}

	return entry[1], true
}

// Set inserts or overwrites the mapping key -> value. key and value must
// already be stored (use a [Builder] to store scratch values first).
func (h *DictHandle) Set(key, value Value) error {
	if h.kind == DictWeakSet {
		panic("store: Set on a weak-set dictionary")
	}

	newRoot, _, err := h.store.trieInsert(dictOps(h.kind), h.root, []Value{key, value}, true)
	if err != nil {
		return err
	}

	h.root = newRoot

	return nil
}

// Del removes key, reporting whether it was present.
func (h *DictHandle) Del(key Value) (bool, error) {
	if h.kind == DictWeakSet {
		panic("store: Del(key) on a weak-set dictionary; use Remove")
	}

	newRoot, deleted, err := h.store.trieDelete(dictOps(h.kind), h.root, key)
	if err != nil {
		return false, err
	}

	h.root = newRoot

	return deleted, nil
}

// Each calls fn for every (key, value) pair in a strong or weak-key
// dictionary, until fn returns false.
func (h *DictHandle) Each(fn func(key, value Value) bool) {
	if h.kind == DictWeakSet {
		panic("store: Each(key,value) on a weak-set dictionary; use EachMember")
	}

	h.store.trieEach(dictOps(h.kind), h.root, func(e []Value) bool { return fn(e[0], e[1]) })
}

// setMembers returns the member Values held by a weak-set entry's value
// record (tag tagWeakSetMember).
func (s *Store) setMembers(set Value) []Value {
	n := s.Len(set)
	out := make([]Value, n)

	for i := range n {
		out[i] = s.Ref(set, i)
	}

	return out
}

// Has reports whether member is present under key in a weak-set
// dictionary.
func (h *DictHandle) Has(key, member Value) bool {
	if h.kind != DictWeakSet {
		panic("store: Has is only valid on a weak-set dictionary")
	}

	entry, ok := h.store.trieLookup(dictOps(h.kind), h.root, key)
	if !ok {
		return false
	}

	for _, m := range h.store.setMembers(entry[1]) {
		if m == member {
			return true
		}
	}

	return false
}

// Add inserts member into the set under key in a weak-set dictionary,
// creating the entry if key is not yet present. Members are held weakly:
// an entry survives GC only if at least one of its members is otherwise
// reachable (spec.md §4.4).
func (h *DictHandle) Add(key, member Value) error {
	if h.kind != DictWeakSet {
		panic("store: Add is only valid on a weak-set dictionary")
	}

	ops := dictOps(h.kind)

	members := []Value{member}

	if entry, ok := h.store.trieLookup(ops, h.root, key); ok {
		existing := h.store.setMembers(entry[1])

		for _, m := range existing {
			if m == member {
				return nil
			}
		}

		members = append(existing, member)
	}

	set, err := h.store.allocRecord(tagWeakSetMember, members)
	if err != nil {
		return err
	}

	newRoot, _, err := h.store.trieInsert(ops, h.root, []Value{key, set}, true)
	if err != nil {
		return err
	}

	h.root = newRoot

	return nil
}

// Remove deletes member from the set under key in a weak-set dictionary,
// reporting whether it was present. If member was the set's last member,
// the entire entry under key is dropped.
func (h *DictHandle) Remove(key, member Value) (bool, error) {
	if h.kind != DictWeakSet {
		panic("store: Remove is only valid on a weak-set dictionary")
	}

	ops := dictOps(h.kind)

	entry, ok := h.store.trieLookup(ops, h.root, key)
	if !ok {
		return false, nil
	}

	existing := h.store.setMembers(entry[1])

	idx := -1

	for i, m := range existing {
		if m == member {
			idx = i

			break
		}
	}

	if idx < 0 {
		return false, nil
	}

	remaining := append(append([]Value{}, existing[:idx]...), existing[idx+1:]...)

	if len(remaining) == 0 {
		newRoot, _, err := h.store.trieDelete(ops, h.root, key)
		if err != nil {
			return false, err
		}

		h.root = newRoot

		return true, nil
	}

	set, err := h.store.allocRecord(tagWeakSetMember, remaining)
	if err != nil {
		return false, err
	}

	newRoot, _, err := h.store.trieInsert(ops, h.root, []Value{key, set}, true)
	if err != nil {
		return false, err
	}

	h.root = newRoot

	return true, nil
}

// EachMember calls fn for every (key, member) pair in a weak-set
// dictionary, flattening each key's set into one call per member, until
// fn returns false.
func (h *DictHandle) EachMember(fn func(key, member Value) bool) {
	if h.kind != DictWeakSet {
		panic("store: EachMember is only valid on a weak-set dictionary")
	}

	h.store.trieEach(dictOps(h.kind), h.root, func(e []Value) bool {
		for _, m := range h.store.setMembers(e[1]) {
			if !fn(e[0], m) {
				return false
			}
		}

		return true
	})
}
