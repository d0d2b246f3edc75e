package store

func internOps() trieOps {
	return trieOps{
		dispatchTag: tagInternDispatch,
		searchTag:   tagInternSearch,
		width:       1,
		hash:        (*Store).Hash,
		equal:       (*Store).Equal,
	}
}

// InternHandle is a content-addressed table: structurally equal values
// passed to [InternHandle.Intern] map to the same canonical, already-stored
// object (spec.md §3's "intern table"). Entries are subject to the weak,
// delayed-list GC treatment in gc.go — an interned object not otherwise
// reachable from the root is dropped at the next GC, and the table itself
// is rebuilt as a fresh trie holding only the surviving objects.
//
// InternHandle holds no lock; callers serialize access to a [Store] the
// same way they would for any other handle. Like [DictHandle], it tracks
// the store's length at creation so [InternHandle.Abort] can roll back
// every mutation made through it; see DESIGN.md.
type InternHandle struct {
	store *Store
	root  Value

	origRoot   Value
	checkpoint uint32
}

// NewInternHandle wraps an existing intern table root (or [Null] for a
// fresh, empty table).
func NewInternHandle(s *Store, root Value) *InternHandle {
	return &InternHandle{store: s, root: root, origRoot: root, checkpoint: s.length}
}

// Root returns the table's current root, to be embedded by the caller in
// whatever larger structure it publishes via [Store.SetRoot].
func (h *InternHandle) Root() Value { return h.root }

// Finish returns the root reflecting every object interned through h so
// far, for the caller to embed in whatever larger structure it publishes
// via [Store.SetRoot]. h must not be used again afterwards.
func (h *InternHandle) Finish() Value { return h.root }

// Abort discards every object interned through h since it was created,
// rolling the store back to its pre-handle length. h must not be used
// again afterwards.
func (h *InternHandle) Abort() {
	h.store.rollback(h.checkpoint)
	h.root = h.origRoot
}

// Intern canonicalizes v (stored via b first if it is scratch): if a
// structurally equal object is already interned, that object is returned
// and v's freshly stored copy becomes garbage for the next GC to reclaim.
// Otherwise v itself is inserted and returned.
func (h *InternHandle) Intern(b *Builder, v Value) (Value, error) {
	stored, err := b.Store(v)
	if err != nil {
		return Null, err
	}

	if existing, ok := h.InternSoft(stored); ok {
		return existing, nil
	}

	newRoot, _, err := h.store.trieInsert(internOps(), h.root, []Value{stored}, false)
	if err != nil {
		return Null, err
	}

	h.root = newRoot

	return stored, nil
}

// InternSoft looks up v (which must already be stored, not scratch)
// without inserting it, returning the canonical object if present.
func (h *InternHandle) InternSoft(v Value) (Value, bool) {
	entry, ok := h.store.trieLookup(internOps(), h.root, v)
	if !ok {
		return Null, false
	}

	return entry[0], true
}

// Each calls fn for every object currently interned, until fn returns
// false.
func (h *InternHandle) Each(fn func(Value) bool) {
	h.store.trieEach(internOps(), h.root, func(e []Value) bool { return fn(e[0]) })
}
