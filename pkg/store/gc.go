package store

import "fmt"

// gc.go implements the copying collector described in spec.md §4.4-4.5.
//
// Rather than the original design's trick of remapping the backing file
// private-then-shared to swap heaps, this collector copies everything live
// to a "to-space" region at the tail of the *same* mmap'd file (reusing
// [Store.allocBlob] / [Store.allocRecord] / the trie allocators verbatim),
// then compacts that region down to start right after the header with a
// single memmove. Because on-disk field words are self-relative, a uniform
// shift of a contiguous region never needs individual pointers rewritten —
// only the header's root word (which is absolute) is adjusted.
//
// The compacting memmove must never overwrite bytes the still-authoritative
// root points into before the header says otherwise: spec.md §3's commit
// invariant requires that after a crash the file holds either the new root
// or the old one, never a root pointing at clobbered bytes. [Store.GC]
// satisfies this with two durable commits — the first publishes the new
// root at its to-space location (touching nothing live), and only after
// that succeeds does it compact and publish the shrunk, compacted layout —
// rather than compacting in place before the new root is durable. See
// DESIGN.md.
//
// Liveness is resolved in three passes, mirroring spec.md §4.4:
//
//  1. Strong copy: depth-first copy (the work list is a stack) of everything reachable without
//     crossing a weak edge (the "delayed list" tags: intern table,
//     weak-key dict, weak-set dict). Each such edge is recorded instead of
//     followed.
//  2. Ripple: repeatedly re-scan each delayed structure's *original*
//     entries against the growing forwarding table; a key/member becomes
//     live the moment something independent of this table proves it
//     reachable, and for weak-key dictionaries that pulls its value into
//     the strong-copy queue too. Repeats to a fixpoint since copying a
//     newly-live value can itself make other tables' keys reachable.
//  3. Rebuild: each delayed structure's surviving entries are re-inserted
//     into a brand new trie built with the same algorithms in trie.go.
type gcPass struct {
	s *Store

	fwd    map[uint32]uint32 // old offset -> to-space offset, strongly-copied objects
	queued map[uint32]bool
	queue  []uint32

	delayed      []*delayedStruct
	delayedIndex map[uint32]int // old root offset -> index into delayed

	ordinaryPatches []ordinaryPatch
	delayedPatches  []delayedPatch

	capacityErr error
}

type delayedStruct struct {
	oldRoot uint32
	tag     uint8
	live    map[uint32]bool // old key/member offset -> alive
	newRoot Value
	built   bool
}

type ordinaryPatch struct {
	destOff  uint32
	fieldIdx uint32
	oldRef   uint32
}

type delayedPatch struct {
	destOff    uint32
	fieldIdx   uint32
	delayedIdx int
}

func delayedKindOf(tag uint8) (trieOps, bool) {
	switch tag {
	case tagInternDispatch, tagInternSearch:
		return internOps(), true
	case tagWeakKeyDispatch, tagWeakKeySearch:
		return dictOps(DictWeakKey), true
	case tagWeakSetDispatch, tagWeakSetSearch:
		return dictOps(DictWeakSet), true
	default:
		return trieOps{}, false
	}
}

// GC performs a full copying collection, renumbering counted tags densely
// from zero, and compacts the heap when the compacted layout cannot overlap
// the copied live region. It durably commits the result through
// commitRoot, the commit path [Store.SetRoot] uses, before returning.
func (s *Store) GC() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.mode == ModeReadOnly {
		return fmt.Errorf("store is read-only: %w", ErrLocked)
	}

	oldLength := s.length
	oldRoot := s.rawRoot()

	for i := range s.tagCounters {
		s.tagCounters[i] = 0
	}

	g := &gcPass{
		s:            s,
		fwd:          make(map[uint32]uint32),
		queued:       make(map[uint32]bool),
		delayedIndex: make(map[uint32]int),
	}

	g.touch(oldRoot)

	if err := g.drainAndRipple(); err != nil {
		return err
	}

	if err := g.rebuildDelayed(); err != nil {
		return err
	}

	if err := g.applyPatches(); err != nil {
		return err
	}

	newRoot, ready := g.resolveFinal(oldRoot)
	if !ready {
		return fmt.Errorf("gc: root did not resolve: %w", ErrCorruptReference)
	}

	// Commit #1: publish the new root at its to-space location before
	// touching a single byte of the live old heap. A crash here leaves the
	// file with the (larger, uncompacted) to-space root durably in effect —
	// never a root pointing at memory this pass is about to overwrite.
	if err := s.commitRoot(newRoot); err != nil {
		return err
	}

	liveLen := s.length - oldLength

	// Only compact when the new, smaller layout provably cannot overlap
	// the to-space region backing the root just made durable. If it can't
	// be proven safe, skip compaction for this cycle rather than risk an
	// overlapping write; the heap stays at its grown size until the next
	// GC gets a chance to compact it.
	if headerSize+liveLen > oldLength {
		s.allocSinceGC = 0

		// Re-commit the same root purely to flush the corrected
		// allocSinceGC/tag-counter header fields written by commit #1
		// before they were finalized.
		return s.commitRoot(newRoot)
	}

	copy(s.data[headerSize:headerSize+liveLen], s.data[oldLength:s.length])

	oldEnd := s.length
	delta := int64(oldLength) - int64(headerSize)
	s.length = headerSize + liveLen
	s.allocSinceGC = 0

	// Commit #2: publish the compacted, shrunk layout. A crash before this
	// lands simply leaves the (already valid, merely uncompacted) root
	// from commit #1 in effect.
	if err := s.commitRoot(adjustValue(newRoot, delta)); err != nil {
		return err
	}

	// The to-space copy that commit #1's root points into is cleared only
	// after commit #2 has been issued.
	clear(s.data[headerSize+liveLen : oldEnd])

	return nil
}

func adjustValue(v Value, delta int64) Value {
	if IsNull(v) || IsInt(v) {
		return v
	}

	return storeValue(uint32(int64(storeOffset(v)) - delta))
}

// rawRoot reads the header root word as a Value without taking s.mu (the
// caller already holds it).
func (s *Store) rawRoot() Value {
	word := s.readWord(offRoot)

	switch {
	case word == 0:
		return Null
	case word&valueIntTagBits == valueIntTagBits:
		return Value(word)
	default:
		return storeValue(word)
	}
}

// touch ensures v will end up resolvable by the end of the collection:
// ordinary references are queued for strong copying, delayed-tagged
// references are registered for ripple processing.
func (g *gcPass) touch(v Value) {
	if IsNull(v) || IsInt(v) {
		return
	}

	off := storeOffset(v)
	if _, ok := g.fwd[off]; ok {
		return
	}

	tag := g.s.Tag(v)
	if isDelayedTag(tag) {
		g.delayedFor(off, tag)

		return
	}

	if g.queued[off] {
		return
	}

	g.queued[off] = true
	g.queue = append(g.queue, off)
}

func (g *gcPass) delayedFor(oldOff uint32, tag uint8) int {
	if idx, ok := g.delayedIndex[oldOff]; ok {
		return idx
	}

	if g.capacityErr == nil && len(g.delayed) >= maxDelayedStructures {
		g.capacityErr = fmt.Errorf("gc: too many weak tables: %w", ErrCapacity)
	}

	idx := len(g.delayed)
	g.delayed = append(g.delayed, &delayedStruct{oldRoot: oldOff, tag: tag, live: map[uint32]bool{}})
	g.delayedIndex[oldOff] = idx

	return idx
}

func (g *gcPass) drainAndRipple() error {
	for {
		for len(g.queue) > 0 {
			off := g.queue[len(g.queue)-1]
			g.queue = g.queue[:len(g.queue)-1]

			if err := g.copyOrdinary(off); err != nil {
				return err
			}

			if g.capacityErr != nil {
				return g.capacityErr
			}
		}

		progressed, err := g.rippleDelayed()
		if err != nil {
			return err
		}

		if g.capacityErr != nil {
			return g.capacityErr
		}

		if !progressed && len(g.queue) == 0 {
			return nil
		}
	}
}

// copyOrdinary strong-copies the object at old offset oldOff into to-space,
// recording a forwarding entry before resolving its fields so that cycles
// terminate.
func (g *gcPass) copyOrdinary(oldOff uint32) error {
	if _, ok := g.fwd[oldOff]; ok {
		return nil
	}

	s := g.s
	h := s.readHeaderAt(oldOff)

	if h.tag == tagBlob {
		destV, err := s.allocBlob(s.BlobBytes(storeValue(oldOff)))
		if err != nil {
			return err
		}

		g.fwd[oldOff] = storeOffset(destV)

		return nil
	}

	placeholder := make([]Value, h.length)

	destV, err := s.allocRecord(h.tag, placeholder)
	if err != nil {
		return err
	}

	destOff := storeOffset(destV)
	g.fwd[oldOff] = destOff

	start := 0
	if isCountedTag(h.tag) {
		start = 1 // allocRecord already assigned a fresh dense id.
	}

	oldV := storeValue(oldOff)

	for i := start; i < int(h.length); i++ {
		field := s.Ref(oldV, i)

		switch {
		case IsNull(field), IsInt(field):
			s.writeWord(destOff+wordSize+uint32(i)*wordSize, encodeFieldWord(field, destOff))
		default:
			fOff := storeOffset(field)
			fTag := s.Tag(field)
			fwdOff, alreadyForwarded := g.fwd[fOff]

			switch {
			case isDelayedTag(fTag):
				idx := g.delayedFor(fOff, fTag)
				g.delayedPatches = append(g.delayedPatches, delayedPatch{destOff, uint32(i), idx})
			case alreadyForwarded:
				s.writeWord(destOff+wordSize+uint32(i)*wordSize, encodeFieldWord(storeValue(fwdOff), destOff))
			default:
				g.ordinaryPatches = append(g.ordinaryPatches, ordinaryPatch{destOff, uint32(i), fOff})

				if !g.queued[fOff] {
					g.queued[fOff] = true
					g.queue = append(g.queue, fOff)
				}
			}
		}
	}

	return nil
}

func (g *gcPass) rippleDelayed() (bool, error) {
	progressed := false

	for i := 0; i < len(g.delayed); i++ {
		d := g.delayed[i]

		ops, ok := delayedKindOf(d.tag)
		if !ok {
			continue
		}

		kind, _ := dictKindOf(d.tag)

		g.s.trieEach(ops, storeValue(d.oldRoot), func(entry []Value) bool {
			keyOff := storeOffset(entry[0])

			if d.live[keyOff] {
				return true
			}

			// Weak-set entries survive via any live member, not via the key
			// itself — the key is pulled alive by that member instead of
			// having to already be reachable independently (spec.md §4.5).
			if kind == DictWeakSet {
				anyAlive := false

				for _, m := range g.s.setMembers(entry[1]) {
					if IsNull(m) || IsInt(m) {
						continue
					}

					if _, ok := g.fwd[storeOffset(m)]; ok {
						anyAlive = true

						break
					}
				}

				if !anyAlive {
					return true
				}

				d.live[keyOff] = true
				progressed = true
				g.touch(entry[0])

				return true
			}

			if _, alive := g.fwd[keyOff]; !alive {
				return true
			}

			d.live[keyOff] = true
			progressed = true

			if ops.width == 2 {
				g.touch(entry[1])
			}

			return true
		})
	}

	return progressed, nil
}

// rebuildDelayed constructs a fresh trie for each delayed structure from
// its surviving entries, in dependency order (a dictionary whose values
// reference another delayed structure must be built after that structure).
func (g *gcPass) rebuildDelayed() error {
	remaining := len(g.delayed)
	built := make([]bool, len(g.delayed))

	for remaining > 0 {
		progressedAny := false

		for i, d := range g.delayed {
			if built[i] {
				continue
			}

			ops, _ := delayedKindOf(d.tag)

			newRoot, ok, err := g.tryBuildDelayed(d, ops)
			if err != nil {
				return err
			}

			if !ok {
				continue
			}

			d.newRoot = newRoot
			d.built = true
			built[i] = true
			remaining--
			progressedAny = true
		}

		if !progressedAny {
			return fmt.Errorf("gc: circular weak structure dependency: %w", ErrCorruptReference)
		}
	}

	return nil
}

func (g *gcPass) tryBuildDelayed(d *delayedStruct, ops trieOps) (Value, bool, error) {
	kind, _ := dictKindOf(d.tag)

	var (
		newRoot Value = Null
		notReady      bool
		buildErr      error
	)

	g.s.trieEach(ops, storeValue(d.oldRoot), func(entry []Value) bool {
		keyOff := storeOffset(entry[0])
		if !d.live[keyOff] {
			return true
		}

		destKeyOff, ok := g.fwd[keyOff]
		if !ok {
			buildErr = fmt.Errorf("gc: live key missing forwarding entry: %w", ErrCorruptReference)

			return false
		}

		newEntry := make([]Value, ops.width)
		newEntry[0] = storeValue(destKeyOff)

		switch {
		case kind == DictWeakSet:
			members := g.s.setMembers(entry[1])
			live := make([]Value, 0, len(members))

			for _, m := range members {
				resolved, alive, waiting := g.resolveMember(m)
				if waiting {
					notReady = true

					return false
				}

				if alive {
					live = append(live, resolved)
				}
			}

			// A set that lost every member to GC drops the whole entry
			// rather than persisting an empty record (spec.md §4.5).
			if len(live) == 0 {
				return true
			}

			set, err := g.s.allocRecord(tagWeakSetMember, live)
			if err != nil {
				buildErr = err

				return false
			}

			newEntry[1] = set
		case ops.width == 2:
			destVal, ready := g.resolveFinal(entry[1])
			if !ready {
				notReady = true

				return false
			}

			newEntry[1] = destVal
		}

		var err error

		newRoot, _, err = g.s.trieInsert(ops, newRoot, newEntry, true)
		if err != nil {
			buildErr = err

			return false
		}

		return true
	})

	if buildErr != nil {
		return Null, false, buildErr
	}

	if notReady {
		return Null, false, nil
	}

	return newRoot, true, nil
}

// resolveMember resolves a single weak-set member independently of whether
// the set as a whole survives: alive reports whether m has a forwarding
// entry (possibly via a nested delayed structure); waiting reports that m's
// delayed structure exists but hasn't been rebuilt yet, so the caller must
// retry this round rather than conclude m is dead.
func (g *gcPass) resolveMember(m Value) (resolved Value, alive, waiting bool) {
	if IsNull(m) || IsInt(m) {
		return m, true, false
	}

	off := storeOffset(m)

	if dOff, ok := g.fwd[off]; ok {
		return storeValue(dOff), true, false
	}

	if idx, ok := g.delayedIndex[off]; ok {
		d := g.delayed[idx]
		if !d.built {
			return Null, false, true
		}

		return d.newRoot, true, false
	}

	return Null, false, false
}

// resolveFinal returns the to-space Value corresponding to v, once fully
// resolved (strongly forwarded, or the rebuilt root of a delayed
// structure).
func (g *gcPass) resolveFinal(v Value) (Value, bool) {
	if IsNull(v) || IsInt(v) {
		return v, true
	}

	off := storeOffset(v)

	if dOff, ok := g.fwd[off]; ok {
		return storeValue(dOff), true
	}

	if idx, ok := g.delayedIndex[off]; ok {
		d := g.delayed[idx]
		if !d.built {
			return Null, false
		}

		return d.newRoot, true
	}

	return Null, false
}

func (g *gcPass) applyPatches() error {
	for _, p := range g.ordinaryPatches {
		destOff, ok := g.fwd[p.oldRef]
		if !ok {
			return fmt.Errorf("gc: unresolved reference: %w", ErrCorruptReference)
		}

		g.s.writeWord(p.destOff+wordSize+p.fieldIdx*wordSize, encodeFieldWord(storeValue(destOff), p.destOff))
	}

	for _, p := range g.delayedPatches {
		d := g.delayed[p.delayedIdx]
		g.s.writeWord(p.destOff+wordSize+p.fieldIdx*wordSize, encodeFieldWord(d.newRoot, p.destOff))
	}

	return nil
}
