package store

import "fmt"

// maxScratchFields bounds the field count of a single scratch record, the
// "scratch-object field count" capacity limit named in spec.md §7.
const maxScratchFields = 1 << 16

// scratchObject is a record or blob living outside the store, per
// spec.md §3 "Unstored objects". Builder keeps these in a plain Go slice;
// unlike stored objects they need no self-relative byte encoding because
// they are never memory-mapped or persisted directly — see DESIGN.md for
// why this departs from the on-disk layout used for real objects.
type scratchObject struct {
	tag    uint8
	fields []Value // record fields; nil for blobs
	blob   []byte  // blob payload; nil for records
}

func (o scratchObject) isBlob() bool { return o.blob != nil || o.tag == tagBlob }

// Builder allocates scratch (unstored) objects for a [Store].
//
// Scratch objects share their exported shape (tag, fields, blob bytes)
// with stored objects but live in ordinary Go memory until [Builder.Store]
// recursively copies a scratch value — and everything it transitively
// references — into the backing store. A scratch object may reference an
// already-stored Value; a stored object must never reference a scratch
// one, which Builder enforces statically by only ever writing finished,
// resolved Values into stored fields.
//
// A Builder is single-use per logical construction: call [Builder.Store]
// to commit, or [Builder.Abort] to discard. The zero value is not usable;
// obtain one from [Store.NewBuilder].
type Builder struct {
	store   *Store
	objects []scratchObject
}

// NewBuilder returns a Builder for constructing scratch objects destined
// for s.
func (s *Store) NewBuilder() *Builder {
	return &Builder{store: s}
}

// NewBlob allocates a scratch blob copying data.
func (b *Builder) NewBlob(data []byte) Value {
	cp := make([]byte, len(data))
	copy(cp, data)

	id := uint32(len(b.objects))
	b.objects = append(b.objects, scratchObject{tag: tagBlob, blob: cp})

	return scratchValue(id)
}

// NewRecord allocates a scratch record with the given tag and fields.
//
// Each field must be Null, a small integer, a Value belonging to the same
// Builder, or an already-stored Value from b's store. The check is by
// range only: a scratch index beyond b's objects, or a store offset outside
// b's store's allocated region, returns ErrCorruptReference; a foreign Value
// that falls inside those ranges is not detected. If tag is a counted tag (64..79), field 0
// is reserved for an auto-assigned id and is overridden at [Builder.Store]
// time regardless of what is passed here.
func (b *Builder) NewRecord(tag uint8, fields ...Value) (Value, error) {
	if tag == tagBlob {
		return Null, fmt.Errorf("tag 0x7F is reserved for blobs: %w", ErrCorruptReference)
	}

	if len(fields) > maxScratchFields {
		return Null, fmt.Errorf("record has %d fields, max %d: %w", len(fields), maxScratchFields, ErrCapacity)
	}

	for _, f := range fields {
		if err := b.checkOwned(f); err != nil {
			return Null, err
		}
	}

	cp := make([]Value, len(fields))
	copy(cp, fields)

	id := uint32(len(b.objects))
	b.objects = append(b.objects, scratchObject{tag: tag, fields: cp})

	return scratchValue(id), nil
}

func (b *Builder) checkOwned(v Value) error {
	switch {
	case IsNull(v), IsInt(v):
		return nil
	case isScratch(v):
		if scratchOffset(v) >= uint32(len(b.objects)) {
			return fmt.Errorf("scratch value from a different builder: %w", ErrCorruptReference)
		}

		return nil
	default:
		// A store reference: must belong to this builder's store.
		off := storeOffset(v)
		if off < headerSize || off >= b.store.length {
			return fmt.Errorf("reference belongs to a different store: %w", ErrCorruptReference)
		}

		return nil
	}
}

// Tag, Len, IsBlob, BlobBytes, Ref and RefInt mirror the identically named
// [Store] methods but also accept scratch Values produced by this Builder.
func (b *Builder) Tag(v Value) uint8 {
	if o, ok := b.scratch(v); ok {
		if o.isBlob() {
			return tagBlob
		}

		return o.tag
	}

	return b.store.Tag(v)
}

func (b *Builder) Len(v Value) int {
	if o, ok := b.scratch(v); ok {
		if o.isBlob() {
			return len(o.blob)
		}

		return len(o.fields)
	}

	return b.store.Len(v)
}

func (b *Builder) IsBlob(v Value) bool {
	if o, ok := b.scratch(v); ok {
		return o.isBlob()
	}

	return b.store.IsBlob(v)
}

func (b *Builder) BlobBytes(v Value) []byte {
	if o, ok := b.scratch(v); ok {
		if !o.isBlob() {
			panic("store: value is not a blob")
		}

		return o.blob
	}

	return b.store.BlobBytes(v)
}

func (b *Builder) Ref(v Value, i int) Value {
	if o, ok := b.scratch(v); ok {
		if o.isBlob() || i < 0 || i >= len(o.fields) {
			panic("store: field index out of range")
		}

		return o.fields[i]
	}

	return b.store.Ref(v, i)
}

func (b *Builder) RefInt(v Value, i int) (int32, bool) {
	return ToInt(b.Ref(v, i))
}

func (b *Builder) scratch(v Value) (scratchObject, bool) {
	if !isScratch(v) {
		return scratchObject{}, false
	}

	return b.objects[scratchOffset(v)], true
}

// ShallowCopy allocates a new scratch record with the same tag and fields
// as v (which may be scratch or stored); children keep their identity.
func (b *Builder) ShallowCopy(v Value) (Value, error) {
	if IsNull(v) || IsInt(v) {
		return v, nil
	}

	if b.IsBlob(v) {
		return b.NewBlob(b.BlobBytes(v)), nil
	}

	n := b.Len(v)
	fields := make([]Value, n)

	for i := range n {
		fields[i] = b.Ref(v, i)
	}

	return b.NewRecord(b.Tag(v), fields...)
}

// DeepCopy recursively copies v into fresh scratch objects: blobs are
// copied verbatim, records recursively copy each referenced value, and
// null/integers are returned unchanged (identity).
func (b *Builder) DeepCopy(v Value) (Value, error) {
	if IsNull(v) || IsInt(v) {
		return v, nil
	}

	if b.IsBlob(v) {
		return b.NewBlob(b.BlobBytes(v)), nil
	}

	n := b.Len(v)
	fields := make([]Value, n)

	for i := range n {
		child, err := b.DeepCopy(b.Ref(v, i))
		if err != nil {
			return Null, err
		}

		fields[i] = child
	}

	return b.NewRecord(b.Tag(v), fields...)
}

// Store recursively materializes v — and everything it transitively
// references in this Builder's scratch space — into the backing store,
// and returns the resulting store-absolute Value. Already-stored values
// reachable from v are left as-is (shared, not duplicated). Values shared
// by more than one scratch field (including cycles formed only through
// already-stored objects) are stored exactly once.
//
// Store does not publish v anywhere; call [Store.SetRoot] (directly, or
// via a higher-level handle such as [InternHandle] or [DictHandle]) to
// make it reachable from the root.
func (b *Builder) Store(v Value) (Value, error) {
	memo := make(map[uint32]Value, len(b.objects))

	return b.storeValue(v, memo)
}

// Abort discards all scratch objects held by b. Safe to call even after a
// partial [Builder.Store]; already-stored objects are unaffected.
func (b *Builder) Abort() {
	b.objects = nil
}

func (b *Builder) storeValue(v Value, memo map[uint32]Value) (Value, error) {
	if !isScratch(v) {
		return v, nil // null, integer, or already-stored: identity.
	}

	id := scratchOffset(v)
	if sv, ok := memo[id]; ok {
		return sv, nil
	}

	obj := b.objects[id]

	var (
		stored Value
		err    error
	)

	if obj.isBlob() {
		stored, err = b.store.allocBlob(obj.blob)
	} else {
		fields := make([]Value, len(obj.fields))

		for i, f := range obj.fields {
			fields[i], err = b.storeValue(f, memo)
			if err != nil {
				return Null, err
			}
		}

		stored, err = b.store.allocRecord(obj.tag, fields)
	}

	if err != nil {
		return Null, err
	}

	memo[id] = stored

	return stored, nil
}
