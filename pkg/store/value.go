package store

// Value is a handle to anything that can live in a store field: null, a
// signed 30-bit integer, or a reference to an object.
//
// Value is a resolved (absolute) handle: internally it is stored as a
// self-relative word per spec.md's on-disk format, but callers never see
// relative offsets. The top bit distinguishes a reference into the store
// proper (bit unset) from a reference into a [Builder]'s scratch space (bit
// set) — see builder.go. This lets generic record-construction helpers
// accept either kind of child without a separate type.
type Value uint32

const (
	// Null is the zero value: the empty reference.
	Null Value = 0

	valueIntTagBits uint32 = 0b11
	valueScratchBit uint32 = 1 << 31
)

// IsNull reports whether v is the null value.
func IsNull(v Value) bool { return v == Null }

// IsInt reports whether v encodes a small integer.
func IsInt(v Value) bool {
	return v != Null && uint32(v)&valueIntTagBits == valueIntTagBits
}

// ToInt decodes v as a small integer. The second return value is false if v
// does not encode an integer.
func ToInt(v Value) (int32, bool) {
	if !IsInt(v) {
		return 0, false
	}

	return int32(v) >> 2, true
}

// FromInt encodes a signed 30-bit integer as a Value. Values outside the
// representable range are truncated, matching the "upper 30 bits" encoding
// described in spec.md §3.
func FromInt(n int32) Value {
	return Value(uint32(n)<<2 | valueIntTagBits)
}

// isScratch reports whether v refers into a Builder's scratch space rather
// than into the store heap.
func isScratch(v Value) bool {
	return v != Null && !IsInt(v) && uint32(v)&valueScratchBit != 0
}

// isStoreRef reports whether v is a genuine reference into the store heap
// (i.e. not null, not an integer, not a scratch reference).
func isStoreRef(v Value) bool {
	return v != Null && !IsInt(v) && uint32(v)&valueScratchBit == 0
}

// storeOffset returns the absolute byte offset (from the start of the
// file) that v refers to. Only valid when isStoreRef(v).
func storeOffset(v Value) uint32 {
	return uint32(v)
}

// scratchOffset returns the index, in its Builder's object list, of the
// scratch object v refers to. Only valid when isScratch(v).
func scratchOffset(v Value) uint32 {
	return (uint32(v) &^ valueScratchBit) >> 2
}

// scratchValue keeps the index above the two low tag bits, so a scratch
// reference never carries the integer tag.
func scratchValue(off uint32) Value {
	return Value(off<<2 | valueScratchBit)
}

func storeValue(off uint32) Value {
	return Value(off)
}

// encodeFieldWord converts an absolute Value into the self-relative field
// word to be written at byte offset fieldObjBase (the start of the
// containing object), per spec.md §6.
func encodeFieldWord(v Value, objBase uint32) uint32 {
	switch {
	case IsNull(v):
		return 0
	case IsInt(v):
		return uint32(v)
	default:
		// Only reachable for store-absolute values: scratch values must be
		// resolved to store values before being written into a stored
		// object (see Builder.storeValue).
		rel := int32(storeOffset(v)) - int32(objBase)

		return uint32(rel)
	}
}

// decodeFieldWord converts a raw self-relative field word read from byte
// offset fieldObjBase back into an absolute Value.
func decodeFieldWord(word uint32, objBase uint32) Value {
	switch {
	case word == 0:
		return Null
	case word&valueIntTagBits == valueIntTagBits:
		return Value(word)
	default:
		target := int64(objBase) + int64(int32(word))

		return storeValue(uint32(target))
	}
}
