package store

import "encoding/binary"

// header packs the reserved/tag/length triple of an object's first word.
type header struct {
	forward bool
	tag     uint8
	length  uint32 // bytes for a blob, field count for a record
}

func decodeHeader(word uint32) header {
	return header{
		forward: word&headerForwardBit != 0,
		tag:     uint8((word >> headerTagShift) & headerTagMask),
		length:  word & headerLenMask,
	}
}

func (h header) encode() uint32 {
	word := uint32(h.tag)<<headerTagShift | h.length&headerLenMask
	if h.forward {
		word |= headerForwardBit
	}

	return word
}

// blobWords returns how many 4-byte words a length-byte blob payload
// occupies, rounding up.
func blobWords(length uint32) uint32 {
	return (length + wordSize - 1) / wordSize
}

// objectWords returns the total size in words (including the header word)
// of an object with the given header.
func objectWords(h header) uint32 {
	if h.tag == tagBlob {
		return 1 + blobWords(h.length)
	}

	return 1 + h.length
}

// readWord reads the little-endian word at absolute byte offset off.
func (s *Store) readWord(off uint32) uint32 {
	return binary.LittleEndian.Uint32(s.data[off : off+4])
}

func (s *Store) writeWord(off uint32, w uint32) {
	binary.LittleEndian.PutUint32(s.data[off:off+4], w)
}

func (s *Store) readHeaderAt(off uint32) header {
	return decodeHeader(s.readWord(off))
}

// mustStoreRef panics (a programmer bug per spec.md §7 "CorruptReference")
// unless v is a genuine reference into this store's heap.
func (s *Store) mustStoreRef(v Value) uint32 {
	if !isStoreRef(v) {
		panic("store: value does not belong to this store: " + errString(v))
	}

	off := storeOffset(v)
	if off < headerSize || off >= s.length {
		panic("store: reference out of bounds")
	}

	return off
}

func errString(v Value) string {
	switch {
	case IsNull(v):
		return "null"
	case IsInt(v):
		return "small int"
	case isScratch(v):
		return "scratch value"
	default:
		return "out-of-range reference"
	}
}

// Tag returns the object tag of v (0 if v is null or an integer).
func (s *Store) Tag(v Value) uint8 {
	if IsNull(v) || IsInt(v) {
		return 0
	}

	return s.readHeaderAt(s.mustStoreRef(v)).tag
}

// Len returns the field count (records) or byte length (blobs) of v.
// Returns 0 for null and integers.
func (s *Store) Len(v Value) int {
	if IsNull(v) || IsInt(v) {
		return 0
	}

	return int(s.readHeaderAt(s.mustStoreRef(v)).length)
}

// IsBlob reports whether v is a blob object.
func (s *Store) IsBlob(v Value) bool {
	if IsNull(v) || IsInt(v) {
		return false
	}

	return s.readHeaderAt(s.mustStoreRef(v)).tag == tagBlob
}

// BlobBytes returns the raw bytes of a blob object. Panics if v is not a
// blob.
func (s *Store) BlobBytes(v Value) []byte {
	off := s.mustStoreRef(v)
	h := s.readHeaderAt(off)

	if h.tag != tagBlob {
		panic("store: value is not a blob")
	}

	start := off + wordSize

	return s.data[start : start+h.length]
}

// Ref returns field i of record v as a Value.
func (s *Store) Ref(v Value, i int) Value {
	off := s.mustStoreRef(v)
	h := s.readHeaderAt(off)

	if h.tag == tagBlob {
		panic("store: Ref on a blob")
	}

	if i < 0 || uint32(i) >= h.length {
		panic("store: field index out of range")
	}

	fieldOff := off + wordSize + uint32(i)*wordSize

	return decodeFieldWord(s.readWord(fieldOff), off)
}

// RefInt reads field i and decodes it as a small integer. ok is false if
// the field is null or not an integer.
func (s *Store) RefInt(v Value, i int) (n int32, ok bool) {
	return ToInt(s.Ref(v, i))
}

// Equal reports whether a and b are structurally equal: same tag, same
// length, and either byte-equal blobs or pairwise-equal fields.
func (s *Store) Equal(a, b Value) bool {
	if a == b {
		return true
	}

	if IsNull(a) || IsNull(b) {
		return false
	}

	if IsInt(a) || IsInt(b) {
		// a == b already handled the equal-int case.
		return false
	}

	ta, tb := s.Tag(a), s.Tag(b)
	if ta != tb {
		return false
	}

	la, lb := s.Len(a), s.Len(b)
	if la != lb {
		return false
	}

	if ta == tagBlob {
		return bytesEqual(s.BlobBytes(a), s.BlobBytes(b))
	}

	for i := range la {
		if !s.Equal(s.Ref(a, i), s.Ref(b, i)) {
			return false
		}
	}

	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// Hash computes the content hash of v, masked to 30 bits: blobs hash their
// bytes with a multiplicative rolling hash (prime 37); records combine
// field hashes (shift-left 8, add, mask); integers hash to themselves;
// null hashes to zero.
func (s *Store) Hash(v Value) uint32 {
	switch {
	case IsNull(v):
		return 0
	case IsInt(v):
		n, _ := ToInt(v)

		return uint32(n) & hashMask
	}

	if s.IsBlob(v) {
		return hashBytes(s.BlobBytes(v))
	}

	var h uint32

	n := s.Len(v)
	for i := range n {
		h = (h<<8 + s.Hash(s.Ref(v, i))) & hashMask
	}

	return h
}

const hashMask = uint32(1)<<hashBits - 1

func hashBytes(b []byte) uint32 {
	var h uint32
	for _, c := range b {
		h = (h*37 + uint32(c)) & hashMask
	}

	return h
}

// IdentityHash returns the identity hash used by dictionaries: the word
// offset of the object relative to the store base, masked to 30 bits.
func (s *Store) IdentityHash(v Value) uint32 {
	off := s.mustStoreRef(v)

	return (off / wordSize) & hashMask
}
