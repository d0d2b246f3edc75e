package store

// File format constants (little-endian 32-bit words throughout).
const (
	// magic is 'S','T','D','B' read as a little-endian uint32.
	magic uint32 = 0x42445453

	formatVersion uint32 = 0

	// headerSize is the fixed byte size of the file header, padded past the
	// fields it actually holds (magic, version, root, length, allocated,
	// 16 tag counters = 84 bytes) to leave room to grow the header without
	// moving the object heap that follows it.
	headerSize uint32 = 256

	// wordSize is the size in bytes of every heap word (header word, field
	// word, blob byte-count unit).
	wordSize uint32 = 4
)

// Header field byte offsets.
const (
	offMagic          = 0x00
	offVersion        = 0x04
	offRoot           = 0x08
	offLength         = 0x0C
	offAllocatedSince = 0x10
	offTagCounters    = 0x14 // 16 * uint32
)

// Object header bit layout: 1 reserved (GC forward marker) + 7 tag bits +
// 24 length bits.
const (
	headerForwardBit uint32 = 1 << 31
	headerTagShift          = 24
	headerTagMask    uint32 = 0x7F
	headerLenMask    uint32 = 0x00FF_FFFF
)

// Tag allocations (spec.md §6).
const (
	tagWeakSetDispatch  uint8 = 0x77
	tagWeakSetSearch    uint8 = 0x78
	tagWeakKeyDispatch  uint8 = 0x79
	tagWeakKeySearch    uint8 = 0x7A
	tagDictDispatch     uint8 = 0x7B
	tagDictSearch       uint8 = 0x7C
	tagInternDispatch   uint8 = 0x7D
	tagInternSearch     uint8 = 0x7E
	tagBlob             uint8 = 0x7F

	// tagWeakSetMember is the tag of a weak-set dictionary's per-key value:
	// an ordinary record whose fields are that key's members (spec.md §4.4
	// "each value is a set (a tagged record)"). It is never a dispatch or
	// search node, and — unlike the trie nodes above — the GC does not
	// delay it; gc.go rebuilds it directly from the live member subset, so
	// it is copied neither eagerly nor generically, only by that dedicated
	// path.
	tagWeakSetMember uint8 = 0x76

	countedTagMin uint8 = 64
	countedTagMax uint8 = 79

	numTagCounters = int(countedTagMax-countedTagMin) + 1
)

// isCountedTag reports whether tag is in the counted-tag range 64..79.
func isCountedTag(tag uint8) bool {
	return tag >= countedTagMin && tag <= countedTagMax
}

// isTrieTag reports whether tag belongs to one of the four HAMT families
// (intern table, strong dict, weak-key dict, weak-set dict), dispatch or
// search node.
func isTrieTag(tag uint8) bool {
	switch tag {
	case tagWeakSetDispatch, tagWeakSetSearch,
		tagWeakKeyDispatch, tagWeakKeySearch,
		tagDictDispatch, tagDictSearch,
		tagInternDispatch, tagInternSearch:
		return true
	default:
		return false
	}
}

// isDelayedTag reports whether tag belongs to a structure that the
// garbage collector must delay rather than copy eagerly: weak
// dictionaries, weak-value-set dictionaries, and the intern table. Strong
// dictionaries are copied eagerly like any other record.
func isDelayedTag(tag uint8) bool {
	switch tag {
	case tagWeakSetDispatch, tagWeakSetSearch,
		tagWeakKeyDispatch, tagWeakKeySearch,
		tagInternDispatch, tagInternSearch:
		return true
	default:
		return false
	}
}

// DictKind identifies which of the three dictionary modes a set of
// dispatch/search tags belongs to.
type DictKind uint8

const (
	DictStrong DictKind = iota
	DictWeakKey
	DictWeakSet
)

func (k DictKind) tags() (dispatch, search uint8) {
	switch k {
	case DictWeakKey:
		return tagWeakKeyDispatch, tagWeakKeySearch
	case DictWeakSet:
		return tagWeakSetDispatch, tagWeakSetSearch
	default:
		return tagDictDispatch, tagDictSearch
	}
}

func dictKindOf(tag uint8) (DictKind, bool) {
	switch tag {
	case tagDictDispatch, tagDictSearch:
		return DictStrong, true
	case tagWeakKeyDispatch, tagWeakKeySearch:
		return DictWeakKey, true
	case tagWeakSetDispatch, tagWeakSetSearch:
		return DictWeakSet, true
	default:
		return 0, false
	}
}

// HAMT shape constants, shared by the intern table and all dictionary
// modes: 5 bits of hash dispatched per trie level, 32-bit bitmap word, but
// only 30 of those bits ever carry real occupancy (hamtRealFanout). The top
// two bits (hamtSentinelBits) are always forced to 1 on disk, never real
// child slots, so a dispatch node's stored bitmap word can never be the
// literal zero word a corrupted/empty region would read back as (see
// DESIGN.md). localIndex folds the raw 5-bit hash window down into the
// real-fanout range so a genuine child is never routed into a sentinel
// slot, and [Store.dispatchBitmap] always strips the sentinel bits back
// off before any popcount/position arithmetic runs, so the rest of trie.go
// only ever sees real occupancy bits.
const (
	hamtBitsPerLevel = 5
	hamtFanout       = 1 << hamtBitsPerLevel // 32
	hamtRealFanout   = hamtFanout - 2        // 30 real (non-sentinel) child slots
	hamtBitmapMask   = uint32(1)<<hamtRealFanout - 1
	hamtSentinelBits = uint32(0b11) << 30 // top two bits forced to 1

	// hashBits is the width of the content/identity hash used to dispatch
	// through the trie (30 bits, matching the small-integer payload width).
	hashBits = 30

	// maxTrieDepth bounds explicit iterator stacks: 30 bits / 5 bits per
	// level is 6 dispatch levels plus the terminal search node, with slack.
	maxTrieDepth = 10
)

// maxDelayedStructures bounds the GC's delayed list (weak dictionaries,
// weak-set dictionaries, intern tables reachable from the root). Reaching
// it is a fatal ErrCapacity ("too many weak tables").
const maxDelayedStructures = 1024
