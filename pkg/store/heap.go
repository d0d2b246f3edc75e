package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/lucasmendez/aptgo/pkg/fs"
)

// Mode selects how [Open] treats the target path.
type Mode int

const (
	// ModeReadOnly opens an existing store for reading; SetRoot/GC return
	// ErrLocked.
	ModeReadOnly Mode = iota

	// ModeReadWrite opens an existing store, creating it if absent, for
	// both reading and writing. Only one writer may hold a given file at a
	// time (spec.md §5).
	ModeReadWrite

	// ModeTruncate creates a brand new, empty store at path, overwriting
	// anything already there.
	ModeTruncate
)

const (
	defaultMaxSize = 512 << 20 // 512 MiB, per spec.md §4.1 example.
	growChunk      = 2 << 20   // 2 MiB page-aligned growth chunk.

	// gcThresholdWords is the default "allocated since last GC" threshold
	// (in words) that triggers [Store.MaybeGC]; ~5 MiB of words per
	// spec.md §4.5.
	gcThresholdWords = (5 << 20) / 4
)

// Options configures [Open].
type Options struct {
	// Path is the backing file. Required.
	Path string

	// Mode selects read-only, read-write, or create-new-and-truncate.
	Mode Mode

	// MaxSize is the soft cap on heap growth, in bytes. Zero selects the
	// default (512 MiB).
	MaxSize uint64

	// FS is the filesystem used for the advisory writer lock file. Nil
	// selects [fs.NewReal].
	FS fs.FS
}

// Store is a handle to an open struct-store file.
//
// A Store must be obtained via [Open]; the zero value is not usable. All
// operations on a given handle must be serialized by the caller — Store is
// not safe for concurrent use from multiple goroutines without external
// synchronization (spec.md §5).
type Store struct {
	mu sync.Mutex

	path    string
	mode    Mode
	fd      int
	data    []byte // mmap'd reserved region
	maxSize uint32

	fileSize uint32 // bytes currently backed by the file (ftruncate'd)
	length   uint32 // next-allocation offset; "used length" in the header
	allocSinceGC uint32 // words allocated since the last GC
	tagCounters  [numTagCounters]uint32

	lock       *fs.Lock // advisory inter-process writer lock; nil for read-only
	registryID fileIdentity
	closed     bool
}

func defaultFS() fs.FS { return fs.NewReal() }

// Open opens or creates a struct-store file at opts.Path.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("path is required: %w", ErrIoError)
	}

	maxSize := uint32(defaultMaxSize)
	if opts.MaxSize != 0 {
		if opts.MaxSize > 1<<32-1 {
			return nil, fmt.Errorf("max size %d exceeds addressable range: %w", opts.MaxSize, ErrSizeLimit)
		}

		maxSize = uint32(opts.MaxSize)
	}

	filesys := opts.FS
	if filesys == nil {
		filesys = defaultFS()
	}

	var lock *fs.Lock

	if opts.Mode != ModeReadOnly {
		l, err := fs.NewLocker(filesys).TryLock(opts.Path + ".lock")
		if err != nil {
			if errors.Is(err, fs.ErrWouldBlock) {
				return nil, fmt.Errorf("%s: %w", opts.Path, ErrLocked)
			}

			return nil, fmt.Errorf("acquire writer lock: %w: %w", err, ErrIoError)
		}

		lock = l
	}

	s, err := openLocked(opts, maxSize, lock)
	if err != nil {
		if lock != nil {
			_ = lock.Close()
		}

		return nil, err
	}

	return s, nil
}

func openLocked(opts Options, maxSize uint32, lock *fs.Lock) (*Store, error) {
	fd, existed, err := openOrCreate(opts.Path, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", opts.Path, err, ErrIoError)
	}

	s := &Store{
		path:    opts.Path,
		mode:    opts.Mode,
		fd:      fd,
		maxSize: maxSize,
		lock:    lock,
	}

	if !existed || opts.Mode == ModeTruncate {
		if err := s.initEmpty(); err != nil {
			_ = unix.Close(fd)

			return nil, err
		}
	} else if err := s.mapExisting(); err != nil {
		_ = unix.Close(fd)

		return nil, err
	}

	if err := registerStore(s); err != nil {
		_ = unix.Close(fd)

		return nil, err
	}

	return s, nil
}

func openOrCreate(path string, mode Mode) (fd int, existed bool, err error) {
	if mode == ModeReadOnly {
		fd, err = unix.Open(path, unix.O_RDONLY, 0)
		if err != nil {
			return -1, false, err
		}

		return fd, true, nil
	}

	// Try to open without O_CREATE first so we know whether the file
	// already existed (and therefore must be validated rather than
	// initialized).
	fd, err = unix.Open(path, unix.O_RDWR, 0)
	if err == nil {
		if mode == ModeTruncate {
			_ = unix.Close(fd)

			fd, err = unix.Open(path, unix.O_RDWR|unix.O_TRUNC, 0)

			return fd, false, err
		}

		return fd, true, nil
	}

	if !errors.Is(err, unix.ENOENT) {
		return -1, false, err
	}

	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)

	return fd, false, err
}

// initEmpty truncates a fresh file to the header size, maps it, and writes
// an empty header (null root, no objects, zero counters).
func (s *Store) initEmpty() error {
	if err := unix.Ftruncate(s.fd, int64(headerSize)); err != nil {
		return fmt.Errorf("truncate: %w: %w", err, ErrIoError)
	}

	s.fileSize = headerSize
	s.length = headerSize

	if err := s.mmapReserve(); err != nil {
		return err
	}

	s.writeWord(offMagic, magic)
	s.writeWord(offVersion, formatVersion)
	s.writeWord(offRoot, 0)
	s.writeWord(offLength, s.length/wordSize)
	s.writeWord(offAllocatedSince, 0)

	for i := range numTagCounters {
		s.writeWord(offTagCounters+uint32(i)*wordSize, 0)
	}

	return s.msyncHeader()
}

// mapExisting validates an existing file's header and maps it.
func (s *Store) mapExisting() error {
	var stat unix.Stat_t

	if err := unix.Fstat(s.fd, &stat); err != nil {
		return fmt.Errorf("stat: %w: %w", err, ErrIoError)
	}

	if stat.Size < int64(headerSize) {
		return fmt.Errorf("file too small to contain a header: %w", ErrFormatError)
	}

	s.fileSize = uint32(stat.Size)

	if err := s.mmapReserve(); err != nil {
		return err
	}

	gotMagic := s.readWord(offMagic)
	if gotMagic != magic {
		return fmt.Errorf("bad magic %#x: %w", gotMagic, ErrFormatError)
	}

	if v := s.readWord(offVersion); v != formatVersion {
		return fmt.Errorf("unsupported version %d: %w", v, ErrFormatError)
	}

	s.length = s.readWord(offLength) * wordSize
	s.allocSinceGC = s.readWord(offAllocatedSince)

	for i := range numTagCounters {
		s.tagCounters[i] = s.readWord(offTagCounters + uint32(i)*wordSize)
	}

	if s.length < headerSize || s.length > s.fileSize {
		return fmt.Errorf("corrupt length %d (file size %d): %w", s.length, s.fileSize, ErrFormatError)
	}

	return nil
}

// mmapReserve maps maxSize bytes of the backing file. The kernel allows
// mapping more bytes than the file currently contains; only the growth
// path (reserve) must ftruncate before any byte beyond s.fileSize is
// touched.
func (s *Store) mmapReserve() error {
	prot := unix.PROT_READ
	if s.mode != ModeReadOnly {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(s.fd, 0, int(s.maxSize), prot, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w: %w", err, ErrIoError)
	}

	s.data = data

	return nil
}

// reserve grows the heap (if needed) and returns the absolute offset of a
// freshly allocated, zero-filled region of nBytes.
func (s *Store) reserve(nBytes uint32) (uint32, error) {
	if s.closed {
		return 0, ErrClosed
	}

	if s.mode == ModeReadOnly {
		return 0, fmt.Errorf("store is read-only: %w", ErrLocked)
	}

	needed := s.length + nBytes
	if needed < s.length || needed > s.maxSize {
		return 0, fmt.Errorf("allocation of %d bytes exceeds max size %d: %w", nBytes, s.maxSize, ErrSizeLimit)
	}

	if needed > s.fileSize {
		newSize := s.fileSize
		for newSize < needed {
			newSize += growChunk
		}

		if newSize > s.maxSize {
			newSize = s.maxSize
		}

		if err := unix.Ftruncate(s.fd, int64(newSize)); err != nil {
			return 0, fmt.Errorf("grow to %d bytes: %w: %w", newSize, err, ErrIoError)
		}

		s.fileSize = newSize
	}

	off := s.length
	clear(s.data[off:needed])
	s.length = needed
	s.allocSinceGC += nBytes / wordSize

	return off, nil
}

// rollback truncates the heap back to checkpoint, discarding every
// allocation made since, whichever handle or Builder made it; this
// is what gives [InternHandle.Abort]/[DictHandle.Abort] their "deep-free
// the scratch trie" semantics without a separate scratch area.
func (s *Store) rollback(checkpoint uint32) {
	if checkpoint >= s.length {
		return
	}

	clear(s.data[checkpoint:s.length])
	s.allocSinceGC -= (s.length - checkpoint) / wordSize
	s.length = checkpoint
}

func (s *Store) allocBlob(data []byte) (Value, error) {
	total := wordSize + blobWords(uint32(len(data)))*wordSize

	off, err := s.reserve(total)
	if err != nil {
		return Null, err
	}

	s.writeWord(off, header{tag: tagBlob, length: uint32(len(data))}.encode())
	copy(s.data[off+wordSize:off+wordSize+uint32(len(data))], data)

	return storeValue(off), nil
}

func (s *Store) allocRecord(tag uint8, fields []Value) (Value, error) {
	if isCountedTag(tag) {
		idx := tag - countedTagMin
		id := s.tagCounters[idx]
		s.tagCounters[idx] = id + 1

		if len(fields) == 0 {
			fields = []Value{Null}
		}

		fields[0] = FromInt(int32(id))
	}

	total := wordSize + uint32(len(fields))*wordSize

	off, err := s.reserve(total)
	if err != nil {
		return Null, err
	}

	s.writeWord(off, header{tag: tag, length: uint32(len(fields))}.encode())

	for i, f := range fields {
		s.writeWord(off+wordSize+uint32(i)*wordSize, encodeFieldWord(f, off))
	}

	return storeValue(off), nil
}

// GetRoot returns the store's current root value.
func (s *Store) GetRoot() Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rawRoot()
}

// SetRoot durably publishes v as the new root, following the ordering in
// spec.md §4.1: the data region is synced before the header, so a crash
// can never expose a root whose referenced objects are not yet durable.
//
// v must be null, an integer, or a Value already materialized in this
// store (via [Builder.Store] or a committed handle); a scratch Value
// returns ErrCorruptReference.
func (s *Store) SetRoot(v Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.mode == ModeReadOnly {
		return fmt.Errorf("store is read-only: %w", ErrLocked)
	}

	if isScratch(v) {
		return fmt.Errorf("root must be stored first: %w", ErrCorruptReference)
	}

	if isStoreRef(v) {
		s.mustStoreRef(v)
	}

	return s.commitRoot(v)
}

// commitRoot performs the actual two-phase durable publish described on
// [Store.SetRoot]: data synced before the header word that makes it
// reachable. Callers must already hold s.mu and must have already
// validated v (mode, closed, scratch-ness). [Store.GC] calls this directly,
// twice, while holding the lock for its whole pass.
func (s *Store) commitRoot(v Value) error {
	if err := unix.Msync(s.data[:s.length], unix.MS_SYNC); err != nil {
		return fmt.Errorf("msync data: %w: %w", err, ErrIoError)
	}

	var rootWord uint32

	switch {
	case IsNull(v):
		rootWord = 0
	case IsInt(v):
		rootWord = uint32(v)
	default:
		rootWord = storeOffset(v)
	}

	s.writeWord(offRoot, rootWord)
	s.writeWord(offLength, s.length/wordSize)
	s.writeWord(offAllocatedSince, s.allocSinceGC)

	for i := range numTagCounters {
		s.writeWord(offTagCounters+uint32(i)*wordSize, s.tagCounters[i])
	}

	return s.msyncHeader()
}

// msyncHeader asynchronously flushes the header. See spec.md §9 open
// question (a): we use MS_ASYNC for the header and MS_SYNC for data,
// matching the original design rather than the stricter (but slower)
// MS_SYNC-for-both alternative it floats.
func (s *Store) msyncHeader() error {
	if err := unix.Msync(s.data[:headerSize], unix.MS_ASYNC); err != nil {
		return fmt.Errorf("msync header: %w: %w", err, ErrIoError)
	}

	return nil
}

// TagCount returns the current counter value for a counted tag (64..79):
// the number of records with that tag ever allocated since the last GC
// renumbering.
func (s *Store) TagCount(tag uint8) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !isCountedTag(tag) {
		return 0, fmt.Errorf("tag %#x is not a counted tag: %w", tag, ErrCorruptReference)
	}

	return s.tagCounters[tag-countedTagMin], nil
}

// MaybeGC runs [Store.GC] if allocation since the last GC exceeds the
// threshold described in spec.md §4.5, and is a no-op otherwise.
func (s *Store) MaybeGC() error {
	s.mu.Lock()
	due := s.allocSinceGC > gcThresholdWords
	s.mu.Unlock()

	if !due {
		return nil
	}

	return s.GC()
}

// Close releases all resources held by s. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	var errs []error

	if s.data != nil {
		if err := unix.Munmap(s.data); err != nil {
			errs = append(errs, err)
		}

		s.data = nil
	}

	if s.fd >= 0 {
		if err := unix.Close(s.fd); err != nil {
			errs = append(errs, err)
		}

		s.fd = -1
	}

	if s.lock != nil {
		if err := s.lock.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	unregisterStore(s)

	if len(errs) > 0 {
		return fmt.Errorf("close: %v: %w", errs, ErrIoError)
	}

	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
