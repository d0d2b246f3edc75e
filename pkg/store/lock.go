package store

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Locking architecture
//
//  1. Store.mu — per-handle state (length, counters, mmap region).
//
//  2. registryEntry — per-file in-process bookkeeping: a single OS process
//     may open the same struct-store file more than once (tests, a REPL
//     opening a store while a long-running command also holds it open). All
//     Store handles backed by the same (dev, ino) share one registryEntry,
//     which counts them and whose hasWriter flag admits at most one writer
//     handle at a time. registryEntry.mu is not taken by any Store
//     operation, so reads through one handle are not serialized against
//     writes through another.
//
//  3. the advisory writer lock file at path+".lock" (via [fs.Locker] in
//     [Open]) excludes other writers of that path, in this process or
//     another, matching spec.md §5's single-writer rule.
//
// Store.mu is the only mutex a Store operation takes.
var fileRegistry sync.Map // map[fileIdentity]*registryEntry

type fileIdentity struct {
	dev uint64
	ino uint64
}

type registryEntry struct {
	mu         sync.RWMutex
	openCount  atomic.Int32
	hasWriter  atomic.Bool
}

func identityOf(fd int) (fileIdentity, error) {
	var st unix.Stat_t

	if err := unix.Fstat(fd, &st); err != nil {
		return fileIdentity{}, err
	}

	return fileIdentity{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}

// registerStore records s in the in-process registry, enforcing that at
// most one writer handle exists per (dev, ino) within this process. The
// cross-process half of single-writer enforcement is the advisory lock
// file acquired in [Open]. That lock is keyed by path, while hasWriter is
// keyed by (dev, ino), so it also catches a second writer that reaches the
// same file under another path.
func registerStore(s *Store) error {
	id, err := identityOf(s.fd)
	if err != nil {
		// Identity is best-effort bookkeeping; a failure here does not
		// compromise correctness of the per-process advisory lock file,
		// which is authoritative for cross-process exclusion.
		return nil
	}

	entry := getOrCreateEntry(id)

	if s.mode != ModeReadOnly && !entry.hasWriter.CompareAndSwap(false, true) {
		releaseEntry(id)

		return fmt.Errorf("store %s: %w", s.path, ErrLocked)
	}

	s.registryID = id

	return nil
}

func unregisterStore(s *Store) {
	val, ok := fileRegistry.Load(s.registryID)
	if ok && s.mode != ModeReadOnly {
		val.(*registryEntry).hasWriter.Store(false)
	}

	releaseEntry(s.registryID)
}

func getOrCreateEntry(id fileIdentity) *registryEntry {
	for {
		if val, loaded := fileRegistry.Load(id); loaded {
			entry := val.(*registryEntry)

			for {
				old := entry.openCount.Load()
				if old <= 0 {
					break
				}

				if entry.openCount.CompareAndSwap(old, old+1) {
					return entry
				}
			}

			continue
		}

		entry := &registryEntry{}
		entry.openCount.Store(1)

		if _, loaded := fileRegistry.LoadOrStore(id, entry); !loaded {
			return entry
		}
	}
}

func releaseEntry(id fileIdentity) {
	val, ok := fileRegistry.Load(id)
	if !ok {
		return
	}

	entry := val.(*registryEntry)

	if entry.openCount.Add(-1) <= 0 {
		fileRegistry.CompareAndDelete(id, entry)
	}
}
