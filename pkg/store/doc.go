// Package store implements a single-file, memory-mapped, append-only object
// heap with atomic root commit, copying garbage collection, a content-addressed
// intern table, and persistent hash-trie dictionaries with strong, weak-key,
// and weak-value-set reference semantics.
//
// A [Store] is opened from a single backing file. Objects are written once
// and never mutated in place (the only exceptions are the file header during
// [Store.SetRoot] and scratch [Builder] objects prior to being stored). To
// publish a new snapshot, a caller builds new objects — optionally as cheap
// scratch objects via [Builder] — and calls [Store.SetRoot], which is the
// only operation that can make new data durably visible.
//
// slotcache and store share a family resemblance: both are single-writer,
// mmap'd, header-prefixed files coordinated with an advisory lock and an
// in-process handle registry. store additionally owns its objects' lifetime
// end to end — nothing is freed individually, only reclaimed in bulk by
// [Store.GC].
package store
