package control

import (
	"fmt"

	"github.com/lucasmendez/aptgo/pkg/store"
)

// TagCatalog is the root-reachable record tying together every indexed
// package-version record and the intern table that backs their string
// fields, so both survive GC as one rooted structure: store.SetRoot takes
// a TagCatalog record, not a bare intern-table root.
const TagCatalog uint8 = 13

// Catalog index within a TagCatalog record.
const (
	catalogFieldVersions = iota
	catalogFieldInternRoot
	catalogFieldCount
)

// BuildCatalog assembles a root-ready catalog record out of versions (as
// returned by Index) and the current intern table root.
func BuildCatalog(b *store.Builder, versions []store.Value, internRoot store.Value) (store.Value, error) {
	list, err := b.NewRecord(TagCatalog+1, versions...)
	if err != nil {
		return store.Null, fmt.Errorf("control: build catalog version list: %w", err)
	}

	rec, err := b.NewRecord(TagCatalog, list, internRoot)
	if err != nil {
		return store.Null, fmt.Errorf("control: build catalog: %w", err)
	}

	return rec, nil
}

// Versions returns the package-version records held by a stored TagCatalog
// record.
func Versions(s *store.Store, catalog store.Value) []store.Value {
	list := s.Ref(catalog, catalogFieldVersions)

	out := make([]store.Value, s.Len(list))
	for i := range out {
		out[i] = s.Ref(list, i)
	}

	return out
}

// InternRoot returns the intern table root embedded in a stored TagCatalog
// record, for constructing a fresh InternHandle to keep interning against it.
func InternRoot(s *store.Store, catalog store.Value) store.Value {
	return s.Ref(catalog, catalogFieldInternRoot)
}
