package control

import (
	"fmt"

	"github.com/lucasmendez/aptgo/pkg/store"
)

// TagPackageVersion is the counted tag under which each parsed stanza is
// stored: one record per "Package: name / Version: x" pair, auto-numbered
// by the store so every indexed version gets a dense, stable identity
// usable as a dictionary key elsewhere (the install driver's
// installed-status dictionary, the resolver's dependency graph).
const TagPackageVersion uint8 = 64

// TagRelationList is an ordinary (non-counted) record tag: a flattened list
// of interned "name op version" alternatives, grouped by a leading count
// field per OR-group. It must not be a counted tag (64..79), since a
// counted tag's field 0 is reserved for an auto-assigned id and would
// clobber the leading group-size field used here.
const TagRelationList uint8 = 10

// Field indices within a TagPackageVersion record.
const (
	fieldID = iota
	fieldName
	fieldVersion
	fieldArch
	fieldDepends
	fieldConflicts
	fieldProvides
	fieldDescription
	fieldCount
)

// Index builds one record per parsed stanza through b, interning the
// Package, Version and Architecture fields and every relation alternative
// through interner so that identical values repeated across thousands of
// stanzas in a repository index (a common Architecture: or Depends:
// dependency name, for instance) share a single blob. Description is stored
// as a plain blob and is not interned.
func Index(b *store.Builder, interner *store.InternHandle, stanzas []Stanza) ([]store.Value, error) {
	out := make([]store.Value, 0, len(stanzas))

	for _, st := range stanzas {
		v, err := indexStanza(b, interner, st)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func indexStanza(b *store.Builder, interner *store.InternHandle, st Stanza) (store.Value, error) {
	name, _ := st.Get("Package")
	version, _ := st.Get("Version")
	arch, _ := st.Get("Architecture")
	description, _ := st.Get("Description")

	depends, err := internRelationList(b, interner, st, "Depends")
	if err != nil {
		return store.Null, err
	}

	conflicts, err := internRelationList(b, interner, st, "Conflicts")
	if err != nil {
		return store.Null, err
	}

	provides, err := internRelationList(b, interner, st, "Provides")
	if err != nil {
		return store.Null, err
	}

	nameRef, err := internString(b, interner, name)
	if err != nil {
		return store.Null, err
	}

	versionRef, err := internString(b, interner, version)
	if err != nil {
		return store.Null, err
	}

	archRef, err := internString(b, interner, arch)
	if err != nil {
		return store.Null, err
	}

	descRef := b.NewBlob([]byte(description))

	fields := make([]store.Value, fieldCount)
	fields[fieldID] = store.Null // auto-assigned on Store
	fields[fieldName] = nameRef
	fields[fieldVersion] = versionRef
	fields[fieldArch] = archRef
	fields[fieldDepends] = depends
	fields[fieldConflicts] = conflicts
	fields[fieldProvides] = provides
	fields[fieldDescription] = descRef

	rec, err := b.NewRecord(TagPackageVersion, fields...)
	if err != nil {
		return store.Null, fmt.Errorf("control: build record for %s %s: %w", name, version, err)
	}

	return rec, nil
}

func internString(b *store.Builder, interner *store.InternHandle, s string) (store.Value, error) {
	if s == "" {
		return store.Null, nil
	}

	blob := b.NewBlob([]byte(s))

	v, err := interner.Intern(b, blob)
	if err != nil {
		return store.Null, fmt.Errorf("control: intern %q: %w", s, err)
	}

	return v, nil
}

// internRelationList builds a scratch record whose fields are one blob per
// alternative, flattened as "name op version" text and interned, with a
// leading int recording how many alternatives belong to each relation
// group (so the resolver can re-split the flat list back into OR-groups).
func internRelationList(b *store.Builder, interner *store.InternHandle, st Stanza, field string) (store.Value, error) {
	value, ok := st.Get(field)
	if !ok {
		return store.Null, nil
	}

	relations := ParseRelations(value)

	var fields []store.Value

	for _, rel := range relations {
		fields = append(fields, store.FromInt(int32(len(rel.Alternatives))))

		for _, alt := range rel.Alternatives {
			text := alt.Name
			if alt.Op != "" {
				text = fmt.Sprintf("%s %s %s", alt.Name, alt.Op, alt.Version)
			}

			ref, err := internString(b, interner, text)
			if err != nil {
				return store.Null, err
			}

			fields = append(fields, ref)
		}
	}

	rec, err := b.NewRecord(TagRelationList, fields...)
	if err != nil {
		return store.Null, fmt.Errorf("control: build relation list for %s: %w", field, err)
	}

	return rec, nil
}
