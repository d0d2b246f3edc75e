package resolve

import (
	"fmt"

	"github.com/lucasmendez/aptgo/pkg/store"
)

// TagPlan and TagPlanStep are the record tags used to persist a Plan into
// the struct-store: a TagPlan record whose fields are TagPlanStep records,
// one per install step, each a (name, version) pair of interned blobs.
// Persisting the plan as an ordinary rooted record means a generated
// install plan survives process restarts and participates in GC like any
// other value reachable from the store root.
const (
	TagPlan     uint8 = 11
	TagPlanStep uint8 = 12
)

// Store materializes plan into b, interning each package name and version
// so that the same name repeated across plans (a common base dependency)
// shares storage with the repository index's own interned fields.
func Store(b *store.Builder, interner *store.InternHandle, plan Plan) (store.Value, error) {
	steps := make([]store.Value, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		nameBlob := b.NewBlob([]byte(step.Name))

		nameRef, err := interner.Intern(b, nameBlob)
		if err != nil {
			return store.Null, fmt.Errorf("resolve: intern name %q: %w", step.Name, err)
		}

		versionBlob := b.NewBlob([]byte(step.Version))

		versionRef, err := interner.Intern(b, versionBlob)
		if err != nil {
			return store.Null, fmt.Errorf("resolve: intern version %q: %w", step.Version, err)
		}

		stepRec, err := b.NewRecord(TagPlanStep, nameRef, versionRef)
		if err != nil {
			return store.Null, fmt.Errorf("resolve: build plan step for %q: %w", step.Name, err)
		}

		steps = append(steps, stepRec)
	}

	rec, err := b.NewRecord(TagPlan, steps...)
	if err != nil {
		return store.Null, fmt.Errorf("resolve: build plan record: %w", err)
	}

	return rec, nil
}

// Load reconstructs the (name, version) pairs of a plan previously
// persisted with Store.
func Load(s *store.Store, plan store.Value) ([][2]string, error) {
	if s.Tag(plan) != TagPlan {
		return nil, fmt.Errorf("resolve: value is not a plan record (tag %d)", s.Tag(plan))
	}

	n := s.Len(plan)
	out := make([][2]string, 0, n)

	for i := range n {
		step := s.Ref(plan, i)
		if s.Tag(step) != TagPlanStep {
			return nil, fmt.Errorf("resolve: plan step %d has unexpected tag %d", i, s.Tag(step))
		}

		name := string(s.BlobBytes(s.Ref(step, 0)))
		version := string(s.BlobBytes(s.Ref(step, 1)))

		out = append(out, [2]string{name, version})
	}

	return out, nil
}
