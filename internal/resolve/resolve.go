// Package resolve picks the best candidate version for each package
// (origin/priority policy, mirroring dpm_pol_get_best_version) and computes
// a topological install order over the dependency graph.
//
// A package "blocked by" its unmet dependencies is exactly the relation the
// teacher's ticket tracker calls blocked-by: a dependency cycle is detected
// with the same DFS-with-visited-set walk block.go uses to reject a blocker
// cycle, and "what is ready to install now" is ready.go's "what can run
// now" query applied to packages instead of tickets.
//
// The resolver's working graph is plain Go values (Candidate, grapher), not
// struct-store objects. Store (plan_store.go) builds a finished Plan into a
// struct-store record through a Builder; it neither stores that record nor
// links it from the store root.
package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrDependencyCycle is returned when the dependency graph contains a
	// cycle, mirroring the teacher's blocker-cycle detection in block.go.
	ErrDependencyCycle = errors.New("resolve: dependency cycle detected")
	// ErrUnsatisfied is returned when a required dependency has no
	// candidate version in the index at all.
	ErrUnsatisfied = errors.New("resolve: unsatisfied dependency")
)

// Candidate is one version of a package available for installation.
type Candidate struct {
	Name     string
	Version  string
	Priority int // higher wins; origin/pin priority per dpm_pol_get_best_version
	Depends  []string
}

// Index maps a package name to its available candidates, as assembled from
// one or more parsed repository indices.
type Index map[string][]Candidate

// BestVersion picks the highest-priority candidate for name, breaking ties
// by version string ordering (lexicographic, matching the teacher's
// doc-comment convention of "good enough, not a full dpkg version compare"
// for anything outside the struct-store's own hard-engineering core).
func (idx Index) BestVersion(name string) (Candidate, bool) {
	candidates, ok := idx[name]
	if !ok || len(candidates) == 0 {
		return Candidate{}, false
	}

	best := candidates[0]

	for _, c := range candidates[1:] {
		if c.Priority > best.Priority || (c.Priority == best.Priority && c.Version > best.Version) {
			best = c
		}
	}

	return best, true
}

// Plan is the ordered list of packages to install, earliest-first, such
// that every package's dependencies already appear earlier in the list.
type Plan struct {
	Steps []Candidate
}

// Resolve computes an install Plan for the requested root package names.
func Resolve(idx Index, roots []string) (Plan, error) {
	g := &grapher{idx: idx, resolved: map[string]Candidate{}, visiting: map[string]bool{}}

	for _, name := range roots {
		if err := g.visit(name, nil); err != nil {
			return Plan{}, err
		}
	}

	return Plan{Steps: g.order}, nil
}

type grapher struct {
	idx      Index
	resolved map[string]Candidate
	visiting map[string]bool
	order    []Candidate
}

// visit walks name's dependency subtree depth-first, appending to g.order
// in dependency-first (topological) order. path tracks the current DFS
// stack so a cycle can be reported with the offending chain, the same
// shape the teacher's findBlockerPath returns.
func (g *grapher) visit(name string, path []string) error {
	if _, done := g.resolved[name]; done {
		return nil
	}

	if g.visiting[name] {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, formatCycle(append(path, name)))
	}

	g.visiting[name] = true
	defer delete(g.visiting, name)

	best, ok := g.idx.BestVersion(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsatisfied, name)
	}

	for _, dep := range best.Depends {
		if err := g.visit(dep, append(path, name)); err != nil {
			return err
		}
	}

	g.resolved[name] = best
	g.order = append(g.order, best)

	return nil
}

func formatCycle(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += " -> " + p
	}

	return out
}

// Ready returns the subset of plan's steps whose dependencies are already
// present in installed (a package-name set), the "what can be installed
// now" query: the direct analogue of the teacher's ready.go "what can run
// now" over unblocked tickets.
func Ready(plan Plan, installed map[string]bool) []Candidate {
	var ready []Candidate

	for _, step := range plan.Steps {
		if installed[step.Name] {
			continue
		}

		blocked := false

		for _, dep := range step.Depends {
			if !installed[dep] {
				blocked = true

				break
			}
		}

		if !blocked {
			ready = append(ready, step)
		}
	}

	return ready
}
