package control

import "strings"

// Relation is one entry of a Depends:/Conflicts:-style field: a package name,
// an optional version constraint, and any "|" alternatives. "libc6 (>= 2.34)
// | libc6-compat" parses to a two-element Alternatives slice.
type Relation struct {
	Alternatives []Alternative
}

// Alternative is a single "name (op version)" choice within a Relation.
type Alternative struct {
	Name   string
	Op     string // one of "", "<<", "<=", "=", ">=", ">>", "<", ">"
	Version string
}

// ParseRelations parses a comma-separated Depends:/Conflicts:/Provides:-style
// field value into its individual relations, each possibly containing "|"
// alternatives, per original_source/libdpm's relation grammar.
func ParseRelations(value string) []Relation {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	var relations []Relation

	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var alts []Alternative

		for _, alt := range strings.Split(part, "|") {
			alts = append(alts, parseAlternative(strings.TrimSpace(alt)))
		}

		relations = append(relations, Relation{Alternatives: alts})
	}

	return relations
}

func parseAlternative(s string) Alternative {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return Alternative{Name: strings.TrimSpace(s)}
	}

	name := strings.TrimSpace(s[:open])

	close := strings.IndexByte(s[open:], ')')
	if close < 0 {
		return Alternative{Name: name}
	}

	constraint := strings.TrimSpace(s[open+1 : open+close])

	for _, op := range []string{"<<", "<=", ">=", ">>", "=", "<", ">"} {
		if rest, ok := strings.CutPrefix(constraint, op); ok {
			return Alternative{Name: name, Op: op, Version: strings.TrimSpace(rest)}
		}
	}

	return Alternative{Name: name, Version: constraint}
}
