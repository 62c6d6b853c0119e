// Package rename implements the signal-renaming table of spec.md §4.6
// ("Renaming"): two directional tables, one per data direction, each
// parsed from a comma-separated list of "original:alias" pairs.
//
// Grounded on the teacher's small string-munging helpers in
// internal/mqtt's topic builders — a single-purpose parser, tested
// table-driven, no external parsing library pulled in for a format this
// small.
package rename

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Table maps original signal names to their alias for one direction.
type Table struct {
	origToAlias map[string]string
	aliasToOrig map[string]string
}

// Parse builds a Table from a comma-separated "original:alias" list.
// Fails on: a malformed pair, a duplicate original key, an alias that
// doesn't match [A-Za-z0-9_]+, or an alias collision between two
// different originals (spec.md §4.6).
func Parse(spec string) (*Table, error) {
	t := &Table{
		origToAlias: make(map[string]string),
		aliasToOrig: make(map[string]string),
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return t, nil
	}

	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, coreerr.New(coreerr.InvalidArg, fmt.Sprintf("rename: malformed pair %q, expected original:alias", pair))
		}
		orig := strings.TrimSpace(parts[0])
		alias := strings.TrimSpace(parts[1])
		if orig == "" || alias == "" {
			return nil, coreerr.New(coreerr.InvalidArg, fmt.Sprintf("rename: empty original or alias in %q", pair))
		}
		if !aliasPattern.MatchString(alias) {
			return nil, coreerr.New(coreerr.InvalidArg, fmt.Sprintf("rename: alias %q must match [A-Za-z0-9_]+", alias))
		}
		if _, dup := t.origToAlias[orig]; dup {
			return nil, coreerr.New(coreerr.InvalidArg, fmt.Sprintf("rename: duplicate original key %q", orig))
		}
		if existingOrig, collide := t.aliasToOrig[alias]; collide && existingOrig != orig {
			return nil, coreerr.New(coreerr.NotSupported, fmt.Sprintf("rename: alias %q already used by %q", alias, existingOrig))
		}
		t.origToAlias[orig] = alias
		t.aliasToOrig[alias] = orig
	}
	return t, nil
}

// Alias returns the alias for orig, or orig unchanged if it has no
// entry in the table (unmapped names pass through verbatim).
func (t *Table) Alias(orig string) string {
	if t == nil {
		return orig
	}
	if alias, ok := t.origToAlias[orig]; ok {
		return alias
	}
	return orig
}

// Original returns the original name for alias, or alias unchanged if
// it has no entry in the table.
func (t *Table) Original(alias string) string {
	if t == nil {
		return alias
	}
	if orig, ok := t.aliasToOrig[alias]; ok {
		return orig
	}
	return alias
}

// HasAlias reports whether alias collides with another already
// registered alias in this table, i.e. belongs to a different original
// than candidateOrig. Registries use this to enforce the "computed
// alias collides with another already-registered alias in the same
// direction" rule of spec.md §4.6 when merging renaming with dynamic
// signal registration.
func (t *Table) HasAlias(alias, candidateOrig string) bool {
	if t == nil {
		return false
	}
	orig, ok := t.aliasToOrig[alias]
	return ok && orig != candidateOrig
}
