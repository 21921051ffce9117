// Package report condenses per-package deprecation results into a single
// mapping of package name to deprecated versions.
package report

import (
	"github.com/spiffcs/deprecator/internal/model"
)

// Report maps package names to the versions deprecated in a run.
type Report map[string][]string

// Empty reports whether nothing was deprecated.
func (r Report) Empty() bool {
	for _, versions := range r {
		if len(versions) > 0 {
			return false
		}
	}
	return true
}

// Count returns the number of deprecated versions across all packages.
func (r Report) Count() int {
	n := 0
	for _, versions := range r {
		n += len(versions)
	}
	return n
}

// Condense flattens per-package entry lists. Versions keep the order in which
// they are encountered. The result is never nil.
func Condense(lists [][]model.VersionEntry) Report {
	out := Report{}
	for _, list := range lists {
		for _, entry := range list {
			out[entry.Name] = append(out[entry.Name], entry.Version)
		}
	}
	return out
}

// CondenseOutcomes condenses only the outcomes that reached the deprecated
// state, simulated or not.
func CondenseOutcomes(lists [][]model.Outcome) Report {
	entries := make([][]model.VersionEntry, 0, len(lists))
	for _, list := range lists {
		var deprecated []model.VersionEntry
		for _, o := range list {
			if o.Deprecated() {
				deprecated = append(deprecated, o.Entry)
			}
		}
		entries = append(entries, deprecated)
	}
	return Condense(entries)
}
