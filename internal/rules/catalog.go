// Package rules implements the deprecation rules. A rule is built against one
// package's release metadata and yields a predicate deciding, per version,
// whether that version should be deprecated.
package rules

import (
	"sort"
	"time"

	"github.com/spiffcs/deprecator/internal/model"
)

// Name identifies a rule in the catalog.
type Name string

const (
	All                          Name = "all"
	MajorVersions                Name = "majorVersions"
	MajorVersionsBeforeSuccessor Name = "majorVersionsBeforeSuccessor"
	MinorVersionsBeforeSuccessor Name = "minorVersionsBeforeSuccessor"
	PatchVersions                Name = "patchVersions"
)

// Parameter is a rule's raw textual parameter. The empty string means the
// parameter was not given.
type Parameter string

// Config maps enabled rules to their parameters.
type Config map[Name]Parameter

// Names returns the configured rule names in sorted order.
func (c Config) Names() []Name {
	names := make([]Name, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Predicate reports whether a version should be deprecated.
type Predicate func(model.VersionEntry) bool

// Builder constructs a predicate for one metadata snapshot.
type Builder func(meta *model.ReleaseMetadata, param Parameter, now time.Time) (Predicate, error)

// Rule is a catalog entry.
type Rule struct {
	Name        Name
	Description string
	// NeedsMonths is set for rules that require a months parameter.
	NeedsMonths bool
	Build       Builder
}

// Catalog is a closed set of rules.
type Catalog struct {
	rules map[Name]Rule
	order []Name
}

// NewCatalog builds a catalog from the given rules. Later rules with the same
// name replace earlier ones.
func NewCatalog(rules ...Rule) *Catalog {
	c := &Catalog{rules: make(map[Name]Rule, len(rules))}
	for _, r := range rules {
		if _, exists := c.rules[r.Name]; !exists {
			c.order = append(c.order, r.Name)
		}
		c.rules[r.Name] = r
	}
	return c
}

// DefaultCatalog returns the rules supported for npm packages.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Rule{
			Name:        All,
			Description: "Deprecate every version that is not already deprecated",
			Build:       buildAll,
		},
		Rule{
			Name:        MajorVersions,
			Description: "Deprecate versions of older majors published more than N months ago",
			NeedsMonths: true,
			Build:       buildMajorVersions,
		},
		Rule{
			Name:        MajorVersionsBeforeSuccessor,
			Description: "Deprecate older majors once the next major has been out for N months",
			NeedsMonths: true,
			Build:       buildMajorVersionsBeforeSuccessor,
		},
		Rule{
			Name:        MinorVersionsBeforeSuccessor,
			Description: "Deprecate minor lines once the next minor has been out for N months",
			NeedsMonths: true,
			Build:       buildMinorVersionsBeforeSuccessor,
		},
		Rule{
			Name:        PatchVersions,
			Description: "Deprecate every patch release superseded within its minor line",
			Build:       buildPatchVersions,
		},
	)
}

// Lookup returns the rule registered under name.
func (c *Catalog) Lookup(name Name) (Rule, bool) {
	r, ok := c.rules[name]
	return r, ok
}

// Rules returns the catalog's rules in registration order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.rules[name])
	}
	return out
}

// Check validates a rule name and its parameter without metadata.
func (c *Catalog) Check(name Name, param Parameter) error {
	r, ok := c.rules[name]
	if !ok {
		return &model.UnknownRuleError{Rule: string(name)}
	}
	if r.NeedsMonths {
		if _, err := Months(name, param); err != nil {
			return err
		}
	}
	return nil
}

// Build constructs the predicate for name against meta.
func (c *Catalog) Build(name Name, meta *model.ReleaseMetadata, param Parameter, now time.Time) (Predicate, error) {
	r, ok := c.rules[name]
	if !ok {
		return nil, &model.UnknownRuleError{Rule: string(name)}
	}
	return r.Build(meta, param, now)
}
