// Package selector decides which versions of a package to deprecate by
// running the enabled rules over its release history.
package selector

import (
	"time"

	"github.com/spiffcs/deprecator/internal/log"
	"github.com/spiffcs/deprecator/internal/model"
	"github.com/spiffcs/deprecator/internal/rules"
)

// Decision records whether one version was selected and why.
type Decision struct {
	Entry  model.VersionEntry
	Status model.OutcomeStatus
	// Rules holds the names of the rules that matched, in sorted order.
	Rules []string
}

// Selected reports whether the version should be deprecated.
func (d Decision) Selected() bool {
	return len(d.Rules) > 0 && d.Status != model.StatusSkippedAlreadyDeprecated
}

// Selector evaluates a rule configuration against release metadata.
type Selector struct {
	catalog *rules.Catalog
	now     func() time.Time
}

// Option configures a Selector.
type Option func(*Selector)

// WithClock sets the clock used for time-based rules.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

// New returns a Selector over catalog. A nil catalog means the default one.
func New(catalog *rules.Catalog, opts ...Option) *Selector {
	if catalog == nil {
		catalog = rules.DefaultCatalog()
	}
	s := &Selector{
		catalog: catalog,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the rules the selector evaluates against.
func (s *Selector) Catalog() *rules.Catalog {
	return s.catalog
}

// Validate checks rule names and parameters without any metadata. Rules are
// checked in sorted order so the first reported problem is stable.
func (s *Selector) Validate(cfg rules.Config) error {
	for _, name := range cfg.Names() {
		if err := s.catalog.Check(name, cfg[name]); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate decides every version of meta. An empty configuration returns no
// decisions and invokes no rule.
func (s *Selector) Evaluate(meta *model.ReleaseMetadata, cfg rules.Config) ([]Decision, error) {
	if len(cfg) == 0 {
		log.Debug("no rules to apply", "package", meta.Name)
		return nil, nil
	}

	names := cfg.Names()
	for _, name := range names {
		if _, ok := s.catalog.Lookup(name); !ok {
			return nil, &model.UnknownRuleError{Rule: string(name)}
		}
	}

	now := s.now()
	predicates := make([]rules.Predicate, len(names))
	for i, name := range names {
		pred, err := s.catalog.Build(name, meta, cfg[name], now)
		if err != nil {
			return nil, err
		}
		predicates[i] = pred
	}

	entries := meta.Entries()
	decisions := make([]Decision, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDeprecated() {
			log.Debug("ignoring version that is already deprecated",
				"package", entry.Name, "version", entry.Version, "message", entry.Deprecated)
			decisions = append(decisions, Decision{Entry: entry, Status: model.StatusSkippedAlreadyDeprecated})
			continue
		}

		d := Decision{Entry: entry, Status: model.StatusSkippedNoRuleMatch}
		for i, pred := range predicates {
			if pred(entry) {
				d.Rules = append(d.Rules, string(names[i]))
			}
		}
		if len(d.Rules) > 0 {
			d.Status = model.StatusDeprecated
			log.Debug("version selected", "package", entry.Name, "version", entry.Version, "rules", d.Rules)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// Select returns the versions to deprecate, in registry order.
func (s *Selector) Select(meta *model.ReleaseMetadata, cfg rules.Config) ([]model.VersionEntry, error) {
	decisions, err := s.Evaluate(meta, cfg)
	if err != nil {
		return nil, err
	}
	selected := make([]model.VersionEntry, 0, len(decisions))
	for _, d := range decisions {
		if d.Selected() {
			selected = append(selected, d.Entry)
		}
	}
	return selected, nil
}
