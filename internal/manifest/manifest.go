// Package manifest finds package.json manifests on disk or in a GitHub
// repository and extracts the package names they declare.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"github.com/spiffcs/deprecator/internal/constants"
)

// Pattern selects manifest files by slash-separated path relative to the
// root being searched.
type Pattern struct {
	Include string
	Exclude []string
}

// DefaultPattern matches every package.json outside node_modules.
func DefaultPattern(extraExcludes ...string) Pattern {
	return Pattern{
		Include: constants.ManifestPattern,
		Exclude: append([]string{constants.VendoredPattern}, extraExcludes...),
	}
}

// Matcher is a compiled Pattern.
type Matcher struct {
	include glob.Glob
	exclude []glob.Glob
}

// Compile compiles the pattern's globs. "**" crosses directories, "*" does not.
func (p Pattern) Compile() (*Matcher, error) {
	include, err := glob.Compile(p.Include, '/')
	if err != nil {
		return nil, fmt.Errorf("invalid manifest pattern %q: %w", p.Include, err)
	}
	m := &Matcher{include: include}
	for _, ex := range p.Exclude {
		g, err := glob.Compile(ex, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", ex, err)
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

// Match reports whether path is selected.
func (m *Matcher) Match(path string) bool {
	path = strings.TrimPrefix(path, "./")
	if !m.include.Match(path) {
		return false
	}
	for _, ex := range m.exclude {
		if ex.Match(path) {
			return false
		}
	}
	return true
}

// Excluded reports whether any exclude glob matches path.
func (m *Matcher) Excluded(path string) bool {
	for _, ex := range m.exclude {
		if ex.Match(path) {
			return true
		}
	}
	return false
}

// File is a located manifest.
type File struct {
	Path    string
	Content []byte
}

// Locator finds manifest files.
type Locator interface {
	Locate(ctx context.Context, pattern Pattern) ([]File, error)
}

// ParseName returns the "name" field of a package.json document.
func ParseName(content []byte) (string, error) {
	var doc struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("failed to parse package.json: %w", err)
	}
	return strings.TrimSpace(doc.Name), nil
}
