// Package model contains the release metadata, outcome and error types shared
// by the rule engine, the selector, the executor and the registry client.
// These types are independent of how the metadata was fetched.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/spiffcs/deprecator/internal/log"
)

// DistTagLatest is the dist-tag every rule that reasons about the current
// release line reads.
const DistTagLatest = "latest"

// VersionEntry is one published version of a package.
type VersionEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Deprecated holds the deprecation message when the registry reports the
	// version as deprecated. Empty means not deprecated.
	Deprecated string `json:"deprecated,omitempty"`
	// Time is the publish time, attached from the packument's time map.
	// It is zero when the registry did not report one.
	Time time.Time `json:"-"`
}

// IsDeprecated reports whether the version has already been deprecated.
func (v VersionEntry) IsDeprecated() bool {
	return v.Deprecated != ""
}

// ID returns the package@version identifier used by npm.
func (v VersionEntry) ID() string {
	return v.Name + "@" + v.Version
}

// UnmarshalJSON accepts the shapes registries use for "deprecated": a
// message string, a boolean, or null.
func (v *VersionEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name       string          `json:"name"`
		Version    string          `json:"version"`
		Deprecated json.RawMessage `json:"deprecated"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	v.Name = raw.Name
	v.Version = raw.Version
	v.Deprecated = deprecationNotice(raw.Deprecated)
	return nil
}

func deprecationNotice(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`:
		return ""
	case "true":
		return "deprecated"
	}

	if raw[0] == '"' {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			return msg
		}
	}
	return string(raw)
}

// ReleaseMetadata is a package's full release history as reported by the
// registry. Versions keep the order of the registry response.
//
// A ReleaseMetadata is immutable once returned by Parse or
// NewReleaseMetadata; rules and the selector only read it.
type ReleaseMetadata struct {
	Name     string                                       `json:"name"`
	DistTags map[string]string                            `json:"dist-tags"`
	Versions *orderedmap.OrderedMap[string, VersionEntry] `json:"versions"`
	Time     map[string]string                            `json:"time"`
}

// Parse decodes a packument and attaches each version's publish time. name
// is the requested package name, used when the document does not carry one.
func Parse(data []byte, name string) (*ReleaseMetadata, error) {
	var meta ReleaseMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode package metadata: %w", err)
	}
	if meta.Name == "" {
		meta.Name = name
	}
	if meta.Versions == nil {
		meta.Versions = orderedmap.New[string, VersionEntry]()
	}
	for pair := meta.Versions.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Name == "" {
			pair.Value.Name = meta.Name
		}
		if pair.Value.Version == "" {
			pair.Value.Version = pair.Key
		}
	}
	meta.attachTimes()
	return &meta, nil
}

// NewReleaseMetadata builds metadata from entries already carrying their
// publish times. Entry order is preserved.
func NewReleaseMetadata(name, latest string, entries ...VersionEntry) *ReleaseMetadata {
	meta := &ReleaseMetadata{
		Name:     name,
		DistTags: map[string]string{},
		Versions: orderedmap.New[string, VersionEntry](len(entries)),
		Time:     map[string]string{},
	}
	if latest != "" {
		meta.DistTags[DistTagLatest] = latest
	}
	for _, e := range entries {
		if e.Name == "" {
			e.Name = name
		}
		meta.Versions.Set(e.Version, e)
		if !e.Time.IsZero() {
			meta.Time[e.Version] = e.Time.UTC().Format(time.RFC3339Nano)
		}
	}
	return meta
}

// attachTimes copies each valid semver key of the time map onto the matching
// version entry. Keys without a matching version, such as "created" and
// "modified", are ignored.
func (m *ReleaseMetadata) attachTimes() {
	for version, stamp := range m.Time {
		if _, err := ParseSemver(version); err != nil {
			continue
		}

		entry, ok := m.Versions.Get(version)
		if !ok {
			log.Debug("time entry has no matching version", "package", m.Name, "version", version)
			continue
		}

		published, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			log.Debug("ignoring unparseable publish time", "package", m.Name, "version", version, "time", strconv.Quote(stamp))
			continue
		}

		entry.Time = published
		m.Versions.Set(version, entry)
	}
}

// Latest returns the version the "latest" dist-tag points to, or "".
func (m *ReleaseMetadata) Latest() string {
	if m == nil || m.DistTags == nil {
		return ""
	}
	return m.DistTags[DistTagLatest]
}

// Len returns the number of published versions.
func (m *ReleaseMetadata) Len() int {
	if m == nil || m.Versions == nil {
		return 0
	}
	return m.Versions.Len()
}

// Entries returns the versions in registry order.
func (m *ReleaseMetadata) Entries() []VersionEntry {
	if m == nil || m.Versions == nil {
		return nil
	}
	entries := make([]VersionEntry, 0, m.Len())
	for pair := m.Versions.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, pair.Value)
	}
	return entries
}

// Lookup returns the entry for a version string.
func (m *ReleaseMetadata) Lookup(version string) (VersionEntry, bool) {
	if m == nil || m.Versions == nil {
		return VersionEntry{}, false
	}
	return m.Versions.Get(version)
}
