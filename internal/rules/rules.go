package rules

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/spiffcs/deprecator/internal/model"
)

func buildAll(*model.ReleaseMetadata, Parameter, time.Time) (Predicate, error) {
	return func(model.VersionEntry) bool { return true }, nil
}

func buildMajorVersions(meta *model.ReleaseMetadata, param Parameter, now time.Time) (Predicate, error) {
	months, err := Months(MajorVersions, param)
	if err != nil {
		return nil, err
	}
	latest, err := latestVersion(MajorVersions, meta)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, -months, 0)

	return func(entry model.VersionEntry) bool {
		v, err := model.ParseSemver(entry.Version)
		if err != nil || entry.Time.IsZero() {
			return false
		}
		return v.Major() < latest.Major() && entry.Time.Before(cutoff)
	}, nil
}

func buildMajorVersionsBeforeSuccessor(meta *model.ReleaseMetadata, param Parameter, now time.Time) (Predicate, error) {
	months, err := Months(MajorVersionsBeforeSuccessor, param)
	if err != nil {
		return nil, err
	}
	latest, err := latestVersion(MajorVersionsBeforeSuccessor, meta)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, -months, 0)
	stats := collectLines(meta)

	return func(entry model.VersionEntry) bool {
		v, err := model.ParseSemver(entry.Version)
		if err != nil || v.Major() >= latest.Major() {
			return false
		}
		successor, ok := stats.nextMajor(v.Major())
		if !ok {
			return false
		}
		released, ok := stats.majorReleased[successor]
		if !ok {
			return false
		}
		return released.Before(cutoff)
	}, nil
}

func buildMinorVersionsBeforeSuccessor(meta *model.ReleaseMetadata, param Parameter, now time.Time) (Predicate, error) {
	months, err := Months(MinorVersionsBeforeSuccessor, param)
	if err != nil {
		return nil, err
	}
	latest, err := latestVersion(MinorVersionsBeforeSuccessor, meta)
	if err != nil {
		return nil, err
	}
	cutoff := now.AddDate(0, -months, 0)
	latestLine := model.LineOf(latest)
	stats := collectLines(meta)

	return func(entry model.VersionEntry) bool {
		v, err := model.ParseSemver(entry.Version)
		if err != nil {
			return false
		}
		line := model.LineOf(v)
		if line == latestLine {
			return false
		}
		successor, ok := stats.nextMinor(line)
		if !ok {
			return false
		}
		released, ok := stats.lineReleased[successor]
		if !ok {
			return false
		}
		return released.Before(cutoff)
	}, nil
}

func buildPatchVersions(meta *model.ReleaseMetadata, _ Parameter, _ time.Time) (Predicate, error) {
	latest, err := latestVersion(PatchVersions, meta)
	if err != nil {
		return nil, err
	}
	stats := collectLines(meta)

	return func(entry model.VersionEntry) bool {
		v, err := model.ParseSemver(entry.Version)
		if err != nil || v.Equal(latest) {
			return false
		}
		newest, ok := stats.latestPatch[model.LineOf(v)]
		if !ok {
			return false
		}
		return !v.Equal(newest)
	}, nil
}

func latestVersion(rule Name, meta *model.ReleaseMetadata) (*semver.Version, error) {
	tag := meta.Latest()
	if tag == "" {
		return nil, &model.ConfigurationError{Rule: string(rule), Reason: "package metadata has no 'latest' dist-tag"}
	}
	v, err := model.ParseSemver(tag)
	if err != nil {
		return nil, &model.ConfigurationError{Rule: string(rule), Reason: "'latest' dist-tag " + tag + " is not a valid version"}
	}
	return v, nil
}

// lineStats summarizes a package's release lines. Deprecated versions count:
// a line was released when its first version was published, whatever
// happened to it later.
type lineStats struct {
	majors        []uint64
	majorReleased map[uint64]time.Time

	minors       map[uint64][]uint64
	lineReleased map[model.MinorLine]time.Time

	latestPatch map[model.MinorLine]*semver.Version
}

func collectLines(meta *model.ReleaseMetadata) *lineStats {
	s := &lineStats{
		majorReleased: map[uint64]time.Time{},
		minors:        map[uint64][]uint64{},
		lineReleased:  map[model.MinorLine]time.Time{},
		latestPatch:   map[model.MinorLine]*semver.Version{},
	}
	seenMajor := map[uint64]bool{}
	seenLine := map[model.MinorLine]bool{}

	for _, entry := range meta.Entries() {
		v, err := model.ParseSemver(entry.Version)
		if err != nil {
			continue
		}
		line := model.LineOf(v)

		if !seenMajor[line.Major] {
			seenMajor[line.Major] = true
			s.majors = append(s.majors, line.Major)
		}
		if !seenLine[line] {
			seenLine[line] = true
			s.minors[line.Major] = append(s.minors[line.Major], line.Minor)
		}

		if cur, ok := s.latestPatch[line]; !ok || v.GreaterThan(cur) {
			s.latestPatch[line] = v
		}

		if entry.Time.IsZero() {
			continue
		}
		if cur, ok := s.majorReleased[line.Major]; !ok || entry.Time.Before(cur) {
			s.majorReleased[line.Major] = entry.Time
		}
		if cur, ok := s.lineReleased[line]; !ok || entry.Time.Before(cur) {
			s.lineReleased[line] = entry.Time
		}
	}

	sort.Slice(s.majors, func(i, j int) bool { return s.majors[i] < s.majors[j] })
	for major := range s.minors {
		minors := s.minors[major]
		sort.Slice(minors, func(i, j int) bool { return minors[i] < minors[j] })
	}
	return s
}

// nextMajor returns the smallest observed major greater than major.
func (s *lineStats) nextMajor(major uint64) (uint64, bool) {
	i := sort.Search(len(s.majors), func(i int) bool { return s.majors[i] > major })
	if i == len(s.majors) {
		return 0, false
	}
	return s.majors[i], true
}

// nextMinor returns the smallest observed line in the same major whose minor
// is greater than line's.
func (s *lineStats) nextMinor(line model.MinorLine) (model.MinorLine, bool) {
	minors := s.minors[line.Major]
	i := sort.Search(len(minors), func(i int) bool { return minors[i] > line.Minor })
	if i == len(minors) {
		return model.MinorLine{}, false
	}
	return model.MinorLine{Major: line.Major, Minor: minors[i]}, true
}
