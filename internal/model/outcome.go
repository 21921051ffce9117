package model

// OutcomeStatus describes what happened to one version during a run.
type OutcomeStatus int

const (
	// StatusDeprecated means the deprecate action ran (or was simulated).
	StatusDeprecated OutcomeStatus = iota + 1
	StatusSkippedAlreadyDeprecated
	StatusSkippedNoRuleMatch
	StatusFailed
)

// String returns the status as shown in logs and table output.
func (s OutcomeStatus) String() string {
	switch s {
	case StatusDeprecated:
		return "deprecated"
	case StatusSkippedAlreadyDeprecated:
		return "already-deprecated"
	case StatusSkippedNoRuleMatch:
		return "no-rule-match"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of deciding on, and possibly deprecating, a version.
type Outcome struct {
	Entry  VersionEntry
	Status OutcomeStatus
	// Simulated is set for dry-run deprecations.
	Simulated bool
	// Rules lists the rules that selected the version.
	Rules []string
	Err   error
}

// Deprecated reports whether the version reached the deprecated state.
func (o Outcome) Deprecated() bool {
	return o.Status == StatusDeprecated
}
