package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is wrapped by every ConfigurationError.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrUnknownRule is wrapped by every UnknownRuleError.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrRegistryFetch is wrapped by every RegistryFetchError.
	ErrRegistryFetch = errors.New("registry fetch failed")

	// ErrExecution is wrapped by every ExecutionError.
	ErrExecution = errors.New("deprecate command failed")
)

// ConfigurationError reports unusable configuration: a missing rules mapping,
// a rule parameter that is not a number, or metadata without a usable
// "latest" dist-tag.
type ConfigurationError struct {
	Rule   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("invalid configuration for rule %q: %s", e.Rule, e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// UnknownRuleError names a requested rule that is not in the catalog.
type UnknownRuleError struct {
	Rule string
}

func (e *UnknownRuleError) Error() string {
	return fmt.Sprintf("the following rule is not supported by the 'npm' manager - %s", e.Rule)
}

func (e *UnknownRuleError) Unwrap() error {
	return ErrUnknownRule
}

// RegistryFetchError wraps a failure to fetch or decode a package's metadata.
type RegistryFetchError struct {
	Package    string
	URL        string
	StatusCode int
	Err        error
}

func (e *RegistryFetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to fetch metadata for %s", e.Package)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RegistryFetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRegistryFetch}
	}
	return []error{ErrRegistryFetch, e.Err}
}

// ExecutionError reports a deprecate command that exited non-zero or could
// not be started.
type ExecutionError struct {
	Package  string
	Version  string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecutionError) Error() string {
	detail := strings.TrimSpace(e.Output)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	return fmt.Sprintf("failed to deprecate %s@%s - %s", e.Package, e.Version, detail)
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecution}
	}
	return []error{ErrExecution, e.Err}
}
