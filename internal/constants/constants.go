// Package constants provides a centralized location for the defaults and
// magic numbers used throughout deprecator.
package constants

import "time"

// Deprecation defaults
const (
	// DeprecationMessage is the notice attached to every deprecated version.
	DeprecationMessage = "This version is no longer supported. Please upgrade."

	// NPMBinary is the command used to deprecate versions.
	NPMBinary = "npm"

	// DefaultWorkers bounds concurrent deprecate commands per package.
	DefaultWorkers = 4

	// DefaultConcurrency bounds concurrently processed packages.
	DefaultConcurrency = 8
)

// Registry constants
const (
	// DefaultRegistry is the public npm registry.
	DefaultRegistry = "https://registry.npmjs.org"

	// RegistryTimeout is the per-request timeout for packument fetches.
	RegistryTimeout = 30 * time.Second

	// DNSRefreshInterval is how often cached DNS entries are refreshed.
	DNSRefreshInterval = 5 * time.Minute

	// BreakerThreshold is the number of consecutive failures that open a
	// registry host's circuit.
	BreakerThreshold = 5

	// BreakerInitialBackoff is the first wait before a tripped circuit is
	// retried. The wait grows exponentially up to BreakerMaxBackoff.
	BreakerInitialBackoff = 500 * time.Millisecond
	BreakerMaxBackoff     = 30 * time.Second
)

// Manifest discovery
const (
	// ManifestPattern matches package.json at the root and at any depth.
	ManifestPattern = "{package.json,**/package.json}"

	// VendoredPattern excludes installed dependencies.
	VendoredPattern = "{node_modules/**,**/node_modules/**}"
)

// GitHub constants
const (
	// RateLimitLowWatermark is the threshold below which rate limit
	// warnings are logged.
	RateLimitLowWatermark = 100

	// AppTokenTTL is the lifetime of the JWT used to authenticate as a
	// GitHub App. GitHub rejects anything longer than ten minutes.
	AppTokenTTL = 5 * time.Minute
)

// TUI update and display constants
const (
	// TUIUpdateInterval is the minimum time between TUI progress updates.
	TUIUpdateInterval = 50 * time.Millisecond

	// TruncationSuffixWidth is the width of the "..." suffix when truncating strings.
	TruncationSuffixWidth = 3
)
