package cmd

import "github.com/spiffcs/deprecator/internal/constants"

// Options holds the command-line options for a deprecation run.
type Options struct {
	Rules        []string
	DryRun       bool
	AutoDiscover bool

	Root       string
	Repository string
	Endpoint   string
	Exclude    []string

	Workers     int
	Concurrency int

	Format    string
	LogFormat string
	Verbosity int
	TUI       *bool // nil = auto-detect, true = force TUI, false = disable TUI

	// Profiling options
	CPUProfile string
	MemProfile string
	Trace      string
}

// Option is a functional option for configuring Options.
type Option func(*Options)

// NewOptions creates a new Options with defaults and applies any provided options.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		Root:        ".",
		Workers:     constants.DefaultWorkers,
		Concurrency: constants.DefaultConcurrency,
		LogFormat:   "text",
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithRules sets the rule specs, e.g. "all" or "majorVersions=6".
func WithRules(specs ...string) Option {
	return func(o *Options) {
		o.Rules = specs
	}
}

// WithDryRun simulates deprecations.
func WithDryRun(dryRun bool) Option {
	return func(o *Options) {
		o.DryRun = dryRun
	}
}

// WithRoot sets the directory searched for manifests.
func WithRoot(root string) Option {
	return func(o *Options) {
		o.Root = root
	}
}

// WithFormat sets the output format (text, json, table).
func WithFormat(format string) Option {
	return func(o *Options) {
		o.Format = format
	}
}

// WithVerbosity sets the verbosity level.
func WithVerbosity(v int) Option {
	return func(o *Options) {
		o.Verbosity = v
	}
}

// WithTUI controls TUI mode (nil = auto-detect, true = force, false = disable).
func WithTUI(tui *bool) Option {
	return func(o *Options) {
		o.TUI = tui
	}
}
