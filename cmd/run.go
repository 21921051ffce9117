package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spiffcs/deprecator/config"
	"github.com/spiffcs/deprecator/internal/engine"
	"github.com/spiffcs/deprecator/internal/ghclient"
	"github.com/spiffcs/deprecator/internal/log"
	"github.com/spiffcs/deprecator/internal/manifest"
	"github.com/spiffcs/deprecator/internal/output"
	"github.com/spiffcs/deprecator/internal/registry"
	"github.com/spiffcs/deprecator/internal/rules"
	"github.com/spiffcs/deprecator/internal/tui"
)

// runRuntime bundles TUI-related state that's threaded through a run.
type runRuntime struct {
	useTUI  bool
	events  chan tui.Event
	tuiDone chan error
}

// startTUI initializes and starts the TUI goroutine if TUI mode is enabled.
func (rt *runRuntime) startTUI(dryRun bool) {
	if !rt.useTUI {
		return
	}
	rt.events = make(chan tui.Event, 100)
	rt.tuiDone = make(chan error, 1)
	go func() {
		rt.tuiDone <- tui.Run(rt.events, tui.WithDryRun(dryRun))
	}()
}

// close closes the event channel and waits for the TUI to finish.
func (rt *runRuntime) close() {
	if rt.events == nil {
		return
	}
	close(rt.events)
	if rt.tuiDone != nil {
		if err := <-rt.tuiDone; err != nil {
			log.Warn("progress display failed", "error", err)
		}
	}
	rt.events = nil
}

// NewCmdRun creates the run command.
func NewCmdRun(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deprecate package versions (same as root deprecator)",
		Long: `Locates package.json manifests, fetches each package's release history
from the registry, and deprecates every version selected by the given rules.

Rules are given as name or name=months, for example:
  deprecator run -r majorVersions=6,patchVersions --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeprecate(cmd, opts)
		},
	}

	addRunFlags(cmd, opts)
	return cmd
}

// addRunFlags adds the run flags to a command.
func addRunFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringSliceVarP(&opts.Rules, "rules", "r", nil, "Comma-separated rules to apply (name or name=months)")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "d", false, "Select versions without deprecating anything")
	cmd.Flags().BoolVar(&opts.AutoDiscover, "auto-discover", false, "Discover repositories automatically (not yet supported)")
	cmd.Flags().StringVar(&opts.Root, "root", opts.Root, "Directory searched for package.json manifests")
	cmd.Flags().StringVar(&opts.Repository, "repository", "", "Read manifests from a GitHub repository (owner/name)")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "GitHub API endpoint (for GitHub Enterprise)")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "Extra manifest globs to skip")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", opts.Workers, "Concurrent npm deprecate calls per package")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", opts.Concurrency, "Packages processed at once")
	cmd.Flags().StringVarP(&opts.Format, "output", "o", "", "Output format (text, json, table)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "Log format (text, json)")
	cmd.Flags().CountVarP(&opts.Verbosity, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")

	// TUI flag with tri-state: nil = auto, true = force, false = disable
	cmd.Flags().Var(newTUIFlag(opts), "tui", "Enable/disable TUI progress (default: auto-detect)")

	cmd.Flags().StringVar(&opts.CPUProfile, "cpuprofile", "", "Write CPU profile to file")
	cmd.Flags().StringVar(&opts.MemProfile, "memprofile", "", "Write memory profile to file")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "Write execution trace to file")
}

func runDeprecate(cmd *cobra.Command, opts *Options) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	profiler := newProfiler(opts)
	if err := profiler.Start(); err != nil {
		return err
	}
	defer profiler.Stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	runCfg, format, err := resolveRun(cmd, opts, cfg)
	if err != nil {
		return err
	}

	rt := &runRuntime{useTUI: shouldUseTUI(opts) && format != output.FormatJSON}
	if err := setupLogging(opts, rt.useTUI); err != nil {
		return err
	}

	registryClient := registry.New(
		registry.WithRegistry(runCfg.Registry),
		registry.WithScopedRegistries(runCfg.ScopedRegistries),
		registry.WithToken(runCfg.RegistryToken),
		registry.WithUserAgent("deprecator/"+version),
	)
	defer registryClient.Close()

	engineOpts := []engine.Option{engine.WithFetcher(registryClient)}

	var ghClient *ghclient.Client
	if runCfg.Repository != "" && !runCfg.AutoDiscover {
		ghClient, err = ghclient.NewClient(ctx, runCfg.Token, ghclient.WithEndpoint(runCfg.Endpoint))
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, engine.WithLocator(manifest.RepositoryLocator{
			Source:     ghClient,
			Repository: runCfg.Repository,
		}))
	}

	rt.startTUI(runCfg.DryRun)
	if rt.useTUI {
		engineOpts = append(engineOpts, engine.WithProgress(tui.StageProgress(rt.events)))
	} else {
		engineOpts = append(engineOpts, engine.WithProgress(logProgress))
	}

	result, runErr := engine.New(engineOpts...).Deprecate(ctx, runCfg)

	if ghClient != nil {
		if _, _, resetAt, limited := ghClient.RateLimitState().Status(); limited {
			tui.SendEvent(rt.events, tui.RateLimitEvent{Limited: true, ResetAt: resetAt})
		}
	}
	for _, e := range tui.SummaryEvents(result) {
		tui.SendEvent(rt.events, e)
	}
	tui.SendEvent(rt.events, tui.DoneEvent{})
	rt.close()

	if log.IsDebug() {
		log.Debug("registry circuit states", "breakers", registryClient.BreakerStates())
	}

	if result != nil {
		if err := output.NewFormatter(format).Format(result, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return runErr
}

// logProgress reports deprecation progress on the log output when the TUI
// is not in use.
func logProgress(stage engine.Stage, completed, total int) {
	if stage != engine.StageDeprecate || completed == 0 || total == 0 {
		return
	}
	log.Progress("Processing packages: %d/%d (%d%%)...", completed, total, completed*100/total)
	if completed == total {
		log.ProgressDone()
	}
}

// resolveRun merges flags over config. Flags only win when explicitly set.
func resolveRun(cmd *cobra.Command, opts *Options, cfg *config.Config) (engine.Config, output.Format, error) {
	flags := cmd.Flags()

	ruleCfg := cfg.RuleConfig()
	if flags.Changed("rules") || ruleCfg == nil {
		parsed, err := rules.ParseSpecs(opts.Rules)
		if err != nil {
			return engine.Config{}, "", err
		}
		ruleCfg = parsed
	}

	runCfg := engine.Config{
		Rules:            ruleCfg,
		DryRun:           cfg.IsDryRun(),
		AutoDiscover:     opts.AutoDiscover,
		Root:             opts.Root,
		Exclude:          cfg.Exclude,
		Repository:       cfg.Repository,
		Endpoint:         cfg.Endpoint,
		Token:            cfg.GetGitHubToken(),
		Registry:         cfg.Registry,
		ScopedRegistries: cfg.ScopedRegistries,
		RegistryToken:    cfg.GetNPMToken(),
		Workers:          cfg.GetWorkers(),
		Concurrency:      cfg.GetConcurrency(),
	}

	if flags.Changed("dry-run") {
		runCfg.DryRun = opts.DryRun
	}
	if flags.Changed("repository") {
		runCfg.Repository = opts.Repository
	}
	if flags.Changed("endpoint") {
		runCfg.Endpoint = opts.Endpoint
	}
	if flags.Changed("exclude") {
		runCfg.Exclude = opts.Exclude
	}
	if flags.Changed("workers") {
		runCfg.Workers = opts.Workers
	}
	if flags.Changed("concurrency") {
		runCfg.Concurrency = opts.Concurrency
	}

	name := cfg.DefaultFormat
	if flags.Changed("output") {
		name = opts.Format
	}
	format, err := output.ParseFormat(name)
	if err != nil {
		return engine.Config{}, "", err
	}

	return runCfg, format, nil
}

// setupLogging routes logs to stderr, or discards them while the TUI owns
// the terminal.
func setupLogging(opts *Options, useTUI bool) error {
	var w io.Writer = os.Stderr
	if useTUI {
		w = io.Discard
	}

	switch opts.LogFormat {
	case "", "text":
		log.InitializeWithFormat(opts.Verbosity, w, log.FormatText)
	case "json":
		log.InitializeWithFormat(opts.Verbosity, w, log.FormatJSON)
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", opts.LogFormat)
	}
	return nil
}
