// Package engine runs a full deprecation pass: locate manifests, fetch each
// package's release history, select versions by rule, and deprecate them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/executor"
	"github.com/spiffcs/deprecator/internal/ghclient"
	"github.com/spiffcs/deprecator/internal/log"
	"github.com/spiffcs/deprecator/internal/manifest"
	"github.com/spiffcs/deprecator/internal/model"
	"github.com/spiffcs/deprecator/internal/registry"
	"github.com/spiffcs/deprecator/internal/report"
	"github.com/spiffcs/deprecator/internal/rules"
	"github.com/spiffcs/deprecator/internal/selector"
)

// Config describes one run.
type Config struct {
	// Rules is required. An empty mapping deprecates nothing.
	Rules rules.Config
	// DryRun selects versions without running the deprecate command.
	DryRun bool
	// AutoDiscover is reserved for discovering repositories; it currently
	// short-circuits to an empty result.
	AutoDiscover bool

	// Root is the directory searched for manifests. Defaults to ".".
	Root string
	// Exclude lists extra manifest globs to skip.
	Exclude []string
	// Repository ("owner/name") reads manifests from GitHub instead of disk.
	Repository string
	// Endpoint is the GitHub API root used with Repository.
	Endpoint string
	// Token authenticates GitHub requests.
	Token string

	// Registry overrides the default npm registry.
	Registry         string
	ScopedRegistries map[string]string
	// RegistryToken is sent as a bearer token to registries.
	RegistryToken string

	// Workers bounds concurrent deprecate commands per package.
	Workers int
	// Concurrency bounds packages processed at once.
	Concurrency int
}

// Fetcher retrieves a package's release metadata.
type Fetcher interface {
	Fetch(ctx context.Context, name string) (*model.ReleaseMetadata, error)
}

// Stage names a phase of the run for progress reporting.
type Stage string

const (
	StageLocate    Stage = "locate"
	StageFetch     Stage = "fetch"
	StageSelect    Stage = "select"
	StageDeprecate Stage = "deprecate"
)

// ProgressFunc is called as work completes within a stage. Calls are
// serialized and completed counts within a stage never decrease, so the
// callback does not need to be safe for concurrent use.
type ProgressFunc func(stage Stage, completed, total int)

// PackageResult is the outcome of processing one package.
type PackageResult struct {
	Name         string
	ManifestPath string
	// Outcomes holds one entry per published version, in registry order.
	Outcomes []model.Outcome
	Err      error
}

// Result is the outcome of a run.
type Result struct {
	DryRun   bool
	Report   report.Report
	Packages []PackageResult
}

// Engine wires the collaborators of a run.
type Engine struct {
	locator  manifest.Locator
	fetcher  Fetcher
	runner   executor.Runner
	selector *selector.Selector
	progress ProgressFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocator overrides manifest discovery.
func WithLocator(l manifest.Locator) Option {
	return func(e *Engine) { e.locator = l }
}

// WithFetcher overrides the registry client.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// WithRunner overrides how deprecate commands are run.
func WithRunner(r executor.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithSelector overrides the rule catalog and clock.
func WithSelector(s *selector.Selector) Option {
	return func(e *Engine) { e.selector = s }
}

// WithProgress sets a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an Engine. Collaborators not supplied are built from the
// run's Config.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	if e.selector == nil {
		e.selector = selector.New(rules.DefaultCatalog())
	}
	if e.runner == nil {
		e.runner = executor.ExecRunner{}
	}
	return e
}

// Deprecate runs the default engine.
func Deprecate(ctx context.Context, cfg Config) (*Result, error) {
	return New().Deprecate(ctx, cfg)
}

func (e *Engine) report(stage Stage, completed, total int) {
	if e.progress != nil {
		e.progress(stage, completed, total)
	}
}

// Deprecate runs one pass. Configuration problems are reported before any
// I/O. Failures of individual packages do not stop the others; they are
// joined into the returned error, and the report still lists every version
// that was deprecated.
func (e *Engine) Deprecate(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Rules == nil {
		return nil, &model.ConfigurationError{Reason: "you must provide a 'rules' property"}
	}
	if err := e.selector.Validate(cfg.Rules); err != nil {
		return nil, err
	}

	result := &Result{DryRun: cfg.DryRun, Report: report.Report{}}
	if cfg.AutoDiscover {
		log.Info("support for auto discovering repositories is not yet implemented")
		return result, nil
	}

	locator, err := e.locatorFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	e.report(StageLocate, 0, 1)
	files, err := locator.Locate(ctx, manifest.DefaultPattern(cfg.Exclude...))
	if err != nil {
		return nil, fmt.Errorf("failed to locate manifests: %w", err)
	}
	e.report(StageLocate, 1, 1)

	packages := packagesFrom(files, workDirOf(locator))
	log.Info("found packages", "count", len(packages))
	if len(packages) == 0 {
		for _, stage := range []Stage{StageFetch, StageSelect, StageDeprecate} {
			e.report(stage, 0, 0)
		}
		return result, nil
	}

	fetcher := e.fetcher
	if fetcher == nil {
		client := registry.New(
			registry.WithRegistry(cfg.Registry),
			registry.WithScopedRegistries(cfg.ScopedRegistries),
			registry.WithToken(cfg.RegistryToken),
		)
		defer client.Close()
		fetcher = client
	}

	newExec := func(dir string) *executor.Executor {
		return executor.New(
			executor.WithRunner(e.runner),
			executor.WithWorkers(cfg.Workers),
			executor.WithDir(dir),
		)
	}

	result.Packages = e.processAll(ctx, cfg, packages, fetcher, newExec)

	outcomes := make([][]model.Outcome, 0, len(result.Packages))
	var errs []error
	for _, pkg := range result.Packages {
		outcomes = append(outcomes, pkg.Outcomes)
		if pkg.Err != nil {
			errs = append(errs, pkg.Err)
		}
	}
	result.Report = report.CondenseOutcomes(outcomes)
	log.Info("run finished",
		"packages", len(result.Packages),
		"deprecated", result.Report.Count(),
		"failed_packages", len(errs),
		"dry_run", cfg.DryRun)

	return result, errors.Join(errs...)
}

func (e *Engine) locatorFor(ctx context.Context, cfg Config) (manifest.Locator, error) {
	if e.locator != nil {
		return e.locator, nil
	}
	if cfg.Repository == "" {
		return manifest.DiskLocator{Root: cfg.Root}, nil
	}

	client, err := ghclient.NewClient(ctx, cfg.Token, ghclient.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return nil, err
	}
	return manifest.RepositoryLocator{Source: client, Repository: cfg.Repository}, nil
}

type pkgRef struct {
	name string
	path string
	// dir is the local directory holding the manifest; empty when manifests
	// were not read from disk.
	dir string
}

// workDirOf returns the directory manifest paths are relative to, or "" when
// the locator does not read the local filesystem.
func workDirOf(l manifest.Locator) string {
	d, ok := l.(manifest.DiskLocator)
	if !ok {
		return ""
	}
	if d.Root == "" {
		return "."
	}
	return d.Root
}

// packagesFrom extracts unique package names in manifest order.
func packagesFrom(files []manifest.File, workDir string) []pkgRef {
	seen := map[string]bool{}
	var out []pkgRef
	for _, f := range files {
		name, err := manifest.ParseName(f.Content)
		if err != nil {
			log.Warn("skipping unreadable manifest", "path", f.Path, "error", err)
			continue
		}
		if name == "" {
			log.Warn("skipping manifest without a name", "path", f.Path)
			continue
		}
		if seen[name] {
			log.Debug("package already queued", "package", name, "path", f.Path)
			continue
		}
		seen[name] = true
		log.Debug("package name found", "package", name, "path", f.Path)
		ref := pkgRef{name: name, path: f.Path}
		if workDir != "" {
			ref.dir = filepath.Join(workDir, filepath.Dir(filepath.FromSlash(f.Path)))
		}
		out = append(out, ref)
	}
	return out
}

func (e *Engine) processAll(ctx context.Context, cfg Config, packages []pkgRef, fetcher Fetcher, newExec func(dir string) *executor.Executor) []PackageResult {
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = constants.DefaultConcurrency
	}

	total := len(packages)
	results := make([]PackageResult, total)

	var progressMu sync.Mutex
	completed := map[Stage]int{}
	step := func(stage Stage) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed[stage]++
		e.report(stage, completed[stage], total)
	}

	e.report(StageFetch, 0, total)
	e.report(StageSelect, 0, total)
	e.report(StageDeprecate, 0, total)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, pkg := range packages {
		g.Go(func() error {
			results[i] = e.process(ctx, cfg, pkg, fetcher, newExec(pkg.dir), step)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// process runs fetch, select and deprecate for one package. Every stage
// reports completion, even when an earlier one failed, so progress totals
// always add up.
func (e *Engine) process(ctx context.Context, cfg Config, pkg pkgRef, fetcher Fetcher, exec *executor.Executor, advance func(Stage)) PackageResult {
	res := PackageResult{Name: pkg.name, ManifestPath: pkg.path}
	remaining := []Stage{StageFetch, StageSelect, StageDeprecate}
	finish := func() {
		for _, stage := range remaining {
			advance(stage)
		}
		remaining = nil
	}
	defer finish()
	next := func() {
		advance(remaining[0])
		remaining = remaining[1:]
	}

	meta, err := fetcher.Fetch(ctx, pkg.name)
	next()
	if err != nil {
		var fetchErr *model.RegistryFetchError
		if !errors.As(err, &fetchErr) {
			err = &model.RegistryFetchError{Package: pkg.name, Err: err}
		}
		log.Error("failed to fetch package metadata", "package", pkg.name, "error", err)
		res.Err = err
		return res
	}

	decisions, err := e.selector.Evaluate(meta, cfg.Rules)
	next()
	if err != nil {
		res.Err = fmt.Errorf("%s: %w", pkg.name, err)
		return res
	}

	var chosen []model.VersionEntry
	var chosenAt []int
	res.Outcomes = make([]model.Outcome, len(decisions))
	for i, d := range decisions {
		res.Outcomes[i] = model.Outcome{Entry: d.Entry, Status: d.Status, Rules: d.Rules}
		if d.Selected() {
			chosen = append(chosen, d.Entry)
			chosenAt = append(chosenAt, i)
		}
	}
	if log.IsTrace() {
		for _, d := range decisions {
			log.Trace("version decision", "package", pkg.name, "version", d.Entry.Version, "status", d.Status, "rules", d.Rules)
		}
	}
	log.Info("selected versions", "package", pkg.name, "selected", len(chosen), "versions", meta.Len())

	executed := exec.Execute(ctx, pkg.name, chosen, cfg.DryRun)
	next()

	var errs []error
	for j, o := range executed {
		i := chosenAt[j]
		o.Rules = res.Outcomes[i].Rules
		res.Outcomes[i] = o
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	res.Err = errors.Join(errs...)
	return res
}
