// Package executor applies the deprecate action to selected versions, or
// simulates it in dry-run mode.
package executor

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/log"
	"github.com/spiffcs/deprecator/internal/model"
)

// DeprecateCommand returns the npm invocation that deprecates one version.
// Lifecycle scripts are never run.
func DeprecateCommand(pkg, version string) Command {
	return Command{
		Program: constants.NPMBinary,
		Args: []string{
			"deprecate",
			pkg + "@" + version,
			constants.DeprecationMessage,
			"--ignore-scripts",
		},
	}
}

// Executor runs deprecate commands with bounded concurrency.
type Executor struct {
	runner  Runner
	workers int
	dir     string
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunner sets the command runner.
func WithRunner(r Runner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithWorkers bounds the number of commands in flight. Values below one
// leave the default.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDir sets the working directory for commands.
func WithDir(dir string) Option {
	return func(e *Executor) {
		e.dir = dir
	}
}

// New returns an Executor that runs npm through os/exec unless configured
// otherwise.
func New(opts ...Option) *Executor {
	e := &Executor{
		runner:  ExecRunner{},
		workers: constants.DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute deprecates every selected version of pkg and returns one outcome
// per version in selection order. Every started command is awaited; a failed
// version never stops its siblings. Versions not yet started when ctx is
// cancelled fail with the context error.
func (e *Executor) Execute(ctx context.Context, pkg string, selected []model.VersionEntry, dryRun bool) []model.Outcome {
	outcomes := make([]model.Outcome, len(selected))

	if dryRun {
		for i, entry := range selected {
			log.Info("dry run: would deprecate", "package", pkg, "version", entry.Version)
			outcomes[i] = model.Outcome{Entry: entry, Status: model.StatusDeprecated, Simulated: true}
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, entry := range selected {
		if err := ctx.Err(); err != nil {
			outcomes[i] = failed(pkg, entry, err)
			continue
		}
		g.Go(func() error {
			outcomes[i] = e.deprecate(ctx, pkg, entry)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (e *Executor) deprecate(ctx context.Context, pkg string, entry model.VersionEntry) model.Outcome {
	if err := ctx.Err(); err != nil {
		return failed(pkg, entry, err)
	}

	cmd := DeprecateCommand(pkg, entry.Version)
	log.Debug("calling deprecate", "package", pkg, "version", entry.Version, "command", cmd.String())

	res, err := e.runner.Run(ctx, cmd, RunOptions{Dir: e.dir, Silent: true})
	if err != nil {
		return failed(pkg, entry, err)
	}

	log.Trace("deprecate finished",
		"package", pkg, "version", entry.Version,
		"exit_code", res.ExitCode, "stdout", res.Stdout, "stderr", res.Stderr)

	if res.ExitCode != 0 {
		output := res.Stderr
		if strings.TrimSpace(output) == "" {
			output = res.Stdout
		}
		execErr := &model.ExecutionError{
			Package:  pkg,
			Version:  entry.Version,
			ExitCode: res.ExitCode,
			Output:   output,
		}
		log.Warn("deprecate failed", "package", pkg, "version", entry.Version, "exit_code", res.ExitCode)
		return model.Outcome{Entry: entry, Status: model.StatusFailed, Err: execErr}
	}

	log.Info("deprecated version", "package", pkg, "version", entry.Version)
	return model.Outcome{Entry: entry, Status: model.StatusDeprecated}
}

func failed(pkg string, entry model.VersionEntry, err error) model.Outcome {
	return model.Outcome{
		Entry:  entry,
		Status: model.StatusFailed,
		Err: &model.ExecutionError{
			Package:  pkg,
			Version:  entry.Version,
			ExitCode: -1,
			Err:      err,
		},
	}
}
