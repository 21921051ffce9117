package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spiffcs/deprecator/internal/log"
)

// Command is a program and its arguments. It is never passed through a shell.
type Command struct {
	Program string
	Args    []string
}

// String renders the command the way it would be typed, quoting arguments
// that contain spaces.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Program)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = strconv.Quote(arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

// RunOptions controls how a command is run.
type RunOptions struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Silent suppresses echoing output to the log.
	Silent bool
}

// RunResult is a finished command's exit status and captured output.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner runs commands. A non-zero exit is reported through RunResult; the
// error is reserved for commands that could not be run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command, opts RunOptions) (*RunResult, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, cmd Command, opts RunOptions) (*RunResult, error) {
	c := exec.CommandContext(ctx, cmd.Program, cmd.Args...)
	c.Dir = opts.Dir

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := &RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if !opts.Silent {
		log.Info("command output", "command", cmd.String(), "stdout", result.Stdout, "stderr", result.Stderr)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	case ctx.Err() != nil:
		return result, ctx.Err()
	default:
		return result, err
	}
}
