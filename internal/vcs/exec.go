// Package vcs wraps the git executable behind a small subprocess
// abstraction. Commands return a structured Result (exit code plus captured
// output) so that failures can be classified from the exit status and
// stderr instead of by scraping whatever happened to be printed.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Result is the outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns trimmed stderr if present, otherwise trimmed stdout.
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes a command in dir. It returns an error only when the
// process could not be started or was cancelled; a non-zero exit status is
// reported in Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec. Env entries are appended to the
// current environment.
type ExecRunner struct {
	Env []string
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code, err := exitCode(cmd.Run())
	if err != nil {
		return Result{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	return Result{ExitCode: code, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// exitCode extracts an exit code from a command error.
// Returns (code, nil) for ExitError, (0, err) for other errors, (0, nil) for nil.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}

// CommandError reports a command that exited non-zero.
type CommandError struct {
	Args   []string
	Result Result
}

func (e *CommandError) Error() string {
	out := e.Result.Output()
	if out == "" {
		return fmt.Sprintf("%s failed (exit %d)", strings.Join(e.Args, " "), e.Result.ExitCode)
	}
	return fmt.Sprintf("%s failed (exit %d): %s", strings.Join(e.Args, " "), e.Result.ExitCode, out)
}
