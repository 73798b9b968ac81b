// Package cmdutil provides a small abstraction over running host commands.
//
// Bootstrap steps shell out to system tools (systemctl, hostnamectl,
// update-alternatives, the k3s installer). The [Runner] interface keeps those
// call sites testable: production code uses [ExecRunner], tests use
// [FakeRunner] with scripted results.
package cmdutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes host commands.
type Runner interface {
	// Run executes a command with the given environment appended to the
	// process environment. It returns the combined output on failure for
	// error context.
	Run(ctx context.Context, env []string, name string, args ...string) error

	// Output executes a command and returns its combined output.
	Output(ctx context.Context, name string, args ...string) (string, error)

	// LookPath reports whether a binary is available on PATH.
	LookPath(name string) bool
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	// #nosec G204 - command names and arguments come from internal config
	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s failed: %w\nOutput: %s", name, strings.Join(args, " "), err, string(output))
	}
	return nil
}

// Output implements Runner.
func (r *ExecRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204 - command names and arguments come from internal config
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output)), nil
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
