package cmdutil

import (
	"context"
	"strings"
	"sync"
)

// Call records a single command invocation seen by a FakeRunner.
type Call struct {
	Name string
	Args []string
	Env  []string
}

// String renders the call as "name arg1 arg2" for matching in tests.
func (c Call) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// FakeRunner is a scriptable Runner for tests. Results are keyed by the
// rendered command line; unscripted commands succeed with empty output.
type FakeRunner struct {
	mu sync.Mutex

	// Errs maps a rendered command line to the error each invocation
	// should return. Entries are consumed in order, so a sequence of
	// failures followed by nil models a transient fault.
	Errs map[string][]error

	// Outputs maps a rendered command line to the output Output returns.
	Outputs map[string]string

	// Missing lists binary names LookPath should report as absent.
	Missing []string

	// Calls records every invocation in order.
	Calls []Call
}

// NewFakeRunner creates an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		Errs:    make(map[string][]error),
		Outputs: make(map[string]string),
	}
}

// Run implements Runner.
func (r *FakeRunner) Run(ctx context.Context, env []string, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Name: name, Args: args, Env: env}
	r.Calls = append(r.Calls, call)
	return r.nextErr(call.String())
}

// Output implements Runner.
func (r *FakeRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Name: name, Args: args}
	r.Calls = append(r.Calls, call)
	return r.Outputs[call.String()], r.nextErr(call.String())
}

// LookPath implements Runner.
func (r *FakeRunner) LookPath(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, missing := range r.Missing {
		if missing == name {
			return false
		}
	}
	return true
}

// CallLines returns the rendered command lines in invocation order.
func (r *FakeRunner) CallLines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	lines := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		lines[i] = c.String()
	}
	return lines
}

func (r *FakeRunner) nextErr(line string) error {
	queue := r.Errs[line]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	r.Errs[line] = queue[1:]
	return err
}
