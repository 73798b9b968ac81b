// Package bootstrap sequences the boot-time phases that turn a freshly
// booted VM into a ready, credentialed cluster node.
//
// One boot attempt is strictly sequential: OS preparation, identity
// resolution, runtime installation, health gate, publisher registration.
// Suspension happens only at explicit polling points inside phases; the only
// cancellation primitive beyond the context is the supervisor's reboot
// fallback, which restarts the whole sequence from scratch.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/platform/imds"
	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

// Phase defines one bootstrap phase.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Run executes the phase.
	Run(ctx *Context) error
}

// Context wraps the dependencies and shared state of a boot attempt.
// Identity is populated by the identity phase and consumed by later ones.
type Context struct {
	context.Context
	Config   *config.Config
	Runner   cmdutil.Runner
	Observer Observer
	Identity *imds.NodeIdentity
}

// NewContext creates a bootstrap context.
func NewContext(ctx context.Context, cfg *config.Config, runner cmdutil.Runner, observer Observer) *Context {
	return &Context{
		Context:  ctx,
		Config:   cfg,
		Runner:   runner,
		Observer: observer,
	}
}

// RunPhases executes the phases sequentially, stopping at the first failure.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()
	ctx.Observer.Printf("Starting node bootstrap with %d phases...", len(phases))

	for i, phase := range phases {
		phaseStart := time.Now()
		ctx.Observer.Banner(fmt.Sprintf("%s (%d/%d)", phase.Name(), i+1, len(phases)))

		if err := phase.Run(ctx); err != nil {
			ctx.Observer.Printf("[%s] failed: %v", phase.Name(), err)
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}

		ctx.Observer.Printf("[%s] completed in %v", phase.Name(), time.Since(phaseStart).Round(time.Millisecond))
	}

	ctx.Observer.Printf("Bootstrap completed in %v", time.Since(start).Round(time.Millisecond))
	return nil
}
