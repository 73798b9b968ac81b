package bootstrap

import (
	"context"
	"fmt"

	"github.com/avlaske/k3sinit/internal/platform/imds"
	"github.com/avlaske/k3sinit/internal/platform/systemd"
)

// Preparer is implemented by osprep.Preparer.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// IdentityResolver is implemented by imds.Resolver.
type IdentityResolver interface {
	Resolve(ctx context.Context) (*imds.NodeIdentity, error)
}

// RuntimeInstaller is implemented by installer.Installer.
type RuntimeInstaller interface {
	Install(ctx context.Context, identity *imds.NodeIdentity) error
}

// HealthWaiter is implemented by healthgate.Gate. The factory indirection
// exists because the gate reads the kubeconfig the installer only just
// produced.
type HealthWaiter interface {
	Wait(ctx context.Context) error
}

// OSPrepPhase hardens and prepares the OS.
type OSPrepPhase struct {
	Preparer Preparer
}

// Name implements Phase.
func (p *OSPrepPhase) Name() string { return "os-preparation" }

// Run implements Phase.
func (p *OSPrepPhase) Run(ctx *Context) error {
	return p.Preparer.Prepare(ctx)
}

// IdentityPhase resolves the node identity and stores it on the context.
type IdentityPhase struct {
	Resolver IdentityResolver
}

// Name implements Phase.
func (p *IdentityPhase) Name() string { return "instance-identity" }

// Run implements Phase.
func (p *IdentityPhase) Run(ctx *Context) error {
	identity, err := p.Resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	ctx.Identity = identity
	ctx.Observer.Printf("Resolved identity: instance=%s zone=%s local=%s public=%s iface=%s",
		identity.InstanceID, identity.AvailabilityZone, identity.LocalIP,
		identity.PublicIP, identity.NetworkInterface)
	return nil
}

// InstallPhase installs the cluster runtime.
type InstallPhase struct {
	Installer RuntimeInstaller
}

// Name implements Phase.
func (p *InstallPhase) Name() string { return "runtime-install" }

// Run implements Phase.
func (p *InstallPhase) Run(ctx *Context) error {
	if ctx.Identity == nil {
		return fmt.Errorf("node identity not resolved")
	}
	return p.Installer.Install(ctx, ctx.Identity)
}

// HealthGatePhase waits for the runtime to become healthy.
type HealthGatePhase struct {
	NewGate func() (HealthWaiter, error)
}

// Name implements Phase.
func (p *HealthGatePhase) Name() string { return "health-gate" }

// Run implements Phase.
func (p *HealthGatePhase) Run(ctx *Context) error {
	gate, err := p.NewGate()
	if err != nil {
		return err
	}
	return gate.Wait(ctx)
}

// RegisterPublisherPhase enables the publisher service for every boot.
type RegisterPublisherPhase struct {
	Manager    *systemd.Manager
	BinaryPath string
	ConfigPath string
}

// Name implements Phase.
func (p *RegisterPublisherPhase) Name() string { return "publisher-registration" }

// Run implements Phase.
func (p *RegisterPublisherPhase) Run(ctx *Context) error {
	return p.Manager.Register(ctx, systemd.Unit{
		UnitFile:   ctx.Config.Paths.UnitFile,
		BinaryPath: p.BinaryPath,
		ConfigPath: p.ConfigPath,
	})
}
