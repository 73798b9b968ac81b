// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers are framework-agnostic and can be tested
// independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/avlaske/k3sinit/internal/bootstrap"
	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/healthgate"
	"github.com/avlaske/k3sinit/internal/installer"
	"github.com/avlaske/k3sinit/internal/osprep"
	"github.com/avlaske/k3sinit/internal/platform/imds"
	"github.com/avlaske/k3sinit/internal/platform/systemd"
	"github.com/avlaske/k3sinit/internal/util/cmdutil"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfigFile loads config from file.
	loadConfigFile = config.LoadFile

	// newRunner creates the command runner used by all phases.
	newRunner = func() cmdutil.Runner {
		return cmdutil.NewExecRunner()
	}

	// newTeeLogger creates the console+file logger.
	newTeeLogger = bootstrap.NewTeeLogger

	// newIdentityResolver creates the instance metadata resolver.
	newIdentityResolver = func() bootstrap.IdentityResolver {
		return imds.NewResolver()
	}

	// newHealthGate builds the gate from the freshly written kubeconfig.
	newHealthGate = func(cfg *config.Config) (bootstrap.HealthWaiter, error) {
		return healthgate.NewFromKubeconfig(cfg)
	}

	// executablePath resolves the path of the running binary for the
	// publisher unit's ExecStart line.
	executablePath = os.Executable
)

// BootstrapOptions carries the flag values for the bootstrap command.
type BootstrapOptions struct {
	ConfigPath string
}

// Bootstrap runs the complete boot-time sequence that turns this VM into a
// k3s node.
//
// The sequence:
//  1. Loads and validates the agent configuration
//  2. Prepares the OS (SSH CA trust, maintenance cron, cloud CLI)
//  3. Resolves the node identity from instance metadata
//  4. Installs the k3s runtime with identity-derived flags
//  5. Waits for core cluster components to report running
//  6. Registers the publish-kubeconfig systemd unit for every boot
//
// All output is duplicated to the configured log file so a failed boot can
// be diagnosed from the instance's disk after the fact.
func Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	cfg, err := loadConfigFile(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := newTeeLogger(cfg.Paths.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = closeLog() }()

	observer := bootstrap.NewObserver(logger)
	runner := newRunner()

	binaryPath, err := executablePath()
	if err != nil {
		return fmt.Errorf("failed to resolve binary path: %w", err)
	}

	phases := []bootstrap.Phase{
		&bootstrap.OSPrepPhase{
			Preparer: osprep.NewPreparer(cfg, runner),
		},
		&bootstrap.IdentityPhase{
			Resolver: newIdentityResolver(),
		},
		&bootstrap.InstallPhase{
			Installer: installer.NewInstaller(cfg, runner),
		},
		&bootstrap.HealthGatePhase{
			NewGate: func() (bootstrap.HealthWaiter, error) {
				return newHealthGate(cfg)
			},
		},
		&bootstrap.RegisterPublisherPhase{
			Manager:    systemd.NewManager(runner),
			BinaryPath: binaryPath,
			ConfigPath: opts.ConfigPath,
		},
	}

	return bootstrap.NewSupervisor(cfg, runner, observer, phases).Run(ctx)
}
