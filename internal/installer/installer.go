// Package installer installs and configures the k3s runtime for this node.
//
// The exec flag set is derived from the node identity resolved at boot:
// TLS SANs cover the public IP and hostname so the published kubeconfig
// validates externally, the advertise address stays on the private IP, and
// the provider id ties the node to its zone and instance.
package installer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/platform/imds"
	"github.com/avlaske/k3sinit/internal/util/cmdutil"
	"github.com/avlaske/k3sinit/internal/util/retry"
)

// Installer drives the cluster runtime installation.
type Installer struct {
	cfg    *config.Config
	runner cmdutil.Runner
}

// NewInstaller creates an Installer.
func NewInstaller(cfg *config.Config, runner cmdutil.Runner) *Installer {
	return &Installer{cfg: cfg, runner: runner}
}

// Install converges the node onto a running k3s installation: hostname set
// to the instance id, legacy packet-filter backend selected, install script
// retried until it succeeds.
func (i *Installer) Install(ctx context.Context, identity *imds.NodeIdentity) error {
	if err := i.setHostname(ctx, identity.InstanceID); err != nil {
		return fmt.Errorf("hostname configuration failed: %w", err)
	}
	if err := i.selectLegacyIptables(ctx); err != nil {
		return fmt.Errorf("iptables backend selection failed: %w", err)
	}
	if err := i.runInstaller(ctx, identity); err != nil {
		return fmt.Errorf("k3s installation failed: %w", err)
	}
	return nil
}

// setHostname renames the host to the instance id. When the current
// hostname already matches, nothing is touched.
func (i *Installer) setHostname(ctx context.Context, target string) error {
	current, err := i.currentHostname()
	if err != nil {
		return err
	}
	if current == target {
		return nil
	}

	if err := os.WriteFile(i.cfg.Paths.HostnameFile, []byte(target+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write hostname file: %w", err)
	}

	if current != "" {
		hosts, err := os.ReadFile(i.cfg.Paths.HostsFile)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read hosts file: %w", err)
		}
		if strings.Contains(string(hosts), current) {
			updated := strings.ReplaceAll(string(hosts), current, target)
			if err := os.WriteFile(i.cfg.Paths.HostsFile, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("failed to rewrite hosts file: %w", err)
			}
		}
	}

	if err := i.runner.Run(ctx, nil, "hostnamectl", "set-hostname", target); err != nil {
		return fmt.Errorf("failed to apply hostname: %w", err)
	}
	return nil
}

func (i *Installer) currentHostname() (string, error) {
	data, err := os.ReadFile(i.cfg.Paths.HostnameFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read hostname file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// selectLegacyIptables switches to the legacy packet-filter backend required
// by the flannel networking mode.
func (i *Installer) selectLegacyIptables(ctx context.Context) error {
	alternatives := [][]string{
		{"update-alternatives", "--set", "iptables", "/usr/sbin/iptables-legacy"},
		{"update-alternatives", "--set", "ip6tables", "/usr/sbin/ip6tables-legacy"},
	}
	for _, alt := range alternatives {
		if err := i.runner.Run(ctx, nil, alt[0], alt[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// runInstaller invokes the k3s install script at a fixed interval until it
// reports success. The attempt ceiling is configurable; the default of zero
// keeps retrying until the installer succeeds or the context is cancelled.
func (i *Installer) runInstaller(ctx context.Context, identity *imds.NodeIdentity) error {
	env := []string{
		"INSTALL_K3S_CHANNEL=" + i.cfg.K3s.Channel,
		"INSTALL_K3S_EXEC=" + i.execFlags(identity),
	}
	if i.cfg.K3s.Version != "" {
		env = append(env, "INSTALL_K3S_VERSION="+i.cfg.K3s.Version)
	}

	return retry.Poll(ctx, func() error {
		return i.runner.Run(ctx, env, "sh", i.cfg.K3s.InstallScript)
	},
		retry.WithInterval(i.cfg.Install.Interval()),
		retry.WithMaxAttempts(i.cfg.Install.MaxAttempts),
	)
}

// execFlags computes the INSTALL_K3S_EXEC flag string for this node.
func (i *Installer) execFlags(identity *imds.NodeIdentity) string {
	flags := []string{
		fmt.Sprintf("--https-listen-port=%d", i.cfg.K3s.HTTPSListenPort),
	}
	for _, component := range i.cfg.K3s.Disable {
		flags = append(flags, "--disable="+component)
	}
	flags = append(flags,
		"--tls-san="+identity.PublicIP,
		"--tls-san="+identity.PublicHostname,
		"--node-ip="+identity.LocalIP,
		"--advertise-address="+identity.LocalIP,
		"--flannel-iface="+identity.NetworkInterface,
		"--kubelet-arg=provider-id=aws://"+identity.ProviderID(),
	)
	return strings.Join(flags, " ")
}
