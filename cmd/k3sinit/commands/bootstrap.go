package commands

import (
	"github.com/spf13/cobra"

	"github.com/avlaske/k3sinit/cmd/k3sinit/handlers"
	"github.com/avlaske/k3sinit/internal/config"
)

// Bootstrap returns the command that runs the full boot sequence.
//
// The bootstrap process:
//  1. Hardens the OS (SSH CA trust, maintenance cron, cloud CLI)
//  2. Resolves the node identity from the instance metadata service
//  3. Installs k3s with flags derived from that identity
//  4. Waits for core system components to report running
//  5. Registers the publish-kubeconfig service for every boot
//
// A health-gate timeout clears the cloud-init per-instance guard and
// reboots, so the whole sequence re-executes from scratch; the reboot loop
// is bounded by a counter persisted in the state directory.
//
// Optional flags:
//
//	--config, -c: Path to the configuration YAML file (default: /etc/k3sinit/config.yaml)
//
// Environment variables:
//
//	K3SINIT_CLUSTER_ID, K3SINIT_BUCKET, K3SINIT_REGION: override the
//	templated identity values from the config file
func Bootstrap() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Run the boot-time node bootstrap sequence",
		Long: `Run the full boot sequence that turns this VM into a k3s node.

All step output is written to both the console and the configured log file,
with a titled banner before each phase, so a failing phase can be pinpointed
from the transcript alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Bootstrap(cmd.Context(), handlers.BootstrapOptions{
				ConfigPath: configPath,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath,
		"Path to the configuration YAML file")

	return cmd
}
