package commands

import (
	"github.com/spf13/cobra"

	"github.com/avlaske/k3sinit/cmd/k3sinit/handlers"
	"github.com/avlaske/k3sinit/internal/config"
)

// PublishKubeconfig returns the command that uploads the node's kubeconfig.
//
// The publish process:
//  1. Waits for the k3s-generated kubeconfig file to exist
//  2. Resolves the node's current public hostname from instance metadata
//  3. Rewrites the loopback server endpoint to the public one
//  4. Uploads the result to the cluster's object storage bucket
//
// The command runs from a oneshot systemd unit on every boot, so a changed
// public address after a stop/start cycle is republished without operator
// action. Upload failures are not retried in-process; the next boot retries.
//
// Optional flags:
//
//	--config, -c: Path to the configuration YAML file (default: /etc/k3sinit/config.yaml)
//	--verify: Read the object back after upload and check its endpoint
func PublishKubeconfig() *cobra.Command {
	var (
		configPath string
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "publish-kubeconfig",
		Short: "Upload the node's kubeconfig with a reachable endpoint",
		Long: `Rewrite the k3s kubeconfig to point at the node's public hostname and
upload it to the configured bucket under {cluster_id}.yaml.

The local kubeconfig file is never modified; the rewrite happens on the
in-memory copy that is uploaded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.PublishKubeconfig(cmd.Context(), handlers.PublishOptions{
				ConfigPath: configPath,
				Verify:     verify,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath,
		"Path to the configuration YAML file")
	cmd.Flags().BoolVar(&verify, "verify", false,
		"Read the uploaded object back and check its server endpoint")

	return cmd
}
