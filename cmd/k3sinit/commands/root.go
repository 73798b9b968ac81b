// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated to
// handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the k3sinit agent.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "k3sinit",
		Short: "Bootstrap this VM into a k3s node and publish its credentials",
	}

	cmd.AddCommand(Bootstrap())
	cmd.AddCommand(PublishKubeconfig())
	cmd.AddCommand(Version())

	return cmd
}
