// Package main is the entry point for the k3sinit agent.
//
// k3sinit turns a freshly booted VM into a working node of a k3s cluster and
// makes the node's cluster credentials retrievable by an external
// controller. It is installed on the machine image and driven by the OS:
// cloud-init runs `k3sinit bootstrap` on first boot, and a systemd unit
// registered during bootstrap runs `k3sinit publish-kubeconfig` on every
// boot.
//
// Commands: bootstrap, publish-kubeconfig, version.
//
// For detailed usage information, run:
//
//	k3sinit --help
package main

import (
	"fmt"
	"os"

	"github.com/avlaske/k3sinit/cmd/k3sinit/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
