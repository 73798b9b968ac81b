// Package kubeconfig rewrites the runtime-generated cluster access file for
// external reachability.
//
// k3s writes its kubeconfig with a loopback server endpoint. Publishing that
// file verbatim would hand out credentials that only work on the node
// itself, so the publisher rewrites the server field to the instance's
// public hostname and external port. The rewrite is a structured mutation of
// the parsed document, not a textual substitution, so matching literals
// elsewhere in the file (names, comments, certificate data) are never
// touched.
package kubeconfig

import (
	"fmt"
	"net"
	"net/url"

	"k8s.io/client-go/tools/clientcmd"
)

// Rewrite returns a copy of the kubeconfig with every loopback cluster
// server replaced by https://{endpoint}:{port}. The input bytes are never
// modified; the local file stays the on-host source of truth.
func Rewrite(data []byte, endpoint string, port int) ([]byte, error) {
	cfg, err := clientcmd.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
	}

	rewritten := 0
	for _, cluster := range cfg.Clusters {
		loopback, err := isLoopbackServer(cluster.Server)
		if err != nil {
			return nil, err
		}
		if loopback {
			cluster.Server = fmt.Sprintf("https://%s:%d", endpoint, port)
			rewritten++
		}
	}

	if rewritten == 0 {
		return nil, fmt.Errorf("kubeconfig has no loopback cluster server to rewrite")
	}

	out, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize kubeconfig: %w", err)
	}
	return out, nil
}

// Endpoint returns the server endpoint of the first cluster entry. Used by
// publish verification to confirm what a published object points at.
func Endpoint(data []byte) (string, error) {
	cfg, err := clientcmd.Load(data)
	if err != nil {
		return "", fmt.Errorf("failed to parse kubeconfig: %w", err)
	}
	for _, cluster := range cfg.Clusters {
		return cluster.Server, nil
	}
	return "", fmt.Errorf("kubeconfig has no cluster entries")
}

func isLoopbackServer(server string) (bool, error) {
	u, err := url.Parse(server)
	if err != nil {
		return false, fmt.Errorf("failed to parse cluster server %q: %w", server, err)
	}
	host := u.Hostname()
	if host == "localhost" {
		return true, nil
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback(), nil
}
