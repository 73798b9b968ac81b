// Package publisher makes the node's cluster credentials retrievable by the
// external control plane.
//
// It runs to completion on every boot (as a systemd oneshot), waits for the
// runtime to write its kubeconfig, rewrites the loopback endpoint for
// external access, and uploads the rewritten copy to durable storage keyed
// by cluster id. The local file is read-only source of truth and is never
// modified.
package publisher

import (
	"context"
	"fmt"
	"os"

	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/kubeconfig"
	"github.com/avlaske/k3sinit/internal/util/retry"
)

// HostnameResolver supplies the current public hostname. It is consulted
// fresh on every publish since the hostname can change across boots.
type HostnameResolver interface {
	PublicHostname(ctx context.Context) (string, error)
}

// ObjectStore is the durable-storage surface the publisher needs.
// Implemented by platform/s3.Client.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// Publisher uploads the rewritten kubeconfig.
type Publisher struct {
	cfg      *config.Config
	resolver HostnameResolver
	storage  ObjectStore
}

// New creates a Publisher.
func New(cfg *config.Config, resolver HostnameResolver, storage ObjectStore) *Publisher {
	return &Publisher{cfg: cfg, resolver: resolver, storage: storage}
}

// Publish waits for the local kubeconfig, rewrites its endpoint and uploads
// it. The upload itself is not retried here: the systemd re-run on the next
// boot is the recovery path, so publishing is at-least-once but not
// guaranteed within a single boot.
func (p *Publisher) Publish(ctx context.Context) error {
	if err := p.waitForKubeconfig(ctx); err != nil {
		return err
	}

	// A missing bucket is a provisioning defect, not a transient fault;
	// surface it before touching the credential material.
	exists, err := p.storage.BucketExists(ctx, p.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", p.cfg.Bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist or is not accessible", p.cfg.Bucket)
	}

	hostname, err := p.resolver.PublicHostname(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve public hostname: %w", err)
	}

	data, err := os.ReadFile(p.cfg.Paths.Kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to read kubeconfig: %w", err)
	}

	rewritten, err := kubeconfig.Rewrite(data, hostname, p.cfg.ExternalPort)
	if err != nil {
		return fmt.Errorf("failed to rewrite kubeconfig: %w", err)
	}

	if err := p.storage.PutObject(ctx, p.cfg.Bucket, p.cfg.ObjectKey(), rewritten); err != nil {
		return fmt.Errorf("failed to upload kubeconfig to s3://%s/%s: %w",
			p.cfg.Bucket, p.cfg.ObjectKey(), err)
	}
	return nil
}

// Verify reads the published object back and checks it is a parseable
// kubeconfig pointing at the current public endpoint.
func (p *Publisher) Verify(ctx context.Context) error {
	data, err := p.storage.GetObject(ctx, p.cfg.Bucket, p.cfg.ObjectKey())
	if err != nil {
		return fmt.Errorf("failed to read published kubeconfig: %w", err)
	}

	endpoint, err := kubeconfig.Endpoint(data)
	if err != nil {
		return fmt.Errorf("published kubeconfig is not parseable: %w", err)
	}

	hostname, err := p.resolver.PublicHostname(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve public hostname: %w", err)
	}

	want := fmt.Sprintf("https://%s:%d", hostname, p.cfg.ExternalPort)
	if endpoint != want {
		return fmt.Errorf("published kubeconfig points at %s, expected %s", endpoint, want)
	}
	return nil
}

// waitForKubeconfig polls until the runtime has written the credential file.
// Unbounded by default: the runtime installer is the only writer and the
// publisher has nothing to do before the file exists.
func (p *Publisher) waitForKubeconfig(ctx context.Context) error {
	err := retry.Poll(ctx, func() error {
		if _, err := os.Stat(p.cfg.Paths.Kubeconfig); err != nil {
			return fmt.Errorf("kubeconfig not present yet: %w", err)
		}
		return nil
	},
		retry.WithInterval(p.cfg.Publish.Interval()),
		retry.WithMaxAttempts(p.cfg.Publish.MaxAttempts),
	)
	if err != nil {
		return fmt.Errorf("waiting for kubeconfig at %s: %w", p.cfg.Paths.Kubeconfig, err)
	}
	return nil
}
