package handlers

import (
	"context"
	"fmt"

	"github.com/avlaske/k3sinit/internal/bootstrap"
	"github.com/avlaske/k3sinit/internal/platform/imds"
	"github.com/avlaske/k3sinit/internal/platform/s3"
	"github.com/avlaske/k3sinit/internal/publisher"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newHostnameResolver supplies the publisher's hostname source.
	newHostnameResolver = func() publisher.HostnameResolver {
		return imds.NewResolver()
	}

	// newObjectStore builds the storage client from the instance's IAM role.
	newObjectStore = func(ctx context.Context, region string) (publisher.ObjectStore, error) {
		return s3.NewClient(ctx, region)
	}
)

// PublishOptions carries the flag values for the publish-kubeconfig command.
type PublishOptions struct {
	ConfigPath string
	Verify     bool
}

// PublishKubeconfig uploads the node's kubeconfig to object storage with its
// server endpoint rewritten from loopback to the node's public hostname.
//
// Credentials for the upload come from the instance's IAM role via the
// default AWS credential chain; nothing is read from the config file or the
// environment. With Verify set, the uploaded object is read back and its
// endpoint checked against the freshly resolved hostname.
func PublishKubeconfig(ctx context.Context, opts PublishOptions) error {
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
	observer.Banner("publish-kubeconfig")

	store, err := newObjectStore(ctx, cfg.Region)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}

	pub := publisher.New(cfg, newHostnameResolver(), store)
	if err := pub.Publish(ctx); err != nil {
		return err
	}
	observer.Printf("Published kubeconfig to s3://%s/%s", cfg.Bucket, cfg.ObjectKey())

	if opts.Verify {
		if err := pub.Verify(ctx); err != nil {
			return err
		}
		observer.Printf("Verified published kubeconfig endpoint")
	}
	return nil
}
