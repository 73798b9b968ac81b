package imds

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	awsimds "github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

// NodeIdentity holds this VM's identity and network attributes as reported
// by the metadata service. Immutable once resolved.
type NodeIdentity struct {
	InstanceID       string
	LocalIP          string
	PublicIP         string
	PublicHostname   string
	AvailabilityZone string
	NetworkInterface string
}

// ProviderID returns the cloud provider identifier for this node,
// composed as {availability_zone}/{instance_id}.
func (n *NodeIdentity) ProviderID() string {
	return n.AvailabilityZone + "/" + n.InstanceID
}

// metadataAPI is the subset of the SDK IMDS client the resolver uses.
type metadataAPI interface {
	GetMetadata(ctx context.Context, params *awsimds.GetMetadataInput, optFns ...func(*awsimds.Options)) (*awsimds.GetMetadataOutput, error)
}

// InterfaceLister enumerates host network interfaces. Injectable for tests;
// defaults to net.Interfaces.
type InterfaceLister func() ([]net.Interface, error)

// Resolver queries the instance metadata service for node identity.
type Resolver struct {
	client         metadataAPI
	listInterfaces InterfaceLister
}

// Option is a functional option for the Resolver.
type Option func(*Resolver)

// WithClient replaces the SDK IMDS client.
func WithClient(client metadataAPI) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithEndpoint points the SDK client at an alternative metadata endpoint.
func WithEndpoint(endpoint string) Option {
	return func(r *Resolver) {
		r.client = awsimds.New(awsimds.Options{Endpoint: endpoint})
	}
}

// WithInterfaceLister replaces the host interface enumeration.
func WithInterfaceLister(lister InterfaceLister) Option {
	return func(r *Resolver) {
		r.listInterfaces = lister
	}
}

// NewResolver creates a Resolver against the real metadata endpoint.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client:         awsimds.New(awsimds.Options{}),
		listInterfaces: net.Interfaces,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve reads the node identity from the metadata service. Any read
// failure is fatal for the caller: without a network identity there is no
// safe way to continue the bootstrap.
func (r *Resolver) Resolve(ctx context.Context) (*NodeIdentity, error) {
	identity := &NodeIdentity{}

	reads := []struct {
		path string
		dst  *string
	}{
		{"instance-id", &identity.InstanceID},
		{"local-ipv4", &identity.LocalIP},
		{"public-ipv4", &identity.PublicIP},
		{"public-hostname", &identity.PublicHostname},
		{"placement/availability-zone", &identity.AvailabilityZone},
	}

	for _, read := range reads {
		value, err := r.metadata(ctx, read.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata %s: %w", read.path, err)
		}
		*read.dst = value
	}

	mac, err := r.metadata(ctx, "mac")
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata mac: %w", err)
	}

	iface, err := r.interfaceForMAC(mac)
	if err != nil {
		return nil, err
	}
	identity.NetworkInterface = iface

	return identity, nil
}

// PublicHostname re-reads only the public hostname. The publisher calls this
// fresh on every boot since the hostname may have changed.
func (r *Resolver) PublicHostname(ctx context.Context) (string, error) {
	hostname, err := r.metadata(ctx, "public-hostname")
	if err != nil {
		return "", fmt.Errorf("failed to read metadata public-hostname: %w", err)
	}
	return hostname, nil
}

func (r *Resolver) metadata(ctx context.Context, path string) (string, error) {
	out, err := r.client.GetMetadata(ctx, &awsimds.GetMetadataInput{Path: path})
	if err != nil {
		return "", err
	}
	defer out.Content.Close()

	data, err := io.ReadAll(out.Content)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata body: %w", err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("metadata %s is empty", path)
	}
	return value, nil
}

// interfaceForMAC maps the metadata-reported MAC to the OS interface name.
// The metadata service only knows the MAC; the flannel interface flag needs
// the kernel name.
func (r *Resolver) interfaceForMAC(mac string) (string, error) {
	ifaces, err := r.listInterfaces()
	if err != nil {
		return "", fmt.Errorf("failed to list network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if strings.EqualFold(iface.HardwareAddr.String(), mac) {
			return iface.Name, nil
		}
	}

	return "", fmt.Errorf("no host interface matches metadata mac %s", mac)
}
