// Package imds resolves this instance's identity from the EC2 instance
// metadata service.
//
// Every bootstrap phase derives its parameters from the [NodeIdentity]
// returned here: TLS SANs, advertise address, flannel interface, provider id
// and the published kubeconfig endpoint. Identity is never persisted; the
// public IP and hostname can change between boots, so it is re-resolved on
// every boot and again before every publish.
//
// The SDK client speaks IMDSv2 (session token fetched and cached for its
// TTL before metadata reads).
package imds
