// Package s3 provides the durable-storage client for published kubeconfigs.
//
// It handles object upload and read-back for the credential publisher. The
// default constructor resolves credentials through the SDK default chain, so
// on the instance the IAM role attached by the infrastructure provisioner is
// picked up at call time and no secret material passes through the
// environment or generated files.
package s3
