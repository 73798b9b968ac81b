// Package retry provides fixed-interval polling for operations that wait on
// eventually-consistent external state.
//
// The [Poll] function re-runs an operation at a fixed interval until it
// succeeds, the attempt budget is exhausted, or the context is cancelled. It
// backs the install-retry loop, the health gate, and the credential-file
// wait. Backoff is deliberately constant: every wait in the bootstrap
// sequence is a fixed-interval poll, never exponential.
package retry
