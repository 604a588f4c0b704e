// Package client is the CLI-facing counterpart to pkg/transport: one
// method per outward port operation, dialed over the daemon's Unix
// socket instead of a network address. cmd/portguardctl is its only
// caller.
package client
