// Package container implements Container Integration (C6, spec §4.5):
// translating container lifecycle into port operations without requiring
// the container runtime itself to know about reservations or conflicts.
//
// Runtime is the abstract capability the Integration consumes
// (list_running, inspect, subscribe_events); a containerd-backed
// implementation is adapted from the teacher's pkg/runtime/containerd.go,
// trimmed to the inspection-only surface this service needs (no create,
// no image pull, no OCI spec construction — those belong to a workload
// orchestrator, not a port monitor). A Fake implementation lets tests
// exercise Integration without a running containerd socket.
package container
