// Package perr defines the error kinds shared across portguard's core
// components (spec §7). Callers distinguish kinds with errors.Is/errors.As;
// wrapped context is added with fmt.Errorf("...: %w", err) at each layer,
// following the sentinel-error style used throughout the pack (e.g.
// portal's port_leasor.go FixedPortTakenErr/UnregisteredErr).
package perr

import (
	"errors"
	"fmt"

	"github.com/cuemby/portguard/pkg/types"
)

var (
	// ErrInvalidInput covers malformed ports, empty lists, bad protocols,
	// non-positive durations.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized is a lifecycle bug: an operation was invoked before
	// its subsystem was initialized.
	ErrNotInitialized = errors.New("not initialized")

	// ErrOwnerLimitExceeded means the owner already holds max_per_owner
	// active reservations.
	ErrOwnerLimitExceeded = errors.New("owner reservation limit exceeded")

	// ErrNotOwner means an extend/release was attempted by someone other
	// than the current lease holder.
	ErrNotOwner = errors.New("not the reservation owner")

	// ErrNotAllowed means policy forbids the requested operation (e.g.
	// extension requested while allow_extension=false).
	ErrNotAllowed = errors.New("operation not allowed by policy")

	// ErrProbeUnavailable means the network probing tool (ss/netstat) is
	// missing or blocked; callers should expect transparent fallback.
	ErrProbeUnavailable = errors.New("probe tool unavailable")

	// ErrProbeTimeout means a per-operation deadline was exceeded.
	ErrProbeTimeout = errors.New("probe timed out")

	// ErrRuntimeUnavailable means the container runtime could not be
	// reached; container integration degrades to reservation-only mode.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrStoreError wraps an underlying persistence failure.
	ErrStoreError = errors.New("store error")

	// ErrScanFailure means a system-port enumeration tool ran and failed,
	// as distinct from ErrNoEvidence (the tool ran fine and found nothing).
	ErrScanFailure = errors.New("scan failed")

	// ErrNoEvidence means a probe produced an empty, but not failed, result.
	ErrNoEvidence = errors.New("no evidence")
)

// ConflictError reports PortConflict{ports: [...]} rejections: the
// reservation batch touched at least one port already held by someone else.
type ConflictError struct {
	Ports []types.PortKey
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("port conflict on %v", e.Ports)
}

// Is allows errors.Is(err, ErrPortConflict) style checks without
// requiring callers to know the concrete type.
func (e *ConflictError) Is(target error) bool {
	return target == ErrPortConflict
}

// ErrPortConflict is the sentinel matched by ConflictError.Is, so callers
// that only care "was this a conflict" can use errors.Is(err, ErrPortConflict)
// while callers that need the port list can errors.As into *ConflictError.
var ErrPortConflict = errors.New("port conflict")

// Invalid formats msg as an ErrInvalidInput-wrapped error.
func Invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalidInput)
}
