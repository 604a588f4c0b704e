// Package transport is the thin JSON-over-HTTP adapter for the outward
// port operations (check_availability, reserve, release, suggest,
// validate_deployment, scan_range, get_ports_in_use, the label/
// documentation updaters, and statistics). Spec §1 lists the HTTP
// transport among the out-of-core collaborators and §6 calls it "the HTTP
// transport, kept external" — this package is that external transport,
// listening on a local Unix socket rather than a TCP port so it is never
// reachable off-host without an operator deliberately exposing it.
//
// Every handler composes the Supervisor's already-owned components; this
// package owns no state of its own beyond the listener.
package transport
