/*
Package types defines the core data structures shared across portguard.

It holds the domain model that every other package operates on: ports and
protocols, reservations and their lifecycle, transient port status snapshots,
conflicts, monitor events, container port bindings, and the fixed
service-identification and service-type-range tables.

Types here carry no behavior beyond small invariant helpers (Active,
IsForever, Contains); the policy that uses them lives in the owning
packages (pkg/reservation, pkg/conflict, pkg/suggest).
*/
package types
