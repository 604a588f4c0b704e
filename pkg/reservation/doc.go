// Package reservation implements the Reservation Store (C2) and the
// Manager policy layer on top of it (C3, spec §4.2).
//
// Store persists leases in a single bbolt bucket keyed by "port/protocol",
// mirroring the teacher's bucket-per-entity, JSON-marshaled-value pattern
// in pkg/storage/boltdb.go. Every create/release/extend runs inside a
// single process-wide critical section so two concurrent batches can never
// both observe the same port as free (spec §4.2 "Ordering and fairness").
//
// Manager adds duration clamping, per-owner caps, pre-conflict batch
// checks, and extension policy on top of Store, translating persistence
// failures into the perr sentinel kinds callers are expected to match with
// errors.Is/errors.As.
package reservation
