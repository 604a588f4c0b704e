// Package conflict implements the Conflict Detector (C4, spec §4.3):
// fusing Availability Checker occupancy with active reservations into a
// single conflict list, validating a proposed deployment's port set, and
// running cadence-driven monitor sessions that report only transitions.
//
// The fusion rule is fail-closed in the same sense as the checker: a port
// is a conflict if *either* the system reports it occupied or a
// reservation is held by someone other than exclude_owner. System-process
// conflicts are severity high, reservation conflicts are severity medium.
package conflict
