// Package suggest implements the Suggestion Engine (C5, spec §4.4):
// finding alternative ports when a requested set is in conflict.
//
// Search runs in priority order: a contiguous sequential block when
// requested, otherwise a per-port BFS outward from the original port, then
// a range-scan fallback bounded to RangeScanCap. If avoid_well_known
// starved the results, the search retries with it relaxed and merges,
// deduplicated. The best single recommendation is chosen service-based >
// range-based > sequential > nearby, mirroring the priority order the
// teacher's scheduler applies when picking a node for a service
// (pkg/scheduler.selectNode: filter schedulable candidates, then pick by a
// simple ranked rule) adapted here to ports instead of nodes.
package suggest
