/*
Package cache implements the bounded, TTL-expiring cache layer used to
absorb repeated availability probes and conflict lookups (spec §4.7).

Three namespaces are maintained, each an independent LRU
(github.com/hashicorp/golang-lru) guarded by its own mutex:

  - PortAvailability: TTL 5s, 2000 entries, tagged "port:<n>" and
    "host:<h>".
  - PortConflicts: TTL 5s, 1000 entries, tagged "port:<n>" and
    "owner:<id>".

Namespace.Invalidate drops every entry carrying a tag, but no code in the
service calls it on these two namespaces: their entries leave only by TTL
expiry or LRU eviction, so a reservation or port-state change can take up
to 5s to show in a cached result.
  - MonitorState: no TTL, 5000 entries, the authoritative in-memory view
    a running monitor session reads from between scans.

The cache is never a correctness dependency: every namespace degrades to
an unbounded process-local map if the underlying LRU fails to construct
(which only happens with a non-positive configured size), and every
consumer must be written so a cache miss or eviction just means "ask the
checker/store again," never "assume not present."
*/
package cache
