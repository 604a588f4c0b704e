/*
Package checker implements the Availability Checker (spec §4.1): it
decides whether a (host, port, protocol) tuple is occupied.

"Available" means positive evidence that nothing is bound to the
endpoint; the checker never consults reservations, that fusion happens
one layer up in pkg/conflict. On any indeterminate result — DNS failure,
probe tool missing, timeout — the checker fails closed and returns
occupied, logging a structured warning.

Three probe methods are supported, selected by config.CheckMethod:
socket (outbound TCP connect), netstat, and ss (spawn the OS tool and
parse its listening-socket table). netstat/ss probes run under a 10
second watchdog and fall back to each other on failure before giving up.

When running inside a container and asked about localhost, the checker
resolves the real host IP once per process (see hostip.go) and probes
through that instead of its own loopback.
*/
package checker
