// Package supervisor implements the Monitor Supervisor (C7): the boot
// sequence that brings the Reservation Store and Container Integration
// online, the initial system scan, the cron-scheduled periodic rescan and
// lease-GC ticks, and graceful shutdown. It is the one component that
// constructs and owns every other component (spec §4.6, §5 "Cyclic
// state").
package supervisor
