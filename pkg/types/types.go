package types

import (
	"fmt"
	"strings"
	"time"
)

// Protocol identifies the transport protocol of a monitored port.
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolUDP  Protocol = "udp"
	ProtocolBoth Protocol = "both"
)

// Normalize lowercases and validates the protocol string.
func (p Protocol) Normalize() (Protocol, error) {
	switch Protocol(strings.ToLower(string(p))) {
	case ProtocolTCP:
		return ProtocolTCP, nil
	case ProtocolUDP:
		return ProtocolUDP, nil
	case ProtocolBoth:
		return ProtocolBoth, nil
	default:
		return "", fmt.Errorf("invalid protocol: %q", p)
	}
}

// Forever is the sentinel expiry instant denoting a permanent reservation.
var Forever = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// MinReservationDuration is the minimum clamp applied to every reservation.
const MinReservationDuration = 60 * time.Second

// ForeverThreshold is the duration past which a requested duration is
// replaced with Forever rather than clamped to MaxDuration.
const ForeverThreshold = 100 * 365 * 24 * time.Hour

// PortKey identifies a monitored endpoint by port and protocol. Host is
// deliberately excluded: reservations and conflicts are host-local concepts
// (this service is single-node authoritative), while availability checks
// carry Host separately so the same port on different hosts in the
// container-traversal case can still be told apart.
type PortKey struct {
	Port     int
	Protocol Protocol
}

func (k PortKey) String() string {
	return fmt.Sprintf("%d/%s", k.Port, k.Protocol)
}

// ValidatePort rejects ports outside the legal TCP/UDP range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port out of range [1,65535]: %d", port)
	}
	return nil
}

// CanonicalHost canonicalizes "localhost" and "127.0.0.1" to "local" so that
// callers and cache keys agree on identity regardless of which spelling was
// used.
func CanonicalHost(host string) string {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return "local"
	default:
		return host
	}
}

// Reservation is a time-bounded claim on a (port, protocol) by an owner.
type Reservation struct {
	Port      int
	Protocol  Protocol
	OwnerID   string
	OwnerName string
	CreatedAt time.Time
	ExpiresAt time.Time
	Metadata  map[string]any
}

// Key returns the PortKey this reservation occupies.
func (r *Reservation) Key() PortKey {
	return PortKey{Port: r.Port, Protocol: r.Protocol}
}

// Active reports whether the reservation has not yet expired at t.
func (r *Reservation) Active(t time.Time) bool {
	return r.ExpiresAt.After(t)
}

// IsForever reports whether this reservation never expires.
func (r *Reservation) IsForever() bool {
	return r.ExpiresAt.Equal(Forever)
}

// PortSource identifies where a PortStatus's occupancy evidence came from.
type PortSource string

const (
	SourceSystem      PortSource = "system"
	SourceDocker      PortSource = "docker"
	SourceReservation PortSource = "reservation"
	SourceUnknown     PortSource = "unknown"
)

// PortStatus is the transient, point-in-time view of a single port.
type PortStatus struct {
	Port          int
	Protocol      Protocol
	Available     bool
	Reserved      bool
	OwnerID       string
	ReservedUntil time.Time
	Source        PortSource
	ServiceLabel  string
	Documentation string
}

// ConflictKind distinguishes system-process conflicts from reservation
// conflicts; severities differ accordingly (spec §4.3 fusion rule).
type ConflictKind string

const (
	ConflictSystemProcess ConflictKind = "system_process"
	ConflictReservation   ConflictKind = "reservation"
)

// Severity ranks how serious a detected conflict is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict is a single port a caller cannot currently use.
type Conflict struct {
	Port               int
	Protocol           Protocol
	Kind               ConflictKind
	Severity           Severity
	OwnerID            string
	ReservationExpires time.Time
}

// MonitorEventType enumerates the transition events a monitor session emits.
type MonitorEventType string

const (
	MonitorConflictDetected MonitorEventType = "conflict_detected"
	MonitorConflictResolved MonitorEventType = "conflict_resolved"
	MonitorError            MonitorEventType = "error"
)

// MonitorEvent is delivered to a MonitorSession's callback on each
// transition; callbacks for a given session are always delivered in tick
// order, never concurrently (spec §5 ordering guarantees).
type MonitorEvent struct {
	Type     MonitorEventType
	Port     int
	Protocol Protocol
	Conflict *Conflict
	Err      error
}

// MonitorCallback receives transition events for a monitor session.
type MonitorCallback func(MonitorEvent)

// PortMapping describes one container-port to host-port binding.
type PortMapping struct {
	ContainerPort int
	HostPort      int
	HostIP        string
	Protocol      Protocol
}

// ContainerPortInfo is a snapshot of one container's port surface.
type ContainerPortInfo struct {
	ContainerID   string
	ContainerName string
	Image         string
	ExposedPorts  map[int]struct{}
	Bindings      []PortMapping
	StartedAt     time.Time
}

// AlternativeType tags which search strategy produced a suggestion.
type AlternativeType string

const (
	AlternativeSequential AlternativeType = "sequential"
	AlternativeNearby     AlternativeType = "nearby"
	AlternativeRange      AlternativeType = "range"
	AlternativeService    AlternativeType = "service"
)

// Suggestion is one proposed alternative port set.
type Suggestion struct {
	Type   AlternativeType
	Ports  []int
	Reason string
}

// ServiceType is a coarse classification used to pick a default port range
// for typed suggestions (spec §4.4).
type ServiceType string

const (
	ServiceWeb         ServiceType = "web"
	ServiceAPI         ServiceType = "api"
	ServiceDatabase    ServiceType = "database"
	ServiceCache       ServiceType = "cache"
	ServiceMonitoring  ServiceType = "monitoring"
	ServiceDevelopment ServiceType = "development"
	ServiceCustom      ServiceType = "custom"
)

// PortRange is an inclusive [Start, End] range of ports.
type PortRange struct {
	Start int
	End   int
}

// Contains reports whether port lies within the range, inclusive.
func (r PortRange) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// ServiceTypeRanges is the fixed table mapping service type to its default
// suggestion range (spec §4.4).
var ServiceTypeRanges = map[ServiceType]PortRange{
	ServiceWeb:         {8000, 8999},
	ServiceAPI:         {3000, 3999},
	ServiceDatabase:    {5000, 5999},
	ServiceCache:       {6000, 6999},
	ServiceMonitoring:  {9000, 9999},
	ServiceDevelopment: {4000, 4999},
	ServiceCustom:      {7000, 7999},
}

// WellKnownPorts is the required service-identification table (spec §8),
// matched case-insensitively by callers that format it for display.
var WellKnownPorts = map[int]string{
	22:    "SSH",
	53:    "DNS",
	80:    "HTTP",
	443:   "HTTPS",
	3306:  "MySQL",
	5432:  "PostgreSQL",
	6379:  "Redis",
	27017: "MongoDB",
	2375:  "Docker-API",
	9090:  "Prometheus",
	8096:  "Jellyfin",
	32400: "Plex",
}

// PrivilegedPortThreshold is the boundary below which ports are privileged.
const PrivilegedPortThreshold = 1024

// ListeningEndpoint is one entry parsed from the OS listening-socket table
// (netstat/ss output), or synthesized from a successful socket probe.
type ListeningEndpoint struct {
	LocalAddr string
	Port      int
	Protocol  Protocol
	State     string // e.g. "LISTEN", "UNCONN"
	PID       int    // 0 if unknown
	Process   string // empty if unknown
}

// PortInfo is one entry returned by GetSystemPortsInUse, enriched with the
// service-identification table and any caller-set label/documentation.
type PortInfo struct {
	Port          int
	Protocol      Protocol
	ServiceLabel  string
	Documentation string
	PID           int
	Process       string
}

// EnrichedPort is one entry returned by get_ports_in_use (spec §6): a
// port's live status plus whatever container and label/documentation
// metadata the supervisor has on file for it.
type EnrichedPort struct {
	Port          int
	Protocol      Protocol
	Available     bool
	ServiceLabel  string
	Label         string
	Documentation string
	Reserved      bool
	OwnerID       string
	ContainerID   string
	ContainerName string
}

// PortStatusBreakdown buckets monitored ports by their last-observed state.
type PortStatusBreakdown struct {
	Available int
	Occupied  int
	Reserved  int
	Pending   int
}

// Statistics is the statistics() outward operation's result (spec §6).
// alert_counts_by_severity and port_status_breakdown hold real, observed
// counts; there is deliberately no fabricated protocol split (spec §9 OQ4).
type Statistics struct {
	Monitored           int
	Reservations         int
	AvailableInRange    int
	ConflictsRecent     int
	LastScan            time.Time
	Ranges              []PortRange
	Excluded            []int
	PortStatusBreakdown PortStatusBreakdown
	AlertCountsBySeverity map[Severity]int
}
