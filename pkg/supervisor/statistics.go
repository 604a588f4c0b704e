package supervisor

import (
	"context"
	"fmt"

	"github.com/cuemby/portguard/pkg/types"
)

// Statistics assembles the statistics() outward operation's result from
// live, owned state. There is no fabricated TCP/UDP split (spec §9 OQ4):
// PortStatusBreakdown and AlertCountsBySeverity are real observed counts.
func (s *Supervisor) Statistics() types.Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	breakdown := types.PortStatusBreakdown{}
	availableInRange := 0
	for key, status := range s.monitored {
		switch {
		case status.Source == types.SourceUnknown:
			breakdown.Pending++
		case status.Reserved:
			breakdown.Reserved++
		case status.Available:
			breakdown.Available++
			if s.cfg.InRanges(key.Port) {
				availableInRange++
			}
		default:
			breakdown.Occupied++
		}
	}

	alertCounts := make(map[types.Severity]int, len(s.alertCounts))
	for sev, count := range s.alertCounts {
		alertCounts[sev] = count
	}

	reservationCount := 0
	if active, err := s.manager.GetActive(nil, types.ProtocolBoth); err == nil {
		reservationCount = len(active)
	}

	return types.Statistics{
		Monitored:             len(s.monitored),
		Reservations:          reservationCount,
		AvailableInRange:      availableInRange,
		ConflictsRecent:       s.detector.RecentConflictCount(),
		LastScan:              s.lastScanTime,
		Ranges:                s.cfg.PortRanges,
		Excluded:               s.cfg.ExcludedPorts,
		PortStatusBreakdown:   breakdown,
		AlertCountsBySeverity: alertCounts,
	}
}

// GetActiveReservationCount is a cheap reservation-store reachability
// probe for the /ready health check.
func (s *Supervisor) GetActiveReservationCount() (int, error) {
	active, err := s.manager.GetActive(nil, types.ProtocolBoth)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

// RecordAlert increments the observed alert count for severity; called by
// callers that surface conflicts or warnings to an operator-facing channel.
func (s *Supervisor) RecordAlert(sev types.Severity) {
	s.mu.Lock()
	s.alertCounts[sev]++
	s.mu.Unlock()
}

// ScanRange probes every port in [start, end] for protocol and returns its
// availability, for the outward scan_range operation.
func (s *Supervisor) ScanRange(ctx context.Context, start, end int, protocol types.Protocol) (map[int]bool, error) {
	if start > end {
		return nil, fmt.Errorf("invalid range [%d, %d]", start, end)
	}
	ports := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		ports = append(ports, p)
	}
	return s.checker.IsAvailableMany(ctx, ports, protocol, s.cfg.HostIP)
}

// GetPortsInUse enumerates every monitored port enriched with its
// reservation, label, and documentation overrides (spec §6
// get_ports_in_use).
func (s *Supervisor) GetPortsInUse(ctx context.Context) ([]types.EnrichedPort, error) {
	s.mu.RLock()
	keys := make([]types.PortKey, 0, len(s.monitored))
	statuses := make(map[types.PortKey]types.PortStatus, len(s.monitored))
	for key, status := range s.monitored {
		keys = append(keys, key)
		statuses[key] = status
	}
	s.mu.RUnlock()

	active, err := s.manager.GetActive(nil, types.ProtocolBoth)
	if err != nil {
		return nil, fmt.Errorf("fetch active reservations: %w", err)
	}
	reservedBy := make(map[types.PortKey]*types.Reservation, len(active))
	for _, r := range active {
		reservedBy[r.Key()] = r
	}

	out := make([]types.EnrichedPort, 0, len(keys))
	for _, key := range keys {
		status := statuses[key]
		enriched := types.EnrichedPort{
			Port:         key.Port,
			Protocol:     key.Protocol,
			Available:    status.Available,
			ServiceLabel: types.WellKnownPorts[key.Port],
		}
		if label, err := s.store.GetLabel(key.Port, key.Protocol); err == nil {
			enriched.Label = label
		}
		if doc, err := s.store.GetDocumentation(key.Port, key.Protocol); err == nil {
			enriched.Documentation = doc
		}
		if r, ok := reservedBy[key]; ok {
			enriched.Reserved = true
			enriched.OwnerID = r.OwnerID
		}
		out = append(out, enriched)
	}
	return out, nil
}

// UpdatePortLabel sets the operator-facing label override for (port, protocol).
func (s *Supervisor) UpdatePortLabel(port int, protocol types.Protocol, label string) error {
	return s.store.SetLabel(port, protocol, label)
}

// GetPortLabel returns the label override for (port, protocol).
func (s *Supervisor) GetPortLabel(port int, protocol types.Protocol) (string, error) {
	return s.store.GetLabel(port, protocol)
}

// UpdatePortDocumentation sets free-text documentation for (port, protocol).
func (s *Supervisor) UpdatePortDocumentation(port int, protocol types.Protocol, text string) error {
	return s.store.SetDocumentation(port, protocol, text)
}
