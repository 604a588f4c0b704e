package conflict

import (
	"context"
	"fmt"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/checker"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/metrics"
	"github.com/cuemby/portguard/pkg/reservation"
	"github.com/cuemby/portguard/pkg/types"
)

// Detector is the Conflict Detector (C4): fuses Availability Checker
// occupancy with the Reservation Manager's active leases.
type Detector struct {
	checker *checker.Checker
	manager *reservation.Manager
	cache   *cache.Cache
	clock   clock.Clock
	recent  *RollingCounter
}

// New builds a Detector over the given checker and reservation manager.
func New(chk *checker.Checker, mgr *reservation.Manager, c *cache.Cache, clk clock.Clock) *Detector {
	return &Detector{
		checker: chk,
		manager: mgr,
		cache:   c,
		clock:   clk,
		recent:  NewRollingCounter(clk),
	}
}

// RecentConflictCount reports how many conflicts Detect has observed in the
// trailing window (spec §9 Open Question 1).
func (d *Detector) RecentConflictCount() int {
	return d.recent.Count()
}

func fusedCacheKey(protocol types.Protocol, excludeOwner string, ports []int) string {
	return fmt.Sprintf("%s|%s|%v", protocol, excludeOwner, ports)
}

// Detect reports every port in ports currently in conflict: occupied
// system-side, or actively reserved by someone other than excludeOwner.
// Fused results are cached for up to cache.Conflicts()'s TTL, tagged by
// port and by "owner:<excludeOwner>" for invalidation.
func (d *Detector) Detect(ctx context.Context, ports []int, protocol types.Protocol, excludeOwner string) ([]*types.Conflict, error) {
	if d.cache != nil {
		if v, ok := d.cache.Conflicts().Get(fusedCacheKey(protocol, excludeOwner, ports)); ok {
			return v.([]*types.Conflict), nil
		}
	}

	conflicts, err := d.detectUncached(ctx, ports, protocol, excludeOwner)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		tags := make([]string, 0, len(ports)+1)
		for _, p := range ports {
			tags = append(tags, fmt.Sprintf("port:%d", p))
		}
		tags = append(tags, fmt.Sprintf("owner:%s", excludeOwner))
		d.cache.Conflicts().Set(fusedCacheKey(protocol, excludeOwner, ports), conflicts, tags...)
	}

	for range conflicts {
		d.recent.Record()
	}
	return conflicts, nil
}

func (d *Detector) detectUncached(ctx context.Context, ports []int, protocol types.Protocol, excludeOwner string) ([]*types.Conflict, error) {
	availability, err := d.checker.IsAvailableMany(ctx, ports, protocol, "local")
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}

	active, err := d.manager.GetActive(ports, protocol)
	if err != nil {
		return nil, fmt.Errorf("fetch active reservations: %w", err)
	}
	byPort := make(map[int]*types.Reservation, len(active))
	for _, r := range active {
		byPort[r.Port] = r
	}

	var conflicts []*types.Conflict
	for _, port := range ports {
		if occupied, ok := availability[port]; ok && !occupied {
			conflicts = append(conflicts, &types.Conflict{
				Port:     port,
				Protocol: protocol,
				Kind:     types.ConflictSystemProcess,
				Severity: types.SeverityHigh,
			})
			metrics.ConflictsDetectedTotal.WithLabelValues(string(types.ConflictSystemProcess)).Inc()
			continue
		}
		if res, ok := byPort[port]; ok && res.OwnerID != excludeOwner {
			conflicts = append(conflicts, &types.Conflict{
				Port:               port,
				Protocol:           protocol,
				Kind:               types.ConflictReservation,
				Severity:           types.SeverityMedium,
				OwnerID:            res.OwnerID,
				ReservationExpires: res.ExpiresAt,
			})
			metrics.ConflictsDetectedTotal.WithLabelValues(string(types.ConflictReservation)).Inc()
		}
	}
	return conflicts, nil
}

// DeploymentCheck is ValidateDeployment's result: safe if conflicts is
// empty; warnings flag risky-but-not-blocking choices (privileged ports,
// well-known-service ports, UDP's weaker detection).
type DeploymentCheck struct {
	Safe      bool
	Conflicts []*types.Conflict
	Warnings  []string
}

// ValidateDeployment checks whether owner can safely claim ports, and
// surfaces advisory warnings even when the deployment is otherwise safe.
func (d *Detector) ValidateDeployment(ctx context.Context, ports []int, owner string, protocol types.Protocol) (*DeploymentCheck, error) {
	conflicts, err := d.Detect(ctx, ports, protocol, owner)
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, port := range ports {
		if port < types.PrivilegedPortThreshold {
			warnings = append(warnings, fmt.Sprintf("port %d is privileged (<%d)", port, types.PrivilegedPortThreshold))
		}
		if label, ok := types.WellKnownPorts[port]; ok {
			warnings = append(warnings, fmt.Sprintf("port %d is commonly used by %s", port, label))
		}
	}
	if protocol == types.ProtocolUDP {
		warnings = append(warnings, "UDP occupancy detection is less reliable than TCP")
	}

	log.WithComponent("conflict").Debug().
		Int("ports", len(ports)).Int("conflicts", len(conflicts)).Str("owner", owner).
		Msg("deployment validated")

	return &DeploymentCheck{
		Safe:      len(conflicts) == 0,
		Conflicts: conflicts,
		Warnings:  warnings,
	}, nil
}
