package supervisor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/portguard/pkg/conflict"
	"github.com/cuemby/portguard/pkg/events"
	"github.com/cuemby/portguard/pkg/suggest"
	"github.com/cuemby/portguard/pkg/types"
)

// CheckResult is check_availability's per-outward-op result: PortStatus
// enriched with the label/documentation overrides the outward transport
// needs without a second round trip (spec §6).
type CheckResult struct {
	Statuses []types.PortStatus
}

// CheckAvailability probes ports and fuses the result with any active
// reservation, returning the outward check_availability view (spec §6).
func (s *Supervisor) CheckAvailability(ctx context.Context, ports []int, protocol types.Protocol) (*CheckResult, error) {
	if _, err := protocol.Normalize(); err != nil {
		return nil, err
	}
	available, err := s.checker.IsAvailableMany(ctx, ports, protocol, s.cfg.HostIP)
	if err != nil {
		return nil, err
	}
	active, err := s.manager.GetActive(ports, protocol)
	if err != nil {
		return nil, err
	}
	reservedBy := make(map[types.PortKey]*types.Reservation, len(active))
	for _, r := range active {
		reservedBy[r.Key()] = r
	}

	out := make([]types.PortStatus, 0, len(ports))
	for _, p := range ports {
		key := types.PortKey{Port: p, Protocol: protocol}
		status := types.PortStatus{
			Port:         p,
			Protocol:     protocol,
			Available:    available[p],
			ServiceLabel: types.WellKnownPorts[p],
		}
		if r, ok := reservedBy[key]; ok {
			status.Reserved = true
			status.OwnerID = r.OwnerID
			status.ReservedUntil = r.ExpiresAt
		}
		if label, err := s.store.GetLabel(p, protocol); err == nil && label != "" {
			status.ServiceLabel = label
		}
		if doc, err := s.store.GetDocumentation(p, protocol); err == nil {
			status.Documentation = doc
		}
		out = append(out, status)
	}
	return &CheckResult{Statuses: out}, nil
}

// ReserveResult is reserve's outward result: the reservations actually
// created, plus whatever conflicts or suggestions explain a partial or
// total rejection (spec §6).
type ReserveResult struct {
	Reserved    []*types.Reservation
	Conflicts   []*types.Conflict
	Suggestions []*types.Suggestion
}

// Reserve claims ports for owner, publishing a reserved event on success
// and falling back to the Suggestion Engine on conflict so the caller
// gets alternatives in the same round trip (spec §6).
func (s *Supervisor) Reserve(ctx context.Context, ports []int, ownerID, ownerName string, protocol types.Protocol, duration time.Duration, metadata map[string]any) (*ReserveResult, error) {
	conflicts, err := s.detector.Detect(ctx, ports, protocol, ownerID)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		result, sugErr := s.suggest.Suggest(ctx, suggest.Request{Ports: ports, Protocol: protocol, MaxSuggestions: 3})
		res := &ReserveResult{Conflicts: conflicts}
		if sugErr == nil {
			res.Suggestions = result.Suggestions
		}
		return res, nil
	}

	reservations, err := s.manager.Create(ports, protocol, ownerID, ownerName, duration, metadata)
	if err != nil {
		return nil, err
	}

	evt := events.NewEvent(events.EventPortChanged, "ports reserved")
	evt.Subtype = events.SubtypeReserved
	evt.Metadata["owner_id"] = ownerID
	evt.Metadata["ports"] = joinPorts(ports)
	s.events.Publish(evt)

	return &ReserveResult{Reserved: reservations}, nil
}

// Release frees ports held by ownerID (or every port owner holds, when
// ports is empty), publishing a released event for what was actually
// freed (spec §6).
func (s *Supervisor) Release(ownerID string, ports []int, protocol types.Protocol) (int, error) {
	var (
		released int
		err      error
	)
	if len(ports) == 0 {
		released, err = s.manager.ReleaseAll(ownerID)
	} else {
		released, err = s.manager.Release(ports, protocol, ownerID)
	}
	if err != nil {
		return 0, err
	}

	evt := events.NewEvent(events.EventPortChanged, "ports released")
	evt.Subtype = events.SubtypeReleased
	evt.Metadata["owner_id"] = ownerID
	evt.Metadata["count"] = strconv.Itoa(released)
	s.events.Publish(evt)

	return released, nil
}

// SuggestAlternatives runs the Suggestion Engine over req (spec §6 suggest).
func (s *Supervisor) SuggestAlternatives(ctx context.Context, req suggest.Request) (*suggest.Result, error) {
	return s.suggest.Suggest(ctx, req)
}

// ValidateDeployment runs the Conflict Detector's deployment check and
// publishes a deployment_validated event regardless of the verdict (spec
// §6 validate_deployment).
func (s *Supervisor) ValidateDeployment(ctx context.Context, ports []int, owner string, protocol types.Protocol) (*conflict.DeploymentCheck, error) {
	check, err := s.detector.ValidateDeployment(ctx, ports, owner, protocol)
	if err != nil {
		return nil, err
	}

	evt := events.NewEvent(events.EventPortChanged, "deployment validated")
	evt.Subtype = events.SubtypeDeploymentValidated
	evt.Metadata["owner"] = owner
	evt.Metadata["safe"] = strconv.FormatBool(check.Safe)
	s.events.Publish(evt)

	return check, nil
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
