package reservation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/metrics"
	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

// Manager is the policy layer (C3) over Store (C2): duration clamping,
// owner caps, pre-conflict batch checks, and extension policy, all
// described in spec §4.2.
type Manager struct {
	store *Store
	cfg   *config.Config
	clock clock.Clock
}

// NewManager wraps store with the configured reservation policy.
func NewManager(store *Store, cfg *config.Config, clk clock.Clock) *Manager {
	return &Manager{store: store, cfg: cfg, clock: clk}
}

// Create reserves every port in ports (protocol shared across the batch)
// for owner, atomically: either all succeed or none do. Duplicate ports
// within the same request are rejected outright (spec §9 OQ3's double
// definition is resolved by this single, uniform rule rather than silently
// deduping or silently keeping the first occurrence).
func (m *Manager) Create(ports []int, protocol types.Protocol, ownerID, ownerName string, requestedDuration time.Duration, metadata map[string]any) ([]*types.Reservation, error) {
	if len(ports) == 0 || ownerID == "" {
		return nil, perr.Invalid("ports and owner_id are required")
	}
	if _, err := protocol.Normalize(); err != nil {
		return nil, fmt.Errorf("%s: %w", err, perr.ErrInvalidInput)
	}

	seen := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		if err := types.ValidatePort(p); err != nil {
			return nil, fmt.Errorf("%s: %w", err, perr.ErrInvalidInput)
		}
		if _, dup := seen[p]; dup {
			metrics.ReservationsRejectedTotal.WithLabelValues("duplicate_port").Inc()
			return nil, fmt.Errorf("duplicate port %d in request: %w", p, perr.ErrInvalidInput)
		}
		seen[p] = struct{}{}
	}

	now := m.clock.Now()

	active, err := m.store.GetByOwner(ownerID, true, now)
	if err != nil {
		return nil, fmt.Errorf("check owner reservations: %w", perr.ErrStoreError)
	}
	if len(active)+len(ports) > m.cfg.MaxPerOwner {
		metrics.ReservationsRejectedTotal.WithLabelValues("owner_limit").Inc()
		return nil, perr.ErrOwnerLimitExceeded
	}

	clampedDuration, forever := m.cfg.ClampDuration(requestedDuration)
	expiresAt := types.Forever
	if !forever {
		expiresAt = now.Add(clampedDuration)
	}

	reservations := make([]*types.Reservation, 0, len(ports))
	for _, p := range ports {
		reservations = append(reservations, &types.Reservation{
			Port:      p,
			Protocol:  protocol,
			OwnerID:   ownerID,
			OwnerName: ownerName,
			CreatedAt: now,
			ExpiresAt: expiresAt,
			Metadata:  metadata,
		})
	}

	if err := m.store.CreateBatch(reservations, now); err != nil {
		var conflictErr *perr.ConflictError
		if errors.As(err, &conflictErr) {
			metrics.ReservationsRejectedTotal.WithLabelValues("conflict").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("create reservations: %w", perr.ErrStoreError)
	}

	metrics.ReservationsCreatedTotal.Add(float64(len(reservations)))
	metrics.ReservationsActive.Add(float64(len(reservations)))
	log.WithOwner(ownerID).Info().
		Int("count", len(reservations)).Str("session", uuid.NewString()).
		Msg("reservations created")
	return reservations, nil
}

// Release releases ports held by owner, returning how many were actually
// released (ports held by someone else are silently skipped, matching
// Store.Release).
func (m *Manager) Release(ports []int, protocol types.Protocol, ownerID string) (int, error) {
	if len(ports) == 0 || ownerID == "" {
		return 0, perr.Invalid("ports and owner_id are required")
	}
	released, err := m.store.Release(ports, protocol, ownerID)
	if err != nil {
		return 0, fmt.Errorf("release reservations: %w", perr.ErrStoreError)
	}
	metrics.ReservationsActive.Sub(float64(released))
	return released, nil
}

// ReleaseAll releases every reservation owner holds.
func (m *Manager) ReleaseAll(ownerID string) (int, error) {
	if ownerID == "" {
		return 0, perr.Invalid("owner_id is required")
	}
	released, err := m.store.ReleaseAll(ownerID)
	if err != nil {
		return 0, fmt.Errorf("release all reservations: %w", perr.ErrStoreError)
	}
	metrics.ReservationsActive.Sub(float64(released))
	return released, nil
}

// GetActive returns active reservations among ports (or all, if ports is
// empty) for protocol.
func (m *Manager) GetActive(ports []int, protocol types.Protocol) ([]*types.Reservation, error) {
	res, err := m.store.GetActive(ports, protocol, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("get active reservations: %w", perr.ErrStoreError)
	}
	return res, nil
}

// GetByOwner returns ownerID's reservations, optionally filtered to active
// ones only.
func (m *Manager) GetByOwner(ownerID string, activeOnly bool) ([]*types.Reservation, error) {
	if ownerID == "" {
		return nil, perr.Invalid("owner_id is required")
	}
	res, err := m.store.GetByOwner(ownerID, activeOnly, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("get reservations by owner: %w", perr.ErrStoreError)
	}
	return res, nil
}

// Extend pushes a reservation's expiry to newExpiresAt, enforcing
// allow_extension and the max_duration-since-created_at ceiling (FOREVER
// leases bypass the ceiling).
func (m *Manager) Extend(port int, protocol types.Protocol, ownerID string, newExpiresAt time.Time) (bool, error) {
	if !m.cfg.AllowExtension {
		return false, perr.ErrNotAllowed
	}
	if ownerID == "" {
		return false, perr.Invalid("owner_id is required")
	}

	now := m.clock.Now()
	existing, err := m.store.GetActive([]int{port}, protocol, now)
	if err != nil {
		return false, fmt.Errorf("lookup reservation: %w", perr.ErrStoreError)
	}
	if len(existing) == 0 {
		return false, perr.ErrNotOwner
	}
	res := existing[0]
	if res.OwnerID != ownerID {
		return false, perr.ErrNotOwner
	}
	if !newExpiresAt.IsZero() && !newExpiresAt.Equal(types.Forever) {
		if newExpiresAt.Sub(res.CreatedAt) > m.cfg.MaxDuration {
			return false, fmt.Errorf("extension exceeds max_duration: %w", perr.ErrNotAllowed)
		}
	}

	extended, err := m.store.Extend(port, protocol, ownerID, newExpiresAt)
	if err != nil {
		return false, fmt.Errorf("extend reservation: %w", perr.ErrStoreError)
	}
	return extended, nil
}

// GCExpired removes expired reservations and updates the active-count
// gauge; called on the supervisor's GC cadence.
func (m *Manager) GCExpired() (int, error) {
	removed, err := m.store.GCExpired(m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("gc expired reservations: %w", perr.ErrStoreError)
	}
	if removed > 0 {
		metrics.ReservationsExpiredTotal.Add(float64(removed))
		metrics.ReservationsActive.Sub(float64(removed))
	}
	return removed, nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
