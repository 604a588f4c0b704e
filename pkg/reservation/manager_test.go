package reservation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

func newTestManager(t *testing.T, cfg *config.Config, clk clock.Clock) *Manager {
	t.Helper()
	store := newTestStore(t)
	return NewManager(store, cfg, clk)
}

func TestManagerCreateClampsDuration(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	m := newTestManager(t, cfg, fake)

	reservations, err := m.Create([]int{8080}, types.ProtocolTCP, "alice", "alice-svc", 5*time.Second, nil)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, fake.Now().Add(types.MinReservationDuration), reservations[0].ExpiresAt)
}

func TestManagerCreateForeverSentinel(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	m := newTestManager(t, cfg, fake)

	reservations, err := m.Create([]int{8080}, types.ProtocolTCP, "alice", "", types.ForeverThreshold, nil)
	require.NoError(t, err)
	assert.True(t, reservations[0].IsForever())
}

func TestManagerCreateRejectsDuplicatePortInBatch(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	m := newTestManager(t, config.Default(), fake)

	_, err := m.Create([]int{8080, 8080}, types.ProtocolTCP, "alice", "", time.Hour, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrInvalidInput))
}

func TestManagerCreateRejectsOwnerOverLimit(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.MaxPerOwner = 1
	m := newTestManager(t, cfg, fake)

	_, err := m.Create([]int{8080, 9090}, types.ProtocolTCP, "alice", "", time.Hour, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrOwnerLimitExceeded))
}

func TestManagerCreateConflictReportsPorts(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	m := newTestManager(t, cfg, fake)

	_, err := m.Create([]int{8080}, types.ProtocolTCP, "alice", "", time.Hour, nil)
	require.NoError(t, err)

	_, err = m.Create([]int{8080, 9090}, types.ProtocolTCP, "bob", "", time.Hour, nil)
	require.Error(t, err)
	var conflictErr *perr.ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, []types.PortKey{{Port: 8080, Protocol: types.ProtocolTCP}}, conflictErr.Ports)

	active, err := m.GetActive([]int{9090}, types.ProtocolTCP)
	require.NoError(t, err)
	assert.Empty(t, active, "the whole batch must have been rejected, not just the conflicting port")
}

func TestManagerExtendPolicyDisabled(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.AllowExtension = false
	m := newTestManager(t, cfg, fake)

	_, err := m.Create([]int{8080}, types.ProtocolTCP, "alice", "", time.Hour, nil)
	require.NoError(t, err)

	_, err = m.Extend(8080, types.ProtocolTCP, "alice", fake.Now().Add(2*time.Hour))
	assert.True(t, errors.Is(err, perr.ErrNotAllowed))
}

func TestManagerExtendMissingReservationIsNotOwner(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	m := newTestManager(t, config.Default(), fake)

	_, err := m.Extend(8080, types.ProtocolTCP, "alice", fake.Now().Add(2*time.Hour))
	assert.True(t, errors.Is(err, perr.ErrNotOwner), "extending a reservation that doesn't exist is an owner mismatch, not a lifecycle error")
}

func TestManagerGCExpiredUpdatesActive(t *testing.T) {
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	m := newTestManager(t, cfg, fake)

	_, err := m.Create([]int{8080}, types.ProtocolTCP, "alice", "", types.MinReservationDuration, nil)
	require.NoError(t, err)

	fake.Advance(types.MinReservationDuration + time.Second)
	removed, err := m.GCExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	active, err := m.GetActive(nil, types.ProtocolTCP)
	require.NoError(t, err)
	assert.Empty(t, active)
}
