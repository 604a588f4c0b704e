package container

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/checker"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/conflict"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/reservation"
	"github.com/cuemby/portguard/pkg/suggest"
	"github.com/cuemby/portguard/pkg/types"
)

func newTestIntegration(t *testing.T) (*Integration, *Fake, clock.Clock) {
	t.Helper()
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.CheckMethod = config.MethodSocket
	cfg.CheckTimeout = 200 * time.Millisecond

	store, err := reservation.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	mgr := reservation.NewManager(store, cfg, fake)

	c := cache.New(fake)
	chk := checker.New(cfg, c, fake)
	det := conflict.New(chk, mgr, c, fake)
	eng := suggest.New(chk, mgr, cfg)
	runtime := NewFake()

	return New(runtime, det, mgr, eng, c), runtime, fake
}

func TestValidateDeduplicatesPortSources(t *testing.T) {
	integ, _, _ := newTestIntegration(t)
	cfg := Config{
		ContainerID:         "c1",
		Protocol:            types.ProtocolTCP,
		ExposedPorts:        []int{9001},
		PortBindings:        []types.PortMapping{{HostPort: 9001}, {HostPort: 9002}},
		NetworkSettingPorts: []types.PortMapping{{HostPort: 9002}, {HostPort: 9003}},
	}
	assert.ElementsMatch(t, []int{9001, 9002, 9003}, cfg.Ports())

	result, err := integ.Validate(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts, "no reservations or listeners exist yet")
}

func TestPreStartAutoReserveSucceeds(t *testing.T) {
	integ, _, _ := newTestIntegration(t)
	cfg := Config{ContainerID: "c1", Protocol: types.ProtocolTCP, ExposedPorts: []int{9010}}

	result, err := integ.PreStart(context.Background(), cfg, StartOptions{
		OwnerID:             "deploy-bot",
		AutoReserve:         true,
		ReservationDuration: time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, result.Proceed)
	require.Len(t, result.Reservations, 1)
	assert.Equal(t, "c1", result.Reservations[0].OwnerID)
}

func TestPreStartBlocksOnConflictAndNeverAutoRetries(t *testing.T) {
	integ, _, _ := newTestIntegration(t)

	first := Config{ContainerID: "c1", Protocol: types.ProtocolTCP, ExposedPorts: []int{9020}}
	_, err := integ.PreStart(context.Background(), first, StartOptions{AutoReserve: true, ReservationDuration: time.Hour})
	require.NoError(t, err)

	second := Config{ContainerID: "c2", Protocol: types.ProtocolTCP, ExposedPorts: []int{9020}}
	result, err := integ.PreStart(context.Background(), second, StartOptions{AutoReserve: true, SuggestAlternatives: true, ReservationDuration: time.Hour})
	require.NoError(t, err)
	assert.False(t, result.Proceed)
	assert.NotEmpty(t, result.Reason)
	assert.NotEmpty(t, result.RecommendedAction)
}

func TestOnStopReleasesWhenConfigured(t *testing.T) {
	integ, _, _ := newTestIntegration(t)
	cfg := Config{ContainerID: "c1", Protocol: types.ProtocolTCP, ExposedPorts: []int{9030}}

	_, err := integ.PreStart(context.Background(), cfg, StartOptions{AutoReserve: true, ReservationDuration: time.Hour})
	require.NoError(t, err)
	integ.OnStart(context.Background(), cfg, StartOptions{MonitorRunning: false})

	released, err := integ.OnStop(context.Background(), cfg, StartOptions{ReleaseOnStop: true})
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestGetContainerPortsListsFakeRuntime(t *testing.T) {
	integ, fakeRuntime, _ := newTestIntegration(t)
	fakeRuntime.Put(&types.ContainerPortInfo{ContainerID: "c1", ExposedPorts: map[int]struct{}{9040: {}}})

	infos, err := integ.GetContainerPorts(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "c1", infos[0].ContainerID)
}
