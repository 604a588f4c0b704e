package suggest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/checker"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/reservation"
	"github.com/cuemby/portguard/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.CheckMethod = config.MethodSocket
	cfg.CheckTimeout = 200 * time.Millisecond
	cfg.PortRanges = []types.PortRange{{Start: 20000, End: 20100}}

	store, err := reservation.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	mgr := reservation.NewManager(store, cfg, fake)

	chk := checker.New(cfg, cache.New(fake), fake)
	return New(chk, mgr, cfg)
}

func TestSuggestNearbyFindsFreePort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	e := newTestEngine(t)
	result, err := e.Suggest(context.Background(), Request{
		Ports:    []int{port},
		Protocol: types.ProtocolTCP,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Suggestions)
	require.NotNil(t, result.Best)
	assert.NotContains(t, result.Best.Ports, port)
}

func TestSuggestServiceTypedPrefersConfiguredRange(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Suggest(context.Background(), Request{
		Ports:       []int{1},
		Protocol:    types.ProtocolTCP,
		ServiceType: types.ServiceWeb,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Best)
	assert.Equal(t, types.AlternativeService, result.Best.Type)
	for _, p := range result.Best.Ports {
		assert.True(t, types.ServiceTypeRanges[types.ServiceWeb].Contains(p))
	}
}

func TestSuggestSequentialBlock(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Suggest(context.Background(), Request{
		Ports:            []int{20050, 20051, 20052},
		Protocol:         types.ProtocolTCP,
		PreferSequential: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Suggestions)
	found := false
	for _, s := range result.Suggestions {
		if s.Type == types.AlternativeSequential {
			found = true
			require.Len(t, s.Ports, 3)
			for i := 1; i < len(s.Ports); i++ {
				assert.Equal(t, s.Ports[i-1]+1, s.Ports[i])
			}
		}
	}
	assert.True(t, found)
}

func TestSuitableRejectsWellKnownWhenAsked(t *testing.T) {
	e := newTestEngine(t)
	req := Request{Protocol: types.ProtocolTCP, AvoidWellKnown: true}
	ok, err := e.suitable(context.Background(), 3306, req)
	require.NoError(t, err)
	assert.False(t, ok, "3306 (MySQL) must be rejected when avoid_well_known is set")
}

func TestSuitableRejectsPrivilegedPort(t *testing.T) {
	e := newTestEngine(t)
	ok, err := e.suitable(context.Background(), 80, Request{Protocol: types.ProtocolTCP})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuitableRejectsActiveReservation(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.manager.Create([]int{20010}, types.ProtocolTCP, "alice", "", time.Hour, nil)
	require.NoError(t, err)

	ok, err := e.suitable(context.Background(), 20010, Request{Protocol: types.ProtocolTCP})
	require.NoError(t, err)
	assert.False(t, ok)
}
