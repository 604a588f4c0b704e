package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/container"
	"github.com/cuemby/portguard/pkg/events"
	"github.com/cuemby/portguard/pkg/types"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *container.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Unix(1000, 0))
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.CheckMethod = config.MethodSocket
	cfg.CheckTimeout = 200 * time.Millisecond
	cfg.PortRanges = []types.PortRange{{Start: 20000, End: 20010}}
	cfg.InitialScanBatchSize = 4
	cfg.PeriodicScanWindow = 5
	cfg.RealTimeMonitoring = false

	runtime := container.NewFake()
	s, err := New(cfg, fake, runtime)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, runtime
}

func TestInitializeRunsInitialScanAndStartsCron(t *testing.T) {
	s, _ := newTestSupervisor(t)
	err := s.Initialize(context.Background())
	require.NoError(t, err)

	stats := s.Statistics()
	assert.Equal(t, 11, stats.Monitored, "every configured port should be pre-populated by the initial scan")
	assert.False(t, stats.LastScan.IsZero())
}

func TestStatisticsReportsRealCountsNoFabricatedSplit(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Initialize(context.Background()))

	_, err := s.Manager().Create([]int{20000}, types.ProtocolTCP, "owner-1", "owner-1-name", time.Hour, nil)
	require.NoError(t, err)

	stats := s.Statistics()
	assert.Equal(t, 1, stats.Reservations)
	assert.Equal(t, 0, stats.AlertCountsBySeverity[types.SeverityHigh], "no alerts recorded yet")
}

func TestPortLabelAndDocumentationRoundTrip(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.UpdatePortLabel(20000, types.ProtocolTCP, "dev-api"))
	require.NoError(t, s.UpdatePortDocumentation(20000, types.ProtocolTCP, "internal dev API"))

	label, err := s.GetPortLabel(20000, types.ProtocolTCP)
	require.NoError(t, err)
	assert.Equal(t, "dev-api", label)

	require.NoError(t, s.Initialize(context.Background()))
	ports, err := s.GetPortsInUse(context.Background())
	require.NoError(t, err)
	found := false
	for _, p := range ports {
		if p.Port == 20000 {
			found = true
			assert.Equal(t, "dev-api", p.Label)
			assert.Equal(t, "internal dev API", p.Documentation)
		}
	}
	assert.True(t, found)
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestScanRangeReturnsPerPortAvailability(t *testing.T) {
	s, _ := newTestSupervisor(t)
	results, err := s.ScanRange(context.Background(), 20000, 20003, types.ProtocolTCP)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestInitializePublishesScanEvents(t *testing.T) {
	s, _ := newTestSupervisor(t)
	sub := s.Events().Subscribe()
	defer s.Events().Unsubscribe(sub)

	require.NoError(t, s.Initialize(context.Background()))

	evt := <-sub
	assert.Equal(t, events.EventPortScanStarted, evt.Type)
	evt = <-sub
	assert.Equal(t, events.EventPortScanCompleted, evt.Type)
}

func TestReserveAndReleasePublishPortChangedEvents(t *testing.T) {
	s, _ := newTestSupervisor(t)
	require.NoError(t, s.Initialize(context.Background()))

	sub := s.Events().Subscribe()
	defer s.Events().Unsubscribe(sub)

	_, err := s.Reserve(context.Background(), []int{20000}, "owner-1", "owner-1-name", types.ProtocolTCP, time.Hour, nil)
	require.NoError(t, err)

	evt := <-sub
	assert.Equal(t, events.EventPortChanged, evt.Type)
	assert.Equal(t, events.SubtypeReserved, evt.Subtype)

	_, err = s.Release("owner-1", []int{20000}, types.ProtocolTCP)
	require.NoError(t, err)

	evt = <-sub
	assert.Equal(t, events.EventPortChanged, evt.Type)
	assert.Equal(t, events.SubtypeReleased, evt.Subtype)
}
