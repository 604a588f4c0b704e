package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/clock"
)

func TestNamespaceGetSetMiss(t *testing.T) {
	c := New(clock.NewFake(time.Unix(0, 0)))

	_, ok := c.Availability().Get("tcp:8080:0.0.0.0")
	assert.False(t, ok)

	c.Availability().Set("tcp:8080:0.0.0.0", true, "port:8080")
	v, ok := c.Availability().Get("tcp:8080:0.0.0.0")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestNamespaceExpires(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	c := New(fake)

	c.Availability().Set("k", "v")
	_, ok := c.Availability().Get("k")
	require.True(t, ok)

	fake.Advance(6 * time.Second)

	_, ok = c.Availability().Get("k")
	assert.False(t, ok, "entry should have expired after TTL elapsed")
}

func TestNamespaceInvalidateByTag(t *testing.T) {
	c := New(clock.NewFake(time.Unix(0, 0)))

	c.Availability().Set("tcp:8080", true, "port:8080", "host:0.0.0.0")
	c.Availability().Set("tcp:9090", true, "port:9090", "host:0.0.0.0")

	c.Availability().Invalidate("port:8080")

	_, ok := c.Availability().Get("tcp:8080")
	assert.False(t, ok)

	_, ok = c.Availability().Get("tcp:9090")
	assert.True(t, ok, "unrelated tag should survive invalidation")
}

func TestNamespaceClear(t *testing.T) {
	c := New(clock.NewFake(time.Unix(0, 0)))

	c.Conflicts().Set("a", 1)
	c.Conflicts().Set("b", 2)
	require.Equal(t, 2, c.Conflicts().Stats().Size)

	c.Conflicts().Clear()
	assert.Equal(t, 0, c.Conflicts().Stats().Size)
}

func TestNamespaceStatsTracksHitsAndMisses(t *testing.T) {
	c := New(clock.NewFake(time.Unix(0, 0)))

	c.MonitorState().Set("port:8080", "listening")
	c.MonitorState().Get("port:8080")
	c.MonitorState().Get("missing")

	stats := c.MonitorState().Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestMonitorStateHasNoTTL(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	c := New(fake)

	c.MonitorState().Set("port:8080", "listening")
	fake.Advance(24 * time.Hour)

	_, ok := c.MonitorState().Get("port:8080")
	assert.True(t, ok, "monitor state namespace has no TTL")
}
