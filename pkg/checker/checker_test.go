package checker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CheckMethod = config.MethodSocket
	cfg.CheckTimeout = 200 * time.Millisecond
	cfg.ProbeConcurrency = 4
	return cfg
}

func TestIsAvailableOccupiedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port

	c := New(testConfig(), nil, clock.NewFake(time.Unix(0, 0)))
	available, err := c.IsAvailable(context.Background(), port, types.ProtocolTCP, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, available, "listening port should be reported occupied")
}

func TestIsAvailableFreePort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // release it so the port is free again

	c := New(testConfig(), nil, clock.NewFake(time.Unix(0, 0)))
	available, err := c.IsAvailable(context.Background(), port, types.ProtocolTCP, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, available)
}

func TestIsAvailableRejectsInvalidPort(t *testing.T) {
	c := New(testConfig(), nil, clock.NewFake(time.Unix(0, 0)))
	for _, p := range []int{0, -1, 65536} {
		_, err := c.IsAvailable(context.Background(), p, types.ProtocolTCP, "local")
		assert.Error(t, err)
	}
}

func TestIsAvailableCachesResult(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port

	fake := clock.NewFake(time.Unix(0, 0))
	cch := cache.New(fake)
	c := New(testConfig(), cch, fake)

	available, err := c.IsAvailable(context.Background(), port, types.ProtocolTCP, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, available)

	ln.Close() // port is now free, but cached result should still say occupied

	available, err = c.IsAvailable(context.Background(), port, types.ProtocolTCP, "127.0.0.1")
	require.NoError(t, err)
	assert.False(t, available, "cached occupied result should survive until TTL expiry")

	fake.Advance(6 * time.Second)
	available, err = c.IsAvailable(context.Background(), port, types.ProtocolTCP, "127.0.0.1")
	require.NoError(t, err)
	assert.True(t, available, "fresh probe after TTL expiry should see the port is free")
}

func TestIsAvailableManyBoundedConcurrency(t *testing.T) {
	var listeners []net.Listener
	var ports []int
	for i := 0; i < 5; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners = append(listeners, ln)
		ports = append(ports, ln.Addr().(*net.TCPAddr).Port)
	}
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	cfg := testConfig()
	cfg.ProbeConcurrency = 2
	c := New(cfg, nil, clock.NewFake(time.Unix(0, 0)))

	results, err := c.IsAvailableMany(context.Background(), ports, types.ProtocolTCP, "127.0.0.1")
	require.NoError(t, err)
	require.Len(t, results, len(ports))
	for _, p := range ports {
		assert.False(t, results[p])
	}
}

func TestIsAvailableManyRejectsEmptyList(t *testing.T) {
	c := New(testConfig(), nil, clock.NewFake(time.Unix(0, 0)))
	_, err := c.IsAvailableMany(context.Background(), nil, types.ProtocolTCP, "local")
	assert.Error(t, err)
}

func TestParseAddrPortForms(t *testing.T) {
	cases := []struct {
		in       string
		wantAddr string
		wantPort int
	}{
		{"0.0.0.0:80", "0.0.0.0", 80},
		{"127.0.0.1:8080", "127.0.0.1", 8080},
		{"[::]:80", "[::]", 80},
		{":::80", "::", 80},
		{"*:80", "*", 80},
	}
	for _, tc := range cases {
		addr, port, ok := parseAddrPort(tc.in)
		require.True(t, ok, tc.in)
		assert.Equal(t, tc.wantAddr, addr, tc.in)
		assert.Equal(t, tc.wantPort, port, tc.in)
	}
}

func TestParseNetstatOutput(t *testing.T) {
	out := "Proto Recv-Q Send-Q Local Address   Foreign Address   State    PID/Program name\n" +
		"tcp        0      0 0.0.0.0:80      0.0.0.0:*         LISTEN   1234/nginx\n" +
		"tcp6       0      0 :::443          :::*              LISTEN   5678/nginx\n"

	endpoints := parseNetstat(out)
	require.Len(t, endpoints, 2)
	assert.Equal(t, 80, endpoints[0].Port)
	assert.Equal(t, 1234, endpoints[0].PID)
	assert.Equal(t, "nginx", endpoints[0].Process)
	assert.Equal(t, 443, endpoints[1].Port)
}

func TestParseSSOutput(t *testing.T) {
	out := "Netid State  Recv-Q Send-Q Local Address:Port Peer Address:Port Process\n" +
		`tcp   LISTEN 0      128    0.0.0.0:80          0.0.0.0:*          users:(("nginx",pid=1234,fd=6))` + "\n"

	endpoints := parseSS(out)
	require.Len(t, endpoints, 1)
	assert.Equal(t, 80, endpoints[0].Port)
	assert.Equal(t, 1234, endpoints[0].PID)
	assert.Equal(t, "nginx", endpoints[0].Process)
}
