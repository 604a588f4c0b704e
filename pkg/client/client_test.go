package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/types"
)

// newTestServer starts an httptest server listening on a Unix socket in
// t.TempDir and returns a Client dialed to it.
func newTestServer(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "portguard.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(handler)
	srv.Listener.Close()
	srv.Listener = listener
	srv.Start()
	t.Cleanup(srv.Close)

	return New(socketPath)
}

func TestClientCheck(t *testing.T) {
	c := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/check", r.URL.Path)
		_ = json.NewEncoder(w).Encode(CheckResult{Statuses: []types.PortStatus{{Port: 8080, Available: true}}})
	}))
	defer c.Close()

	result, err := c.Check(context.Background(), []int{8080}, types.ProtocolTCP)
	require.NoError(t, err)
	require.Len(t, result.Statuses, 1)
	assert.Equal(t, 8080, result.Statuses[0].Port)
}

func TestClientReserveErrorSurfacesBody(t *testing.T) {
	c := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "owner reservation limit exceeded"})
	}))
	defer c.Close()

	_, err := c.Reserve(context.Background(), []int{8080}, "svc-a", "svc-a", types.ProtocolTCP, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner reservation limit exceeded")
}

func TestClientStatistics(t *testing.T) {
	c := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/statistics", r.URL.Path)
		_ = json.NewEncoder(w).Encode(types.Statistics{Monitored: 42})
	}))
	defer c.Close()

	stats, err := c.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, stats.Monitored)
}

func TestClientScanRangeEncodesQuery(t *testing.T) {
	c := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "21000", r.URL.Query().Get("start"))
		assert.Equal(t, "21005", r.URL.Query().Get("end"))
		_ = json.NewEncoder(w).Encode(map[int]bool{21000: true})
	}))
	defer c.Close()

	result, err := c.ScanRange(context.Background(), 21000, 21005, types.ProtocolTCP)
	require.NoError(t, err)
	assert.True(t, result[21000])
}
