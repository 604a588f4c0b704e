package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/container"
	"github.com/cuemby/portguard/pkg/supervisor"
	"github.com/cuemby/portguard/pkg/types"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.CheckMethod = config.MethodSocket
	cfg.CheckTimeout = 200 * time.Millisecond
	cfg.PortRanges = []types.PortRange{{Start: 21000, End: 21010}}
	cfg.InitialScanBatchSize = 4
	cfg.PeriodicScanWindow = 5
	cfg.RealTimeMonitoring = false

	sup, err := supervisor.New(cfg, clock.NewFake(time.Unix(1000, 0)), container.NewFake())
	require.NoError(t, err)
	require.NoError(t, sup.Initialize(context.Background()))
	t.Cleanup(func() { sup.Stop(context.Background()) })

	return New(sup)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleCheckReturnsAvailability(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s.Handler(), "/v1/check", checkRequest{Ports: []int{21000}, Protocol: types.ProtocolTCP})
	assert.Equal(t, http.StatusOK, w.Code)

	var result CheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Statuses, 1)
	assert.Equal(t, 21000, result.Statuses[0].Port)
}

func TestHandleReserveThenConflict(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := postJSON(t, h, "/v1/reserve", reserveRequest{
		Ports: []int{21001}, Owner: "svc-a", Protocol: types.ProtocolTCP, DurationSeconds: 60,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var reserved ReserveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reserved))
	require.Len(t, reserved.Reserved, 1)

	w = postJSON(t, h, "/v1/reserve", reserveRequest{
		Ports: []int{21001}, Owner: "svc-b", Protocol: types.ProtocolTCP, DurationSeconds: 60,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	var conflicted ReserveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conflicted))
	assert.Empty(t, conflicted.Reserved)
	assert.NotEmpty(t, conflicted.Conflicts)
}

func TestHandleReserveThenRelease(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	postJSON(t, h, "/v1/reserve", reserveRequest{Ports: []int{21002}, Owner: "svc-a", Protocol: types.ProtocolTCP, DurationSeconds: 60})

	w := postJSON(t, h, "/v1/release", releaseRequest{Owner: "svc-a", Ports: []int{21002}, Protocol: types.ProtocolTCP})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp releaseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestHandleReserveInvalidInputIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s.Handler(), "/v1/reserve", reserveRequest{Ports: nil, Owner: "", Protocol: types.ProtocolTCP})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleScanRange(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/scan_range?start=21000&end=21002&protocol=tcp", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var result map[int]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result, 3)
}

func TestHandleScanRangeMissingParam(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/scan_range?start=21000", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePortLabelRoundTrip(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	w := postJSON(t, h, "/v1/port_label", portLabelRequest{Port: 21003, Protocol: types.ProtocolTCP, Label: "dev-api"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/port_label?port=21003&protocol=tcp", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp portLabelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "dev-api", resp.Label)
}

func TestHandleStatistics(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/statistics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var stats types.Statistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 11, stats.Monitored)
}

func TestHandleGetPortsInUse(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/ports", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var ports []types.EnrichedPort
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ports))
	assert.Len(t, ports, 11)
}

func TestHandleValidateDeployment(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s.Handler(), "/v1/validate", validateRequest{Ports: []int{80}, Owner: "svc-a", Protocol: types.ProtocolTCP})
	assert.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Safe     bool     `json:"Safe"`
		Warnings []string `json:"Warnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Warnings, "port 80 is privileged and well-known")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/reserve", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
