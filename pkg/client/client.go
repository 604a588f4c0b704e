// Package client is a thin HTTP client for the portguardd outward
// operations transport, used by cmd/portguardctl. It wraps an
// http.Client dialed over the daemon's Unix socket rather than a TCP
// address, with one method per outward operation (spec §6), mirroring
// the one-method-per-RPC shape the teacher's gRPC CLI client used.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cuemby/portguard/pkg/types"
)

// Client talks to portguardd's outward operations transport over a Unix
// socket.
type Client struct {
	http *http.Client
}

// New builds a Client dialing socketPath for every request.
func New(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Close releases idle connections held by the underlying transport.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

const baseURL = "http://unix"

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("portguardd unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("portguardd: %s", errResp.Error)
		}
		return fmt.Errorf("portguardd: unexpected status %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CheckResult mirrors pkg/supervisor.CheckResult's JSON shape.
type CheckResult struct {
	Statuses []types.PortStatus `json:"Statuses"`
}

// Check runs check_availability for ports/protocol.
func (c *Client) Check(ctx context.Context, ports []int, protocol types.Protocol) (*CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out CheckResult
	body := map[string]any{"ports": ports, "protocol": protocol}
	if err := c.do(ctx, http.MethodPost, "/v1/check", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReserveResult mirrors pkg/supervisor.ReserveResult's JSON shape.
type ReserveResult struct {
	Reserved    []*types.Reservation `json:"Reserved"`
	Conflicts   []*types.Conflict    `json:"Conflicts"`
	Suggestions []*types.Suggestion  `json:"Suggestions"`
}

// Reserve claims ports for owner.
func (c *Client) Reserve(ctx context.Context, ports []int, owner, ownerName string, protocol types.Protocol, duration time.Duration) (*ReserveResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out ReserveResult
	body := map[string]any{
		"ports": ports, "owner": owner, "owner_name": ownerName,
		"protocol": protocol, "duration_seconds": int64(duration.Seconds()),
	}
	if err := c.do(ctx, http.MethodPost, "/v1/reserve", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Release frees ports (or everything owner holds, when ports is empty).
func (c *Client) Release(ctx context.Context, owner string, ports []int, protocol types.Protocol) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out struct {
		Released []int `json:"released"`
		Count    int   `json:"count"`
	}
	body := map[string]any{"owner": owner, "ports": ports, "protocol": protocol}
	if err := c.do(ctx, http.MethodPost, "/v1/release", body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// SuggestResult mirrors pkg/suggest.Result's JSON shape.
type SuggestResult struct {
	Suggestions []*types.Suggestion `json:"Suggestions"`
	Best        *types.Suggestion   `json:"Best"`
}

// Suggest asks for alternative ports.
func (c *Client) Suggest(ctx context.Context, ports []int, protocol types.Protocol, serviceType types.ServiceType, max int) (*SuggestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out SuggestResult
	body := map[string]any{
		"ports": ports, "protocol": protocol, "service_type": serviceType, "max_suggestions": max,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/suggest", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidationResult mirrors pkg/conflict.DeploymentCheck's JSON shape.
type ValidationResult struct {
	Safe      bool              `json:"Safe"`
	Conflicts []*types.Conflict `json:"Conflicts"`
	Warnings  []string          `json:"Warnings"`
}

// Validate runs validate_deployment for ports/owner.
func (c *Client) Validate(ctx context.Context, ports []int, owner string, protocol types.Protocol) (*ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out ValidationResult
	body := map[string]any{"ports": ports, "owner": owner, "protocol": protocol}
	if err := c.do(ctx, http.MethodPost, "/v1/validate", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanRange probes every port in [start, end].
func (c *Client) ScanRange(ctx context.Context, start, end int, protocol types.Protocol) (map[int]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	q := url.Values{}
	q.Set("start", strconv.Itoa(start))
	q.Set("end", strconv.Itoa(end))
	q.Set("protocol", string(protocol))

	var out map[int]bool
	if err := c.do(ctx, http.MethodGet, "/v1/scan_range?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPortsInUse lists every monitored port, enriched.
func (c *Client) GetPortsInUse(ctx context.Context) ([]types.EnrichedPort, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out []types.EnrichedPort
	if err := c.do(ctx, http.MethodGet, "/v1/ports", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Statistics fetches the daemon's current statistics snapshot.
func (c *Client) Statistics(ctx context.Context) (*types.Statistics, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var out types.Statistics
	if err := c.do(ctx, http.MethodGet, "/v1/statistics", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
