package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/metrics"
	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

// Checker decides the network occupancy of (host, port, protocol) tuples.
type Checker struct {
	cfg   *config.Config
	cache *cache.Cache
	clock clock.Clock

	hostIP hostIPResolver
}

// New constructs a Checker. cache and clk may be nil to get an internal
// default of each (a fresh cache.New and the real clock respectively).
func New(cfg *config.Config, c *cache.Cache, clk clock.Clock) *Checker {
	if clk == nil {
		clk = clock.Real{}
	}
	if c == nil {
		c = cache.New(clk)
	}
	return &Checker{
		cfg:    cfg,
		cache:  c,
		clock:  clk,
		hostIP: newHostIPResolver(cfg),
	}
}

// IsAvailable reports whether no process is bound to (host, port, protocol).
// It fails closed: any indeterminate error (timeout, tool missing, DNS
// failure) is reported as occupied (false, nil) rather than surfaced, per
// spec §4.1 and §7.
func (c *Checker) IsAvailable(ctx context.Context, port int, protocol types.Protocol, host string) (bool, error) {
	if err := types.ValidatePort(port); err != nil {
		return false, perr.Invalid(err.Error())
	}

	host = types.CanonicalHost(host)
	key := cacheKey(host, port, protocol)
	if v, ok := c.cache.Availability().Get(key); ok {
		return v.(bool), nil
	}

	timer := metrics.NewTimer()
	available, err := c.probe(ctx, port, protocol, host)
	timer.ObserveDurationVec(metrics.ProbeDuration, string(c.cfg.CheckMethod))

	result := "available"
	if !available {
		result = "occupied"
	}
	if err != nil {
		result = "error"
		available = false // fail-closed
	}
	metrics.PortsProbedTotal.WithLabelValues(string(c.cfg.CheckMethod), result).Inc()

	c.cache.Availability().Set(key, available,
		fmt.Sprintf("port:%d", port), fmt.Sprintf("host:%s", host))

	if err != nil {
		log.WithPort(port, string(protocol)).Warn().Err(err).
			Str("host", host).Msg("availability probe failed, treating port as occupied")
	}
	return available, nil
}

// IsAvailableMany resolves IsAvailable concurrently across ports, bounded
// by cfg.ProbeConcurrency (spec §5: "Port probes ≤ 10 concurrent per
// batch"). This is the single contract for batch checks (spec §9 OQ2).
func (c *Checker) IsAvailableMany(ctx context.Context, ports []int, protocol types.Protocol, host string) (map[int]bool, error) {
	if len(ports) == 0 {
		return nil, perr.Invalid("port list must not be empty")
	}

	limit := c.cfg.ProbeConcurrency
	if limit <= 0 {
		limit = 10
	}

	results := make(map[int]bool, len(ports))
	var mu sync.Mutex
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for _, p := range ports {
		p := p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			available, err := c.IsAvailable(ctx, p, protocol, host)
			if err != nil {
				available = false
			}
			mu.Lock()
			results[p] = available
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results, nil
}

// ListListening returns every listening endpoint the configured probe
// method can observe, for the given protocol (types.ProtocolBoth for
// both). Returns ErrScanFailure if the underlying tool ran and failed.
func (c *Checker) ListListening(ctx context.Context, protocol types.Protocol) ([]types.ListeningEndpoint, error) {
	endpoints, err := c.listListening(ctx, protocol)
	if err != nil {
		return nil, fmt.Errorf("list listening endpoints: %w", err)
	}
	return endpoints, nil
}

// GetSystemPortsInUse enumerates listening ports, enriched with the
// service-identification table. host is not consulted: the listening
// table is always read from the local machine's netstat/ss output. A
// total failure is raised rather than returned as an empty list, so
// callers can tell "no ports" from "scan failed" (spec §4.1).
func (c *Checker) GetSystemPortsInUse(ctx context.Context, host string) ([]types.PortInfo, error) {
	endpoints, err := c.listListening(ctx, types.ProtocolBoth)
	if err != nil {
		if errors.Is(err, perr.ErrScanFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("get system ports in use: %w", err)
	}

	infos := make([]types.PortInfo, 0, len(endpoints))
	for _, ep := range endpoints {
		infos = append(infos, types.PortInfo{
			Port:         ep.Port,
			Protocol:     ep.Protocol,
			ServiceLabel: types.WellKnownPorts[ep.Port],
			PID:          ep.PID,
			Process:      ep.Process,
		})
	}
	return infos, nil
}

// ResetHostIP clears the cached container-host IP resolution (spec §4.1).
func (c *Checker) ResetHostIP() {
	c.hostIP.reset()
}

func cacheKey(host string, port int, protocol types.Protocol) string {
	return fmt.Sprintf("%s:%d/%s", host, port, protocol)
}
