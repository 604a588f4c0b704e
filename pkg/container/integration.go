package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/conflict"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/reservation"
	"github.com/cuemby/portguard/pkg/suggest"
	"github.com/cuemby/portguard/pkg/types"
)

// Config describes one container's exposed port surface, gathered from the
// three sources spec §4.5 names: ExposedPorts, PortBindings, and
// NetworkSettings.Ports. Integration de-duplicates across all three before
// validating.
type Config struct {
	ContainerID         string
	ExposedPorts        []int
	PortBindings        []types.PortMapping
	NetworkSettingPorts []types.PortMapping
	Protocol            types.Protocol
}

// Ports returns the de-duplicated port set from every source in cfg.
func (c Config) Ports() []int {
	seen := make(map[int]struct{})
	var out []int
	add := func(p int) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range c.ExposedPorts {
		add(p)
	}
	for _, b := range c.PortBindings {
		add(b.HostPort)
	}
	for _, b := range c.NetworkSettingPorts {
		add(b.HostPort)
	}
	return out
}

// ValidateResult is Validate's outcome.
type ValidateResult struct {
	Conflicts    []*types.Conflict
	Alternatives *suggest.Result
}

// StartOptions configures PreStart/OnStart behavior for one container.
type StartOptions struct {
	OwnerID             string
	AutoReserve         bool
	SuggestAlternatives bool
	ReservationDuration time.Duration
	MonitorRunning      bool
	ReleaseOnStop       bool
}

// PreStartResult is PreStart's outcome.
type PreStartResult struct {
	Proceed           bool
	Reason            string
	RecommendedAction string
	Reservations      []*types.Reservation
}

// Integration is Container Integration (C6): it never mutates the
// container runtime itself, only the reservation/conflict/cache state that
// tracks its port usage.
type Integration struct {
	runtime  Runtime
	detector *conflict.Detector
	manager  *reservation.Manager
	suggest  *suggest.Engine
	cache    *cache.Cache

	mu       sync.Mutex
	sessions map[string]*conflict.MonitorSession
}

// New builds an Integration over runtime, wiring it to the shared
// detector/manager/suggest/cache instances the rest of the service uses.
func New(runtime Runtime, detector *conflict.Detector, manager *reservation.Manager, eng *suggest.Engine, c *cache.Cache) *Integration {
	return &Integration{
		runtime:  runtime,
		detector: detector,
		manager:  manager,
		suggest:  eng,
		cache:    c,
		sessions: make(map[string]*conflict.MonitorSession),
	}
}

// Validate extracts cfg's port set and checks it for conflicts, excluding
// the container's own id so a container re-validating its own prior
// reservations doesn't self-conflict (spec §4.5, §4.3 exclude_owner).
func (i *Integration) Validate(ctx context.Context, cfg Config, suggestAlternatives bool) (*ValidateResult, error) {
	ports := cfg.Ports()
	conflicts, err := i.detector.Detect(ctx, ports, cfg.Protocol, cfg.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("validate container %s: %w", cfg.ContainerID, err)
	}

	result := &ValidateResult{Conflicts: conflicts}
	if len(conflicts) > 0 && suggestAlternatives {
		alt, err := i.suggest.Suggest(ctx, suggest.Request{Ports: ports, Protocol: cfg.Protocol})
		if err != nil {
			return nil, fmt.Errorf("suggest alternatives for %s: %w", cfg.ContainerID, err)
		}
		result.Alternatives = alt
	}
	return result, nil
}

// PreStart validates cfg and, if clear, reserves its ports when
// opts.AutoReserve is set. On conflict it never auto-retries: the caller
// decides whether to act on RecommendedAction.
func (i *Integration) PreStart(ctx context.Context, cfg Config, opts StartOptions) (*PreStartResult, error) {
	validation, err := i.Validate(ctx, cfg, opts.SuggestAlternatives)
	if err != nil {
		return nil, err
	}

	if len(validation.Conflicts) > 0 {
		action := "choose different ports"
		if validation.Alternatives != nil && validation.Alternatives.Best != nil {
			action = fmt.Sprintf("use suggested ports %v", validation.Alternatives.Best.Ports)
		}
		return &PreStartResult{
			Proceed:           false,
			Reason:            fmt.Sprintf("%d port(s) in conflict", len(validation.Conflicts)),
			RecommendedAction: action,
		}, nil
	}

	if !opts.AutoReserve {
		return &PreStartResult{Proceed: true}, nil
	}

	// The reservation's OwnerID is the container's own id, not opts.OwnerID
	// (a human/operator label kept as OwnerName): Validate/Detect exclude
	// conflicts owned by cfg.ContainerID, so a container's own reservation
	// must be filed under that same id for re-validation to self-exempt.
	reservations, err := i.manager.Create(cfg.Ports(), cfg.Protocol, cfg.ContainerID, opts.OwnerID, opts.ReservationDuration, nil)
	if err != nil {
		return &PreStartResult{Proceed: false, Reason: err.Error()}, nil
	}
	return &PreStartResult{Proceed: true, Reservations: reservations}, nil
}

// OnStart caches cfg's port info and, if opts.MonitorRunning, spawns a
// conflict monitor session keyed by the container id.
func (i *Integration) OnStart(ctx context.Context, cfg Config, opts StartOptions) {
	i.cache.MonitorState().Set(cfg.ContainerID, cfg, fmt.Sprintf("container:%s", cfg.ContainerID))

	if !opts.MonitorRunning {
		return
	}
	session := i.detector.StartMonitor(cfg.Ports(), cfg.Protocol, cfg.ContainerID, func(e types.MonitorEvent) {
		log.WithComponent("container").Info().
			Str("container", cfg.ContainerID).Str("event", string(e.Type)).Int("port", e.Port).
			Msg("container port monitor event")
	})

	i.mu.Lock()
	i.sessions[cfg.ContainerID] = session
	i.mu.Unlock()
}

// OnStop stops cfg's monitor session (if any), optionally releases its
// reservations, and evicts its cached port info.
func (i *Integration) OnStop(ctx context.Context, cfg Config, opts StartOptions) (int, error) {
	i.mu.Lock()
	session, ok := i.sessions[cfg.ContainerID]
	if ok {
		delete(i.sessions, cfg.ContainerID)
	}
	i.mu.Unlock()
	if ok {
		i.detector.StopMonitor(session)
	}

	i.cache.MonitorState().Invalidate(fmt.Sprintf("container:%s", cfg.ContainerID))

	if !opts.ReleaseOnStop {
		return 0, nil
	}
	released, err := i.manager.Release(cfg.Ports(), cfg.Protocol, cfg.ContainerID)
	if err != nil {
		return 0, fmt.Errorf("release ports for stopped container %s: %w", cfg.ContainerID, err)
	}
	return released, nil
}

// GetContainerPorts enumerates every running container's port bindings
// from the underlying runtime.
func (i *Integration) GetContainerPorts(ctx context.Context) ([]*types.ContainerPortInfo, error) {
	infos, err := i.runtime.ListRunning(ctx)
	if err != nil {
		return nil, fmt.Errorf("list running containers: %w", err)
	}
	return infos, nil
}
