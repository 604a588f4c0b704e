package supervisor

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cuemby/portguard/pkg/cache"
	"github.com/cuemby/portguard/pkg/checker"
	"github.com/cuemby/portguard/pkg/clock"
	"github.com/cuemby/portguard/pkg/conflict"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/container"
	"github.com/cuemby/portguard/pkg/events"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/metrics"
	"github.com/cuemby/portguard/pkg/reservation"
	"github.com/cuemby/portguard/pkg/suggest"
	"github.com/cuemby/portguard/pkg/types"
)

// Supervisor is the Monitor Supervisor (C7). It owns every other
// component's lifecycle so Container Integration and the Conflict
// Detector, which only reference each other through callbacks, never need
// a strong owning reference to one another (spec §5).
type Supervisor struct {
	cfg   *config.Config
	clock clock.Clock
	cache *cache.Cache

	store    *reservation.Store
	manager  *reservation.Manager
	checker  *checker.Checker
	detector *conflict.Detector
	suggest  *suggest.Engine
	runtime  container.Runtime // nil if no container runtime is configured
	events   *events.Broker

	cron        *cron.Cron
	scanEntryID cron.EntryID
	gcEntryID   cron.EntryID
	haveScan    bool

	mu           sync.RWMutex
	monitored    map[types.PortKey]types.PortStatus
	lastScanTime time.Time
	alertCounts  map[types.Severity]int

	runtimeCancel context.CancelFunc
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// New constructs a Supervisor. runtime may be nil, in which case
// container-sourced ports never contribute to the initial scan or
// statistics.
func New(cfg *config.Config, clk clock.Clock, runtime container.Runtime) (*Supervisor, error) {
	if clk == nil {
		clk = clock.Real{}
	}

	store, err := reservation.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open reservation store: %w", err)
	}

	c := cache.New(clk)
	mgr := reservation.NewManager(store, cfg, clk)
	chk := checker.New(cfg, c, clk)
	det := conflict.New(chk, mgr, c, clk)
	eng := suggest.New(chk, mgr, cfg)

	return &Supervisor{
		cfg:         cfg,
		clock:       clk,
		cache:       c,
		store:       store,
		manager:     mgr,
		checker:     chk,
		detector:    det,
		suggest:     eng,
		runtime:     runtime,
		events:      events.NewBroker(),
		cron:        cron.New(),
		monitored:   make(map[types.PortKey]types.PortStatus),
		alertCounts: make(map[types.Severity]int),
	}, nil
}

// Manager, Checker, Detector, and Suggest expose the owned components so
// an outward transport layer can compose requests against them.
func (s *Supervisor) Manager() *reservation.Manager { return s.manager }
func (s *Supervisor) Checker() *checker.Checker      { return s.checker }
func (s *Supervisor) Detector() *conflict.Detector   { return s.detector }
func (s *Supervisor) Suggest() *suggest.Engine       { return s.suggest }

// Events returns the event broker port state transitions are published on
// (spec §6 event bus). Callers needing a live feed Subscribe to it.
func (s *Supervisor) Events() *events.Broker { return s.events }

// Initialize runs the spec §4.6 boot sequence: the store is already open
// from New; this subscribes to runtime events, runs the initial scan, and
// starts the periodic-scan and lease-GC cron entries.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.events.Start()

	if s.runtime != nil {
		runtimeCtx, cancel := context.WithCancel(ctx)
		s.runtimeCancel = cancel
		events, errs := s.runtime.SubscribeEvents(runtimeCtx)
		s.wg.Add(1)
		go s.watchRuntimeEvents(events, errs)
	}

	if err := s.initialScan(ctx); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	if s.cfg.RealTimeMonitoring {
		entryID, err := s.cron.AddFunc(everySpec(s.cfg.ScanInterval), func() {
			s.periodicScan(context.Background())
		})
		if err != nil {
			return fmt.Errorf("schedule periodic scan: %w", err)
		}
		s.scanEntryID = entryID
		s.haveScan = true
	}

	gcEntryID, err := s.cron.AddFunc(everySpec(s.cfg.GCInterval), func() {
		s.runGC(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule lease GC: %w", err)
	}
	s.gcEntryID = gcEntryID

	s.cron.Start()
	log.WithComponent("supervisor").Info().
		Bool("real_time_monitoring", s.cfg.RealTimeMonitoring).
		Dur("scan_interval", s.cfg.ScanInterval).Dur("gc_interval", s.cfg.GCInterval).
		Msg("supervisor initialized")
	return nil
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}

// watchRuntimeEvents reacts to container lifecycle transitions by
// invalidating the cached port-monitor view for the affected container;
// it never terminates the process on a subscription error (spec §4.6
// propagation policy), it logs and the goroutine exits.
func (s *Supervisor) watchRuntimeEvents(events <-chan container.RuntimeEvent, errs <-chan error) {
	defer s.wg.Done()
	logger := log.WithComponent("supervisor")
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			metrics.ContainerEventsTotal.WithLabelValues(string(evt.Type)).Inc()
			s.cache.MonitorState().Invalidate(fmt.Sprintf("container:%s", evt.ContainerID))
			logger.Debug().Str("container", evt.ContainerID).Str("event", string(evt.Type)).Msg("runtime event observed")
		case err, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("runtime event subscription failed")
			return
		}
	}
}

// initialScan enumerates system-listening ports and container bindings,
// unions them, pre-populates the monitored map with pending=true so
// statistics are immediately queryable, then probes every configured port
// in InitialScanBatchSize batches and fills in real availability (spec
// §4.6 step 3).
func (s *Supervisor) initialScan(ctx context.Context) error {
	s.events.Publish(events.NewEvent(events.EventPortScanStarted, "initial scan started"))
	union := make(map[types.PortKey]struct{})

	if listening, err := s.checker.GetSystemPortsInUse(ctx, s.cfg.HostIP); err == nil {
		for _, p := range listening {
			union[types.PortKey{Port: p.Port, Protocol: p.Protocol}] = struct{}{}
		}
	} else {
		log.WithComponent("supervisor").Warn().Err(err).Msg("initial scan: system port enumeration failed")
	}

	if s.runtime != nil {
		if containers, err := s.runtime.ListRunning(ctx); err == nil {
			for _, c := range containers {
				for port := range c.ExposedPorts {
					union[types.PortKey{Port: port, Protocol: types.ProtocolTCP}] = struct{}{}
				}
			}
		} else {
			log.WithComponent("supervisor").Warn().Err(err).Msg("initial scan: container enumeration failed")
		}
	}

	s.mu.Lock()
	for key := range union {
		s.monitored[key] = types.PortStatus{Port: key.Port, Protocol: key.Protocol, Source: types.SourceUnknown}
	}
	s.mu.Unlock()

	configured := expandRanges(s.cfg.PortRanges)
	batchSize := s.cfg.InitialScanBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(configured); start += batchSize {
		end := start + batchSize
		if end > len(configured) {
			end = len(configured)
		}
		batch := configured[start:end]
		available, err := s.checker.IsAvailableMany(ctx, batch, types.ProtocolTCP, s.cfg.HostIP)
		if err != nil {
			continue
		}
		s.mu.Lock()
		for port, isAvailable := range available {
			key := types.PortKey{Port: port, Protocol: types.ProtocolTCP}
			s.monitored[key] = types.PortStatus{
				Port: port, Protocol: types.ProtocolTCP, Available: isAvailable, Source: types.SourceSystem,
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.lastScanTime = s.clock.Now()
	s.mu.Unlock()
	s.events.Publish(events.NewEvent(events.EventPortScanCompleted, "initial scan completed"))
	return nil
}

func expandRanges(ranges []types.PortRange) []int {
	var out []int
	for _, r := range ranges {
		for p := r.Start; p <= r.End; p++ {
			out = append(out, p)
		}
	}
	return out
}

// periodicScan probes a pseudo-random window of up to PeriodicScanWindow
// monitored ports and emits a log event only for ports whose availability
// changed since the last observation (spec §4.6 "Periodic scan").
func (s *Supervisor) periodicScan(ctx context.Context) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ScanDuration)

	window := s.sampleWindow()
	if len(window) == 0 {
		return
	}

	byPort := make(map[int]types.PortKey, len(window))
	ports := make([]int, 0, len(window))
	for _, key := range window {
		byPort[key.Port] = key
		ports = append(ports, key.Port)
	}

	available, err := s.checker.IsAvailableMany(ctx, ports, types.ProtocolTCP, s.cfg.HostIP)
	if err != nil {
		metrics.ScanFailuresTotal.Inc()
		log.WithComponent("supervisor").Warn().Err(err).Msg("periodic scan failed")
		s.events.Publish(events.NewEvent(events.EventPortScanFailed, err.Error()))
		return
	}

	s.mu.Lock()
	for port, isAvailable := range available {
		key := byPort[port]
		prev, existed := s.monitored[key]
		s.monitored[key] = types.PortStatus{Port: port, Protocol: key.Protocol, Available: isAvailable, Source: types.SourceSystem}
		if existed && prev.Available != isAvailable {
			log.WithPort(port, string(key.Protocol)).Info().
				Bool("was_available", prev.Available).Bool("now_available", isAvailable).
				Msg("port_changed")
			evt := events.NewEvent(events.EventPortChanged, "availability changed")
			evt.Subtype = events.SubtypeAvailabilityChanged
			evt.Metadata["port"] = strconv.Itoa(port)
			evt.Metadata["protocol"] = string(key.Protocol)
			s.events.Publish(evt)
		}
	}
	s.lastScanTime = s.clock.Now()
	s.mu.Unlock()

	metrics.ScanCyclesTotal.Inc()
	s.events.Publish(events.NewEvent(events.EventPortScanCompleted, "periodic scan completed"))
}

func (s *Supervisor) sampleWindow() []types.PortKey {
	s.mu.RLock()
	all := make([]types.PortKey, 0, len(s.monitored))
	for key := range s.monitored {
		all = append(all, key)
	}
	s.mu.RUnlock()

	window := s.cfg.PeriodicScanWindow
	if window <= 0 {
		window = 50
	}
	if len(all) <= window {
		return all
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:window]
}

func (s *Supervisor) runGC(ctx context.Context) {
	removed, err := s.manager.GCExpired()
	if err != nil {
		log.WithComponent("supervisor").Warn().Err(err).Msg("lease GC failed")
		return
	}
	if removed > 0 {
		log.WithComponent("supervisor").Info().Int("removed", removed).Msg("expired reservations collected")
	}
}

// Stop cancels all timers, stops the runtime event watcher, runs a final
// gc_expired, and closes the store. Stop is idempotent (spec §4.6).
func (s *Supervisor) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		cronCtx := s.cron.Stop()
		if s.runtimeCancel != nil {
			s.runtimeCancel()
		}
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
		s.wg.Wait()

		s.runGC(ctx)

		if err := s.manager.Close(); err != nil {
			stopErr = fmt.Errorf("close reservation store: %w", err)
		}
		s.events.Stop()
		log.WithComponent("supervisor").Info().Msg("supervisor stopped")
	})
	return stopErr
}
