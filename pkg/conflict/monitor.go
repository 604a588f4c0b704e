package conflict

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/types"
)

// defaultMonitorCadence is the per-session re-evaluation interval (spec
// §4.3: "Each session owns a timer (default 30s)").
const defaultMonitorCadence = 30 * time.Second

// MonitorSession watches a fixed port set and invokes a callback whenever a
// port's conflict state changes, in the manner of teacher's Reconciler
// ticker loop (pkg/reconciler/reconciler.go): a goroutine, a ticker, and a
// stop channel, continuing across transient per-tick errors rather than
// exiting.
type MonitorSession struct {
	ID       string
	ports    []int
	protocol types.Protocol
	owner    string
	cadence  time.Duration
	cb       types.MonitorCallback
	detector *Detector

	mu       sync.Mutex
	lastSeen map[int]*types.Conflict

	stopCh chan struct{}
}

// StartMonitor begins a cadence-driven monitor session over ports. cb is
// invoked once per changed port per tick; it never receives two events for
// the same session concurrently.
func (d *Detector) StartMonitor(ports []int, protocol types.Protocol, excludeOwner string, cb types.MonitorCallback) *MonitorSession {
	return d.startMonitor(ports, protocol, excludeOwner, defaultMonitorCadence, cb)
}

func (d *Detector) startMonitor(ports []int, protocol types.Protocol, excludeOwner string, cadence time.Duration, cb types.MonitorCallback) *MonitorSession {
	s := &MonitorSession{
		ID:       uuid.NewString(),
		ports:    ports,
		protocol: protocol,
		owner:    excludeOwner,
		cadence:  cadence,
		cb:       cb,
		detector: d,
		lastSeen: make(map[int]*types.Conflict),
		stopCh:   make(chan struct{}),
	}
	go s.run()
	return s
}

// StopMonitor stops a running session. Safe to call once; a second call
// panics on the closed channel, matching the teacher's Reconciler.Stop
// (callers own the session's lifecycle, not the detector).
func (d *Detector) StopMonitor(s *MonitorSession) {
	s.stop()
}

func (s *MonitorSession) stop() {
	close(s.stopCh)
}

func (s *MonitorSession) run() {
	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	logger := log.WithSession(s.ID)
	logger.Info().Int("ports", len(s.ports)).Msg("monitor session started")

	for {
		select {
		case <-ticker.C:
			if err := s.tick(); err != nil {
				logger.Warn().Err(err).Msg("monitor tick failed, continuing")
				s.cb(types.MonitorEvent{Type: types.MonitorError, Err: err})
			}
		case <-s.stopCh:
			logger.Info().Msg("monitor session stopped")
			return
		}
	}
}

func (s *MonitorSession) tick() error {
	conflicts, err := s.detector.Detect(context.Background(), s.ports, s.protocol, s.owner)
	if err != nil {
		return err
	}

	current := make(map[int]*types.Conflict, len(conflicts))
	for _, c := range conflicts {
		current[c.Port] = c
	}

	s.mu.Lock()
	previous := s.lastSeen
	s.lastSeen = current
	s.mu.Unlock()

	for port, c := range current {
		if _, was := previous[port]; !was {
			s.cb(types.MonitorEvent{Type: types.MonitorConflictDetected, Port: port, Protocol: s.protocol, Conflict: c})
		}
	}
	for port := range previous {
		if _, still := current[port]; !still {
			s.cb(types.MonitorEvent{Type: types.MonitorConflictResolved, Port: port, Protocol: s.protocol})
		}
	}
	return nil
}
