// Package config holds the single typed configuration value every
// portguard subsystem is constructed from (spec §3/§6). Configuration is
// read once, either built programmatically or decoded from a YAML file;
// no subsystem reads environment variables directly.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/portguard/pkg/types"
	"gopkg.in/yaml.v3"
)

// CheckMethod selects how the Availability Checker probes a port.
type CheckMethod string

const (
	MethodSocket  CheckMethod = "socket"
	MethodNetstat CheckMethod = "netstat"
	MethodSs      CheckMethod = "ss"
)

// Config is the root configuration for the port monitoring and reservation
// service. Fields map directly to the table in spec §3.
type Config struct {
	PortRanges    []types.PortRange `yaml:"port_ranges"`
	ExcludedPorts []int             `yaml:"excluded_ports"`

	ScanInterval time.Duration `yaml:"scan_interval"`
	CheckTimeout time.Duration `yaml:"check_timeout"`
	CheckMethod  CheckMethod   `yaml:"check_method"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	HostIP       string        `yaml:"host_ip"`

	RealTimeMonitoring bool `yaml:"real_time_monitoring"`

	DefaultDuration time.Duration `yaml:"default_duration"`
	MaxDuration     time.Duration `yaml:"max_duration"`
	MaxPerOwner     int           `yaml:"max_per_owner"`
	AllowExtension  bool          `yaml:"allow_extension"`

	GCInterval time.Duration `yaml:"gc_interval"`

	DataDir string `yaml:"data_dir"`

	// ProbeConcurrency bounds concurrent per-port availability probes
	// (spec §5: "Port probes ≤ 10 concurrent per batch").
	ProbeConcurrency int `yaml:"probe_concurrency"`

	// InitialScanBatchSize bounds how many ports are probed per batch
	// during the initial scan (spec §4.6: "batches of 100").
	InitialScanBatchSize int `yaml:"initial_scan_batch_size"`

	// PeriodicScanWindow bounds how many ports a periodic rescan samples
	// per tick (spec §4.6: "pseudo-random window of up to 50").
	PeriodicScanWindow int `yaml:"periodic_scan_window"`

	// RangeScanCap bounds range-based suggestion search per original port
	// (spec §5: "range-based suggestions cap at 200 ports").
	RangeScanCap int `yaml:"range_scan_cap"`
}

// Default returns the configuration defaults from spec §3.
func Default() *Config {
	return &Config{
		PortRanges:           []types.PortRange{{Start: 3000, End: 9999}},
		ExcludedPorts:        nil,
		ScanInterval:         30 * time.Second,
		CheckTimeout:         1 * time.Second,
		CheckMethod:          MethodSocket,
		CacheTTL:             5 * time.Second,
		HostIP:               "",
		RealTimeMonitoring:   true,
		DefaultDuration:      1 * time.Hour,
		MaxDuration:          24 * time.Hour,
		MaxPerOwner:          100,
		AllowExtension:       true,
		GCInterval:           60 * time.Second,
		DataDir:              "./data",
		ProbeConcurrency:     10,
		InitialScanBatchSize: 100,
		PeriodicScanWindow:   50,
		RangeScanCap:         200,
	}
}

// Load decodes a YAML config file, filling in any zero-valued field from
// Default() first so a partial file is enough to override just what's needed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// IsExcluded reports whether port appears in ExcludedPorts.
func (c *Config) IsExcluded(port int) bool {
	for _, p := range c.ExcludedPorts {
		if p == port {
			return true
		}
	}
	return false
}

// InRanges reports whether port falls within any configured PortRanges.
func (c *Config) InRanges(port int) bool {
	for _, r := range c.PortRanges {
		if r.Contains(port) {
			return true
		}
	}
	return false
}

// ClampDuration applies the duration policy from spec §4.2: requested
// durations are clamped to [MinReservationDuration, MaxDuration], except a
// sentinel duration at or above ForeverThreshold which is permanent
// (forever=true, in which case the returned duration is meaningless).
func (c *Config) ClampDuration(requested time.Duration) (clamped time.Duration, forever bool) {
	if requested >= types.ForeverThreshold {
		return 0, true
	}
	if requested < types.MinReservationDuration {
		return types.MinReservationDuration, false
	}
	if requested > c.MaxDuration {
		return c.MaxDuration, false
	}
	return requested, false
}
