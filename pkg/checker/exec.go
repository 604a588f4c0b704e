package checker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/metrics"
	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

// watchdogTimeout bounds how long a netstat/ss child process may run
// before being force-killed (spec §4.1: "10-second process watchdog").
const watchdogTimeout = 10 * time.Second

// addrPortPatterns parses the local-address field of listening-socket
// table output. Four forms are accepted to handle OS variance (spec §9):
// IPv4 (0.0.0.0:80), bracketed IPv6 ([::]:80), shorthand IPv6 (:::80),
// and wildcard (*:80). Loopback addresses (127.0.0.1:80, [::1]:80) match
// the IPv4/bracketed-IPv6 patterns directly.
var addrPortPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}):(\d+)$`),
	regexp.MustCompile(`^\[([0-9a-fA-F:]+)\]:(\d+)$`),
	regexp.MustCompile(`^:::(\d+)$`),
	regexp.MustCompile(`^\*:(\d+)$`),
}

func parseAddrPort(s string) (addr string, port int, ok bool) {
	if m := addrPortPatterns[0].FindStringSubmatch(s); m != nil {
		p, _ := strconv.Atoi(m[2])
		return m[1], p, true
	}
	if m := addrPortPatterns[1].FindStringSubmatch(s); m != nil {
		p, _ := strconv.Atoi(m[2])
		return "[" + m[1] + "]", p, true
	}
	if m := addrPortPatterns[2].FindStringSubmatch(s); m != nil {
		p, _ := strconv.Atoi(m[1])
		return "::", p, true
	}
	if m := addrPortPatterns[3].FindStringSubmatch(s); m != nil {
		p, _ := strconv.Atoi(m[1])
		return "*", p, true
	}
	return "", 0, false
}

// probeTool runs the configured (or a forced) listening-table tool and
// reports whether port appears bound, falling back ss->netstat on tool
// failure (spec §7 ErrProbeUnavailable).
func (c *Checker) probeTool(ctx context.Context, host string, port int, protocol types.Protocol) (bool, error) {
	endpoints, err := c.listListening(ctx, protocol)
	if err != nil {
		return false, err
	}
	for _, ep := range endpoints {
		if ep.Port == port {
			return false, nil // occupied
		}
	}
	return true, nil
}

// listListening runs the configured tool, falling back to the other one
// on failure, and parses its output into ListeningEndpoint values.
func (c *Checker) listListening(ctx context.Context, protocol types.Protocol) ([]types.ListeningEndpoint, error) {
	method := c.cfg.CheckMethod
	if method == config.MethodSocket {
		method = config.MethodSs
	}

	endpoints, err := c.runTool(ctx, method, protocol)
	if err == nil {
		return endpoints, nil
	}

	fallback := config.MethodNetstat
	if method == config.MethodNetstat {
		fallback = config.MethodSs
	}
	metrics.ProbeFallbacksTotal.Inc()
	log.WithComponent("checker").Warn().
		Str("method", string(method)).Str("fallback", string(fallback)).
		Err(err).Msg("probe tool unavailable, falling back")

	endpoints, fallbackErr := c.runTool(ctx, fallback, protocol)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%s and %s both failed: %w", method, fallback, perr.ErrScanFailure)
	}
	return endpoints, nil
}

func (c *Checker) runTool(ctx context.Context, method config.CheckMethod, protocol types.Protocol) ([]types.ListeningEndpoint, error) {
	watchCtx, cancel := context.WithTimeout(ctx, watchdogTimeout)
	defer cancel()

	var name string
	var args []string
	switch method {
	case config.MethodNetstat:
		name, args = "netstat", netstatArgs(protocol)
	case config.MethodSs:
		name, args = "ss", ssArgs(protocol)
	default:
		return nil, fmt.Errorf("unsupported tool method %q: %w", method, perr.ErrProbeUnavailable)
	}

	cmd := exec.CommandContext(watchCtx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(watchCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s watchdog expired: %w", name, perr.ErrProbeTimeout)
		}
		return nil, fmt.Errorf("%s failed: %v (%s): %w", name, err, stderr.String(), perr.ErrProbeUnavailable)
	}

	switch method {
	case config.MethodNetstat:
		return parseNetstat(stdout.String()), nil
	default:
		return parseSS(stdout.String()), nil
	}
}

func netstatArgs(protocol types.Protocol) []string {
	switch protocol {
	case types.ProtocolUDP:
		return []string{"-ulnp"}
	case types.ProtocolTCP:
		return []string{"-tlnp"}
	default:
		return []string{"-tulnp"}
	}
}

func ssArgs(protocol types.Protocol) []string {
	switch protocol {
	case types.ProtocolUDP:
		return []string{"-ulnp"}
	case types.ProtocolTCP:
		return []string{"-tlnp"}
	default:
		return []string{"-tulnp"}
	}
}

// parseNetstat parses `netstat -tulnp`-style output:
//
//	Proto Recv-Q Send-Q Local Address   Foreign Address   State    PID/Program name
//	tcp        0      0 0.0.0.0:80      0.0.0.0:*         LISTEN   1234/nginx
func parseNetstat(output string) []types.ListeningEndpoint {
	var out []types.ListeningEndpoint
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		proto := strings.TrimSuffix(fields[0], "6")
		if proto != "tcp" && proto != "udp" {
			continue
		}
		addr, port, ok := parseAddrPort(fields[3])
		if !ok {
			continue
		}

		state := ""
		pidProgram := ""
		if proto == "tcp" && len(fields) >= 6 {
			state = fields[5]
			if len(fields) >= 7 {
				pidProgram = fields[6]
			}
		} else if len(fields) >= 5 {
			pidProgram = fields[len(fields)-1]
		}

		pid, process := splitPIDProgram(pidProgram)
		out = append(out, types.ListeningEndpoint{
			LocalAddr: addr,
			Port:      port,
			Protocol:  types.Protocol(proto),
			State:     state,
			PID:       pid,
			Process:   process,
		})
	}
	return out
}

// parseSS parses `ss -tulnp`-style output:
//
//	Netid State  Recv-Q Send-Q Local Address:Port Peer Address:Port Process
//	tcp   LISTEN 0      128    0.0.0.0:80          0.0.0.0:*          users:(("nginx",pid=1234,fd=6))
func parseSS(output string) []types.ListeningEndpoint {
	var out []types.ListeningEndpoint
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		proto := fields[0]
		if proto != "tcp" && proto != "udp" {
			continue
		}
		state := fields[1]
		if state != "LISTEN" && state != "UNCONN" {
			continue
		}
		addr, port, ok := parseAddrPort(fields[4])
		if !ok {
			continue
		}

		pid, process := parseSSProcess(strings.Join(fields[5:], " "))
		out = append(out, types.ListeningEndpoint{
			LocalAddr: addr,
			Port:      port,
			Protocol:  types.Protocol(proto),
			State:     state,
			PID:       pid,
			Process:   process,
		})
	}
	return out
}

var ssProcessRe = regexp.MustCompile(`\("([^"]+)",pid=(\d+)`)

func parseSSProcess(field string) (pid int, process string) {
	m := ssProcessRe.FindStringSubmatch(field)
	if m == nil {
		return 0, ""
	}
	p, _ := strconv.Atoi(m[2])
	return p, m[1]
}

func splitPIDProgram(field string) (pid int, process string) {
	parts := strings.SplitN(field, "/", 2)
	if len(parts) != 2 {
		return 0, ""
	}
	p, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, ""
	}
	return p, parts[1]
}
