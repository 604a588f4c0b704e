package checker

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/log"
)

// probeValidationPorts is the curated port list used to validate a
// candidate host IP: ECONNREFUSED counts as "reachable" (spec §4.1).
var probeValidationPorts = []int{22, 80, 443, 8080, 53}

// dockerMarkerFile is checked to decide whether the process is running
// inside a container.
const dockerMarkerFile = "/.dockerenv"

// hostIPResolver resolves and caches, for the process lifetime, the real
// host IP to probe through when running inside a container and asked
// about "localhost" (spec §4.1 container-host traversal).
type hostIPResolver struct {
	cfg *config.Config

	mu       sync.Mutex
	resolved bool
	hostIP   string
	ok       bool
}

func newHostIPResolver(cfg *config.Config) hostIPResolver {
	return hostIPResolver{cfg: cfg}
}

// resolve returns (hostIP, true) if a real host address was found; (_,
// false) if not in a container or no candidate could be validated, in
// which case the caller should fall back to ordinary loopback probing.
func (r *hostIPResolver) resolve(ctx context.Context) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return r.hostIP, r.ok
	}
	r.hostIP, r.ok = r.doResolve(ctx)
	r.resolved = true
	return r.hostIP, r.ok
}

func (r *hostIPResolver) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = false
	r.hostIP = ""
	r.ok = false
}

func (r *hostIPResolver) doResolve(ctx context.Context) (string, bool) {
	if !inContainer() {
		return "", false
	}

	for _, candidate := range r.candidates() {
		if validateHostCandidate(ctx, candidate) {
			log.WithComponent("checker").Info().
				Str("candidate", candidate).Msg("resolved container host IP")
			return candidate, true
		}
	}
	log.WithComponent("checker").Warn().
		Msg("running in container but no host IP candidate validated")
	return "", false
}

// candidates returns, in priority order, every address worth trying: the
// configured host_ip, non-loopback interface addresses, the default-route
// gateway, and hosts-file entries for host.docker.internal.
func (r *hostIPResolver) candidates() []string {
	var out []string

	if r.cfg != nil && r.cfg.HostIP != "" {
		out = append(out, r.cfg.HostIP)
	}
	out = append(out, interfaceAddresses()...)
	if gw, ok := defaultGateway(); ok {
		out = append(out, gw)
	}
	out = append(out, hostsFileEntries("host.docker.internal", "gateway.docker.internal")...)
	out = append(out, "172.17.0.1") // curated: common Docker bridge gateway

	return dedupe(out)
}

func inContainer() bool {
	_, err := os.Stat(dockerMarkerFile)
	return err == nil
}

// interfaceAddresses returns non-loopback, non-docker-bridge IPv4
// addresses configured on this host's interfaces.
func interfaceAddresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Name == "docker0" || strings.HasPrefix(iface.Name, "br-") {
			continue // docker bridge networks
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
				continue
			}
			out = append(out, ipNet.IP.String())
		}
	}
	return out
}

// defaultGateway best-effort parses /proc/net/route for the default
// route's gateway address. Returns ok=false on any non-Linux or malformed
// environment; this is advisory, never fatal.
func defaultGateway() (string, bool) {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[1] != "00000000" { // destination 0.0.0.0 == default route
			continue
		}
		gw, ok := parseHexLittleEndianIP(fields[2])
		if ok {
			return gw, true
		}
	}
	return "", false
}

func parseHexLittleEndianIP(hexStr string) (string, bool) {
	if len(hexStr) != 8 {
		return "", false
	}
	var b [4]byte
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(hexStr[i*2:i*2+2], 16, 8)
		if err != nil {
			return "", false
		}
		b[3-i] = byte(v)
	}
	return net.IPv4(b[0], b[1], b[2], b[3]).String(), true
}

// hostsFileEntries looks up names in /etc/hosts.
func hostsFileEntries(names ...string) []string {
	f, err := os.Open("/etc/hosts")
	if err != nil {
		return nil
	}
	defer f.Close()

	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, host := range fields[1:] {
			if _, ok := want[host]; ok {
				out = append(out, fields[0])
			}
		}
	}
	return out
}

func validateHostCandidate(ctx context.Context, addr string) bool {
	for _, port := range probeValidationPorts {
		dialCtx, cancel := context.WithTimeout(ctx, time.Second)
		conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		cancel()
		if err == nil {
			conn.Close()
			return true
		}
		// ECONNREFUSED means the host exists, just not listening there.
		if errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
