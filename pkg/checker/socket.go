package checker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"

	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

// probeSocket attempts an outbound connect. Connect-success means occupied;
// ECONNREFUSED means free (host reachable, port closed); anything else
// (timeout, EHOSTUNREACH, ENOTFOUND) is unknown and reported as occupied
// via ErrProbeTimeout so IsAvailable fails closed.
//
// UDP cannot be reliably probed by connect() alone (a "connected" UDP
// socket never observes ICMP port-unreachable across many paths), so UDP
// falls back to the tool-based probe; if that is also unresolved the spec
// requires reporting available=true with a warning rather than blocking
// UDP suggestions forever.
func (c *Checker) probeSocket(ctx context.Context, host string, port int, protocol types.Protocol) (bool, error) {
	if protocol == types.ProtocolUDP {
		available, err := c.probeTool(ctx, host, port, protocol)
		if err == nil {
			return available, nil
		}
		log.WithPort(port, string(protocol)).Warn().Err(err).
			Str("host", host).Msg("udp probe unresolved, reporting port as available")
		return true, nil // fail-open only for this specific UDP last resort
	}

	dialer := &net.Dialer{Timeout: c.cfg.CheckTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err == nil {
		conn.Close()
		return false, nil // connect succeeded: occupied
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return true, nil // refused: free
	}

	return false, perr.ErrProbeTimeout
}
