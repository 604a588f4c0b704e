package checker

import (
	"context"

	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/types"
)

// probe dispatches to the configured method, first resolving the
// container-host IP if host canonicalizes to "local" and the process is
// running inside a container (spec §4.1).
func (c *Checker) probe(ctx context.Context, port int, protocol types.Protocol, host string) (bool, error) {
	target := host
	if host == "local" {
		if resolved, ok := c.hostIP.resolve(ctx); ok {
			target = resolved
		} else {
			target = "127.0.0.1"
		}
	}

	switch c.cfg.CheckMethod {
	case config.MethodNetstat, config.MethodSs:
		return c.probeTool(ctx, target, port, protocol)
	default:
		return c.probeSocket(ctx, target, port, protocol)
	}
}
