package suggest

import (
	"context"

	"github.com/cuemby/portguard/pkg/types"
)

// protocolsFor expands "both" into the two concrete protocols the
// suitability check must be lenient across (spec §4.4: "C1 reports
// available for at least one of the requested protocols").
func protocolsFor(protocol types.Protocol) []types.Protocol {
	if protocol == types.ProtocolBoth {
		return []types.Protocol{types.ProtocolTCP, types.ProtocolUDP}
	}
	return []types.Protocol{protocol}
}

// suitable reports whether p satisfies every clause of spec §4.4's
// suitability predicate for req.
func (e *Engine) suitable(ctx context.Context, p int, req Request) (bool, error) {
	if p < 1024 || p > 65535 {
		return false, nil
	}
	if e.cfg.IsExcluded(p) {
		return false, nil
	}
	if req.AvoidWellKnown {
		if _, known := types.WellKnownPorts[p]; known {
			return false, nil
		}
	}
	if req.RespectRanges && !e.cfg.InRanges(p) {
		return false, nil
	}

	protocols := protocolsFor(req.Protocol)

	anyAvailable := false
	for _, proto := range protocols {
		available, err := e.checker.IsAvailable(ctx, p, proto, "local")
		if err != nil {
			// IsAvailable errors only on an out-of-range port, which the
			// range check above already excludes; indeterminate probes
			// come back as (false, nil) and reject the candidate below.
			// Any error that does reach here lets the candidate through.
			anyAvailable = true
			break
		}
		if available {
			anyAvailable = true
			break
		}
	}
	if !anyAvailable {
		return false, nil
	}

	for _, proto := range protocols {
		active, err := e.manager.GetActive([]int{p}, proto)
		if err != nil {
			return false, err
		}
		if len(active) > 0 {
			return false, nil
		}
	}
	return true, nil
}
