package suggest

import (
	"context"

	"github.com/cuemby/portguard/pkg/types"
)

// bfsOffsets generates the outward search order +1,-1,+2,-2,... up to max,
// the order spec §4.4 names explicitly for both the sequential block
// search and the per-port nearby search.
func bfsOffsets(max int) []int {
	offsets := make([]int, 0, max*2)
	for d := 1; d <= max; d++ {
		offsets = append(offsets, d, -d)
	}
	return offsets
}

// sequential looks for one contiguous block of len(req.Ports) suitable
// ports, trying start offsets outward from req.Ports[0] before falling
// back to a wider range-scan bounded by RangeScanCap.
func (e *Engine) sequential(ctx context.Context, req Request) (*types.Suggestion, error) {
	base := req.Ports[0]
	length := len(req.Ports)

	tryStart := func(start int) (bool, error) {
		if start < 1024 || start+length-1 > 65535 {
			return false, nil
		}
		for i := 0; i < length; i++ {
			ok, err := e.suitable(ctx, start+i, req)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	ok, err := tryStart(base)
	if err != nil {
		return nil, err
	}
	if ok {
		return sequentialSuggestion(base, length), nil
	}

	searchMax := req.NearbyRange
	if e.cfg.RangeScanCap > searchMax {
		searchMax = e.cfg.RangeScanCap
	}
	for _, offset := range bfsOffsets(searchMax) {
		start := base + offset
		ok, err := tryStart(start)
		if err != nil {
			return nil, err
		}
		if ok {
			return sequentialSuggestion(start, length), nil
		}
	}
	return nil, nil
}

func sequentialSuggestion(start, length int) *types.Suggestion {
	ports := make([]int, length)
	for i := range ports {
		ports[i] = start + i
	}
	return &types.Suggestion{
		Type:   types.AlternativeSequential,
		Ports:  ports,
		Reason: "contiguous block of suitable ports",
	}
}

// nearby finds one alternative per requested port by BFS outward, falling
// back to a range-scan over cfg.PortRanges bounded to RangeScanCap ports.
// If avoid_well_known starved results, the search retries with it relaxed
// and merges the two port sets, deduplicated (spec §4.4 step 3).
func (e *Engine) nearby(ctx context.Context, req Request) (*types.Suggestion, error) {
	ports, err := e.nearbyWithPolicy(ctx, req, req.AvoidWellKnown)
	if err != nil {
		return nil, err
	}

	if req.AvoidWellKnown && len(ports) < len(req.Ports) {
		relaxed := req
		relaxed.AvoidWellKnown = false
		fallback, err := e.nearbyWithPolicy(ctx, relaxed, false)
		if err != nil {
			return nil, err
		}
		ports = dedupeMerge(ports, fallback)
	}

	if len(ports) == 0 {
		return nil, nil
	}
	return &types.Suggestion{
		Type:   types.AlternativeNearby,
		Ports:  ports,
		Reason: "nearby suitable port found by outward search",
	}, nil
}

func (e *Engine) nearbyWithPolicy(ctx context.Context, req Request, avoidWellKnown bool) ([]int, error) {
	policy := req
	policy.AvoidWellKnown = avoidWellKnown

	var found []int
	for _, original := range req.Ports {
		port, err := e.nearbyForPort(ctx, original, policy)
		if err != nil {
			return nil, err
		}
		if port != 0 {
			found = append(found, port)
			continue
		}
		port, err = e.rangeScanForPort(ctx, policy)
		if err != nil {
			return nil, err
		}
		if port != 0 {
			found = append(found, port)
		}
	}
	return found, nil
}

func (e *Engine) nearbyForPort(ctx context.Context, original int, req Request) (int, error) {
	for _, offset := range bfsOffsets(req.NearbyRange) {
		candidate := original + offset
		ok, err := e.suitable(ctx, candidate, req)
		if err != nil {
			return 0, err
		}
		if ok {
			return candidate, nil
		}
	}
	return 0, nil
}

// rangeScanForPort falls back to cfg.PortRanges, scanning at most
// RangeScanCap ports (spec §5: "range-based suggestions cap at 200 ports
// per original port, to avoid a runaway scan").
func (e *Engine) rangeScanForPort(ctx context.Context, req Request) (int, error) {
	scanCap := e.cfg.RangeScanCap
	if scanCap <= 0 {
		scanCap = 200
	}
	scanned := 0
	for _, r := range e.cfg.PortRanges {
		for p := r.Start; p <= r.End && scanned < scanCap; p++ {
			scanned++
			ok, err := e.suitable(ctx, p, req)
			if err != nil {
				return 0, err
			}
			if ok {
				return p, nil
			}
		}
	}
	return 0, nil
}

// rangeBased returns the first n suitable ports in an explicit range
// (used for req.PreferredRange).
func (e *Engine) rangeBased(ctx context.Context, req Request, r types.PortRange) (*types.Suggestion, error) {
	var ports []int
	for p := r.Start; p <= r.End && len(ports) < req.MaxSuggestions; p++ {
		ok, err := e.suitable(ctx, p, req)
		if err != nil {
			return nil, err
		}
		if ok {
			ports = append(ports, p)
		}
	}
	if len(ports) == 0 {
		return nil, nil
	}
	return &types.Suggestion{
		Type:   types.AlternativeRange,
		Ports:  ports,
		Reason: "first suitable ports in the preferred range",
	}, nil
}

// serviceTyped looks up req.ServiceType in types.ServiceTypeRanges and
// returns the first suitable ports in that range (spec §4.4's fixed
// service-type table).
func (e *Engine) serviceTyped(ctx context.Context, req Request) (*types.Suggestion, error) {
	r, ok := types.ServiceTypeRanges[req.ServiceType]
	if !ok {
		return nil, nil
	}
	s, err := e.rangeBased(ctx, req, r)
	if err != nil || s == nil {
		return s, err
	}
	s.Type = types.AlternativeService
	s.Reason = "default range for service type " + string(req.ServiceType)
	return s, nil
}

func dedupeMerge(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	var out []int
	for _, p := range append(append([]int{}, a...), b...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
