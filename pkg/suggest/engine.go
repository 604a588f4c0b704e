package suggest

import (
	"context"

	"github.com/cuemby/portguard/pkg/checker"
	"github.com/cuemby/portguard/pkg/config"
	"github.com/cuemby/portguard/pkg/reservation"
	"github.com/cuemby/portguard/pkg/types"
)

// Request is the Suggestion Engine's input (spec §4.4).
type Request struct {
	Ports            []int
	Protocol         types.Protocol
	PreferSequential bool
	MaxSuggestions   int
	NearbyRange      int
	AvoidWellKnown   bool
	RespectRanges    bool
	ServiceType      types.ServiceType
	PreferredRange   *types.PortRange
}

// Result is everything the engine produced for one Request.
type Result struct {
	Suggestions []*types.Suggestion
	Best        *types.Suggestion
}

const defaultNearbyRange = 10

// Engine is the Suggestion Engine (C5): it proposes alternative ports when
// a requested set is unusable, asking C1 (via Checker) and C3 (via
// reservation.Manager) whether a candidate is actually free.
type Engine struct {
	checker *checker.Checker
	manager *reservation.Manager
	cfg     *config.Config
}

// New builds an Engine over the given checker and reservation manager.
func New(chk *checker.Checker, mgr *reservation.Manager, cfg *config.Config) *Engine {
	return &Engine{checker: chk, manager: mgr, cfg: cfg}
}

// Suggest runs the search strategy described in spec §4.4 and returns
// every alternative found plus the single best recommendation.
func (e *Engine) Suggest(ctx context.Context, req Request) (*Result, error) {
	if req.NearbyRange <= 0 {
		req.NearbyRange = defaultNearbyRange
	}
	if req.MaxSuggestions <= 0 {
		req.MaxSuggestions = 5
	}

	var suggestions []*types.Suggestion

	if req.ServiceType != "" {
		if s, err := e.serviceTyped(ctx, req); err != nil {
			return nil, err
		} else if s != nil {
			suggestions = append(suggestions, s)
		}
	}

	if req.PreferredRange != nil {
		if s, err := e.rangeBased(ctx, req, *req.PreferredRange); err != nil {
			return nil, err
		} else if s != nil {
			suggestions = append(suggestions, s)
		}
	}

	if req.PreferSequential && len(req.Ports) > 1 {
		s, err := e.sequential(ctx, req)
		if err != nil {
			return nil, err
		}
		if s != nil {
			suggestions = append(suggestions, s)
		}
	} else {
		s, err := e.nearby(ctx, req)
		if err != nil {
			return nil, err
		}
		if s != nil {
			suggestions = append(suggestions, s)
		}
	}

	if len(suggestions) > req.MaxSuggestions {
		suggestions = suggestions[:req.MaxSuggestions]
	}

	return &Result{
		Suggestions: suggestions,
		Best:        bestOf(suggestions),
	}, nil
}

// bestOf picks by priority: service > range > sequential > nearby (spec
// §4.4 "Best-recommendation selection").
func bestOf(suggestions []*types.Suggestion) *types.Suggestion {
	priority := map[types.AlternativeType]int{
		types.AlternativeService:    0,
		types.AlternativeRange:      1,
		types.AlternativeSequential: 2,
		types.AlternativeNearby:     3,
	}
	var best *types.Suggestion
	bestRank := len(priority)
	for _, s := range suggestions {
		if rank, ok := priority[s.Type]; ok && rank < bestRank {
			bestRank = rank
			best = s
		}
	}
	return best
}
