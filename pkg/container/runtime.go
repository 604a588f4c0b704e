package container

import (
	"context"

	"github.com/cuemby/portguard/pkg/types"
)

// RuntimeEventType enumerates the container lifecycle transitions
// Integration reacts to (spec §4.5: "subscribe_events({started, stopped,
// destroyed})").
type RuntimeEventType string

const (
	RuntimeEventStarted   RuntimeEventType = "started"
	RuntimeEventStopped   RuntimeEventType = "stopped"
	RuntimeEventDestroyed RuntimeEventType = "destroyed"
)

// RuntimeEvent is one lifecycle transition delivered by SubscribeEvents.
type RuntimeEvent struct {
	Type        RuntimeEventType
	ContainerID string
}

// Runtime is the abstract container-runtime capability Integration
// consumes, decoupling it from any one daemon implementation (spec §4.5
// "Decoupling from the runtime"). Only inspection operations appear here:
// this service never creates, starts, or stops containers itself.
type Runtime interface {
	// ListRunning returns every currently-running container's port surface.
	ListRunning(ctx context.Context) ([]*types.ContainerPortInfo, error)

	// Inspect returns one container's port surface, or an error wrapping
	// perr.ErrRuntimeUnavailable if id is unknown or the runtime can't be
	// reached.
	Inspect(ctx context.Context, id string) (*types.ContainerPortInfo, error)

	// SubscribeEvents streams lifecycle events until ctx is canceled. The
	// error channel carries a terminal subscription failure; callers
	// should treat that as the runtime becoming unavailable.
	SubscribeEvents(ctx context.Context) (<-chan RuntimeEvent, <-chan error)
}
