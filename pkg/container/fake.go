package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

func errUnknownContainer(id string) error {
	return fmt.Errorf("unknown container %s: %w", id, perr.ErrRuntimeUnavailable)
}

// Fake is an in-memory Runtime for tests (spec §4.5: "tests can substitute
// a fake runtime").
type Fake struct {
	mu         sync.Mutex
	containers map[string]*types.ContainerPortInfo
	events     chan RuntimeEvent
}

// NewFake creates an empty fake runtime.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]*types.ContainerPortInfo),
		events:     make(chan RuntimeEvent, 32),
	}
}

// Put registers or replaces a container's port info and emits a started event.
func (f *Fake) Put(info *types.ContainerPortInfo) {
	f.mu.Lock()
	f.containers[info.ContainerID] = info
	f.mu.Unlock()
	f.events <- RuntimeEvent{Type: RuntimeEventStarted, ContainerID: info.ContainerID}
}

// Stop emits a stopped event for id without removing it from ListRunning.
func (f *Fake) Stop(id string) {
	f.events <- RuntimeEvent{Type: RuntimeEventStopped, ContainerID: id}
}

// Remove deletes id and emits a destroyed event.
func (f *Fake) Remove(id string) {
	f.mu.Lock()
	delete(f.containers, id)
	f.mu.Unlock()
	f.events <- RuntimeEvent{Type: RuntimeEventDestroyed, ContainerID: id}
}

// ListRunning returns every registered container.
func (f *Fake) ListRunning(ctx context.Context) ([]*types.ContainerPortInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.ContainerPortInfo, 0, len(f.containers))
	for _, info := range f.containers {
		out = append(out, info)
	}
	return out, nil
}

// Inspect returns one registered container, or an error if unknown.
func (f *Fake) Inspect(ctx context.Context, id string) (*types.ContainerPortInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.containers[id]
	if !ok {
		return nil, errUnknownContainer(id)
	}
	return info, nil
}

// SubscribeEvents returns the fake's event stream; the error channel never
// fires (the fake never fails its subscription).
func (f *Fake) SubscribeEvents(ctx context.Context) (<-chan RuntimeEvent, <-chan error) {
	return f.events, make(chan error)
}
