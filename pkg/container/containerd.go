package container

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/containerd/containerd"
	eventstypes "github.com/containerd/containerd/api/events"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/typeurl/v2"

	"github.com/cuemby/portguard/pkg/log"
	"github.com/cuemby/portguard/pkg/perr"
	"github.com/cuemby/portguard/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace this service inspects.
	DefaultNamespace = "portguard"

	// DefaultSocketPath is the default containerd socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// portsLabel is the container label this service reads for its
	// exposed/bound ports, JSON-encoded as []types.PortMapping. Containerd
	// itself does not track port bindings (that's a CNI/network-plugin
	// concern), so the label is how an external bridge (compose, a CNI
	// plugin, an operator) communicates bindings to the inspector.
	portsLabel = "portguard.ports"
)

// ContainerdRuntime implements Runtime against a real containerd daemon,
// adapted from the teacher's pkg/runtime/containerd.go: same client
// construction, namespace scoping, and fmt.Errorf("...: %w", err)
// wrapping, trimmed to inspection (no CreateContainer/PullImage/
// StartContainer — those belong to a workload orchestrator).
type ContainerdRuntime struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdRuntime connects to containerd at socketPath (or
// DefaultSocketPath if empty).
func NewContainerdRuntime(socketPath string) (*ContainerdRuntime, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w: %v", perr.ErrRuntimeUnavailable, err)
	}

	return &ContainerdRuntime{client: client, namespace: DefaultNamespace}, nil
}

// Close closes the containerd client connection.
func (r *ContainerdRuntime) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func portsFromLabels(labels map[string]string) []types.PortMapping {
	raw, ok := labels[portsLabel]
	if !ok {
		return nil
	}
	var bindings []types.PortMapping
	if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
		return nil
	}
	return bindings
}

func (r *ContainerdRuntime) toPortInfo(ctx context.Context, c containerd.Container) (*types.ContainerPortInfo, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("load container info for %s: %w", c.ID(), err)
	}

	bindings := portsFromLabels(info.Labels)
	exposed := make(map[int]struct{}, len(bindings))
	for _, b := range bindings {
		exposed[b.ContainerPort] = struct{}{}
	}

	return &types.ContainerPortInfo{
		ContainerID:   c.ID(),
		ContainerName: info.Labels["io.portguard.name"],
		Image:         info.Image,
		ExposedPorts:  exposed,
		Bindings:      bindings,
		StartedAt:     info.CreatedAt,
	}, nil
}

// ListRunning returns the port surface of every running container in the
// portguard namespace.
func (r *ContainerdRuntime) ListRunning(ctx context.Context) ([]*types.ContainerPortInfo, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w: %v", perr.ErrRuntimeUnavailable, err)
	}

	var out []*types.ContainerPortInfo
	for _, c := range containers {
		task, err := c.Task(ctx, nil)
		if err != nil {
			continue // no task: not running
		}
		status, err := task.Status(ctx)
		if err != nil || status.Status != containerd.Running {
			continue
		}
		info, err := r.toPortInfo(ctx, c)
		if err != nil {
			log.WithComponent("container").Warn().Err(err).Str("container", c.ID()).Msg("failed to inspect running container")
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Inspect returns one container's port surface.
func (r *ContainerdRuntime) Inspect(ctx context.Context, id string) (*types.ContainerPortInfo, error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)

	c, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load container %s: %w: %v", id, perr.ErrRuntimeUnavailable, err)
	}
	return r.toPortInfo(ctx, c)
}

// SubscribeEvents streams container start/stop/destroy events translated
// from containerd's task/container event topics.
func (r *ContainerdRuntime) SubscribeEvents(ctx context.Context) (<-chan RuntimeEvent, <-chan error) {
	ctx = namespaces.WithNamespace(ctx, r.namespace)
	envelopes, errs := r.client.Subscribe(ctx,
		`topic=="/tasks/start"`,
		`topic=="/tasks/exit"`,
		`topic=="/containers/delete"`,
	)

	out := make(chan RuntimeEvent, 32)
	outErrs := make(chan error, 1)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errs:
				if !ok {
					return
				}
				outErrs <- err
				return
			case env, ok := <-envelopes:
				if !ok {
					return
				}
				evt, err := translateEvent(env.Topic, env.Event)
				if err != nil {
					log.WithComponent("container").Warn().Err(err).Str("topic", env.Topic).Msg("failed to decode containerd event")
					continue
				}
				if evt != nil {
					out <- *evt
				}
			}
		}
	}()

	return out, outErrs
}

func translateEvent(topic string, any typeurl.Any) (*RuntimeEvent, error) {
	decoded, err := typeurl.UnmarshalAny(any)
	if err != nil {
		return nil, fmt.Errorf("unmarshal event payload: %w", err)
	}

	switch topic {
	case "/tasks/start":
		e, ok := decoded.(*eventstypes.TaskStart)
		if !ok {
			return nil, nil
		}
		return &RuntimeEvent{Type: RuntimeEventStarted, ContainerID: e.ContainerID}, nil
	case "/tasks/exit":
		e, ok := decoded.(*eventstypes.TaskExit)
		if !ok {
			return nil, nil
		}
		return &RuntimeEvent{Type: RuntimeEventStopped, ContainerID: e.ContainerID}, nil
	case "/containers/delete":
		e, ok := decoded.(*eventstypes.ContainerDelete)
		if !ok {
			return nil, nil
		}
		return &RuntimeEvent{Type: RuntimeEventDestroyed, ContainerID: e.ID}, nil
	default:
		return nil, nil
	}
}
