// Package runtime wraps the Runtime Daemon's gRPC surface (containerd) for
// the image, snapshot, container and task services. Every exported method
// scopes its context with withNamespace itself and
// corresponds to one RPC or a short, fixed sequence of RPCs — there is no
// retry or backoff logic here, that belongs to the orchestrator.
package runtime

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/snapshots"

	tasksapi "github.com/containerd/containerd/api/services/tasks/v1"
)

const (
	// DefaultSocketPath is the default Runtime Daemon (containerd) socket.
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// DefaultSnapshotter is the only snapshotter this control plane drives.
	DefaultSnapshotter = "overlayfs"

	// DefaultRuntime is the OCI shim used for every container we create.
	DefaultRuntime = "io.containerd.runc.v2"
)

// Client holds one connection to the Runtime Daemon, shared by the image,
// snapshot, container and task services. It is a process-wide singleton,
// opened once at startup and closed on graceful shutdown.
type Client struct {
	inner *containerd.Client
}

// NewClient dials the Runtime Daemon over its Unix socket.
func NewClient(socketPath string) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	inner, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to runtime daemon at %s: %w", socketPath, err)
	}

	return &Client{inner: inner}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// withNamespace attaches the containerd-namespace gRPC metadata to ctx.
func withNamespace(ctx context.Context, namespace string) context.Context {
	return namespaces.WithNamespace(ctx, namespace)
}

// containerStore returns the raw container CRUD surface.
func (c *Client) containerStore() containers.Store {
	return c.inner.ContainerService()
}

// taskService returns the raw task gRPC client. Unlike the container and
// snapshot services, tasks are only exposed as a thin gRPC client by the
// containerd SDK, not a higher-level task object.
func (c *Client) taskService() tasksapi.TasksClient {
	return c.inner.TaskService()
}

// snapshotter returns the overlayfs snapshotter.
func (c *Client) snapshotter() snapshots.Snapshotter {
	return c.inner.SnapshotService(DefaultSnapshotter)
}

// Namespaces returns the containerd namespace store. Exported because
// pkg/namespace lives outside this package but has no other way to reach
// the underlying client.
func (c *Client) Namespaces() namespaces.Store {
	return c.inner.NamespaceService()
}
