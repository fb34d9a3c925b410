package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/containerd/containerd/containers"
	"github.com/containerd/errdefs"

	"github.com/faas-containerd/faasd-go/pkg/types"
)

// ContainerError sentinels: NotFound | AlreadyExists | Internal.
var (
	ErrContainerNotFound      = errors.New("container not found")
	ErrContainerAlreadyExists = errors.New("container already exists")
	ErrContainerInternal      = errors.New("container service internal error")
)

// CreateContainer builds a container record from metadata — runtime
// io.containerd.runc.v2, the OCI spec from GenerateSpec, snapshotter
// overlayfs, snapshot key = service id — and creates it in the Runtime
// Daemon.
func (c *Client) CreateContainer(ctx context.Context, metadata types.ContainerStaticMetadata, cfg types.RuntimeConfig) (containers.Container, error) {
	spec, err := GenerateSpec(cfg, metadata.Endpoint)
	if err != nil {
		return containers.Container{}, fmt.Errorf("%w: %v", ErrContainerInternal, err)
	}

	container := containers.Container{
		ID:    metadata.Endpoint.Service,
		Image: metadata.Image,
		Runtime: containers.RuntimeInfo{
			Name: DefaultRuntime,
		},
		Spec:        spec,
		Snapshotter: DefaultSnapshotter,
		SnapshotKey: metadata.Endpoint.Service,
	}

	ctx = withNamespace(ctx, metadata.Endpoint.Namespace)
	created, err := c.containerStore().Create(ctx, container)
	if err != nil {
		if errdefs.IsAlreadyExists(err) {
			return containers.Container{}, fmt.Errorf("%w: %s", ErrContainerAlreadyExists, metadata.Endpoint)
		}
		return containers.Container{}, fmt.Errorf("%w: create container %s: %v", ErrContainerInternal, metadata.Endpoint, err)
	}
	return created, nil
}

// LoadContainer fetches the container record for endpoint.
func (c *Client) LoadContainer(ctx context.Context, endpoint types.Endpoint) (containers.Container, error) {
	ctx = withNamespace(ctx, endpoint.Namespace)
	ctr, err := c.containerStore().Get(ctx, endpoint.Service)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return containers.Container{}, fmt.Errorf("%w: %s", ErrContainerNotFound, endpoint)
		}
		return containers.Container{}, fmt.Errorf("%w: load container %s: %v", ErrContainerInternal, endpoint, err)
	}
	return ctr, nil
}

// ListContainers lists every container record in namespace.
func (c *Client) ListContainers(ctx context.Context, namespace string) ([]containers.Container, error) {
	ctx = withNamespace(ctx, namespace)
	list, err := c.containerStore().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list containers in %s: %v", ErrContainerInternal, namespace, err)
	}
	return list, nil
}

// DeleteContainer removes the container record (not the snapshot or the
// task — those are separate compensators owned by C3/C6).
func (c *Client) DeleteContainer(ctx context.Context, endpoint types.Endpoint) error {
	ctx = withNamespace(ctx, endpoint.Namespace)
	if err := c.containerStore().Delete(ctx, endpoint.Service); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: delete container %s: %v", ErrContainerInternal, endpoint, err)
	}
	return nil
}
