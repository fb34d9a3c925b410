// Package orchestrator implements the function-lifecycle operations
// (Deploy, Delete, Update, List, Status, Resolve) that compose the
// Image, Snapshot, Spec, Container, Task, CNI and Endpoint Index
// services into one atomic-or-rolled-back unit of work, plus namespace
// CRUD delegation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/mount"
	tasksapi "github.com/containerd/containerd/api/services/tasks/v1"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/faas-containerd/faasd-go/pkg/log"
	"github.com/faas-containerd/faasd-go/pkg/namespace"
	"github.com/faas-containerd/faasd-go/pkg/runtime"
	"github.com/faas-containerd/faasd-go/pkg/store"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

// RuntimeBackend is the subset of pkg/runtime's Client the Orchestrator
// drives. Satisfied by *runtime.Client in production and by an
// in-memory fake in tests, so Deploy's compensation logic can be
// exercised without a live containerd socket.
type RuntimeBackend interface {
	PrepareImage(ctx context.Context, imageRef, namespace string, alwaysPull bool) error
	PrepareSnapshot(ctx context.Context, metadata types.ContainerStaticMetadata) ([]mount.Mount, error)
	RemoveSnapshot(ctx context.Context, endpoint types.Endpoint) error
	ImageConfig(ctx context.Context, imageRef, namespace string) (*ocispec.ImageConfig, error)
	CreateContainer(ctx context.Context, metadata types.ContainerStaticMetadata, cfg types.RuntimeConfig) (containers.Container, error)
	LoadContainer(ctx context.Context, endpoint types.Endpoint) (containers.Container, error)
	ListContainers(ctx context.Context, namespace string) ([]containers.Container, error)
	DeleteContainer(ctx context.Context, endpoint types.Endpoint) error
	NewTask(ctx context.Context, endpoint types.Endpoint, rootfs []mount.Mount) (*tasksapi.CreateTaskResponse, error)
	GetTask(ctx context.Context, endpoint types.Endpoint) (*tasksapi.GetResponse, error)
	KillTaskWithTimeout(ctx context.Context, endpoint types.Endpoint) error
}

// NetworkBackend is the subset of pkg/cni's Service the Orchestrator
// drives. Satisfied by *cni.Service in production and by an in-memory
// fake in tests.
type NetworkBackend interface {
	CreateNetwork(ctx context.Context, endpoint types.Endpoint) (net.IP, error)
	DeleteNetwork(ctx context.Context, endpoint types.Endpoint) error
	CheckNetworkExists(ip net.IP) bool
}

// EndpointIndexer is the subset of pkg/store's EndpointIndex the
// Orchestrator drives. Satisfied by *store.EndpointIndex in production
// and by an in-memory fake in tests.
type EndpointIndexer interface {
	Put(endpoint string, ip net.IP) error
	Get(endpoint string) (net.IP, error)
	Delete(endpoint string) error
}

// Error sentinels, one taxonomy per operation.
var (
	ErrDeployInvalid  = errors.New("invalid deployment")
	ErrDeployInternal = errors.New("deploy failed")

	ErrDeleteNotFound = errors.New("function not found")
	ErrDeleteInternal = errors.New("delete failed")

	ErrUpdateNotFound = errors.New("function not found")
	ErrUpdateInvalid  = errors.New("invalid deployment")
	ErrUpdateInternal = errors.New("update failed")

	ErrStatusNotFound = errors.New("function not found")
	ErrStatusInvalid  = errors.New("invalid query")
	ErrStatusInternal = errors.New("status failed")

	ErrResolveNotFound = errors.New("function not found")
	ErrResolveInternal = errors.New("resolve failed")
)

// Orchestrator composes every backend service behind the function
// lifecycle operations exposed by the HTTP API.
type Orchestrator struct {
	runtime    RuntimeBackend
	cni        NetworkBackend
	namespaces *namespace.Service
	index      EndpointIndexer
}

// New builds an Orchestrator over already-constructed backend services.
func New(rt RuntimeBackend, cniSvc NetworkBackend, namespaces *namespace.Service, index EndpointIndexer) *Orchestrator {
	return &Orchestrator{runtime: rt, cni: cniSvc, namespaces: namespaces, index: index}
}

// Namespaces exposes the namespace CRUD surface for the HTTP API's
// route handlers — the Orchestrator has no namespace logic of its own
// beyond delegation.
func (o *Orchestrator) Namespaces() *namespace.Service {
	return o.namespaces
}

// Deploy pulls the image, prepares a snapshot, attaches a CNI network,
// creates the container and starts its task, then records the leased IP
// in the endpoint index. The snapshot, network, container and task steps
// each push a compensator; on any later failure they unwind in reverse.
func (o *Orchestrator) Deploy(ctx context.Context, deployment types.Deployment) error {
	metadata := types.FromDeployment(deployment)
	logger := log.WithEndpoint(metadata.Endpoint.String())
	logger.Debug().Str("image", metadata.Image).Msg("deploying function")

	var comp compensationStack

	if err := o.runtime.PrepareImage(ctx, metadata.Image, metadata.Endpoint.Namespace, true); err != nil {
		if errors.Is(err, runtime.ErrImageNotFound) {
			return fmt.Errorf("%w: %v", ErrDeployInvalid, err)
		}
		return fmt.Errorf("%w: %v", ErrDeployInternal, err)
	}

	mounts, err := o.runtime.PrepareSnapshot(ctx, metadata)
	if err != nil {
		if errors.Is(err, runtime.ErrNoMatchingPlatform) {
			return fmt.Errorf("%w: %v", ErrDeployInvalid, err)
		}
		return fmt.Errorf("%w: %v", ErrDeployInternal, err)
	}
	comp.push(func() {
		if err := o.runtime.RemoveSnapshot(context.Background(), metadata.Endpoint); err != nil {
			logger.Warn().Err(err).Msg("rollback: failed to remove snapshot")
		}
	})
	defer comp.unwind()

	ip, err := o.cni.CreateNetwork(ctx, metadata.Endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeployInternal, err)
	}
	comp.push(func() {
		if err := o.cni.DeleteNetwork(context.Background(), metadata.Endpoint); err != nil {
			logger.Warn().Err(err).Msg("rollback: failed to remove cni network")
		}
	})

	imgCfg, err := o.runtime.ImageConfig(ctx, metadata.Image, metadata.Endpoint.Namespace)
	if err != nil {
		if errors.Is(err, runtime.ErrNoMatchingPlatform) {
			return fmt.Errorf("%w: %v", ErrDeployInvalid, err)
		}
		return fmt.Errorf("%w: %v", ErrDeployInternal, err)
	}
	runtimeCfg, err := runtime.BuildRuntimeConfig(imgCfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeployInvalid, err)
	}

	if _, err := o.runtime.CreateContainer(ctx, metadata, runtimeCfg); err != nil {
		return fmt.Errorf("%w: %v", ErrDeployInternal, err)
	}
	comp.push(func() {
		if err := o.runtime.DeleteContainer(context.Background(), metadata.Endpoint); err != nil {
			logger.Warn().Err(err).Msg("rollback: failed to delete container")
		}
	})

	if _, err := o.runtime.NewTask(ctx, metadata.Endpoint, mounts); err != nil {
		return fmt.Errorf("%w: %v", ErrDeployInternal, err)
	}
	comp.push(func() {
		if err := o.runtime.KillTaskWithTimeout(context.Background(), metadata.Endpoint); err != nil {
			logger.Warn().Err(err).Msg("rollback: failed to kill task")
		}
	})

	if err := o.index.Put(metadata.Endpoint.String(), ip); err != nil {
		return fmt.Errorf("%w: index endpoint: %v", ErrDeployInternal, err)
	}

	comp.disarm()
	logger.Info().Str("ip", ip.String()).Msg("function deployed")
	return nil
}

// Delete tears down a function's task, container, snapshot, CNI network
// and endpoint-index entry. Every step is attempted regardless of the
// others' outcome; Delete fails if the task, container, snapshot or
// network step failed. Removing the index entry is best-effort: a
// failure there is logged only.
func (o *Orchestrator) Delete(ctx context.Context, req types.DeleteRequest) error {
	endpoint := types.NewEndpoint(req.FunctionName, req.Namespace)
	logger := log.WithEndpoint(endpoint.String())

	if _, err := o.runtime.LoadContainer(ctx, endpoint); err != nil {
		if errors.Is(err, runtime.ErrContainerNotFound) {
			return fmt.Errorf("%w: %s", ErrDeleteNotFound, endpoint)
		}
		return fmt.Errorf("%w: %v", ErrDeleteInternal, err)
	}

	var errs []error

	if err := o.runtime.KillTaskWithTimeout(ctx, endpoint); err != nil {
		logger.Error().Err(err).Msg("failed to kill task")
		errs = append(errs, err)
	}
	if err := o.runtime.DeleteContainer(ctx, endpoint); err != nil {
		logger.Error().Err(err).Msg("failed to delete container")
		errs = append(errs, err)
	}
	if err := o.runtime.RemoveSnapshot(ctx, endpoint); err != nil {
		logger.Error().Err(err).Msg("failed to remove snapshot")
		errs = append(errs, err)
	}
	if err := o.cni.DeleteNetwork(ctx, endpoint); err != nil {
		logger.Error().Err(err).Msg("failed to remove cni network")
		errs = append(errs, err)
	}
	if err := o.index.Delete(endpoint.String()); err != nil {
		logger.Error().Err(err).Msg("failed to remove endpoint index entry")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrDeleteInternal, errors.Join(errs...))
	}
	logger.Info().Msg("function deleted")
	return nil
}

// Update replaces a function by deleting it and redeploying.
func (o *Orchestrator) Update(ctx context.Context, deployment types.Deployment) error {
	req := types.DeleteRequest{FunctionName: deployment.Service, Namespace: deployment.Namespace}

	if err := o.Delete(ctx, req); err != nil {
		switch {
		case errors.Is(err, ErrDeleteNotFound):
			return fmt.Errorf("%w: %v", ErrUpdateNotFound, err)
		default:
			return fmt.Errorf("%w: %v", ErrUpdateInternal, err)
		}
	}

	if err := o.Deploy(ctx, deployment); err != nil {
		switch {
		case errors.Is(err, ErrDeployInvalid):
			return fmt.Errorf("%w: %v", ErrUpdateInvalid, err)
		default:
			return fmt.Errorf("%w: %v", ErrUpdateInternal, err)
		}
	}
	return nil
}

// List returns one Status per container in namespace, skipping any
// container whose task cannot be found rather than failing the whole
// call.
func (o *Orchestrator) List(ctx context.Context, namespace string) ([]types.Status, error) {
	ns := types.NewEndpoint("", namespace).Namespace
	containers, err := o.runtime.ListContainers(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}

	statuses := make([]types.Status, 0, len(containers))
	for _, ctr := range containers {
		endpoint := types.Endpoint{Service: ctr.ID, Namespace: ns}

		task, err := o.runtime.GetTask(ctx, endpoint)
		if err != nil {
			if errors.Is(err, runtime.ErrTaskNotFound) {
				continue
			}
			log.WithEndpoint(endpoint.String()).Warn().Err(err).Msg("failed to get task while listing")
			continue
		}

		replicas := runtime.TaskReplicas(task.Process.Status)
		statuses = append(statuses, types.Status{
			Name:              ctr.ID,
			Namespace:         ns,
			Image:             ctr.Image,
			Replicas:          replicas,
			AvailableReplicas: replicas,
		})
	}
	return statuses, nil
}

// Status loads a single function's container and, best-effort, its task
// state — task errors are logged, not propagated.
func (o *Orchestrator) Status(ctx context.Context, query types.Query) (types.Status, error) {
	endpoint := query.Endpoint()

	ctr, err := o.runtime.LoadContainer(ctx, endpoint)
	if err != nil {
		if errors.Is(err, runtime.ErrContainerNotFound) {
			return types.Status{}, fmt.Errorf("%w: %s", ErrStatusNotFound, endpoint)
		}
		return types.Status{}, fmt.Errorf("%w: %v", ErrStatusInternal, err)
	}

	status := types.Status{
		Name:      ctr.ID,
		Namespace: endpoint.Namespace,
		Image:     ctr.Image,
		CreatedAt: ctr.CreatedAt.String(),
	}

	task, err := o.runtime.GetTask(ctx, endpoint)
	if err != nil {
		log.WithEndpoint(endpoint.String()).Warn().Err(err).Msg("failed to get task for status")
		return status, nil
	}

	replicas := runtime.TaskReplicas(task.Process.Status)
	status.Replicas = replicas
	status.AvailableReplicas = replicas
	return status, nil
}

// Resolve looks up a function's leased IP and returns the upstream URL
// the Invocation Proxy should forward to. If the CNI network has since
// been torn down (the lease file is gone), the stale index entry is
// removed and Resolve fails.
func (o *Orchestrator) Resolve(ctx context.Context, query types.Query) (*url.URL, error) {
	endpoint := query.Endpoint()

	ip, err := o.index.Get(endpoint.String())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResolveNotFound, endpoint)
		}
		return nil, fmt.Errorf("%w: %v", ErrResolveInternal, err)
	}

	if !o.cni.CheckNetworkExists(ip) {
		if err := o.index.Delete(endpoint.String()); err != nil {
			log.WithEndpoint(endpoint.String()).Warn().Err(err).Msg("failed to clean up stale endpoint index entry")
		}
		return nil, fmt.Errorf("%w: cni network no longer exists for %s", ErrResolveInternal, endpoint)
	}

	return &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:8080", ip.String())}, nil
}
