package orchestrator

import (
	"context"
	"net"
	"sync"
	"time"

	tasksapi "github.com/containerd/containerd/api/services/tasks/v1"
	apitypes "github.com/containerd/containerd/api/types"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/mount"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/faas-containerd/faasd-go/pkg/store"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

// fakeRuntime is an in-memory stand-in for *runtime.Client, recording
// call order and letting each test inject a failure at exactly one
// stage to exercise Deploy's compensation path.
type fakeRuntime struct {
	mu sync.Mutex

	prepareImageErr    error
	prepareSnapshotErr error
	imageConfigErr     error
	createContainerErr error
	newTaskErr         error
	loadContainerErr   error
	getTaskErr         error
	killTaskErr        error

	calls             []string
	snapshotsRemoved  []string
	containersDeleted []string
	tasksKilled       []string
}

func newFakeRuntime() *fakeRuntime { return &fakeRuntime{} }

func (f *fakeRuntime) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeRuntime) PrepareImage(ctx context.Context, imageRef, namespace string, alwaysPull bool) error {
	f.record("PrepareImage")
	return f.prepareImageErr
}

func (f *fakeRuntime) PrepareSnapshot(ctx context.Context, metadata types.ContainerStaticMetadata) ([]mount.Mount, error) {
	f.record("PrepareSnapshot")
	if f.prepareSnapshotErr != nil {
		return nil, f.prepareSnapshotErr
	}
	return []mount.Mount{{Type: "bind", Source: "/var/lib/faasd-go/rootfs", Options: []string{"rbind"}}}, nil
}

func (f *fakeRuntime) RemoveSnapshot(ctx context.Context, endpoint types.Endpoint) error {
	f.mu.Lock()
	f.calls = append(f.calls, "RemoveSnapshot")
	f.snapshotsRemoved = append(f.snapshotsRemoved, endpoint.String())
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) ImageConfig(ctx context.Context, imageRef, namespace string) (*ocispec.ImageConfig, error) {
	f.record("ImageConfig")
	if f.imageConfigErr != nil {
		return nil, f.imageConfigErr
	}
	return &ocispec.ImageConfig{Env: []string{"A=1"}, Cmd: []string{"/bin/fn"}}, nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, metadata types.ContainerStaticMetadata, cfg types.RuntimeConfig) (containers.Container, error) {
	f.record("CreateContainer")
	if f.createContainerErr != nil {
		return containers.Container{}, f.createContainerErr
	}
	return containers.Container{ID: metadata.Endpoint.Service, Image: metadata.Image, CreatedAt: time.Unix(0, 0)}, nil
}

func (f *fakeRuntime) LoadContainer(ctx context.Context, endpoint types.Endpoint) (containers.Container, error) {
	f.record("LoadContainer")
	if f.loadContainerErr != nil {
		return containers.Container{}, f.loadContainerErr
	}
	return containers.Container{ID: endpoint.Service, Image: "example.com/fn:latest", CreatedAt: time.Unix(0, 0)}, nil
}

func (f *fakeRuntime) ListContainers(ctx context.Context, namespace string) ([]containers.Container, error) {
	f.record("ListContainers")
	return []containers.Container{{ID: "hello", Image: "example.com/fn:latest"}}, nil
}

func (f *fakeRuntime) DeleteContainer(ctx context.Context, endpoint types.Endpoint) error {
	f.mu.Lock()
	f.calls = append(f.calls, "DeleteContainer")
	f.containersDeleted = append(f.containersDeleted, endpoint.String())
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) NewTask(ctx context.Context, endpoint types.Endpoint, rootfs []mount.Mount) (*tasksapi.CreateTaskResponse, error) {
	f.record("NewTask")
	if f.newTaskErr != nil {
		return nil, f.newTaskErr
	}
	return &tasksapi.CreateTaskResponse{}, nil
}

func (f *fakeRuntime) GetTask(ctx context.Context, endpoint types.Endpoint) (*tasksapi.GetResponse, error) {
	f.record("GetTask")
	if f.getTaskErr != nil {
		return nil, f.getTaskErr
	}
	return &tasksapi.GetResponse{Process: &apitypes.Process{Status: apitypes.Status(types.TaskStatusRunning)}}, nil
}

func (f *fakeRuntime) KillTaskWithTimeout(ctx context.Context, endpoint types.Endpoint) error {
	f.mu.Lock()
	f.calls = append(f.calls, "KillTaskWithTimeout")
	f.tasksKilled = append(f.tasksKilled, endpoint.String())
	err := f.killTaskErr
	f.mu.Unlock()
	return err
}

// fakeNetwork is an in-memory stand-in for *cni.Service: CreateNetwork
// hands out a fixed address and records it as leased until
// DeleteNetwork (or a test) revokes it.
type fakeNetwork struct {
	mu sync.Mutex

	createErr error
	deleteErr error

	leased  map[string]bool
	created []string
	deleted []string
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{leased: map[string]bool{}}
}

func (f *fakeNetwork) CreateNetwork(ctx context.Context, endpoint types.Endpoint) (net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, endpoint.String())
	if f.createErr != nil {
		return nil, f.createErr
	}
	ip := net.ParseIP("10.66.0.2").To4()
	f.leased[ip.String()] = true
	return ip, nil
}

func (f *fakeNetwork) DeleteNetwork(ctx context.Context, endpoint types.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint.String())
	delete(f.leased, "10.66.0.2")
	return f.deleteErr
}

func (f *fakeNetwork) CheckNetworkExists(ip net.IP) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leased[ip.String()]
}

// fakeIndex is an in-memory stand-in for *store.EndpointIndex.
type fakeIndex struct {
	mu sync.Mutex
	m  map[string]net.IP
}

func newFakeIndex() *fakeIndex { return &fakeIndex{m: map[string]net.IP{}} }

func (f *fakeIndex) Put(endpoint string, ip net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[endpoint] = ip
	return nil
}

func (f *fakeIndex) Get(endpoint string) (net.IP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip, ok := f.m[endpoint]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ip, nil
}

func (f *fakeIndex) Delete(endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, endpoint)
	return nil
}
