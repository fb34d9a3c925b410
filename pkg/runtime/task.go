package runtime

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd/api/types"
	tasksapi "github.com/containerd/containerd/api/services/tasks/v1"
	"github.com/containerd/containerd/mount"
	"github.com/containerd/errdefs"

	"github.com/faas-containerd/faasd-go/pkg/log"
	ftypes "github.com/faas-containerd/faasd-go/pkg/types"
)

// killWaitTimeout is how long KillTaskWithTimeout waits for a clean
// SIGTERM exit before escalating to SIGKILL.
const killWaitTimeout = 5 * time.Second

// TaskError sentinels: NotFound | AlreadyExists | InvalidArgument | Internal.
var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskAlreadyExists    = errors.New("task already exists")
	ErrTaskInvalidArgument  = errors.New("invalid task argument")
	ErrTaskInternal         = errors.New("task service internal error")
)

// NewTask creates and starts a task for the given container. rootfs is
// the mount set PrepareSnapshot returned, translated here from
// containerd's mount.Mount into the wire-level api/types.Mount the
// Tasks service expects.
func (c *Client) NewTask(ctx context.Context, endpoint ftypes.Endpoint, rootfs []mount.Mount) (*tasksapi.CreateTaskResponse, error) {
	ctx = withNamespace(ctx, endpoint.Namespace)

	created, err := c.taskService().Create(ctx, &tasksapi.CreateTaskRequest{
		ContainerID: endpoint.Service,
		Rootfs:      toAPIMounts(rootfs),
	})
	if err != nil {
		if errdefs.IsAlreadyExists(err) {
			return nil, fmt.Errorf("%w: %s", ErrTaskAlreadyExists, endpoint)
		}
		return nil, fmt.Errorf("%w: create task %s: %v", ErrTaskInternal, endpoint, err)
	}

	if _, err := c.taskService().Start(ctx, &tasksapi.StartRequest{
		ContainerID: endpoint.Service,
	}); err != nil {
		return nil, fmt.Errorf("%w: start task %s: %v", ErrTaskInternal, endpoint, err)
	}

	return created, nil
}

// GetTask fetches the current task status for endpoint.
func (c *Client) GetTask(ctx context.Context, endpoint ftypes.Endpoint) (*tasksapi.GetResponse, error) {
	ctx = withNamespace(ctx, endpoint.Namespace)
	resp, err := c.taskService().Get(ctx, &tasksapi.GetRequest{
		ContainerID: endpoint.Service,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, endpoint)
		}
		return nil, fmt.Errorf("%w: get task %s: %v", ErrTaskInternal, endpoint, err)
	}
	return resp, nil
}

// ListTasks lists every task in namespace.
func (c *Client) ListTasks(ctx context.Context, namespace string) ([]*types.Task, error) {
	ctx = withNamespace(ctx, namespace)
	resp, err := c.taskService().List(ctx, &tasksapi.ListTasksRequest{})
	if err != nil {
		return nil, fmt.Errorf("%w: list tasks in %s: %v", ErrTaskInternal, namespace, err)
	}
	return resp.Tasks, nil
}

// KillTaskWithTimeout sends SIGTERM, waits up to killWaitTimeout for the
// task's Wait RPC to resolve, escalates to SIGKILL on timeout, and then
// deletes the task. A Wait error is returned; after a SIGKILL, a failed
// delete is logged rather than returned.
func (c *Client) KillTaskWithTimeout(ctx context.Context, endpoint ftypes.Endpoint) error {
	ctx = withNamespace(ctx, endpoint.Namespace)
	ts := c.taskService()

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	waitCh := make(chan error, 1)
	go func() {
		_, err := ts.Wait(waitCtx, &tasksapi.WaitRequest{ContainerID: endpoint.Service})
		waitCh <- err
	}()

	if _, err := ts.Kill(ctx, &tasksapi.KillRequest{
		ContainerID: endpoint.Service,
		Signal:      uint32(syscall.SIGTERM),
		All:         true,
	}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: sigterm task %s: %v", ErrTaskInternal, endpoint, err)
	}

	killed := false
	select {
	case err := <-waitCh:
		// exited within the window
		if err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: wait task %s: %v", ErrTaskInternal, endpoint, err)
		}
	case <-time.After(killWaitTimeout):
		if _, err := ts.Kill(ctx, &tasksapi.KillRequest{
			ContainerID: endpoint.Service,
			Signal:      uint32(syscall.SIGKILL),
			All:         true,
		}); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: sigkill task %s: %v", ErrTaskInternal, endpoint, err)
		}
		killed = true
	}

	if _, err := ts.Delete(ctx, &tasksapi.DeleteTaskRequest{
		ContainerID: endpoint.Service,
	}); err != nil && !errdefs.IsNotFound(err) {
		if killed {
			log.WithEndpoint(endpoint.String()).Warn().Err(err).Msg("failed to delete task after SIGKILL")
			return nil
		}
		return fmt.Errorf("%w: delete task %s: %v", ErrTaskInternal, endpoint, err)
	}
	return nil
}

// TaskReplicas maps a raw containerd task status to the 0/1 replica count
// used throughout the Orchestrator and HTTP API.
func TaskReplicas(status types.Status) int {
	return ftypes.TaskStatus(status).Replicas()
}

// toAPIMounts converts a snapshotter's mount.Mount set into the
// api/types.Mount wire form CreateTaskRequest.Rootfs carries.
func toAPIMounts(mounts []mount.Mount) []*types.Mount {
	out := make([]*types.Mount, len(mounts))
	for i, m := range mounts {
		out[i] = &types.Mount{
			Type:    m.Type,
			Source:  m.Source,
			Target:  m.Target,
			Options: m.Options,
		}
	}
	return out
}
