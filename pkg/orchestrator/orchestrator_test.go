package orchestrator

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faas-containerd/faasd-go/pkg/runtime"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

func newTestOrchestrator() (*Orchestrator, *fakeRuntime, *fakeNetwork, *fakeIndex) {
	rt := newFakeRuntime()
	network := newFakeNetwork()
	idx := newFakeIndex()
	return New(rt, network, nil, idx), rt, network, idx
}

func testDeployment() types.Deployment {
	return types.Deployment{Service: "hello", Namespace: "staging", Image: "example.com/hello:latest"}
}

func TestDeploySuccessIndexesLeasedIP(t *testing.T) {
	orch, rt, network, idx := newTestOrchestrator()

	err := orch.Deploy(context.Background(), testDeployment())
	require.NoError(t, err)

	ip, err := idx.Get("staging-hello")
	require.NoError(t, err)
	assert.Equal(t, "10.66.0.2", ip.String())

	assert.Empty(t, rt.snapshotsRemoved, "no rollback should run on a successful deploy")
	assert.Empty(t, rt.containersDeleted)
	assert.Empty(t, rt.tasksKilled)
	assert.Empty(t, network.deleted)
}

func TestDeployRollsBackOnTaskFailure(t *testing.T) {
	orch, rt, network, idx := newTestOrchestrator()
	rt.newTaskErr = errors.New("task create exploded")

	err := orch.Deploy(context.Background(), testDeployment())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeployInternal)

	// NewTask itself failed, so its own compensator was never pushed;
	// every step before it must still unwind.
	assert.Equal(t, []string{"staging-hello"}, rt.containersDeleted)
	assert.Equal(t, []string{"staging-hello"}, rt.snapshotsRemoved)
	assert.Equal(t, []string{"staging-hello"}, network.deleted)
	assert.Empty(t, rt.tasksKilled, "task was never created, so there is nothing to kill")

	_, err = idx.Get("staging-hello")
	assert.Error(t, err, "a rolled-back deploy must not leave an index entry")
}

func TestDeployRollsBackOnContainerFailure(t *testing.T) {
	orch, rt, network, _ := newTestOrchestrator()
	rt.createContainerErr = errors.New("container create exploded")

	err := orch.Deploy(context.Background(), testDeployment())
	require.Error(t, err)

	assert.Equal(t, []string{"staging-hello"}, rt.snapshotsRemoved)
	assert.Equal(t, []string{"staging-hello"}, network.deleted)
	assert.Empty(t, rt.containersDeleted, "container was never created, so there is nothing to delete")
}

func TestDeployInvalidImageIsRejectedBeforeAnySideEffect(t *testing.T) {
	orch, rt, network, _ := newTestOrchestrator()
	rt.prepareImageErr = runtime.ErrImageNotFound

	err := orch.Deploy(context.Background(), testDeployment())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeployInvalid)

	assert.Empty(t, rt.snapshotsRemoved)
	assert.Empty(t, network.created, "network must never be created before the image is resolved")
}

func TestDeleteAggregatesIndependentFailures(t *testing.T) {
	orch, rt, network, idx := newTestOrchestrator()
	require.NoError(t, idx.Put("faasd-go-default-hello", net.ParseIP("10.66.0.2")))

	killErr := errors.New("kill failed")
	netErr := errors.New("cni remove failed")
	rt.killTaskErr = killErr
	network.deleteErr = netErr

	req := types.DeleteRequest{FunctionName: "hello"}
	err := orch.Delete(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeleteInternal)
	assert.Contains(t, err.Error(), killErr.Error())
	assert.Contains(t, err.Error(), netErr.Error())

	// Steps independent of the two injected failures still ran.
	assert.Equal(t, []string{"faasd-go-default-hello"}, rt.containersDeleted)
	assert.Equal(t, []string{"faasd-go-default-hello"}, rt.snapshotsRemoved)
	_, getErr := idx.Get("faasd-go-default-hello")
	assert.Error(t, getErr, "the index entry is still removed even though other steps failed")
}

func TestDeleteNotFoundMapsToSentinel(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator()
	rt.loadContainerErr = runtime.ErrContainerNotFound

	err := orch.Delete(context.Background(), types.DeleteRequest{FunctionName: "missing"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeleteNotFound)
}

func TestUpdateDeletesThenRedeploys(t *testing.T) {
	orch, rt, _, idx := newTestOrchestrator()
	require.NoError(t, idx.Put("staging-hello", net.ParseIP("10.66.0.2")))

	err := orch.Update(context.Background(), testDeployment())
	require.NoError(t, err)

	deleteIdx := indexOf(rt.calls, "DeleteContainer")
	createIdx := indexOf(rt.calls, "CreateContainer")
	require.GreaterOrEqual(t, deleteIdx, 0)
	require.GreaterOrEqual(t, createIdx, 0)
	assert.Less(t, deleteIdx, createIdx, "the old container must be torn down before the new one is created")

	ip, err := idx.Get("staging-hello")
	require.NoError(t, err)
	assert.Equal(t, "10.66.0.2", ip.String())
}

func TestUpdateNotFoundMapsToSentinel(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator()
	rt.loadContainerErr = runtime.ErrContainerNotFound

	err := orch.Update(context.Background(), testDeployment())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpdateNotFound)
}

func TestListSkipsContainersWithoutATask(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator()
	rt.getTaskErr = runtime.ErrTaskNotFound

	statuses, err := orch.List(context.Background(), "staging")
	require.NoError(t, err)
	assert.Empty(t, statuses, "a container whose task vanished must be skipped, not fail the whole list")
}

func TestListReportsReplicasFromTaskStatus(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()

	statuses, err := orch.List(context.Background(), "staging")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].Replicas)
}

func TestStatusIsBestEffortAboutTaskLookup(t *testing.T) {
	orch, rt, _, _ := newTestOrchestrator()
	rt.getTaskErr = errors.New("task service unavailable")

	status, err := orch.Status(context.Background(), types.Query{Service: "hello", Namespace: "staging"})
	require.NoError(t, err, "a task lookup failure must not fail Status")
	assert.Equal(t, "hello", status.Name)
	assert.Zero(t, status.Replicas)
}

func TestResolveReturnsUpstreamURLForLiveLease(t *testing.T) {
	orch, _, network, idx := newTestOrchestrator()
	require.NoError(t, idx.Put("staging-hello", net.ParseIP("10.66.0.2")))
	network.leased["10.66.0.2"] = true

	u, err := orch.Resolve(context.Background(), types.Query{Service: "hello", Namespace: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "10.66.0.2:8080", u.Host)
}

func TestResolveSelfHealsStaleIndexEntry(t *testing.T) {
	orch, _, network, idx := newTestOrchestrator()
	require.NoError(t, idx.Put("staging-hello", net.ParseIP("10.66.0.2")))
	delete(network.leased, "10.66.0.2") // simulate the network having been torn down underneath us

	_, err := orch.Resolve(context.Background(), types.Query{Service: "hello", Namespace: "staging"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolveInternal)

	_, getErr := idx.Get("staging-hello")
	assert.Error(t, getErr, "Resolve must clean up the stale index entry it just found dead")
}

func TestResolveNotFoundMapsToSentinel(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator()

	_, err := orch.Resolve(context.Background(), types.Query{Service: "absent", Namespace: "staging"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolveNotFound)
}

func indexOf(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}
