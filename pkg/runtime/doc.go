/*
Package runtime wraps a containerd client to provide the five
containerd-facing services of faasd-go's control plane: image pulling and
chain-ID derivation, snapshot preparation, OCI runtime spec generation,
container creation, and task lifecycle.

Each service lives in its own file, built directly against
github.com/containerd/containerd's client package rather than the raw
gRPC/ttrpc surface:

  - image.go: PrepareImage (pull if forced or absent), ImageConfig and
    ImageDiffIDs read from the image config, and BuildRuntimeConfig
    (env/args/ports/cwd pulled from the image config)
  - snapshot.go: ParentChainID (chain-ID derivation via repeated SHA-256
    folding over the image's diff-IDs) and PrepareSnapshot/RemoveSnapshot
    against the overlayfs snapshotter
  - spec.go: GenerateSpec, building an OCI runtime-spec.Spec (readonly
    root, fixed cgroups path "<namespace>/<service>", and a pre-created
    network namespace handed off by the CNI Service) and wrapping it via
    typeurl.MarshalAny for containerd's Container.Spec field
  - container.go: CreateContainer/LoadContainer/ListContainers/
    DeleteContainer against containerd's Containers service
  - task.go: NewTask/GetTask/ListTasks/KillTaskWithTimeout against
    containerd's Tasks service, including the SIGTERM-then-SIGKILL kill
    sequence used by the Orchestrator's Delete and Update operations

containerd.go holds the shared Client: a thin wrapper around
*containerd.Client plus withNamespace, which scopes each call to the
containerd namespace of the endpoint (or namespace argument) it acts on
via namespaces.WithNamespace. All five services are methods on this one
Client so they share connection setup and namespace handling.

None of these services know about CNI, the endpoint index, or HTTP — that
orchestration lives one layer up, in pkg/orchestrator.
*/
package runtime
