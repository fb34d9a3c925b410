/*
Package types defines the core data structures shared across faasd-go's
runtime backends, orchestrator and HTTP API.

This package contains the domain model: function identity (Endpoint),
deployment requests and their decoded shape (Deployment), status responses,
and the runtime configuration derived just-in-time from an image's OCI
configuration. These types are deliberately thin — wire-compatible with
the OpenFaaS provider HTTP contract where the HTTP API requires it, and
otherwise shaped around what the Orchestrator needs to pass between
services.

# Core Types

Function Identity:
  - Endpoint: (service, namespace) pair, the canonical identity used as a
    network-namespace name and an endpoint-index key
  - Query: identifies a function for delete/status/resolve/invoke requests

Deployment:
  - Deployment: decoded POST/PUT /system/functions body
  - FunctionResources: accepted on the wire, not enforced (no cgroup
    resource limiting beyond the fixed rlimits/devices set by the spec
    builder)
  - DeleteRequest: decoded DELETE /system/functions body

Status:
  - Status: response shape for GET /system/function/{name} and each
    element of GET /system/functions

Namespaces:
  - Namespace: wire shape for the namespace-management endpoints

Runtime Configuration:
  - RuntimeConfig: derived just-in-time from an image's OCI config
    (env/args/ports/cwd), never persisted
  - ContainerStaticMetadata: the subset of a Deployment needed for the
    duration of a single orchestrator call
  - TaskStatus: mirrors the Runtime Daemon's task status codes; Replicas()
    reports 1 iff RUNNING or STOPPED

# Design Notes

Endpoint is a value type, not an entity: it is never stored as an object,
only formatted as a string key (endpoint index) or derived into a
network-namespace name and cgroups path. Its String() form,
"<namespace>-<service>", is used verbatim in three places — the Spec
Builder's netns path, the CNI Service's namespace name, and the Endpoint
Index's key — so a caller never needs to reconstruct it differently in
each place.
*/
package types
