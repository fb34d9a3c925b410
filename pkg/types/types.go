// Package types holds the wire- and domain-level value types shared across
// the orchestrator, the runtime backends and the HTTP API.
package types

import "fmt"

// DefaultNamespace is substituted whenever a caller omits the namespace on
// an Endpoint, a Deployment or a Query.
const DefaultNamespace = "faasd-go-default"

// Endpoint identifies a function as a (service, namespace) pair. It is a
// value type: equality and hashing are componentwise, and it is never
// persisted as an object, only as a formatted key inside the endpoint
// index (see pkg/store).
type Endpoint struct {
	Service   string
	Namespace string
}

// NewEndpoint builds an Endpoint, defaulting an empty namespace to
// DefaultNamespace.
func NewEndpoint(service, namespace string) Endpoint {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return Endpoint{Service: service, Namespace: namespace}
}

// String returns the canonical display form "<namespace>-<service>", used
// verbatim as the network-namespace name and as the endpoint index key.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s-%s", e.Namespace, e.Service)
}

// Deployment is the decoded body of POST/PUT /system/functions.
type Deployment struct {
	Service                string            `json:"service"`
	Image                  string            `json:"image"`
	Namespace              string            `json:"namespace,omitempty"`
	EnvProcess             string            `json:"envProcess,omitempty"`
	EnvVars                map[string]string `json:"envVars,omitempty"`
	Constraints            []string          `json:"constraints,omitempty"`
	Secrets                []string          `json:"secrets,omitempty"`
	Labels                 map[string]string `json:"labels,omitempty"`
	Annotations            map[string]string `json:"annotations,omitempty"`
	Limits                 *FunctionResources `json:"limits,omitempty"`
	Requests               *FunctionResources `json:"requests,omitempty"`
	ReadOnlyRootFilesystem bool              `json:"readOnlyRootFilesystem,omitempty"`
}

// FunctionResources mirrors the OpenFaaS resource block; it is accepted on
// the wire for client compatibility but is not enforced by this control
// plane (no cgroup resource limiting beyond the fixed devices/rlimits set
// by the spec builder).
type FunctionResources struct {
	Memory string `json:"memory,omitempty"`
	CPU    string `json:"cpu,omitempty"`
}

// Query identifies a function for delete/status/resolve/invoke requests.
type Query struct {
	Service   string
	Namespace string
}

// Endpoint converts a Query into the canonical Endpoint, defaulting the
// namespace exactly as Deployment does.
func (q Query) Endpoint() Endpoint {
	return NewEndpoint(q.Service, q.Namespace)
}

// DeleteRequest is the decoded body of DELETE /system/functions.
type DeleteRequest struct {
	FunctionName string `json:"functionName"`
	Namespace    string `json:"namespace,omitempty"`
}

// Status is the response shape for GET /system/function/{name} and each
// element of GET /system/functions.
type Status struct {
	Name               string            `json:"name"`
	Namespace          string            `json:"namespace,omitempty"`
	Image              string            `json:"image"`
	EnvProcess         string            `json:"envProcess,omitempty"`
	EnvVars            map[string]string `json:"envVars,omitempty"`
	Constraints        []string          `json:"constraints,omitempty"`
	Secrets            []string          `json:"secrets,omitempty"`
	Labels             map[string]string `json:"labels,omitempty"`
	Annotations        map[string]string `json:"annotations,omitempty"`
	Replicas           int               `json:"replicas"`
	AvailableReplicas  int               `json:"availableReplicas"`
	InvocationCount    float64           `json:"invocationCount,omitempty"`
	CreatedAt          string            `json:"createdAt,omitempty"`
	ReadOnlyRootFilesystem bool          `json:"readOnlyRootFilesystem"`
}

// Namespace is the wire shape for the namespace-management endpoints.
type Namespace struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
}

// RuntimeConfig is derived just-in-time from an image's configuration; it
// is never persisted.
type RuntimeConfig struct {
	Env  []string
	Args []string
	Ports []string
	Cwd  string
}

// DefaultPorts is used when the image configuration carries no exposed
// ports.
var DefaultPorts = []string{"8080/tcp"}

// DefaultCwd is used when the image configuration carries no working
// directory.
const DefaultCwd = "/"

// ContainerStaticMetadata carries the fields of a Deployment that are
// needed for the duration of a single orchestrator call (image ref plus
// routing identity).
type ContainerStaticMetadata struct {
	Image    string
	Endpoint Endpoint
}

// FromDeployment builds ContainerStaticMetadata from a decoded Deployment.
func FromDeployment(d Deployment) ContainerStaticMetadata {
	return ContainerStaticMetadata{
		Image:    d.Image,
		Endpoint: NewEndpoint(d.Service, d.Namespace),
	}
}

// TaskStatus mirrors the Runtime Daemon's task status codes.
type TaskStatus int32

const (
	TaskStatusUnknown TaskStatus = 0
	TaskStatusCreated TaskStatus = 1
	TaskStatusRunning TaskStatus = 2
	TaskStatusStopped TaskStatus = 3
	TaskStatusExited  TaskStatus = 4
	TaskStatusPaused  TaskStatus = 5
	TaskStatusFailed  TaskStatus = 6
)

// Replicas reports 1 iff the task is RUNNING or STOPPED, matching the
// observable semantics of the upstream runtime (STOPPED is treated as a
// live replica).
func (s TaskStatus) Replicas() int {
	if s == TaskStatusRunning || s == TaskStatusStopped {
		return 1
	}
	return 0
}
