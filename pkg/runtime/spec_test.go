package runtime

import (
	"testing"

	"github.com/containerd/typeurl/v2"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faas-containerd/faasd-go/pkg/types"
)

func unmarshalSpec(t *testing.T, any typeurl.Any) (*specs.Spec, error) {
	t.Helper()
	v, err := typeurl.UnmarshalAny(any)
	if err != nil {
		return nil, err
	}
	return v.(*specs.Spec), nil
}

func TestGenerateSpecCgroupsPathAndNetns(t *testing.T) {
	endpoint := types.Endpoint{Service: "hello", Namespace: "staging"}
	cfg := types.RuntimeConfig{Env: []string{"A=1"}, Args: []string{"/bin/fn"}, Cwd: "/"}

	any, err := GenerateSpec(cfg, endpoint)
	require.NoError(t, err)
	require.NotNil(t, any)

	spec, err := unmarshalSpec(t, any)
	require.NoError(t, err)

	assert.Equal(t, "/staging/hello", spec.Linux.CgroupsPath)
	assert.True(t, spec.Root.Readonly)
	assert.Equal(t, []string{"/bin/fn"}, spec.Process.Args)

	var netNs *specs.LinuxNamespace
	for i := range spec.Linux.Namespaces {
		if spec.Linux.Namespaces[i].Type == specs.NetworkNamespace {
			netNs = &spec.Linux.Namespaces[i]
		}
	}
	require.NotNil(t, netNs)
	assert.Equal(t, NetnsPath(endpoint), netNs.Path)
}

func TestNetnsPath(t *testing.T) {
	endpoint := types.Endpoint{Service: "hello", Namespace: "staging"}
	assert.Equal(t, "/var/run/netns/staging-hello", NetnsPath(endpoint))
}
