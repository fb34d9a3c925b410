package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faas-containerd/faasd-go/pkg/types"
)

func TestParsePathServiceOnly(t *testing.T) {
	p, err := ParsePath("/hello")
	require.NoError(t, err)
	assert.Equal(t, types.Query{Service: "hello", Namespace: ""}, p.Query)
	assert.Equal(t, "", p.Path)
}

func TestParsePathServiceWithNamespace(t *testing.T) {
	p, err := ParsePath("/hello.staging")
	require.NoError(t, err)
	assert.Equal(t, types.Query{Service: "hello", Namespace: "staging"}, p.Query)
	assert.Equal(t, "", p.Path)
}

func TestParsePathWithRestPath(t *testing.T) {
	p, err := ParsePath("/hello.staging/v1/items")
	require.NoError(t, err)
	assert.Equal(t, types.Query{Service: "hello", Namespace: "staging"}, p.Query)
	assert.Equal(t, "/v1/items", p.Path)
}

func TestParsePathRestPathWithoutNamespace(t *testing.T) {
	p, err := ParsePath("/hello/v1/items")
	require.NoError(t, err)
	assert.Equal(t, types.Query{Service: "hello", Namespace: ""}, p.Query)
	assert.Equal(t, "/v1/items", p.Path)
}

func TestParsePathLastDotWins(t *testing.T) {
	// a service name may itself contain dots; only the final one
	// separates the namespace.
	p, err := ParsePath("/my.function.name.staging")
	require.NoError(t, err)
	assert.Equal(t, "my.function.name", p.Query.Service)
	assert.Equal(t, "staging", p.Query.Namespace)
}

func TestParsePathEmpty(t *testing.T) {
	_, err := ParsePath("/")
	assert.ErrorIs(t, err, ErrInvalidFunctionName)

	_, err = ParsePath("")
	assert.ErrorIs(t, err, ErrInvalidFunctionName)
}
