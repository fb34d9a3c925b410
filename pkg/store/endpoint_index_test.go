package store

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *EndpointIndex {
	t.Helper()
	idx, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestEndpointIndexPutGet(t *testing.T) {
	idx := openTestIndex(t)

	ip := net.ParseIP("10.66.0.12")
	require.NoError(t, idx.Put("default-hello", ip))

	got, err := idx.Get("default-hello")
	require.NoError(t, err)
	assert.True(t, ip.Equal(got))
}

func TestEndpointIndexGetMissing(t *testing.T) {
	idx := openTestIndex(t)

	_, err := idx.Get("default-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndpointIndexDeleteIsIdempotent(t *testing.T) {
	idx := openTestIndex(t)

	ip := net.ParseIP("10.66.0.12")
	require.NoError(t, idx.Put("default-hello", ip))
	require.NoError(t, idx.Delete("default-hello"))
	require.NoError(t, idx.Delete("default-hello"))

	_, err := idx.Get("default-hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEndpointIndexPutOverwrites(t *testing.T) {
	idx := openTestIndex(t)

	require.NoError(t, idx.Put("default-hello", net.ParseIP("10.66.0.12")))
	require.NoError(t, idx.Put("default-hello", net.ParseIP("10.66.0.99")))

	got, err := idx.Get("default-hello")
	require.NoError(t, err)
	assert.True(t, net.ParseIP("10.66.0.99").Equal(got))
}

func TestEndpointIndexPutRejectsIPv6(t *testing.T) {
	idx := openTestIndex(t)
	err := idx.Put("default-hello", net.ParseIP("::1"))
	assert.Error(t, err)
}
