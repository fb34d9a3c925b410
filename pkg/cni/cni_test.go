package cni

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflistContainsFixedTopology(t *testing.T) {
	out := conflist()
	assert.Contains(t, out, bridgeName)
	assert.Contains(t, out, networkName)
	assert.Contains(t, out, subnet)
	assert.Contains(t, out, `"type": "bridge"`)
	assert.Contains(t, out, `"type": "host-local"`)
	assert.Contains(t, out, `"type": "firewall"`)
}

func TestNetnsPathIsWellKnown(t *testing.T) {
	assert.Equal(t, "/var/run/netns/staging-hello", netnsPath("staging-hello"))
}
