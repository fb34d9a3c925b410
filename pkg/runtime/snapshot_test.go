package runtime

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
)

func TestParentChainIDSingleLayer(t *testing.T) {
	d := digest.FromString("layer-1")
	assert.Equal(t, d.String(), ParentChainID([]digest.Digest{d}))
}

func TestParentChainIDEmpty(t *testing.T) {
	assert.Equal(t, "", ParentChainID(nil))
}

func TestParentChainIDMultipleLayersIsDeterministic(t *testing.T) {
	diffIDs := []digest.Digest{
		digest.FromString("layer-1"),
		digest.FromString("layer-2"),
		digest.FromString("layer-3"),
	}

	chain1 := ParentChainID(diffIDs)
	chain2 := ParentChainID(diffIDs)
	assert.Equal(t, chain1, chain2)
	assert.NotEqual(t, diffIDs[0].String(), chain1)
	assert.Regexp(t, "^sha256:[0-9a-f]{64}$", chain1)
}

func TestParentChainIDOrderMatters(t *testing.T) {
	a := digest.FromString("layer-a")
	b := digest.FromString("layer-b")

	forward := ParentChainID([]digest.Digest{a, b})
	reverse := ParentChainID([]digest.Digest{b, a})
	assert.NotEqual(t, forward, reverse)
}
