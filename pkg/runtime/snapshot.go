package runtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/containerd/containerd/mount"
	digest "github.com/opencontainers/go-digest"

	"github.com/faas-containerd/faasd-go/pkg/types"
)

// ParentChainID folds SHA-256 over an ordered list of layer diff IDs to
// derive the canonical overlay chain ID: starting from the first diff
// ID, each subsequent diff ID is combined with the running value as
// sha256(prev + " " + next), rewritten each round to "sha256:<hex>".
func ParentChainID(diffIDs []digest.Digest) string {
	if len(diffIDs) == 0 {
		return ""
	}

	chain := diffIDs[0].String()
	for _, next := range diffIDs[1:] {
		sum := sha256.Sum256([]byte(chain + " " + next.String()))
		chain = "sha256:" + hex.EncodeToString(sum[:])
	}
	return chain
}

// PrepareSnapshot derives the parent chain ID from the image's layers and
// prepares a writable snapshot keyed by the function's service id.
func (c *Client) PrepareSnapshot(ctx context.Context, metadata types.ContainerStaticMetadata) ([]mount.Mount, error) {
	diffIDs, err := c.ImageDiffIDs(ctx, metadata.Image, metadata.Endpoint.Namespace)
	if err != nil {
		return nil, fmt.Errorf("prepare snapshot: resolve image layers: %w", err)
	}
	parent := ParentChainID(diffIDs)

	ctx = withNamespace(ctx, metadata.Endpoint.Namespace)
	mounts, err := c.snapshotter().Prepare(ctx, metadata.Endpoint.Service, parent)
	if err != nil {
		return nil, fmt.Errorf("prepare snapshot for %s: %w", metadata.Endpoint, err)
	}
	return mounts, nil
}

// RemoveSnapshot is idempotent best-effort teardown — callers (the
// orchestrator's compensator and the delete path) are expected to log,
// not fail, on error.
func (c *Client) RemoveSnapshot(ctx context.Context, endpoint types.Endpoint) error {
	ctx = withNamespace(ctx, endpoint.Namespace)
	if err := c.snapshotter().Remove(ctx, endpoint.Service); err != nil {
		return fmt.Errorf("remove snapshot for %s: %w", endpoint, err)
	}
	return nil
}
