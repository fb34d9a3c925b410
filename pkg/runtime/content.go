package runtime

import (
	"context"
	"io"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/content"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// parseDigest wraps digest.Parse for readBlob in image.go.
func parseDigest(s string) (digest.Digest, error) {
	return digest.Parse(s)
}

// contentReadAll reads an entire blob out of containerd's content store.
func contentReadAll(ctx context.Context, client *containerd.Client, desc ocispec.Descriptor) ([]byte, error) {
	ra, err := client.ContentStore().ReaderAt(ctx, desc)
	if err != nil {
		return nil, err
	}
	defer ra.Close()

	buf := make([]byte, ra.Size())
	if _, err := io.ReadFull(content.NewReader(ra), buf); err != nil {
		return nil, err
	}
	return buf, nil
}
