package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/platforms"
	"github.com/containerd/errdefs"
	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/faas-containerd/faasd-go/pkg/log"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

// ImageError kinds returned by the Image Service.
var (
	ErrImageNotFound             = errors.New("image not found")
	ErrImagePullFailed           = errors.New("image pull failed")
	ErrImageConfigurationNotFound = errors.New("image configuration not found")
	ErrReadContentFailed         = errors.New("failed to read content")
	ErrUnexpectedMediaType       = errors.New("unexpected media type")
	ErrDeserializationFailed     = errors.New("failed to deserialize image metadata")
	// ErrNoMatchingPlatform is returned instead of panicking when a
	// multi-arch index carries no manifest for the runtime's platform.
	ErrNoMatchingPlatform = errors.New("image index has no manifest for this platform")
)

// runtimePlatform is fixed to the architecture this binary was built for.
func runtimePlatform() ocispec.Platform {
	arch := "amd64"
	if runtime.GOARCH == "arm64" {
		arch = "arm64"
	}
	return ocispec.Platform{OS: "linux", Architecture: arch}
}

// PrepareImage validates the image reference and ensures it is present in
// the content store for namespace, pulling it when alwaysPull is set or
// when it is not yet present locally.
func (c *Client) PrepareImage(ctx context.Context, imageRef, namespace string, alwaysPull bool) error {
	namespace = checkNamespace(namespace)
	logger := log.WithImage(imageRef)

	if imageRef == "" {
		return fmt.Errorf("%w: empty image reference", ErrImageNotFound)
	}

	if alwaysPull {
		return c.pullImage(ctx, imageRef, namespace)
	}

	ctx = withNamespace(ctx, namespace)
	if _, err := c.inner.ImageService().Get(ctx, imageRef); err != nil {
		logger.Debug().Msg("image absent locally, pulling")
		return c.pullImage(ctx, imageRef, namespace)
	}
	return nil
}

// pullImage issues a pull against the configured platform, unpacking
// layers into the configured snapshotter as they land.
func (c *Client) pullImage(ctx context.Context, imageRef, namespace string) error {
	ctx = withNamespace(ctx, namespace)
	platform := runtimePlatform()

	_, err := c.inner.Pull(ctx, imageRef,
		containerd.WithPullUnpack,
		containerd.WithPlatform(platforms.Format(platform)),
	)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s: %v", ErrImageNotFound, imageRef, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrImagePullFailed, imageRef, err)
	}
	return nil
}

// ImageConfig reads the image descriptor, walks the content store,
// dispatching on media type (index vs. manifest), and returns the
// decoded OCI image configuration (env/cmd/ports/cwd).
func (c *Client) ImageConfig(ctx context.Context, imageRef, namespace string) (*ocispec.ImageConfig, error) {
	full, err := c.imageManifestConfig(ctx, imageRef, namespace)
	if err != nil {
		return nil, err
	}
	return &full.Config, nil
}

// ImageDiffIDs returns the ordered layer diff IDs used by the Snapshot
// Service to derive the parent chain ID.
func (c *Client) ImageDiffIDs(ctx context.Context, imageRef, namespace string) ([]digest.Digest, error) {
	full, err := c.imageManifestConfig(ctx, imageRef, namespace)
	if err != nil {
		return nil, err
	}
	return full.RootFS.DiffIDs, nil
}

func (c *Client) imageManifestConfig(ctx context.Context, imageRef, namespace string) (*ocispec.Image, error) {
	namespace = checkNamespace(namespace)
	ctx = withNamespace(ctx, namespace)

	img, err := c.inner.ImageService().Get(ctx, imageRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageNotFound, imageRef, err)
	}

	data, err := readBlob(ctx, c.inner, img.Target.MediaType, img.Target.Digest.String())
	if err != nil {
		return nil, err
	}

	switch img.Target.MediaType {
	case ocispec.MediaTypeImageIndex, "application/vnd.docker.distribution.manifest.list.v2+json":
		return c.handleIndex(ctx, data)
	case ocispec.MediaTypeImageManifest, "application/vnd.docker.distribution.manifest.v2+json":
		return c.handleManifest(ctx, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedMediaType, img.Target.MediaType)
	}
}

func (c *Client) handleIndex(ctx context.Context, data []byte) (*ocispec.Image, error) {
	var index ocispec.Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}

	want := runtimePlatform()
	for _, m := range index.Manifests {
		if m.Platform == nil {
			continue
		}
		if m.Platform.OS == want.OS && m.Platform.Architecture == want.Architecture {
			manifestData, err := readBlob(ctx, c.inner, m.MediaType, m.Digest.String())
			if err != nil {
				return nil, err
			}
			return c.handleManifest(ctx, manifestData)
		}
	}
	return nil, ErrNoMatchingPlatform
}

func (c *Client) handleManifest(ctx context.Context, data []byte) (*ocispec.Image, error) {
	var manifest ocispec.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}

	configData, err := readBlob(ctx, c.inner, manifest.Config.MediaType, manifest.Config.Digest.String())
	if err != nil {
		return nil, err
	}

	var full ocispec.Image
	if err := json.Unmarshal(configData, &full); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationFailed, err)
	}
	return &full, nil
}

// readBlob streams a blob out of the content store in one shot; image
// configs and small manifests are always well under any sane memory
// budget, so there is no case for incremental reads here.
func readBlob(ctx context.Context, client *containerd.Client, mediaType, digest string) ([]byte, error) {
	desc := ocispec.Descriptor{MediaType: mediaType}
	d, err := parseDigest(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadContentFailed, err)
	}
	desc.Digest = d

	data, err := contentReadAll(ctx, client, desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadContentFailed, err)
	}
	return data, nil
}

// BuildRuntimeConfig derives the just-in-time RuntimeConfig from a decoded
// OCI image config, applying the ports/cwd defaults and failing if env or
// cmd are absent, so the Spec Builder can assume a fully-populated
// RuntimeConfig.
func BuildRuntimeConfig(cfg *ocispec.ImageConfig) (types.RuntimeConfig, error) {
	if cfg.Env == nil {
		return types.RuntimeConfig{}, fmt.Errorf("generate spec: image configuration has no env")
	}
	if cfg.Cmd == nil {
		return types.RuntimeConfig{}, fmt.Errorf("generate spec: image configuration has no cmd")
	}

	ports := types.DefaultPorts
	if len(cfg.ExposedPorts) > 0 {
		ports = make([]string, 0, len(cfg.ExposedPorts))
		for p := range cfg.ExposedPorts {
			ports = append(ports, p)
		}
	} else {
		log.Logger.Warn().Msg("image configuration has no exposed ports, defaulting to 8080/tcp")
	}

	cwd := cfg.WorkingDir
	if cwd == "" {
		cwd = types.DefaultCwd
		log.Logger.Warn().Msg("image configuration has no working dir, defaulting to /")
	}

	return types.RuntimeConfig{
		Env:   cfg.Env,
		Args:  cfg.Cmd,
		Ports: ports,
		Cwd:   cwd,
	}, nil
}

// checkNamespace substitutes the default function namespace for an empty
// caller-supplied value.
func checkNamespace(namespace string) string {
	if namespace == "" {
		return types.DefaultNamespace
	}
	return namespace
}
