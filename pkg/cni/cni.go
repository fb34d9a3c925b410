// Package cni implements the CNI Service: a process-wide singleton
// bridge network, per-function network namespaces, and IP assignment /
// teardown for the containers the Orchestrator creates. Plugins run
// in-process via github.com/containerd/go-cni, and network namespaces
// are managed with github.com/vishvananda/netns.
package cni

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	gocni "github.com/containerd/go-cni"
	"github.com/vishvananda/netns"

	"github.com/faas-containerd/faasd-go/pkg/log"
	"github.com/faas-containerd/faasd-go/pkg/types"
)

const (
	// DefaultConfDir is where the conflist is written, overridable by the
	// CNI_CONF_DIR environment variable.
	DefaultConfDir = "/etc/cni/net.d"

	// DefaultBinDir is where CNI plugin binaries are looked up,
	// overridable by the CNI_BIN_DIR environment variable.
	DefaultBinDir = "/opt/cni/bin"

	// DataDir is the CNI plugins' own runtime state directory; the
	// host-local IPAM plugin drops one file per leased address here,
	// which doubles as the liveness check used by the Orchestrator's
	// Resolve operation.
	DataDir = "/var/run/cni"

	confFilename = "10-faasd-go.conflist"
	networkName  = "faasd-go-cni-bridge"
	bridgeName   = "faasd-go0"
	subnet       = "10.66.0.0/16"
	ifName       = "eth0"
)

// NetworkError sentinels, split into NotFound/Internal so callers can
// distinguish a missing namespace from a genuine plugin failure.
var (
	ErrNetnsNotFound = errors.New("network namespace not found")
	ErrNetworkSetup  = errors.New("cni network setup failed")
)

// Service owns the singleton CNI configuration and plugin runtime.
type Service struct {
	confDir string
	binDir  string
	cni     gocni.CNI

	once    sync.Once
	initErr error
}

// New builds a CNI Service; the conflist is written and the plugin
// chain loaded lazily on first use via ensureInit.
func New() *Service {
	confDir := os.Getenv("CNI_CONF_DIR")
	if confDir == "" {
		confDir = DefaultConfDir
	}
	binDir := os.Getenv("CNI_BIN_DIR")
	if binDir == "" {
		binDir = DefaultBinDir
	}
	return &Service{confDir: confDir, binDir: binDir}
}

func (s *Service) ensureInit() error {
	s.once.Do(func() {
		s.initErr = s.initNetwork()
	})
	return s.initErr
}

// initNetwork writes the bridge+host-local+firewall conflist to confDir
// and loads it into an in-process CNI plugin runtime.
func (s *Service) initNetwork() error {
	if err := os.MkdirAll(s.confDir, 0o755); err != nil {
		return fmt.Errorf("create CNI conf dir %s: %w", s.confDir, err)
	}
	if err := os.MkdirAll(DataDir, 0o755); err != nil {
		return fmt.Errorf("create CNI data dir %s: %w", DataDir, err)
	}

	confPath := filepath.Join(s.confDir, confFilename)
	if err := os.WriteFile(confPath, []byte(conflist()), 0o644); err != nil {
		return fmt.Errorf("write CNI conflist %s: %w", confPath, err)
	}

	c, err := gocni.New(
		gocni.WithPluginConfDir(s.confDir),
		gocni.WithPluginDir([]string{s.binDir}),
		gocni.WithDefaultConf,
	)
	if err != nil {
		return fmt.Errorf("init CNI plugin runtime: %w", err)
	}
	s.cni = c
	log.Logger.Info().Str("conf_dir", s.confDir).Msg("cni network initialized")
	return nil
}

func conflist() string {
	return fmt.Sprintf(`{
  "cniVersion": "0.4.0",
  "name": "%s",
  "plugins": [
    {
      "type": "bridge",
      "bridge": "%s",
      "isGateway": true,
      "ipMasq": true,
      "ipam": {
        "type": "host-local",
        "subnet": "%s",
        "dataDir": "%s",
        "routes": [
          { "dst": "0.0.0.0/0" }
        ]
      }
    },
    {
      "type": "firewall"
    }
  ]
}
`, networkName, bridgeName, subnet, DataDir)
}

// CreateNetwork creates a named network namespace for endpoint, attaches
// the bridge network to it, and returns the leased IPv4 address. On any
// failure after the namespace is created, the namespace is removed
// before returning.
func (s *Service) CreateNetwork(ctx context.Context, endpoint types.Endpoint) (net.IP, error) {
	if err := s.ensureInit(); err != nil {
		return nil, err
	}

	nsName := endpoint.String()
	nsPath, err := createNamedNetns(nsName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkSetup, err)
	}

	result, err := s.cni.Setup(ctx, nsName, nsPath)
	if err != nil {
		_ = removeNamedNetns(nsName)
		return nil, fmt.Errorf("%w: %v", ErrNetworkSetup, err)
	}

	ip := firstIP(result)
	if ip == nil {
		_ = s.cni.Remove(ctx, nsName, nsPath)
		_ = removeNamedNetns(nsName)
		return nil, fmt.Errorf("%w: no IP address in CNI result", ErrNetworkSetup)
	}

	log.WithEndpoint(endpoint.String()).Info().Str("ip", ip.String()).Msg("cni network created")
	return ip, nil
}

// DeleteNetwork tears down the bridge attachment and removes the
// namespace. Both steps are attempted regardless of the other's
// outcome.
func (s *Service) DeleteNetwork(ctx context.Context, endpoint types.Endpoint) error {
	if err := s.ensureInit(); err != nil {
		return err
	}

	nsName := endpoint.String()
	nsPath := netnsPath(nsName)

	if h, err := netns.GetFromName(nsName); err != nil {
		log.WithEndpoint(endpoint.String()).Warn().Err(err).Msg("netns not found while deleting cni network")
		return fmt.Errorf("%w: %s", ErrNetnsNotFound, nsName)
	} else {
		h.Close()
	}

	var errs []error
	if err := s.cni.Remove(ctx, nsName, nsPath); err != nil {
		errs = append(errs, fmt.Errorf("cni remove: %w", err))
	}
	if err := removeNamedNetns(nsName); err != nil {
		errs = append(errs, fmt.Errorf("remove netns: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrNetworkSetup, errors.Join(errs...))
	}
	return nil
}

// CheckNetworkExists reports whether ip still has a live IPAM lease
// file, the ground-truth check used by Resolve before handing out an
// address.
func (s *Service) CheckNetworkExists(ip net.IP) bool {
	leasePath := filepath.Join(DataDir, networkName, ip.String())
	_, err := os.Stat(leasePath)
	return err == nil
}

func firstIP(result *gocni.Result) net.IP {
	for _, iface := range result.Interfaces {
		for _, ipc := range iface.IPConfigs {
			if ipc.IP.To4() != nil {
				return ipc.IP
			}
		}
	}
	return nil
}

// netnsPath is the well-known bind-mount location for a named namespace,
// matching pkg/runtime's NetnsPath so the Spec Builder and the CNI
// Service agree on where to find it.
func netnsPath(name string) string {
	return filepath.Join("/var/run/netns", name)
}

// createNamedNetns creates (and bind-mounts) a persistent named network
// namespace that outlives the calling goroutine.
func createNamedNetns(name string) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := os.MkdirAll("/var/run/netns", 0o755); err != nil {
		return "", err
	}

	origin, err := netns.Get()
	if err != nil {
		return "", fmt.Errorf("get current netns: %w", err)
	}
	defer origin.Close()
	defer netns.Set(origin)

	handle, err := netns.NewNamed(name)
	if err != nil {
		return "", fmt.Errorf("create named netns %s: %w", name, err)
	}
	defer handle.Close()

	return netnsPath(name), nil
}

// removeNamedNetns unmounts and deletes a named namespace. Missing
// namespaces are not an error — both CreateNetwork's rollback path and
// DeleteNetwork call this unconditionally.
func removeNamedNetns(name string) error {
	if err := netns.DeleteNamed(name); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete named netns %s: %w", name, err)
	}
	return nil
}
