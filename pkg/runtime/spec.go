package runtime

import (
	"fmt"

	"github.com/containerd/typeurl/v2"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/faas-containerd/faasd-go/pkg/types"
)

// runtimeSpecTypeURL is the Any type URL containerd's own oci package
// registers for *specs.Spec; typeurl.MarshalAny resolves to this
// automatically once the containerd package has been imported, so it is
// kept here only for documentation.
const runtimeSpecTypeURL = "types.containerd.io/opencontainers/runtime-spec/1/Spec"

// fullCapabilities is the fixed capability set applied to bounding,
// permitted and effective; no ambient or inheritable capabilities are
// granted.
var fullCapabilities = []string{
	"CAP_CHOWN",
	"CAP_DAC_OVERRIDE",
	"CAP_FSETID",
	"CAP_FOWNER",
	"CAP_MKNOD",
	"CAP_NET_RAW",
	"CAP_SETGID",
	"CAP_SETUID",
	"CAP_SETFCAP",
	"CAP_SETPCAP",
	"CAP_NET_BIND_SERVICE",
	"CAP_SYS_CHROOT",
	"CAP_KILL",
	"CAP_AUDIT_WRITE",
}

var maskedPaths = []string{
	"/proc/acpi",
	"/proc/asound",
	"/proc/kcore",
	"/proc/keys",
	"/proc/latency_stats",
	"/proc/timer_list",
	"/proc/timer_stats",
	"/proc/sched_debug",
	"/sys/firmware",
	"/proc/scsi",
	"/sys/devices/virtual/powercap",
}

var readonlyPaths = []string{
	"/proc/bus",
	"/proc/fs",
	"/proc/irq",
	"/proc/sys",
	"/proc/sysrq-trigger",
}

// GenerateSpec produces a deterministic OCI runtime spec for a function
// container and wraps it as an Any carrying runtimeSpecTypeURL.
func GenerateSpec(cfg types.RuntimeConfig, endpoint types.Endpoint) (typeurl.Any, error) {
	spec := &specs.Spec{
		Version: "1.1.0",
		Root: &specs.Root{
			Path:     "rootfs",
			Readonly: true,
		},
		Process: &specs.Process{
			Cwd:             cfg.Cwd,
			Args:            cfg.Args,
			Env:             cfg.Env,
			NoNewPrivileges: true,
			User:            specs.User{UID: 0, GID: 0},
			Capabilities: &specs.LinuxCapabilities{
				Bounding:  fullCapabilities,
				Permitted: fullCapabilities,
				Effective: fullCapabilities,
			},
			Rlimits: []specs.POSIXRlimit{
				{Type: "RLIMIT_NOFILE", Hard: 1024, Soft: 1024},
			},
		},
		Mounts: ociMounts(),
		Linux: &specs.Linux{
			CgroupsPath: fmt.Sprintf("/%s/%s", endpoint.Namespace, endpoint.Service),
			MaskedPaths: maskedPaths,
			ReadonlyPaths: readonlyPaths,
			Resources: &specs.LinuxResources{
				Devices: []specs.LinuxDeviceCgroup{
					{Allow: false, Access: "rwm"},
				},
			},
			Namespaces: []specs.LinuxNamespace{
				{Type: specs.PIDNamespace},
				{Type: specs.IPCNamespace},
				{Type: specs.UTSNamespace},
				{Type: specs.MountNamespace},
				{Type: specs.NetworkNamespace, Path: NetnsPath(endpoint)},
			},
		},
	}

	any, err := typeurl.MarshalAny(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal runtime spec: %w", err)
	}
	return any, nil
}

// NetnsPath is the well-known location a named network namespace is
// bind-mounted at.
func NetnsPath(endpoint types.Endpoint) string {
	return fmt.Sprintf("/var/run/netns/%s", endpoint.String())
}

func ociMounts() []specs.Mount {
	return []specs.Mount{
		{
			Destination: "/proc",
			Type:        "proc",
			Source:      "proc",
			Options:     []string{"nosuid", "noexec", "nodev"},
		},
		{
			Destination: "/dev",
			Type:        "tmpfs",
			Source:      "tmpfs",
			Options:     []string{"nosuid", "strictatime", "mode=755", "size=65536k"},
		},
		{
			Destination: "/dev/pts",
			Type:        "devpts",
			Source:      "devpts",
			Options:     []string{"nosuid", "noexec", "newinstance", "ptmxmode=0666", "mode=0620", "gid=5"},
		},
		{
			Destination: "/dev/shm",
			Type:        "tmpfs",
			Source:      "shm",
			Options:     []string{"nosuid", "noexec", "nodev", "mode=1777", "size=65536k"},
		},
		{
			Destination: "/dev/mqueue",
			Type:        "mqueue",
			Source:      "mqueue",
			Options:     []string{"nosuid", "noexec", "nodev"},
		},
		{
			Destination: "/sys",
			Type:        "sysfs",
			Source:      "sysfs",
			Options:     []string{"nosuid", "noexec", "nodev", "ro"},
		},
		{
			Destination: "/run",
			Type:        "tmpfs",
			Source:      "tmpfs",
			Options:     []string{"nosuid", "strictatime", "mode=755", "size=65536k"},
		},
	}
}
