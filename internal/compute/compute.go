package compute

import (
	"context"
	"errors"
	"io"
	"time"
)

// ContainerStatus represents the state of a container
type ContainerStatus string

const (
	StatusRunning  ContainerStatus = "running"
	StatusPaused   ContainerStatus = "paused"
	StatusStopped  ContainerStatus = "stopped"
	StatusNotFound ContainerStatus = "not-found"
	StatusUnknown  ContainerStatus = "unknown"
)

// ErrPortConflict reports that a host port in the container spec was
// claimed by another process between the allocator's probe and the
// container start. The lifecycle layer retries allocation on it.
var ErrPortConflict = errors.New("host port already allocated")

// ContainerSpec holds everything needed to create a sandbox container.
// Bind mounts are deliberately absent: the only channel from container to
// host is the snapshot commit stream.
type ContainerSpec struct {
	Name    string
	Image   string
	Command []string
	Workdir string

	// Env is injected verbatim as KEY=VALUE pairs.
	Env map[string]string

	// PortBindings maps container port -> host port.
	PortBindings map[int]int

	// HostIP is the bind address for forwarded ports; defaults to 0.0.0.0.
	HostIP string
}

// ContainerInfo holds inspection results for a container.
type ContainerInfo struct {
	ID     string
	Name   string
	Status ContainerStatus

	// Env is the container's environment as KEY=VALUE pairs.
	Env []string

	// PortBindings maps container port -> host port.
	PortBindings map[int]int
}

// ExecResult holds the result of executing a command in a container
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecOptions holds options for executing a command in a container
type ExecOptions struct {
	// Workdir is the working directory inside the container.
	Workdir string

	// Timeout caps the wall-clock run time. Zero means no cap. On expiry
	// the adapter surfaces ErrTimeout together with whatever output was
	// captured.
	Timeout time.Duration
}

// Compute is the contract over the container daemon. Operations on
// distinct containers may run in parallel; operations on the same
// container are serialised by the caller.
type Compute interface {
	// EnsureImage makes the image available locally, pulling if needed.
	EnsureImage(ctx context.Context, image string) error

	// CreateContainer creates (but does not start) a container and
	// returns its id.
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)

	// Start starts an existing container.
	Start(ctx context.Context, id string) error

	// Pause suspends a running container. Pausing an already paused
	// container is a no-op success.
	Pause(ctx context.Context, id string) error

	// Unpause resumes a paused container. Unpausing a running container
	// is a no-op success.
	Unpause(ctx context.Context, id string) error

	// Remove force-removes a container. A missing container surfaces
	// ErrNotFound.
	Remove(ctx context.Context, id string) error

	// ContainerExists reports whether a container with the given name or
	// id is known to the daemon.
	ContainerExists(ctx context.Context, name string) (bool, error)

	// Inspect returns detailed state for a container.
	Inspect(ctx context.Context, id string) (*ContainerInfo, error)

	// ListContainers returns all containers whose names start with
	// namePrefix.
	ListContainers(ctx context.Context, namePrefix string) ([]*ContainerInfo, error)

	// Exec runs argv inside the container and captures its output.
	Exec(ctx context.Context, id string, argv []string, opts ExecOptions) (*ExecResult, error)

	// UploadTar extracts a tar stream into destPath inside the container.
	UploadTar(ctx context.Context, id, destPath string, tarStream io.Reader) error

	// DownloadTar returns srcPath from the container as a tar stream.
	DownloadTar(ctx context.Context, id, srcPath string) (io.ReadCloser, error)
}
