package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/logging"
)

// DockerCompute implements the Compute interface using Docker or Podman.
// It auto-detects which container engine is available.
type DockerCompute struct {
	// Command is the container command to use (docker or podman)
	Command string
}

// NewDockerCompute creates a new Docker/Podman compute adapter.
// It auto-detects which command is available.
func NewDockerCompute() (*DockerCompute, error) {
	if _, err := exec.LookPath("docker"); err == nil {
		return &DockerCompute{Command: "docker"}, nil
	}

	if _, err := exec.LookPath("podman"); err == nil {
		return &DockerCompute{Command: "podman"}, nil
	}

	return nil, lberrors.Wrap(lberrors.ExitComputeFailed,
		"neither docker nor podman found in PATH", lberrors.ErrDaemonUnavailable)
}

// Name returns the engine identifier
func (d *DockerCompute) Name() string {
	return d.Command
}

// runCmd executes a docker/podman command, returning captured stdout.
func (d *DockerCompute) runCmd(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = stdin
	}

	if err := cmd.Run(); err != nil {
		return stdout.String(), d.classify(args[0], stderr.String(), err)
	}

	return stdout.String(), nil
}

// classify maps CLI diagnostics onto the shared error taxonomy.
func (d *DockerCompute) classify(op, stderr string, cause error) error {
	message := strings.TrimSpace(stderr)
	lower := strings.ToLower(message)

	wrap := func(sentinel error) error {
		return lberrors.ComputeFailed(op, fmt.Errorf("%s: %w", message, sentinel))
	}

	switch {
	case strings.Contains(lower, "cannot connect to the docker daemon"),
		strings.Contains(lower, "error during connect"),
		strings.Contains(lower, "daemon") && strings.Contains(lower, "not running"):
		return wrap(lberrors.ErrDaemonUnavailable)
	case strings.Contains(lower, "no such container"),
		strings.Contains(lower, "no such object"),
		strings.Contains(lower, "no such image") && op == "inspect":
		return wrap(lberrors.ErrNotFound)
	case strings.Contains(lower, "is already in use"),
		strings.Contains(lower, "conflict. the container name"):
		return wrap(lberrors.ErrNameConflict)
	case strings.Contains(lower, "port is already allocated"),
		strings.Contains(lower, "address already in use"):
		return wrap(ErrPortConflict)
	case op == "pull", strings.Contains(lower, "manifest unknown"),
		strings.Contains(lower, "pull access denied"),
		strings.Contains(lower, "repository does not exist"):
		return wrap(lberrors.ErrImageUnavailable)
	}

	if message == "" {
		return lberrors.ComputeFailed(op, cause)
	}
	return lberrors.ComputeFailed(op, fmt.Errorf("%s: %w", message, cause))
}

// EnsureImage makes the image available locally, pulling it if the
// daemon does not already have it.
func (d *DockerCompute) EnsureImage(ctx context.Context, image string) error {
	if _, err := d.runCmd(ctx, nil, "image", "inspect", image); err == nil {
		return nil
	}

	logging.Debug("pulling image", "image", image, "engine", d.Command)
	_, err := d.runCmd(ctx, nil, "pull", image)
	return err
}

// CreateContainer creates a container from the spec and returns its id.
func (d *DockerCompute) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	logging.Debug("creating container", "name", spec.Name, "image", spec.Image)

	args := []string{"create", "--name", spec.Name}

	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}

	// Sort env and ports for deterministic argv across processes.
	envKeys := make([]string, 0, len(spec.Env))
	for key := range spec.Env {
		envKeys = append(envKeys, key)
	}
	sort.Strings(envKeys)
	for _, key := range envKeys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, spec.Env[key]))
	}

	hostIP := spec.HostIP
	if hostIP == "" {
		hostIP = "0.0.0.0"
	}
	containerPorts := make([]int, 0, len(spec.PortBindings))
	for containerPort := range spec.PortBindings {
		containerPorts = append(containerPorts, containerPort)
	}
	sort.Ints(containerPorts)
	for _, containerPort := range containerPorts {
		args = append(args, "-p",
			fmt.Sprintf("%s:%d:%d", hostIP, spec.PortBindings[containerPort], containerPort))
	}

	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	output, err := d.runCmd(ctx, nil, args...)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(output), nil
}

// Start starts an existing container
func (d *DockerCompute) Start(ctx context.Context, id string) error {
	logging.Debug("starting container", "container", id)
	_, err := d.runCmd(ctx, nil, "start", id)
	return err
}

// Pause suspends a running container. Already-paused is success.
func (d *DockerCompute) Pause(ctx context.Context, id string) error {
	logging.Debug("pausing container", "container", id)

	_, err := d.runCmd(ctx, nil, "pause", id)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "already paused") {
		return nil
	}
	return err
}

// Unpause resumes a paused container. Not-paused is success.
func (d *DockerCompute) Unpause(ctx context.Context, id string) error {
	logging.Debug("unpausing container", "container", id)

	_, err := d.runCmd(ctx, nil, "unpause", id)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "is not paused") {
		return nil
	}
	return err
}

// Remove force-removes a container.
func (d *DockerCompute) Remove(ctx context.Context, id string) error {
	logging.Debug("removing container", "container", id)
	_, err := d.runCmd(ctx, nil, "rm", "-f", id)
	return err
}

// ContainerExists reports whether the daemon knows a container by name or id.
func (d *DockerCompute) ContainerExists(ctx context.Context, nameOrID string) (bool, error) {
	_, err := d.runCmd(ctx, nil, "container", "inspect", "-f", "{{.Id}}", nameOrID)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// dockerInspect holds the relevant fields from docker inspect
type dockerInspect struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status  string `json:"Status"`
		Running bool   `json:"Running"`
		Paused  bool   `json:"Paused"`
	} `json:"State"`
	Config struct {
		Env []string `json:"Env"`
	} `json:"Config"`
	HostConfig struct {
		PortBindings map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		} `json:"PortBindings"`
	} `json:"HostConfig"`
}

// Inspect returns detailed state for a container.
func (d *DockerCompute) Inspect(ctx context.Context, id string) (*ContainerInfo, error) {
	output, err := d.runCmd(ctx, nil, "container", "inspect", id)
	if err != nil {
		if isNotFound(err) {
			return &ContainerInfo{ID: id, Status: StatusNotFound}, nil
		}
		return nil, err
	}

	var inspects []dockerInspect
	if err := json.Unmarshal([]byte(output), &inspects); err != nil || len(inspects) == 0 {
		return &ContainerInfo{ID: id, Status: StatusUnknown}, nil
	}

	inspect := inspects[0]
	info := &ContainerInfo{
		ID:           inspect.ID,
		Name:         strings.TrimPrefix(inspect.Name, "/"),
		Env:          inspect.Config.Env,
		PortBindings: make(map[int]int),
	}

	switch {
	case inspect.State.Paused:
		info.Status = StatusPaused
	case inspect.State.Running:
		info.Status = StatusRunning
	default:
		switch inspect.State.Status {
		case "exited", "created", "stopped", "dead":
			info.Status = StatusStopped
		default:
			info.Status = StatusUnknown
		}
	}

	for portProto, bindings := range inspect.HostConfig.PortBindings {
		containerPort, err := strconv.Atoi(strings.SplitN(portProto, "/", 2)[0])
		if err != nil {
			continue
		}
		for _, binding := range bindings {
			hostPort, err := strconv.Atoi(binding.HostPort)
			if err != nil {
				continue
			}
			info.PortBindings[containerPort] = hostPort
		}
	}

	return info, nil
}

// ListContainers returns all containers whose names start with namePrefix.
func (d *DockerCompute) ListContainers(ctx context.Context, namePrefix string) ([]*ContainerInfo, error) {
	output, err := d.runCmd(ctx, nil, "ps", "-a", "--format", "{{.Names}}",
		"--filter", fmt.Sprintf("name=%s", namePrefix))
	if err != nil {
		return nil, err
	}

	var containers []*ContainerInfo
	for _, containerName := range strings.Split(strings.TrimSpace(output), "\n") {
		if containerName == "" || !strings.HasPrefix(containerName, namePrefix) {
			continue
		}
		info, err := d.Inspect(ctx, containerName)
		if err != nil {
			continue
		}
		containers = append(containers, info)
	}

	return containers, nil
}

// Exec executes a command inside a container
func (d *DockerCompute) Exec(ctx context.Context, id string, argv []string, opts ExecOptions) (*ExecResult, error) {
	args := []string{"exec"}
	if opts.Workdir != "" {
		args = append(args, "-w", opts.Workdir)
	}
	args = append(args, id)
	args = append(args, argv...)

	execCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, d.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.ExitCode = -1
		return result, lberrors.Wrap(lberrors.ExitComputeFailed,
			fmt.Sprintf("exec timed out after %s", opts.Timeout), lberrors.ErrTimeout)
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, d.classify("exec", stderr.String(), err)
		}
	}

	return result, nil
}

// UploadTar extracts a tar stream into destPath inside the container.
func (d *DockerCompute) UploadTar(ctx context.Context, id, destPath string, tarStream io.Reader) error {
	logging.Debug("uploading tar", "container", id, "dest", destPath)
	_, err := d.runCmd(ctx, tarStream, "cp", "-", fmt.Sprintf("%s:%s", id, destPath))
	return err
}

// DownloadTar returns srcPath from the container as a tar stream.
func (d *DockerCompute) DownloadTar(ctx context.Context, id, srcPath string) (io.ReadCloser, error) {
	logging.Debug("downloading tar", "container", id, "src", srcPath)

	cmd := exec.CommandContext(ctx, d.Command, "cp", fmt.Sprintf("%s:%s", id, srcPath), "-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, d.classify("cp", stderr.String(), err)
	}

	return io.NopCloser(bytes.NewReader(stdout.Bytes())), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, lberrors.ErrNotFound)
}

// Ensure DockerCompute implements Compute
var _ Compute = (*DockerCompute)(nil)
