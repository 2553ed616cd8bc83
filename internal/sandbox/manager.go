package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/litterbox-sh/litterbox/internal/compute"
	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/logging"
	"github.com/litterbox-sh/litterbox/internal/name"
	"github.com/litterbox-sh/litterbox/internal/port"
	"github.com/litterbox-sh/litterbox/internal/scm"
)

const (
	portAllocAttempts = 5
	portAllocBackoff  = 25 * time.Millisecond
)

// keepaliveCommand keeps the sandbox container alive between execs.
var keepaliveCommand = []string{"sh", "-c", "tail -f /dev/null"}

// Manager composes the repository, compute, and port adapters into the
// sandbox lifecycle. The record table and per-slug locks are the only
// mutable process-wide state; the mutex guarding both maps is held only
// across map updates, never during I/O. A per-slug lock is held across
// the adapter I/O of the operation that takes it.
type Manager struct {
	scm     scm.Scm
	compute compute.Compute
	ports   *port.Allocator

	portRange port.Range

	mu      sync.Mutex
	records map[string]*Record
	locks   map[string]*sync.Mutex
}

// NewManager creates a Manager over the given adapters.
func NewManager(repo scm.Scm, daemon compute.Compute) *Manager {
	return &Manager{
		scm:       repo,
		compute:   daemon,
		ports:     port.NewAllocator(),
		portRange: port.DefaultRange(),
		records:   make(map[string]*Record),
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetPortRange overrides the default host port range.
func (m *Manager) SetPortRange(r port.Range) {
	m.portRange = r
}

// RepoSlug returns the repository slug used in container names.
func (m *Manager) RepoSlug() string {
	return m.scm.RepoSlug()
}

// Lock acquires the per-sandbox lock and returns its release func.
// Callers hold it for the full duration of a mutation including the
// post-mutation snapshot, so snapshots capture exactly one mutation.
func (m *Manager) Lock(slug string) func() {
	m.mu.Lock()
	lock, ok := m.locks[slug]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[slug] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Get returns the record for a slug, if present.
func (m *Manager) Get(slug string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[slug]
	return record, ok
}

// List returns all known records.
func (m *Manager) List() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]*Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	return records
}

// Resolve returns the record for a slug, rebuilding it from the branch
// namespace and the daemon's container list when this process has not
// seen the sandbox yet.
func (m *Manager) Resolve(ctx context.Context, slug string) (*Record, error) {
	if record, ok := m.Get(slug); ok {
		return record, nil
	}

	record, err := m.rebuild(ctx, slug)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.records[slug] = record
	m.mu.Unlock()
	return record, nil
}

// rebuild reconstructs a record from persisted state: the litterbox
// branch plus the daemon's view of the container.
func (m *Manager) rebuild(ctx context.Context, slug string) (*Record, error) {
	branch := name.BranchName(slug)
	exists, err := m.scm.BranchExists(ctx, branch)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, lberrors.SandboxNotFound(slug)
	}

	containerName := name.ContainerName(m.scm.RepoSlug(), slug)
	info, err := m.compute.Inspect(ctx, containerName)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Slug:          slug,
		BranchName:    branch,
		ContainerName: containerName,
		ContainerID:   info.ID,
	}

	switch info.Status {
	case compute.StatusRunning:
		record.Status = StatusActive
	case compute.StatusPaused:
		record.Status = StatusPaused
	case compute.StatusNotFound:
		record.Status = StatusError
		record.StatusMessage = "container missing"
	default:
		record.Status = StatusError
		record.StatusMessage = fmt.Sprintf("container %s", info.Status)
	}

	record.ForwardedPorts = forwardedPortsFromInspection(info)
	return record, nil
}

// LoadState populates the record table from the branch namespace. Used by
// the CLI so list/pause/resume see sandboxes created by other processes.
func (m *Manager) LoadState(ctx context.Context) error {
	branches, err := m.scm.ListBranches(ctx, "litterbox/")
	if err != nil {
		return err
	}

	for _, branch := range branches {
		slug, ok := name.SlugFromBranch(branch)
		if !ok {
			continue
		}
		if _, known := m.Get(slug); known {
			continue
		}
		record, err := m.rebuild(ctx, slug)
		if err != nil {
			logging.Warn("failed to rebuild sandbox state", "slug", slug, "error", err)
			continue
		}
		m.mu.Lock()
		m.records[slug] = record
		m.mu.Unlock()
	}

	return nil
}

// forwardedPortsFromInspection reconstructs the forwarded-port list from
// a container's environment and port bindings.
func forwardedPortsFromInspection(info *compute.ContainerInfo) []ForwardedPort {
	envByHostPort := make(map[int]string)
	for _, entry := range info.Env {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, isService := name.ServiceFromEnvVar(key); !isService {
			continue
		}
		var hostPort int
		if _, err := fmt.Sscanf(value, "%d", &hostPort); err != nil {
			continue
		}
		envByHostPort[hostPort] = key
	}

	var forwarded []ForwardedPort
	for target, hostPort := range info.PortBindings {
		envVar, ok := envByHostPort[hostPort]
		if !ok {
			continue
		}
		service, _ := name.ServiceFromEnvVar(envVar)
		forwarded = append(forwarded, ForwardedPort{
			Service:  service,
			Target:   target,
			HostPort: hostPort,
			EnvVar:   envVar,
		})
	}
	return forwarded
}

// Create provisions a new sandbox: branch, container, seeded tree, setup
// command, forwarded ports. Every step registers its inverse; on failure
// the inverses run in reverse order so no partial state survives. The one
// exception is a failing setup command, which leaves the resources in
// place for inspection and records the sandbox in the error state.
func (m *Manager) Create(ctx context.Context, rawName string, cfg CreateConfig) (*Record, error) {
	slug, err := name.SlugifyName(rawName)
	if err != nil {
		return nil, err
	}

	unlock := m.Lock(slug)
	defer unlock()

	branch := name.BranchName(slug)
	containerName := name.ContainerName(m.scm.RepoSlug(), slug)

	logging.Debug("starting sandbox creation", "slug", slug, "image", cfg.Image)

	// Occupancy checks before any side effect.
	if _, exists := m.Get(slug); exists {
		return nil, lberrors.NameConflict(slug)
	}
	if exists, err := m.scm.BranchExists(ctx, branch); err != nil {
		return nil, err
	} else if exists {
		return nil, lberrors.NameConflict(slug)
	}
	if exists, err := m.compute.ContainerExists(ctx, containerName); err != nil {
		return nil, err
	} else if exists {
		return nil, lberrors.NameConflict(slug)
	}

	services, err := slugifyServices(cfg.Services)
	if err != nil {
		return nil, err
	}

	// Rollback ladder: each completed step registers its inverse.
	var undo []func()
	fail := func(cause error) (*Record, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return nil, cause
	}

	head, err := m.scm.HeadRef(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.scm.CreateBranch(ctx, branch, head); err != nil {
		return nil, err
	}
	undo = append(undo, func() {
		if err := m.scm.DeleteBranch(context.Background(), branch); err != nil {
			logging.Warn("rollback: branch delete failed", "branch", branch, "error", err)
		}
	})

	if err := m.compute.EnsureImage(ctx, cfg.Image); err != nil {
		return fail(err)
	}

	archive, err := m.scm.ExportTreeTar(ctx, head)
	if err != nil {
		return fail(err)
	}

	containerID, forwarded, err := m.provisionContainer(ctx, containerName, cfg, services)
	if err != nil {
		return fail(err)
	}
	undo = append(undo, func() {
		m.ports.Release(hostPortsOf(forwarded))
		if err := m.compute.Remove(context.Background(), containerID); err != nil &&
			!errors.Is(err, lberrors.ErrNotFound) {
			logging.Warn("rollback: container remove failed", "container", containerID, "error", err)
		}
	})

	if err := m.compute.UploadTar(ctx, containerID, DefaultWorkdir, bytes.NewReader(archive)); err != nil {
		return fail(err)
	}

	record := &Record{
		Slug:           slug,
		BranchName:     branch,
		ContainerID:    containerID,
		ContainerName:  containerName,
		Status:         StatusActive,
		ForwardedPorts: forwarded,
		CreatedAt:      time.Now(),
	}

	if cfg.SetupCommand != "" {
		result, err := m.compute.Exec(ctx, containerID,
			[]string{"sh", "-c", cfg.SetupCommand},
			compute.ExecOptions{Workdir: DefaultWorkdir})
		if err != nil {
			return fail(err)
		}
		if result.ExitCode != 0 {
			// Resources stay up for inspection; the record carries the
			// failure and creation reports it.
			stderr := strings.TrimSpace(result.Stderr)
			if stderr == "" {
				stderr = strings.TrimSpace(result.Stdout)
			}
			record.Status = StatusError
			record.StatusMessage = fmt.Sprintf("setup failed: exit code %d", result.ExitCode)

			m.mu.Lock()
			m.records[slug] = record
			m.mu.Unlock()

			return nil, lberrors.SetupFailed(result.ExitCode, stderr)
		}
	}

	m.mu.Lock()
	m.records[slug] = record
	m.mu.Unlock()

	logging.Debug("sandbox created", "slug", slug, "container", containerID, "branch", branch)
	return record, nil
}

// provisionContainer reserves host ports, creates, and starts the
// container. When the daemon reports a host port lost to another process,
// allocation is retried with fresh ports a bounded number of times.
func (m *Manager) provisionContainer(ctx context.Context, containerName string, cfg CreateConfig, services []Service) (string, []ForwardedPort, error) {
	var lastErr error

	for attempt := 0; attempt < portAllocAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(portAllocBackoff)
		}

		hostPorts, err := m.ports.Reserve(len(services), m.portRange)
		if err != nil {
			return "", nil, err
		}

		forwarded := make([]ForwardedPort, len(services))
		env := make(map[string]string, len(services))
		bindings := make(map[int]int, len(services))
		for i, service := range services {
			envVar := name.ServiceEnvVar(service.Name)
			forwarded[i] = ForwardedPort{
				Service:  service.Name,
				Target:   service.Target,
				HostPort: hostPorts[i],
				EnvVar:   envVar,
			}
			env[envVar] = fmt.Sprintf("%d", hostPorts[i])
			bindings[service.Target] = hostPorts[i]
		}

		spec := compute.ContainerSpec{
			Name:         containerName,
			Image:        cfg.Image,
			Command:      keepaliveCommand,
			Workdir:      DefaultWorkdir,
			Env:          env,
			PortBindings: bindings,
			HostIP:       "0.0.0.0",
		}

		containerID, err := m.compute.CreateContainer(ctx, spec)
		if err != nil {
			m.ports.Release(hostPorts)
			if errors.Is(err, compute.ErrPortConflict) {
				lastErr = err
				continue
			}
			return "", nil, err
		}

		if err := m.compute.Start(ctx, containerID); err != nil {
			_ = m.compute.Remove(context.Background(), containerID)
			m.ports.Release(hostPorts)
			if errors.Is(err, compute.ErrPortConflict) {
				lastErr = err
				continue
			}
			return "", nil, err
		}

		return containerID, forwarded, nil
	}

	return "", nil, lberrors.PortsExhausted(lastErr)
}

// slugifyServices validates service names and rejects duplicate env-var
// keys after slugification.
func slugifyServices(services []Service) ([]Service, error) {
	out := make([]Service, len(services))
	seen := make(map[string]bool, len(services))

	for i, service := range services {
		slug, err := name.SlugifyName(service.Name)
		if err != nil {
			return nil, err
		}
		if seen[slug] {
			return nil, lberrors.ConfigError(
				fmt.Sprintf("duplicate forwarded port name after slugify: %q", slug), nil)
		}
		seen[slug] = true
		out[i] = Service{Name: slug, Target: service.Target}
	}

	return out, nil
}

func hostPortsOf(forwarded []ForwardedPort) []int {
	ports := make([]int, 0, len(forwarded))
	for _, fwd := range forwarded {
		ports = append(ports, fwd.HostPort)
	}
	return ports
}

// Pause suspends a sandbox. Pausing a paused sandbox succeeds.
func (m *Manager) Pause(ctx context.Context, slug string) error {
	unlock := m.Lock(slug)
	defer unlock()

	record, err := m.Resolve(ctx, slug)
	if err != nil {
		return err
	}

	if record.Status == StatusPaused {
		return nil
	}

	if err := m.compute.Pause(ctx, record.ContainerID); err != nil {
		return m.markError(record, "pause", err)
	}

	m.setStatus(record, StatusPaused, "")
	return nil
}

// Resume unpauses a sandbox. Resuming an active sandbox succeeds.
func (m *Manager) Resume(ctx context.Context, slug string) error {
	unlock := m.Lock(slug)
	defer unlock()

	record, err := m.Resolve(ctx, slug)
	if err != nil {
		return err
	}

	if record.Status == StatusActive {
		return nil
	}

	if err := m.compute.Unpause(ctx, record.ContainerID); err != nil {
		return m.markError(record, "resume", err)
	}

	m.setStatus(record, StatusActive, "")
	return nil
}

// Delete removes the container, the branch, the reserved ports, and the
// record. Missing container or branch is benign: cleanup of the remaining
// resources continues. Any other failure leaves the record in the error
// state for manual cleanup.
func (m *Manager) Delete(ctx context.Context, slug string) error {
	unlock := m.Lock(slug)
	defer unlock()

	record, err := m.Resolve(ctx, slug)
	if err != nil {
		return err
	}

	target := record.ContainerID
	if target == "" {
		target = record.ContainerName
	}
	if err := m.compute.Remove(ctx, target); err != nil && !errors.Is(err, lberrors.ErrNotFound) {
		return m.markError(record, "delete", err)
	}

	if err := m.scm.DeleteBranch(ctx, record.BranchName); err != nil && !errors.Is(err, lberrors.ErrNotFound) {
		return m.markError(record, "delete", err)
	}

	m.ports.Release(record.HostPorts())

	m.mu.Lock()
	delete(m.records, slug)
	delete(m.locks, slug)
	m.mu.Unlock()

	logging.Debug("sandbox deleted", "slug", slug)
	return nil
}

// Shell executes argv inside the sandbox container. A relative workdir
// resolves against /src.
func (m *Manager) Shell(ctx context.Context, slug string, argv []string, workdir string, timeout time.Duration) (*compute.ExecResult, error) {
	record, err := m.Resolve(ctx, slug)
	if err != nil {
		return nil, err
	}

	resolved := DefaultWorkdir
	if workdir != "" {
		resolved = resolveSandboxPath(workdir)
	}

	return m.compute.Exec(ctx, record.ContainerID, argv, compute.ExecOptions{
		Workdir: resolved,
		Timeout: timeout,
	})
}

// Upload transfers a host file or directory to sandboxPath inside the
// container. The tar stream is produced and consumed concurrently.
func (m *Manager) Upload(ctx context.Context, slug, hostPath, sandboxPath string) error {
	record, err := m.Resolve(ctx, slug)
	if err != nil {
		return err
	}

	target := resolveSandboxPath(sandboxPath)
	destDir := path.Dir(target)

	// Parent directories must exist before docker extracts the archive.
	if result, err := m.compute.Exec(ctx, record.ContainerID,
		[]string{"mkdir", "-p", destDir}, compute.ExecOptions{}); err != nil {
		return err
	} else if result.ExitCode != 0 {
		return lberrors.ComputeFailed("upload",
			fmt.Errorf("mkdir -p %s: %s", destDir, strings.TrimSpace(result.Stderr)))
	}

	pr, pw := io.Pipe()
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := packTar(pw, hostPath, path.Base(target))
		pw.CloseWithError(err)
		return err
	})
	group.Go(func() error {
		return m.compute.UploadTar(groupCtx, record.ContainerID, destDir, pr)
	})

	return group.Wait()
}

// Download transfers sandboxPath from the container to hostPath. A
// directory's contents are unpacked into hostPath; a single file lands at
// hostPath/<basename>.
func (m *Manager) Download(ctx context.Context, slug, sandboxPath, hostPath string) error {
	record, err := m.Resolve(ctx, slug)
	if err != nil {
		return err
	}

	return m.DownloadFromContainer(ctx, record, sandboxPath, hostPath)
}

// DownloadFromContainer is Download for callers already holding a record;
// the snapshot coordinator uses it to stage /src without re-resolving.
func (m *Manager) DownloadFromContainer(ctx context.Context, record *Record, sandboxPath, hostPath string) error {
	source := resolveSandboxPath(sandboxPath)

	stream, err := m.compute.DownloadTar(ctx, record.ContainerID, source)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := os.MkdirAll(hostPath, 0755); err != nil {
		return lberrors.ComputeFailed("download", err)
	}

	// docker cp roots the archive at the source basename; strip it so
	// the contents land directly in hostPath.
	return unpackTar(stream, hostPath, path.Base(source))
}

// resolveSandboxPath interprets relative paths against /src.
func resolveSandboxPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return path.Clean(p)
	}
	return path.Join(DefaultWorkdir, p)
}

func (m *Manager) setStatus(record *Record, status Status, message string) {
	m.mu.Lock()
	record.Status = status
	record.StatusMessage = message
	m.mu.Unlock()
}

func (m *Manager) markError(record *Record, op string, cause error) error {
	m.setStatus(record, StatusError, fmt.Sprintf("%s failed: %v", op, cause))
	return cause
}

// MarkError moves a sandbox into the error state with a message. Used by
// the snapshot coordinator when the sandbox branch has gone missing.
func (m *Manager) MarkError(slug, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[slug]; ok {
		record.Status = StatusError
		record.StatusMessage = message
	}
}
